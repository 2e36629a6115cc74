package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/auth"
)

const writeWait = 10 * time.Second

// client is one authenticated chat websocket connection. Outbound delivery
// goes through a buffered channel drained by a single writer goroutine.
type client struct {
	identity auth.Identity
	conn     *websocket.Conn

	send   chan []byte
	mu     sync.Mutex
	closed bool

	// joined tracks the conversation rooms this connection is in. Only the
	// connection's read loop mutates it.
	joined map[int64]struct{}

	onDrop func()
}

func newClient(identity auth.Identity, conn *websocket.Conn, sendBuffer int, onDrop func()) *client {
	return &client{
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		joined:   make(map[int64]struct{}),
		onDrop:   onDrop,
	}
}

func (c *client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
	}
}

func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
