package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// client is one signaling websocket connection. The read loop is the only
// writer of meetingID; outbound messages go through a buffered send channel
// drained by a single writer goroutine, which keeps per-connection ordering.
type client struct {
	id   string
	conn *websocket.Conn

	send   chan []byte
	mu     sync.Mutex
	closed bool

	// meetingID is set once on successful join. It is only touched by the
	// connection's read loop.
	meetingID string

	onDrop func()
}

func newClient(id string, conn *websocket.Conn, sendBuffer int, onDrop func()) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		onDrop: onDrop,
	}
}

// enqueue hands a message to the writer goroutine. Messages to closed or
// backed-up connections are dropped; a slow consumer must not stall the room.
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

// closeSend stops the writer goroutine. Safe to call once per connection;
// enqueue afterwards is a no-op.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel and keeps the connection alive with
// pings. It owns all writes to the underlying connection.
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
