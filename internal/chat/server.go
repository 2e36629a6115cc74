// Package chat relays conversation messages between authenticated websocket
// connections. Messages are persisted before they fan out, so every delivered
// message is durable and delivery order matches persistence order.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/origin"
	"github.com/parleyhq/parley/internal/ratelimit"
	"github.com/parleyhq/parley/internal/store"
)

// ConversationStore is the slice of the persistence layer the relay needs.
type ConversationStore interface {
	GetConversation(ctx context.Context, id int64) (model.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID int64, content string) (model.Message, error)
}

type Server struct {
	log      *slog.Logger
	cfg      config.Config
	verifier auth.TokenVerifier
	store    ConversationStore
	rooms    *roomTracker
	metrics  *metrics.Metrics
	clock    ratelimit.Clock

	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, logger *slog.Logger, verifier auth.TokenVerifier, st ConversationStore, m *metrics.Metrics) *Server {
	s := &Server{
		log:      logger,
		cfg:      cfg,
		verifier: verifier,
		store:    st,
		rooms:    newRoomTracker(),
		metrics:  m,
		clock:    ratelimit.RealClock{},
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/chat", s.handleWS)
}

func checkOrigin(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			return true
		}
		normalized, host, ok := origin.NormalizeHeader(originHeader)
		if !ok {
			return false
		}
		return origin.IsAllowed(normalized, host, r.Host, allowedOrigins)
	}
}

// handleWS authenticates the request before upgrading. Browsers cannot set
// headers on websocket requests, so the token usually arrives via ?token=.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	credential, err := auth.CredentialFromRequest(r)
	if err != nil {
		s.metrics.Inc(metrics.ChatAuthFailures)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	identity, err := s.verifier.Verify(credential)
	if err != nil {
		s.metrics.Inc(metrics.ChatAuthFailures)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("chat upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newClient(identity, conn, s.cfg.WSSendBuffer, nil)
	s.metrics.Inc(metrics.ChatConnections)
	s.log.Debug("chat connection opened", "user_id", identity.UserID, "remote_addr", r.RemoteAddr)

	go c.writePump(s.cfg.WSPingInterval)
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.disconnect(c)

	c.conn.SetReadLimit(int64(s.cfg.MaxWSMessageBytes))
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))
	})

	bucket := ratelimit.NewTokenBucket(s.clock,
		int64(s.cfg.MaxWSMessagesPerSec), int64(s.cfg.MaxWSMessagesPerSec))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.WSIdleTimeout))

		if !bucket.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			continue
		}
		s.handleMessage(c, data)
	}
}

func (s *Server) disconnect(c *client) {
	for conversationID := range c.joined {
		s.rooms.leave(conversationID, c)
	}
	c.closeSend()
	s.log.Debug("chat connection closed", "user_id", c.identity.UserID)
}

func (s *Server) handleMessage(c *client, data []byte) {
	msg, ok := parseClientMessage(data)
	if !ok {
		s.fail(c, CodeBadRequest, "malformed message")
		return
	}

	switch msg.Type {
	case TypeConversationJoin:
		s.handleJoin(c, msg.ConversationID)
	case TypeConversationLeave:
		s.handleLeave(c, msg.ConversationID)
	case TypeMessageSend:
		s.handleSend(c, msg.ConversationID, msg.Content)
	default:
		s.fail(c, CodeBadRequest, "unknown message type")
	}
}

// handleJoin subscribes the connection to a conversation it participates in.
// Joining twice is idempotent.
func (s *Server) handleJoin(c *client, conversationID int64) {
	if conversationID <= 0 {
		s.fail(c, CodeBadRequest, "conversationId is required")
		return
	}
	if _, ok := c.joined[conversationID]; ok {
		return
	}
	if !s.authorize(c, conversationID) {
		return
	}

	s.rooms.join(conversationID, c)
	c.joined[conversationID] = struct{}{}
	s.log.Debug("joined conversation", "user_id", c.identity.UserID,
		"conversation_id", conversationID, "room_size", s.rooms.roomSize(conversationID))
}

func (s *Server) handleLeave(c *client, conversationID int64) {
	if _, ok := c.joined[conversationID]; !ok {
		return
	}
	delete(c.joined, conversationID)
	s.rooms.leave(conversationID, c)
}

// handleSend persists the message, then fans it out to the conversation room
// including the sender. A failed persist suppresses the broadcast entirely.
func (s *Server) handleSend(c *client, conversationID int64, content string) {
	if conversationID <= 0 || content == "" {
		s.fail(c, CodeBadRequest, "conversationId and content are required")
		return
	}
	if !s.authorize(c, conversationID) {
		return
	}

	s.rooms.withRoom(conversationID, func(broadcast func(msg []byte) int) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stored, err := s.store.AppendMessage(ctx, conversationID, c.identity.UserID, content)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.fail(c, CodeConversationNotFound, "conversation does not exist")
				return
			}
			s.log.Error("persist chat message", "error", err,
				"conversation_id", conversationID, "user_id", c.identity.UserID)
			s.fail(c, CodeInternal, "message not delivered")
			return
		}
		s.metrics.Inc(metrics.ChatMessagesSent)

		reached := broadcast(mustEncode(newReceiveMessage(stored)))
		s.metrics.Add(metrics.ChatMessagesDelivered, uint64(reached))
	})
}

// authorize checks the conversation exists and the user participates in it.
func (s *Server) authorize(c *client, conversationID int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		s.fail(c, CodeConversationNotFound, "conversation does not exist")
		return false
	}
	if err != nil {
		s.log.Error("load conversation", "error", err, "conversation_id", conversationID)
		s.fail(c, CodeInternal, "conversation lookup failed")
		return false
	}
	for _, participant := range conv.Participants {
		if participant == c.identity.UserID {
			return true
		}
	}
	s.fail(c, CodeNotParticipant, "not a participant of this conversation")
	return false
}

func (s *Server) fail(c *client, code, message string) {
	c.enqueue(mustEncode(errorMessage{Type: TypeError, Code: code, Message: message}))
}
