// Package signaling relays WebRTC session negotiation between meeting
// participants. The server never parses SDP or candidate payloads; it only
// tracks room membership and forwards envelopes to the addressed connection.
package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/origin"
	"github.com/parleyhq/parley/internal/ratelimit"
)

// MeetingDirectory answers whether a meeting code is known. Implemented by
// meetings.Registry.
type MeetingDirectory interface {
	Has(id string) bool
}

type Server struct {
	log      *slog.Logger
	cfg      config.Config
	meetings MeetingDirectory
	rooms    *roomTracker
	metrics  *metrics.Metrics
	clock    ratelimit.Clock

	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, logger *slog.Logger, meetings MeetingDirectory, m *metrics.Metrics) *Server {
	s := &Server{
		log:      logger,
		cfg:      cfg,
		meetings: meetings,
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
	mux.HandleFunc("GET /ws/meet", s.handleWS)
}

// checkOrigin applies the same policy as the HTTP middleware to websocket
// upgrades. Gorilla calls it before completing the handshake.
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

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Debug("signaling upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newClient(uuid.NewString(), conn, s.cfg.WSSendBuffer, func() {
		s.metrics.Inc(metrics.SignalingDropped)
	})
	s.metrics.Inc(metrics.SignalingConnections)
	s.log.Debug("signaling connection opened", "client_id", c.id, "remote_addr", r.RemoteAddr)

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
			s.metrics.Inc(metrics.SignalingDropped)
			s.metrics.Inc(metrics.DropReasonRateLimited)
			continue
		}
		s.handleMessage(c, data)
	}
}

// disconnect tears the connection down and, if the client had joined a
// meeting, notifies the remaining peers exactly once.
func (s *Server) disconnect(c *client) {
	if c.meetingID != "" {
		s.rooms.leave(c.meetingID, c)
	}
	c.closeSend()
	s.log.Debug("signaling connection closed", "client_id", c.id, "meeting_id", c.meetingID)
}

// handleMessage dispatches one inbound envelope. Malformed or misaddressed
// messages are dropped without a reply: signaling failures must not give a
// sender a probe for which connections exist.
func (s *Server) handleMessage(c *client, data []byte) {
	msg, ok := parseClientMessage(data)
	if !ok {
		s.metrics.Inc(metrics.SignalingDropped)
		return
	}

	switch msg.Type {
	case TypeJoin:
		s.handleJoin(c, msg)
	case TypeOffer, TypeAnswer:
		if len(msg.SDP) == 0 {
			s.metrics.Inc(metrics.SignalingDropped)
			return
		}
		s.relay(c, relayedMessage{Type: msg.Type, From: c.id, SDP: msg.SDP}, msg.To)
	case TypeICECandidate:
		if len(msg.Candidate) == 0 {
			s.metrics.Inc(metrics.SignalingDropped)
			return
		}
		s.relay(c, relayedMessage{Type: msg.Type, From: c.id, Candidate: msg.Candidate}, msg.To)
	default:
		s.metrics.Inc(metrics.SignalingDropped)
	}
}

func (s *Server) handleJoin(c *client, msg clientMessage) {
	meetingID := strings.TrimSpace(msg.MeetingID)
	if meetingID == "" {
		s.metrics.Inc(metrics.SignalingDropped)
		return
	}
	// A connection signals in at most one meeting. Re-joining the same one is
	// idempotent; switching meetings on a live connection is not supported.
	if c.meetingID != "" && c.meetingID != meetingID {
		s.metrics.Inc(metrics.SignalingDropped)
		return
	}

	if !s.meetings.Has(meetingID) {
		c.enqueue(mustEncode(meetingNotFoundMessage{Type: TypeMeetingNotFound, MeetingID: meetingID}))
		return
	}

	first := c.meetingID == ""
	c.meetingID = meetingID
	s.rooms.join(meetingID, c)
	if first {
		s.metrics.Inc(metrics.SignalingJoins)
		s.log.Debug("joined meeting", "client_id", c.id, "meeting_id", meetingID,
			"room_size", s.rooms.roomSize(meetingID))
	}
}

// relay unicasts an envelope to the addressed connection in the sender's
// meeting. Unknown targets and senders that never joined drop silently.
func (s *Server) relay(c *client, out relayedMessage, to string) {
	if c.meetingID == "" || to == "" {
		s.metrics.Inc(metrics.SignalingDropped)
		return
	}
	target, ok := s.rooms.get(c.meetingID, to)
	if !ok {
		s.metrics.Inc(metrics.SignalingDropped)
		return
	}
	target.enqueue(mustEncode(out))
	s.metrics.Inc(metrics.SignalingRelayed)
}
