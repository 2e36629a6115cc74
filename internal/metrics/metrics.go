package metrics

import "sync"

// Counter names. Everything is exposed as one metric with an `event` label,
// so these are label values rather than full metric names.
const (
	UserRegistrations = "user_registrations"
	UserLogins        = "user_logins"
	MeetingsCreated   = "meetings_created"

	SignalingConnections = "signaling_connections"
	SignalingJoins       = "signaling_joins"
	SignalingRelayed     = "signaling_messages_relayed"
	SignalingDropped     = "signaling_messages_dropped"

	ChatConnections       = "chat_connections"
	ChatAuthFailures      = "chat_auth_failures"
	ChatMessagesSent      = "chat_messages_sent"
	ChatMessagesDelivered = "chat_messages_delivered"

	DropReasonRateLimited = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A real metrics backend can be plugged in later; this type exists to keep
// enforcement logic testable while still being scrapable.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
