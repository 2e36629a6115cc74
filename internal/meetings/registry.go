// Package meetings tracks the short-lived codes that name video call rooms.
//
// The registry is intentionally in-memory: meeting codes only gate entry to
// the signaling relay, and a restart invalidating them is acceptable.
package meetings

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

const (
	codeLen      = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Meeting struct {
	ID        string
	CreatedAt time.Time
}

// Registry is a concurrency-safe set of known meetings. Meetings are never
// evicted; see the package comment for the restart trade-off.
type Registry struct {
	mu       sync.Mutex
	meetings map[string]Meeting
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		meetings: make(map[string]Meeting),
		now:      time.Now,
	}
}

// Create mints a new meeting with a random 6-character code. Codes are drawn
// from uppercase letters and digits; on the vanishingly unlikely collision the
// draw is retried.
func (r *Registry) Create() (Meeting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id, err := randomCode()
		if err != nil {
			return Meeting{}, fmt.Errorf("generate meeting code: %w", err)
		}
		if _, exists := r.meetings[id]; exists {
			continue
		}
		meeting := Meeting{ID: id, CreatedAt: r.now()}
		r.meetings[id] = meeting
		return meeting, nil
	}
}

// Has reports whether a meeting with the given code exists.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.meetings[id]
	return ok
}

// Len reports the number of known meetings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meetings)
}

func randomCode() (string, error) {
	var buf [codeLen]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	out := make([]byte, codeLen)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
