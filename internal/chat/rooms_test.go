package chat

import (
	"testing"

	"github.com/parleyhq/parley/internal/auth"
)

func (t *roomTracker) trackedRooms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

func TestWithRoomWithoutSubscribersLeavesNoEntry(t *testing.T) {
	tracker := newRoomTracker()

	ran := false
	tracker.withRoom(10, func(broadcast func(msg []byte) int) {
		ran = true
		if reached := broadcast([]byte(`{}`)); reached != 0 {
			t.Fatalf("broadcast reached %d members in an empty room", reached)
		}
	})
	if !ran {
		t.Fatalf("fn did not run for an unsubscribed conversation")
	}
	if n := tracker.trackedRooms(); n != 0 {
		t.Fatalf("tracked rooms=%d after send to empty conversation, want 0", n)
	}
}

func TestLeavePrunesEmptyRoom(t *testing.T) {
	tracker := newRoomTracker()
	c := newClient(auth.Identity{UserID: 1}, nil, 1, nil)

	tracker.join(10, c)
	if n := tracker.trackedRooms(); n != 1 {
		t.Fatalf("tracked rooms=%d after join, want 1", n)
	}

	tracker.leave(10, c)
	if n := tracker.trackedRooms(); n != 0 {
		t.Fatalf("tracked rooms=%d after last leave, want 0", n)
	}
}
