package chat

import "sync"

// room is the set of connections subscribed to one conversation. Each room
// has its own lock so that persist-then-broadcast can be serialized per
// conversation without stalling the others.
type room struct {
	mu      sync.Mutex
	members map[*client]struct{}
}

type roomTracker struct {
	mu    sync.Mutex
	rooms map[int64]*room
}

func newRoomTracker() *roomTracker {
	return &roomTracker{
		rooms: make(map[int64]*room),
	}
}

func (t *roomTracker) join(conversationID int64, c *client) {
	t.mu.Lock()
	r := t.rooms[conversationID]
	if r == nil {
		r = &room{members: make(map[*client]struct{})}
		t.rooms[conversationID] = r
	}
	t.mu.Unlock()

	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
}

func (t *roomTracker) leave(conversationID int64, c *client) {
	t.mu.Lock()
	r := t.rooms[conversationID]
	t.mu.Unlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	delete(r.members, c)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		t.mu.Lock()
		// Re-check under the tracker lock; someone may have joined since.
		r.mu.Lock()
		if len(r.members) == 0 {
			delete(t.rooms, conversationID)
		}
		r.mu.Unlock()
		t.mu.Unlock()
	}
}

// withRoom runs fn while holding the conversation's room lock. Messages for a
// conversation are persisted and fanned out inside fn, so delivery order
// matches persistence order. broadcast returns the number of members reached.
//
// A conversation nobody is subscribed to has no room entry; fn still runs so
// the message is persisted, with a broadcast that reaches nobody.
func (t *roomTracker) withRoom(conversationID int64, fn func(broadcast func(msg []byte) int)) {
	t.mu.Lock()
	r := t.rooms[conversationID]
	t.mu.Unlock()

	if r == nil {
		fn(func([]byte) int { return 0 })
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fn(func(msg []byte) int {
		for member := range r.members {
			member.enqueue(msg)
		}
		return len(r.members)
	})
}

func (t *roomTracker) roomSize(conversationID int64) int {
	t.mu.Lock()
	r := t.rooms[conversationID]
	t.mu.Unlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
