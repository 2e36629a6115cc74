package signaling

import "sync"

// roomTracker maps meeting codes to the connections currently signaling in
// them. Membership transitions and their notifications happen under one mutex
// so a joiner's snapshot is always enqueued before any membership event that
// postdates it. Enqueues never block, so holding the lock is cheap.
type roomTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]*client
}

func newRoomTracker() *roomTracker {
	return &roomTracker{
		rooms: make(map[string]map[string]*client),
	}
}

// join inserts the client, sends it the joined snapshot and notifies existing
// peers. Joining a room the client is already in just re-sends the snapshot.
func (t *roomTracker) join(meetingID string, c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[meetingID]
	if room == nil {
		room = make(map[string]*client)
		t.rooms[meetingID] = room
	}

	_, rejoin := room[c.id]

	peers := make([]string, 0, len(room))
	for id := range room {
		if id == c.id {
			continue
		}
		peers = append(peers, id)
	}

	room[c.id] = c
	c.enqueue(mustEncode(joinedMessage{Type: TypeJoined, Joined: true, ClientID: c.id, Peers: peers}))

	if rejoin {
		return
	}
	notice := mustEncode(peerMessage{Type: TypePeerJoined, ClientID: c.id})
	for id, peer := range room {
		if id == c.id {
			continue
		}
		peer.enqueue(notice)
	}
}

// leave removes the client and notifies the remaining members exactly once.
// Leaving a room the client never joined is a no-op. Empty rooms are dropped.
func (t *roomTracker) leave(meetingID string, c *client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[meetingID]
	if _, ok := room[c.id]; !ok {
		return
	}
	delete(room, c.id)
	if len(room) == 0 {
		delete(t.rooms, meetingID)
		return
	}

	notice := mustEncode(peerMessage{Type: TypePeerLeft, ClientID: c.id})
	for _, peer := range room {
		peer.enqueue(notice)
	}
}

// get looks up a specific connection in a meeting.
func (t *roomTracker) get(meetingID, clientID string) (*client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.rooms[meetingID][clientID]
	return c, ok
}

func (t *roomTracker) roomSize(meetingID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms[meetingID])
}
