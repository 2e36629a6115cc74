package signaling

import "encoding/json"

// Message type strings shared by both directions of the wire protocol.
const (
	TypeJoin            = "join"
	TypeJoined          = "joined"
	TypeMeetingNotFound = "meeting-not-found"
	TypePeerJoined      = "peer-joined"
	TypePeerLeft        = "peer-left"
	TypeOffer           = "offer"
	TypeAnswer          = "answer"
	TypeICECandidate    = "ice-candidate"
)

// clientMessage is the single inbound envelope. Only the fields relevant to
// the given type are consulted; SDP and Candidate stay raw because the relay
// forwards them verbatim and never inspects session descriptions.
type clientMessage struct {
	Type      string          `json:"type"`
	MeetingID string          `json:"meetingId,omitempty"`
	Name      string          `json:"name,omitempty"`
	To        string          `json:"to,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type joinedMessage struct {
	Type     string   `json:"type"`
	Joined   bool     `json:"joined"`
	ClientID string   `json:"clientId"`
	Peers    []string `json:"peers"`
}

type meetingNotFoundMessage struct {
	Type      string `json:"type"`
	MeetingID string `json:"meetingId"`
}

type peerMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// relayedMessage is the unicast envelope for offer, answer and ice-candidate.
type relayedMessage struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func parseClientMessage(data []byte) (clientMessage, bool) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, false
	}
	if msg.Type == "" {
		return clientMessage{}, false
	}
	return msg, true
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All outbound message types marshal cleanly; a failure here is a
		// programming error.
		panic(err)
	}
	return data
}
