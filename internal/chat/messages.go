package chat

import (
	"encoding/json"
	"time"

	"github.com/parleyhq/parley/internal/model"
)

const (
	TypeConversationJoin  = "conversation.join"
	TypeConversationLeave = "conversation.leave"
	TypeMessageSend       = "message.send"
	TypeMessageReceive    = "message.receive"
	TypeError             = "error"
)

// Error codes sent to clients. Failures carry a code instead of closing the
// connection so one bad frame does not tear down an otherwise healthy session.
const (
	CodeBadRequest           = "bad_request"
	CodeConversationNotFound = "conversation_not_found"
	CodeNotParticipant       = "not_participant"
	CodeInternal             = "internal_error"
)

type clientMessage struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
}

type receiveMessage struct {
	Type           string    `json:"type"`
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newReceiveMessage(m model.Message) receiveMessage {
	return receiveMessage{
		Type:           TypeMessageReceive,
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
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
		panic(err)
	}
	return data
}
