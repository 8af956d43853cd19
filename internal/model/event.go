package model

import (
	"encoding/json"
)

// Action names a realtime event type. Inbound envelopes are decoded into
// one payload struct per action; the dispatcher switches exhaustively.
type Action string

const (
	ActionSend     Action = "message:send"
	ActionTyping   Action = "message:typing"
	ActionReaction Action = "message:reaction"
	ActionRead     Action = "message:read"
	ActionDeleted  Action = "message:deleted"

	// ActionReceive is outbound only.
	ActionReceive Action = "message:receive"
)

// Envelope is the wire frame for all realtime traffic.
type Envelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// NewEnvelope marshals v into a ready-to-send envelope frame.
func NewEnvelope(action Action, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Action: action, Data: data})
}

// SendPayload is the data of a message:send event.
type SendPayload struct {
	ConversationID    string      `json:"conversationId"`
	Content           string      `json:"content"`
	Type              MessageType `json:"type"`
	Attachment        *Attachment `json:"attachment,omitempty"`
	ReplyTo           *ReplyRef   `json:"replyTo,omitempty"`
	TranslateDocument bool        `json:"translateDocument,omitempty"`
}

// TypingPayload is the data of a message:typing event. Never persisted.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
}

// ReactionPayload is the data of a message:reaction event.
type ReactionPayload struct {
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
	Emoji          string `json:"emoji"`
}

// ReadPayload is the data of a message:read event.
type ReadPayload struct {
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
}

// DeletePayload is the data of a message:deleted event.
type DeletePayload struct {
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
	ForEveryone    bool   `json:"forEveryone,omitempty"`
}

// Delivery is the data of an outbound message:receive event: the canonical
// message plus viewer-specific translation fields and a sender snapshot.
type Delivery struct {
	Message
	Sender            *UserSnapshot `json:"sender,omitempty"`
	TranslatedContent string        `json:"translatedContent"`
	TargetLanguage    string        `json:"targetLanguage,omitempty"`
}

// TypingEvent is the outbound fan-out shape of a typing notification.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Typing         bool   `json:"typing"`
}

// ReactionEvent carries the full resulting reaction map, never a delta, so
// one dropped frame cannot desync a client.
type ReactionEvent struct {
	ConversationID string              `json:"conversationId"`
	Timestamp      int64               `json:"timestamp"`
	UserID         string              `json:"userId"`
	Emoji          string              `json:"emoji"`
	Reactions      map[string][]string `json:"reactions"`
}

// ReadEvent notifies the original sender that a participant read a message.
type ReadEvent struct {
	ConversationID string   `json:"conversationId"`
	Timestamp      int64    `json:"timestamp"`
	UserID         string   `json:"userId"`
	ReadBy         []string `json:"readBy"`
}

// DeleteEvent is broadcast only for deletions that apply to everyone.
type DeleteEvent struct {
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
	DeletedAt      int64  `json:"deletedAt"`
}
