package model

import (
	"time"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageGIF   MessageType = "gif"
	MessageFile  MessageType = "file"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageVoice MessageType = "voice"

	// MessageDeleted is the rendered type of a message deleted for everyone.
	MessageDeleted MessageType = "deleted"
)

// DeletedPlaceholder replaces the content of messages deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// Translatable reports whether content of this type goes through the
// translation gateway. Media types always keep their original content.
func (t MessageType) Translatable() bool {
	return t == MessageText
}

// Valid reports whether t is a type clients are allowed to send.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageGIF, MessageFile, MessageVideo, MessageAudio, MessageVoice:
		return true
	}
	return false
}

// Attachment references an object held by the external attachment store.
type Attachment struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
	Category    string `json:"category"`
}

// ReplyRef is a truncated snapshot of the message being replied to.
type ReplyRef struct {
	MessageID  string      `json:"messageId"`
	Content    string      `json:"content"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Type       MessageType `json:"type"`
}

// ReplyContentMax bounds the quoted content carried on a reply reference.
const ReplyContentMax = 100

// MaxContentBytes bounds raw message content, roughly 100KB.
const MaxContentBytes = 100000

// Message is one entry in a conversation. Timestamp is the per-conversation
// ordering key. Messages are never hard-deleted; they only move through the
// soft-delete flags.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Timestamp      int64       `json:"timestamp"`
	SenderID       string      `json:"senderId"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Language       string      `json:"originalLanguage,omitempty"`

	// Translations maps target language code to cached translated content.
	// Entries are merged field-level, never overwritten wholesale.
	Translations map[string]string `json:"translations,omitempty"`

	Attachment *Attachment `json:"attachment,omitempty"`
	ReplyTo    *ReplyRef   `json:"replyTo,omitempty"`

	// Reactions maps emoji to the set of reacting user IDs. An emoji key is
	// removed as soon as its set empties.
	Reactions map[string][]string `json:"reactions,omitempty"`

	ReadBy []string `json:"readBy,omitempty"`
	Status string   `json:"status,omitempty"`

	DeletedBy          []string  `json:"deletedBy,omitempty"`
	DeletedForEveryone bool      `json:"deletedForEveryone,omitempty"`
	DeletedAt          int64     `json:"deletedAt,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// StatusSent is the only delivery status the core assigns; the sender sees
// their message as sent once it is persisted.
const StatusSent = "sent"

// VisibleTo reports whether the viewer has not deleted the message for
// themselves. Messages deleted for everyone remain visible as placeholders.
func (m *Message) VisibleTo(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return false
		}
	}
	return true
}

// ContentFor returns the cached translation for lang, falling back to the
// original content when no cache entry exists.
func (m *Message) ContentFor(lang string) string {
	if t, ok := m.Translations[lang]; ok {
		return t
	}
	return m.Content
}

// HasRead reports whether userID appears in ReadBy.
func (m *Message) HasRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ReadUnion adds userID to ReadBy if absent. Returns false when the entry
// was already present.
func (m *Message) ReadUnion(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Redacted returns a copy rendered as a for-everyone deletion: type
// "deleted", fixed placeholder, no attachment, reply, reactions or cache.
func (m *Message) Redacted() *Message {
	out := *m
	out.Type = MessageDeleted
	out.Content = DeletedPlaceholder
	out.Language = ""
	out.Translations = nil
	out.Attachment = nil
	out.ReplyTo = nil
	out.Reactions = nil
	return &out
}
