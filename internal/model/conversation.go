// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// ConversationType distinguishes one-to-one conversations from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// MinGroupSize is the smallest membership a group conversation may reach.
const MinGroupSize = 2

// Conversation is the canonical conversation shape shared by all
// participants' visibility records.
type Conversation struct {
	ID             string           `json:"id"`
	Type           ConversationType `json:"type"`
	Name           string           `json:"name,omitempty"`
	ParticipantIDs []string         `json:"participantIds"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// VisibilityRecord is one participant's denormalized copy of a conversation.
// All records sharing a conversation ID converge to the same participant
// list; the directory rewrites them in a single storage batch.
type VisibilityRecord struct {
	ConversationID string           `json:"conversationId"`
	UserID         string           `json:"userId"`
	Type           ConversationType `json:"type"`
	Name           string           `json:"name,omitempty"`
	ParticipantIDs []string         `json:"participantIds"`
	LastMessage    *Message         `json:"lastMessage,omitempty"`
	UnreadCount    int              `json:"unreadCount"`
	LastReadAt     int64            `json:"lastReadAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// HasParticipant reports membership of userID in the record's list.
func (r *VisibilityRecord) HasParticipant(userID string) bool {
	for _, id := range r.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}
