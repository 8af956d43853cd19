package model

// CreateConversationRequest is the body of POST /api/v1/conversations.
type CreateConversationRequest struct {
	ParticipantIDs []string         `json:"participantIds"`
	Type           ConversationType `json:"type"`
	Name           string           `json:"name,omitempty"`
}

// AddParticipantsRequest is the body of POST /api/v1/conversations/{id}/participants.
type AddParticipantsRequest struct {
	UserIDs []string `json:"userIds"`
}
