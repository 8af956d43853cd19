// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/middleware"
	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/store"
	"github.com/polychat/chat-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	directory *store.Directory
	logger    *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(directory *store.Directory, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		directory: directory,
		logger:    log,
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateConversationName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The caller is always a participant of the conversation it creates.
	participants := req.ParticipantIDs
	if !contains(participants, userID) {
		participants = append(participants, userID)
	}

	conv, err := h.directory.CreateConversation(ctx, participants, req.Type, req.Name)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	records, err := h.directory.RecordsFor(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": records,
	})
}

// AddParticipants handles POST /api/v1/conversations/{id}/participants
func (h *ConversationHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req model.AddParticipantsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.UserIDs) == 0 {
		writeError(w, http.StatusBadRequest, "userIds cannot be empty")
		return
	}

	conv, err := h.directory.AddParticipants(ctx, userID, conversationID, req.UserIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// RemoveParticipant handles DELETE /api/v1/conversations/{id}/participants/{userId}
func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	targetID := chi.URLParam(r, "userId")

	conv, err := h.directory.RemoveParticipant(ctx, userID, conversationID, targetID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Hide handles DELETE /api/v1/conversations/{id}: the conversation leaves the
// caller's list without affecting anyone else.
func (h *ConversationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	if err := h.directory.Hide(ctx, userID, conversationID); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
