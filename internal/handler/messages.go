package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/identity"
	"github.com/polychat/chat-platform/internal/middleware"
	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/store"
	"github.com/polychat/chat-platform/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageHandler handles message history endpoints.
type MessageHandler struct {
	messages  *store.MessageStore
	directory *store.Directory
	users     identity.Resolver
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages *store.MessageStore, directory *store.Directory, users identity.Resolver, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messages:  messages,
		directory: directory,
		users:     users,
		logger:    log,
	}
}

// historyItem is one history row rendered for a specific viewer.
type historyItem struct {
	*model.Message
	LocalizedContent string `json:"localizedContent"`
	Read             bool   `json:"read"`
}

// List handles GET /api/v1/conversations/{id}/messages.
//
// Rows are rendered per viewer: messages deleted just for the viewer are
// filtered out, for-everyone deletions render as a placeholder, and content
// falls back to the original text when no cached translation matches the
// viewer's language.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.directory.Record(ctx, userID, conversationID); err != nil {
		writeDomainError(w, err)
		return
	}

	limit := defaultPageSize
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxPageSize {
			limit = parsed
		}
	}
	var cursor int64
	if c := r.URL.Query().Get("cursor"); c != "" {
		if parsed, err := strconv.ParseInt(c, 10, 64); err == nil && parsed > 0 {
			cursor = parsed
		}
	}

	page, err := h.messages.ListPage(ctx, conversationID, limit, cursor)
	if err != nil {
		h.logger.Error("failed to list messages",
			zap.String("conversation_id", conversationID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	lang := h.viewerLanguage(r, userID)
	items := make([]*historyItem, 0, len(page.Messages))
	for _, msg := range page.Messages {
		if !msg.VisibleTo(userID) {
			continue
		}
		if msg.DeletedForEveryone {
			msg = msg.Redacted()
		}
		items = append(items, &historyItem{
			Message:          msg,
			LocalizedContent: msg.ContentFor(lang),
			Read:             msg.HasRead(userID),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages":   items,
		"hasMore":    page.HasMore,
		"nextCursor": page.NextCursor,
	})
}

// viewerLanguage prefers the profile language and falls back to the token
// claim when the profile service is unavailable.
func (h *MessageHandler) viewerLanguage(r *http.Request, userID string) string {
	if user, err := h.users.Resolve(r.Context(), userID); err == nil && user.Language != "" {
		return user.Language
	}
	return middleware.GetLanguage(r.Context())
}
