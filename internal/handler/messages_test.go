package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polychat/chat-platform/internal/identity"
	"github.com/polychat/chat-platform/internal/middleware"
	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/store"
	"github.com/polychat/chat-platform/pkg/logger"
)

type historyFixture struct {
	messages  *store.MessageStore
	directory *store.Directory
	router    *chi.Mux
}

func newHistoryFixture(t *testing.T) *historyFixture {
	t.Helper()
	log := logger.NewNop()
	db, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := identity.Static{
		"alice": {ID: "alice", Username: "Alice", Language: "en"},
		"bob":   {ID: "bob", Username: "Bob", Language: "es"},
	}

	f := &historyFixture{
		messages:  store.NewMessageStore(db, nil, log),
		directory: store.NewDirectory(db, log),
		router:    chi.NewRouter(),
	}
	h := NewMessageHandler(f.messages, f.directory, users, log)
	f.router.Get("/api/v1/conversations/{id}/messages", h.List)
	return f
}

func (f *historyFixture) get(t *testing.T, userID, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *historyFixture) appendText(t *testing.T, convID, senderID, content string) *model.Message {
	t.Helper()
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Type:           model.MessageText,
		Content:        content,
		Language:       "en",
	}
	require.NoError(t, f.messages.Append(context.Background(), msg))
	return msg
}

type historyPage struct {
	Messages []struct {
		model.Message
		LocalizedContent string `json:"localizedContent"`
		Read             bool   `json:"read"`
	} `json:"messages"`
	HasMore    bool  `json:"hasMore"`
	NextCursor int64 `json:"nextCursor"`
}

func TestHistoryRendersPerViewer(t *testing.T) {
	f := newHistoryFixture(t)
	ctx := context.Background()
	conv, err := f.directory.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationGroup, "test")
	require.NoError(t, err)

	cached := f.appendText(t, conv.ID, "alice", "hello")
	require.NoError(t, f.messages.CacheTranslations(ctx, conv.ID, cached.Timestamp,
		map[string]string{"es": "hola"}))
	_, _, err = f.messages.MarkRead(ctx, conv.ID, cached.Timestamp, "bob")
	require.NoError(t, err)

	uncached := f.appendText(t, conv.ID, "alice", "no cache entry")

	hidden := f.appendText(t, conv.ID, "alice", "hidden for bob")
	_, err = f.messages.SoftDelete(ctx, conv.ID, hidden.Timestamp, "bob", false)
	require.NoError(t, err)

	redacted := f.appendText(t, conv.ID, "alice", "gone for all")
	_, err = f.messages.SoftDelete(ctx, conv.ID, redacted.Timestamp, "alice", true)
	require.NoError(t, err)

	rr := f.get(t, "bob", "/api/v1/conversations/"+conv.ID+"/messages")
	require.Equal(t, http.StatusOK, rr.Code)

	var page historyPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Messages, 3)
	assert.False(t, page.HasMore)

	// Cached translation wins for a Spanish viewer, and bob's read state
	// travels with the row.
	assert.Equal(t, "hola", page.Messages[0].LocalizedContent)
	assert.True(t, page.Messages[0].Read)

	// No cache entry falls back to the original text.
	assert.Equal(t, uncached.Content, page.Messages[1].LocalizedContent)
	assert.False(t, page.Messages[1].Read)

	// A for-everyone deletion renders as the fixed placeholder.
	assert.Equal(t, model.MessageDeleted, page.Messages[2].Type)
	assert.Equal(t, model.DeletedPlaceholder, page.Messages[2].Content)
	assert.Equal(t, model.DeletedPlaceholder, page.Messages[2].LocalizedContent)

	// The sender still sees the row bob deleted for himself.
	rr = f.get(t, "alice", "/api/v1/conversations/"+conv.ID+"/messages")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Messages, 4)
	assert.Equal(t, hidden.Content, page.Messages[2].LocalizedContent)
}

func TestHistoryRejectsOutsiders(t *testing.T) {
	f := newHistoryFixture(t)
	conv, err := f.directory.CreateConversation(context.Background(),
		[]string{"alice", "bob"}, model.ConversationGroup, "test")
	require.NoError(t, err)

	rr := f.get(t, "mallory", "/api/v1/conversations/"+conv.ID+"/messages")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHistoryRejectsMalformedConversationID(t *testing.T) {
	f := newHistoryFixture(t)

	rr := f.get(t, "bob", "/api/v1/conversations/not-a-uuid/messages")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
