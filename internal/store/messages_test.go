package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func appendText(t *testing.T, s *MessageStore, conv, sender, content string) *model.Message {
	t.Helper()
	msg := &model.Message{
		ConversationID: conv,
		SenderID:       sender,
		Type:           model.MessageText,
		Content:        content,
	}
	require.NoError(t, s.Append(context.Background(), msg))
	return msg
}

func TestAppendAssignsUniqueIncreasingTimestamps(t *testing.T) {
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())

	var last int64
	for i := 0; i < 50; i++ {
		msg := appendText(t, s, "conv-1", "alice", fmt.Sprintf("msg %d", i))
		require.NotEmpty(t, msg.ID)
		assert.Equal(t, model.StatusSent, msg.Status)
		assert.Greater(t, msg.Timestamp, last)
		last = msg.Timestamp
	}
}

func TestGetReturnsNotFoundForMissingMessage(t *testing.T) {
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())

	_, err := s.Get(context.Background(), "conv-1", 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListPagePaginatesBackwards(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())

	var all []*model.Message
	for i := 0; i < 7; i++ {
		all = append(all, appendText(t, s, "conv-1", "alice", fmt.Sprintf("msg %d", i)))
	}
	appendText(t, s, "conv-2", "bob", "other conversation")

	page, err := s.ListPage(ctx, "conv-1", 3, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "msg 4", page.Messages[0].Content)
	assert.Equal(t, "msg 6", page.Messages[2].Content)
	assert.Equal(t, all[4].Timestamp, page.NextCursor)

	page, err = s.ListPage(ctx, "conv-1", 3, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
	assert.Equal(t, "msg 1", page.Messages[0].Content)

	page, err = s.ListPage(ctx, "conv-1", 3, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, "msg 0", page.Messages[0].Content)
}

func TestToggleReactionAddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())
	msg := appendText(t, s, "conv-1", "alice", "hello")

	updated, err := s.ToggleReaction(ctx, "conv-1", msg.Timestamp, "bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, updated.Reactions["👍"])

	updated, err = s.ToggleReaction(ctx, "conv-1", msg.Timestamp, "carol", "👍")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "carol"}, updated.Reactions["👍"])

	updated, err = s.ToggleReaction(ctx, "conv-1", msg.Timestamp, "bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, updated.Reactions["👍"])

	updated, err = s.ToggleReaction(ctx, "conv-1", msg.Timestamp, "carol", "👍")
	require.NoError(t, err)
	assert.NotContains(t, updated.Reactions, "👍")
}

func TestToggleReactionRejectsNonEmoji(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())
	msg := appendText(t, s, "conv-1", "alice", "hello")

	for _, bad := range []string{"", "ok", "👍👍", "x👍"} {
		_, err := s.ToggleReaction(ctx, "conv-1", msg.Timestamp, "bob", bad)
		assert.ErrorIs(t, err, model.ErrValidation, "reaction %q", bad)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())
	msg := appendText(t, s, "conv-1", "alice", "hello")

	updated, changed, err := s.MarkRead(ctx, "conv-1", msg.Timestamp, "bob")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"bob"}, updated.ReadBy)

	updated, changed, err = s.MarkRead(ctx, "conv-1", msg.Timestamp, "bob")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"bob"}, updated.ReadBy)
}

type recordingPurger struct {
	purged []*model.Attachment
}

func (p *recordingPurger) Purge(ctx context.Context, att *model.Attachment) error {
	p.purged = append(p.purged, att)
	return nil
}

func TestSoftDeleteForMeHidesOnlyForRequester(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())
	msg := appendText(t, s, "conv-1", "alice", "hello")

	updated, err := s.SoftDelete(ctx, "conv-1", msg.Timestamp, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, updated.DeletedBy)
	assert.False(t, updated.DeletedForEveryone)
	assert.False(t, updated.VisibleTo("bob"))
	assert.True(t, updated.VisibleTo("alice"))

	// Repeat is a no-op, not a second entry.
	updated, err = s.SoftDelete(ctx, "conv-1", msg.Timestamp, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, updated.DeletedBy)
}

func TestSoftDeleteForEveryoneRequiresSender(t *testing.T) {
	ctx := context.Background()
	purger := &recordingPurger{}
	s := NewMessageStore(newTestDB(t), purger, logger.NewNop())

	msg := &model.Message{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Type:           model.MessageImage,
		Attachment:     &model.Attachment{ID: "att-1", Key: "objects/att-1"},
	}
	require.NoError(t, s.Append(ctx, msg))

	_, err := s.SoftDelete(ctx, "conv-1", msg.Timestamp, "bob", true)
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Empty(t, purger.purged)

	updated, err := s.SoftDelete(ctx, "conv-1", msg.Timestamp, "alice", true)
	require.NoError(t, err)
	assert.True(t, updated.DeletedForEveryone)
	assert.NotZero(t, updated.DeletedAt)
	require.Len(t, purger.purged, 1)
	assert.Equal(t, "att-1", purger.purged[0].ID)
}

func TestCacheTranslationsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(newTestDB(t), nil, logger.NewNop())
	msg := appendText(t, s, "conv-1", "alice", "hello")

	require.NoError(t, s.CacheTranslations(ctx, "conv-1", msg.Timestamp, map[string]string{"es": "hola"}))
	require.NoError(t, s.CacheTranslations(ctx, "conv-1", msg.Timestamp, map[string]string{
		"es": "changed",
		"fr": "bonjour",
	}))

	stored, err := s.Get(ctx, "conv-1", msg.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, "hola", stored.Translations["es"])
	assert.Equal(t, "bonjour", stored.Translations["fr"])
	assert.Equal(t, "hola", stored.ContentFor("es"))
	assert.Equal(t, "hello", stored.ContentFor("de"))
}
