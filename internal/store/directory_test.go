package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	return NewDirectory(newTestDB(t), logger.NewNop())
}

func TestCreateConversationWritesOneRecordPerParticipant(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob", "carol"}, model.ConversationGroup, "trip")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	for _, userID := range []string{"alice", "bob", "carol"} {
		rec, err := d.Record(ctx, userID, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "trip", rec.Name)
		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, rec.ParticipantIDs)
	}
}

func TestCreateConversationRejectsTooFewParticipants(t *testing.T) {
	d := newTestDirectory(t)

	_, err := d.CreateConversation(context.Background(), []string{"alice"}, model.ConversationGroup, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCreateDirectConversationDedupesPair(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	first, err := d.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationDirect, "")
	require.NoError(t, err)

	// Same pair in reverse order resolves to the existing conversation.
	second, err := d.CreateConversation(ctx, []string{"bob", "alice"}, model.ConversationDirect, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different pair gets its own conversation.
	third, err := d.CreateConversation(ctx, []string{"alice", "carol"}, model.ConversationDirect, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestAddParticipantsRewritesEveryRecord(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationGroup, "team")
	require.NoError(t, err)

	updated, err := d.AddParticipants(ctx, "alice", conv.ID, []string{"carol", "bob"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, updated.ParticipantIDs)

	for _, userID := range []string{"alice", "bob", "carol"} {
		rec, err := d.Record(ctx, userID, conv.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, rec.ParticipantIDs)
	}
}

func TestAddParticipantsRejectsDirectConversations(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationDirect, "")
	require.NoError(t, err)

	_, err = d.AddParticipants(ctx, "alice", conv.ID, []string{"carol"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestRemoveParticipantEnforcesMinimumSize(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob", "carol"}, model.ConversationGroup, "team")
	require.NoError(t, err)

	updated, err := d.RemoveParticipant(ctx, "alice", conv.ID, "carol")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, updated.ParticipantIDs)

	_, err = d.Record(ctx, "carol", conv.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Two members left; removing another would fall below the minimum.
	_, err = d.RemoveParticipant(ctx, "alice", conv.ID, "bob")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	// The rejected removal wrote nothing.
	rec, err := d.Record(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, rec.ParticipantIDs)
}

func TestRemoveParticipantUnknownTarget(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob", "carol"}, model.ConversationGroup, "team")
	require.NoError(t, err)

	_, err = d.RemoveParticipant(ctx, "alice", conv.ID, "mallory")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTouchLastMessageBumpsUnreadForRecipientsOnly(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob", "carol"}, model.ConversationGroup, "team")
	require.NoError(t, err)

	msg := &model.Message{
		ID:             "m1",
		ConversationID: conv.ID,
		Timestamp:      100,
		SenderID:       "alice",
		Type:           model.MessageText,
		Content:        "hello",
	}
	require.NoError(t, d.TouchLastMessage(ctx, conv.ID, msg))
	require.NoError(t, d.TouchLastMessage(ctx, conv.ID, msg))

	aliceRec, err := d.Record(ctx, "alice", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, aliceRec.UnreadCount)
	require.NotNil(t, aliceRec.LastMessage)
	assert.Equal(t, "hello", aliceRec.LastMessage.Content)

	bobRec, err := d.Record(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, bobRec.UnreadCount)

	require.NoError(t, d.MarkRead(ctx, "bob", conv.ID, msg.Timestamp))
	bobRec, err = d.Record(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, bobRec.UnreadCount)
	assert.Equal(t, int64(100), bobRec.LastReadAt)
}

func TestHideRemovesOnlyViewerRecord(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	conv, err := d.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationDirect, "")
	require.NoError(t, err)

	require.NoError(t, d.Hide(ctx, "alice", conv.ID))

	_, err = d.Record(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = d.Record(ctx, "bob", conv.ID)
	assert.NoError(t, err)
}

func TestRecordsForListsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	d := newTestDirectory(t)

	older, err := d.CreateConversation(ctx, []string{"alice", "bob"}, model.ConversationDirect, "")
	require.NoError(t, err)
	newer, err := d.CreateConversation(ctx, []string{"alice", "carol"}, model.ConversationDirect, "")
	require.NoError(t, err)

	// Activity on the older conversation moves it to the front.
	require.NoError(t, d.TouchLastMessage(ctx, older.ID, &model.Message{
		ID: "m1", ConversationID: older.ID, Timestamp: 1, SenderID: "bob",
		Type: model.MessageText, Content: "ping",
	}))

	records, err := d.RecordsFor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, older.ID, records[0].ConversationID)
	assert.Equal(t, newer.ID, records[1].ConversationID)
}
