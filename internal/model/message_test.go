package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageTypeTranslatable(t *testing.T) {
	assert.True(t, MessageText.Translatable())
	for _, typ := range []MessageType{MessageImage, MessageGIF, MessageFile, MessageVideo, MessageAudio, MessageVoice} {
		assert.False(t, typ.Translatable(), "type %s", typ)
	}
}

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageText.Valid())
	assert.True(t, MessageVoice.Valid())
	assert.False(t, MessageDeleted.Valid())
	assert.False(t, MessageType("sticker").Valid())
}

func TestContentForFallsBackToOriginal(t *testing.T) {
	msg := &Message{
		Content:      "hello",
		Translations: map[string]string{"es": "hola"},
	}
	assert.Equal(t, "hola", msg.ContentFor("es"))
	assert.Equal(t, "hello", msg.ContentFor("de"))
	assert.Equal(t, "hello", msg.ContentFor(""))

	bare := &Message{Content: "hi"}
	assert.Equal(t, "hi", bare.ContentFor("es"))
}

func TestReadUnion(t *testing.T) {
	msg := &Message{}
	assert.True(t, msg.ReadUnion("bob"))
	assert.False(t, msg.ReadUnion("bob"))
	assert.Equal(t, []string{"bob"}, msg.ReadBy)
	assert.True(t, msg.HasRead("bob"))
	assert.False(t, msg.HasRead("carol"))
}

func TestRedactedStripsEverything(t *testing.T) {
	msg := &Message{
		ID:           "m-1",
		Type:         MessageText,
		Content:      "secret",
		Language:     "en",
		Translations: map[string]string{"es": "secreto"},
		Attachment:   &Attachment{ID: "att-1", Key: "objects/att-1"},
		ReplyTo:      &ReplyRef{MessageID: "m-0"},
		Reactions:    map[string][]string{"👍": {"bob"}},
	}

	out := msg.Redacted()
	assert.Equal(t, MessageDeleted, out.Type)
	assert.Equal(t, DeletedPlaceholder, out.Content)
	assert.Nil(t, out.Translations)
	assert.Nil(t, out.Attachment)
	assert.Nil(t, out.ReplyTo)
	assert.Nil(t, out.Reactions)

	// The original is untouched.
	assert.Equal(t, "secret", msg.Content)
	assert.NotNil(t, msg.Attachment)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	raw, err := NewEnvelope(ActionTyping, &TypingEvent{ConversationID: "conv-1", UserID: "alice", Typing: true})
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"action":"message:typing"`)
	assert.Contains(t, string(raw), `"conversationId":"conv-1"`)
}
