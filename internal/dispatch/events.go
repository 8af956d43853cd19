package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/model"
)

// handleTyping relays a typing indicator to every other participant. Typing
// state is never persisted.
func (d *Dispatcher) handleTyping(ctx context.Context, senderID string, p *model.TypingPayload) error {
	if p.ConversationID == "" {
		return fmt.Errorf("conversationId is required: %w", model.ErrValidation)
	}
	rec, err := d.directory.Record(ctx, senderID, p.ConversationID)
	if err != nil {
		return fmt.Errorf("sender is not a participant: %w", err)
	}

	event := model.TypingEvent{
		ConversationID: p.ConversationID,
		UserID:         senderID,
		Typing:         p.Typing,
	}
	payload := d.envelope(model.ActionTyping, &event)
	if payload == nil {
		return nil
	}
	for _, participantID := range rec.ParticipantIDs {
		if participantID == senderID {
			continue
		}
		d.deliverToUser(ctx, participantID, payload)
	}
	return nil
}

// handleReaction toggles a single-emoji reaction and broadcasts the full
// reaction map to every participant, the actor included, so all clients
// converge on the same state.
func (d *Dispatcher) handleReaction(ctx context.Context, senderID string, p *model.ReactionPayload) error {
	if p.ConversationID == "" || p.Timestamp == 0 {
		return fmt.Errorf("conversationId and timestamp are required: %w", model.ErrValidation)
	}
	rec, err := d.directory.Record(ctx, senderID, p.ConversationID)
	if err != nil {
		return fmt.Errorf("sender is not a participant: %w", err)
	}
	msg, err := d.messages.ToggleReaction(ctx, p.ConversationID, p.Timestamp, senderID, p.Emoji)
	if err != nil {
		return err
	}

	event := model.ReactionEvent{
		ConversationID: p.ConversationID,
		Timestamp:      p.Timestamp,
		UserID:         senderID,
		Emoji:          p.Emoji,
		Reactions:      msg.Reactions,
	}
	payload := d.envelope(model.ActionReaction, &event)
	if payload == nil {
		return nil
	}
	for _, participantID := range rec.ParticipantIDs {
		d.deliverToUser(ctx, participantID, payload)
	}
	return nil
}

// handleRead records a read receipt and tells only the message's sender.
// A sender reading their own message is a silent no-op, as is a repeat read.
func (d *Dispatcher) handleRead(ctx context.Context, readerID string, p *model.ReadPayload) error {
	if p.ConversationID == "" || p.Timestamp == 0 {
		return fmt.Errorf("conversationId and timestamp are required: %w", model.ErrValidation)
	}
	if _, err := d.directory.Record(ctx, readerID, p.ConversationID); err != nil {
		return fmt.Errorf("reader is not a participant: %w", err)
	}
	msg, changed, err := d.messages.MarkRead(ctx, p.ConversationID, p.Timestamp, readerID)
	if err != nil {
		return err
	}
	if err := d.directory.MarkRead(ctx, readerID, p.ConversationID, p.Timestamp); err != nil {
		d.log.Warn("failed to reset unread count",
			zap.String("user_id", readerID),
			zap.String("conversation_id", p.ConversationID),
			zap.Error(err))
	}
	if !changed || readerID == msg.SenderID {
		return nil
	}

	event := model.ReadEvent{
		ConversationID: p.ConversationID,
		Timestamp:      p.Timestamp,
		UserID:         readerID,
		ReadBy:         msg.ReadBy,
	}
	payload := d.envelope(model.ActionRead, &event)
	if payload == nil {
		return nil
	}
	d.deliverToUser(ctx, msg.SenderID, payload)
	return nil
}

// handleDelete soft-deletes a message. Delete-for-me is private and emits
// nothing; delete-for-everyone is broadcast to all participants.
func (d *Dispatcher) handleDelete(ctx context.Context, senderID string, p *model.DeletePayload) error {
	if p.ConversationID == "" || p.Timestamp == 0 {
		return fmt.Errorf("conversationId and timestamp are required: %w", model.ErrValidation)
	}
	rec, err := d.directory.Record(ctx, senderID, p.ConversationID)
	if err != nil {
		return fmt.Errorf("sender is not a participant: %w", err)
	}
	msg, err := d.messages.SoftDelete(ctx, p.ConversationID, p.Timestamp, senderID, p.ForEveryone)
	if err != nil {
		return err
	}
	if !p.ForEveryone {
		return nil
	}

	event := model.DeleteEvent{
		ConversationID: p.ConversationID,
		Timestamp:      p.Timestamp,
		DeletedAt:      msg.DeletedAt,
	}
	payload := d.envelope(model.ActionDeleted, &event)
	if payload == nil {
		return nil
	}
	for _, participantID := range rec.ParticipantIDs {
		d.deliverToUser(ctx, participantID, payload)
	}
	return nil
}
