package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
)

// Directory maintains the per-participant visibility records that answer
// "list my conversations" without scanning messages. Every membership
// mutation rewrites all affected records in a single write batch, so readers
// never observe records of one conversation with diverging participant
// lists.
type Directory struct {
	db  *DB
	log *logger.Logger
}

// NewDirectory creates a conversation directory.
func NewDirectory(db *DB, log *logger.Logger) *Directory {
	return &Directory{db: db, log: log}
}

// RecordsFor returns the viewer's visibility records, most recently active
// first.
func (d *Directory) RecordsFor(ctx context.Context, userID string) ([]*model.VisibilityRecord, error) {
	prefix := visPrefix(userID)
	iter, err := d.db.pb.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []*model.VisibilityRecord
	for ok := iter.First(); ok; ok = iter.Next() {
		var rec model.VisibilityRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			d.log.Warn("skipping corrupt visibility record", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// Record returns one viewer's record for a conversation.
func (d *Directory) Record(ctx context.Context, userID, conversationID string) (*model.VisibilityRecord, error) {
	data, err := d.db.get(visKey(userID, conversationID))
	if err != nil {
		return nil, fmt.Errorf("conversation %s for %s: %w", conversationID, userID, err)
	}
	var rec model.VisibilityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt visibility record: %w", err)
	}
	return &rec, nil
}

// CreateConversation creates one visibility record per participant under a
// new conversation ID. For a direct conversation between two users it first
// looks for an existing one covering the same unordered pair and returns
// that, keeping at most one direct conversation per pair.
func (d *Directory) CreateConversation(ctx context.Context, participantIDs []string, typ model.ConversationType, name string) (*model.Conversation, error) {
	if len(participantIDs) < model.MinGroupSize {
		return nil, fmt.Errorf("conversation needs at least %d participants: %w", model.MinGroupSize, model.ErrValidation)
	}
	if typ == model.ConversationDirect {
		if len(participantIDs) != 2 {
			return nil, fmt.Errorf("direct conversation must have exactly 2 participants: %w", model.ErrValidation)
		}
		if existing, err := d.findDirect(ctx, participantIDs[0], participantIDs[1]); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Type:           typ,
		Name:           name,
		ParticipantIDs: append([]string(nil), participantIDs...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	batch := d.db.pb.NewBatch()
	defer batch.Close()
	for _, userID := range conv.ParticipantIDs {
		rec := &model.VisibilityRecord{
			ConversationID: conv.ID,
			UserID:         userID,
			Type:           typ,
			Name:           name,
			ParticipantIDs: conv.ParticipantIDs,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := setRecord(batch, rec); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to create conversation records: %w", err)
	}
	return conv, nil
}

// findDirect scans one participant's records for a direct conversation with
// the other, in either order.
func (d *Directory) findDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	records, err := d.RecordsFor(ctx, a)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Type != model.ConversationDirect || len(rec.ParticipantIDs) != 2 {
			continue
		}
		if rec.HasParticipant(a) && rec.HasParticipant(b) {
			return &model.Conversation{
				ID:             rec.ConversationID,
				Type:           rec.Type,
				Name:           rec.Name,
				ParticipantIDs: rec.ParticipantIDs,
				CreatedAt:      rec.CreatedAt,
				UpdatedAt:      rec.UpdatedAt,
			}, nil
		}
	}
	return nil, nil
}

// AddParticipants extends a group conversation. actorID must already be a
// participant; their record supplies the current membership. Existing
// records are rewritten and fresh ones created for the newcomers, all in
// one batch.
func (d *Directory) AddParticipants(ctx context.Context, actorID, conversationID string, newIDs []string) (*model.Conversation, error) {
	rec, err := d.Record(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if rec.Type != model.ConversationGroup {
		return nil, fmt.Errorf("cannot add participants to a %s conversation: %w", rec.Type, model.ErrUnauthorized)
	}

	merged := append([]string(nil), rec.ParticipantIDs...)
	for _, id := range newIDs {
		exists := false
		for _, have := range merged {
			if have == id {
				exists = true
				break
			}
		}
		if !exists {
			merged = append(merged, id)
		}
	}

	now := time.Now().UTC()
	batch := d.db.pb.NewBatch()
	defer batch.Close()

	for _, userID := range rec.ParticipantIDs {
		existing, err := d.Record(ctx, userID, conversationID)
		if err != nil {
			return nil, err
		}
		existing.ParticipantIDs = merged
		existing.UpdatedAt = now
		if err := setRecord(batch, existing); err != nil {
			return nil, err
		}
	}
	for _, userID := range merged[len(rec.ParticipantIDs):] {
		fresh := &model.VisibilityRecord{
			ConversationID: conversationID,
			UserID:         userID,
			Type:           rec.Type,
			Name:           rec.Name,
			ParticipantIDs: merged,
			LastMessage:    rec.LastMessage,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := setRecord(batch, fresh); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to add participants: %w", err)
	}

	return &model.Conversation{
		ID:             conversationID,
		Type:           rec.Type,
		Name:           rec.Name,
		ParticipantIDs: merged,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      now,
	}, nil
}

// RemoveParticipant shrinks a group conversation. The mutation is rejected
// outright when the conversation is not a group or would fall below the
// minimum size; nothing is written in that case.
func (d *Directory) RemoveParticipant(ctx context.Context, actorID, conversationID, targetID string) (*model.Conversation, error) {
	rec, err := d.Record(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if rec.Type != model.ConversationGroup {
		return nil, fmt.Errorf("cannot remove participants from a %s conversation: %w", rec.Type, model.ErrUnauthorized)
	}
	if !rec.HasParticipant(targetID) {
		return nil, fmt.Errorf("%s is not a participant: %w", targetID, model.ErrNotFound)
	}
	if len(rec.ParticipantIDs)-1 < model.MinGroupSize {
		return nil, fmt.Errorf("group cannot shrink below %d participants: %w", model.MinGroupSize, model.ErrUnauthorized)
	}

	remaining := make([]string, 0, len(rec.ParticipantIDs)-1)
	for _, id := range rec.ParticipantIDs {
		if id != targetID {
			remaining = append(remaining, id)
		}
	}

	now := time.Now().UTC()
	batch := d.db.pb.NewBatch()
	defer batch.Close()

	if err := batch.Delete(visKey(targetID, conversationID), nil); err != nil {
		return nil, err
	}
	for _, userID := range remaining {
		existing, err := d.Record(ctx, userID, conversationID)
		if err != nil {
			return nil, err
		}
		existing.ParticipantIDs = remaining
		existing.UpdatedAt = now
		if err := setRecord(batch, existing); err != nil {
			return nil, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}

	return &model.Conversation{
		ID:             conversationID,
		Type:           rec.Type,
		Name:           rec.Name,
		ParticipantIDs: remaining,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      now,
	}, nil
}

// Hide removes only the viewer's own record, leaving every other
// participant's view intact.
func (d *Directory) Hide(ctx context.Context, userID, conversationID string) error {
	if _, err := d.Record(ctx, userID, conversationID); err != nil {
		return err
	}
	return d.db.pb.Delete(visKey(userID, conversationID), pebble.Sync)
}

// TouchLastMessage stamps the canonical, untranslated message snapshot onto
// every participant's record and bumps the unread count for everyone but
// the sender. Per-viewer translation happens at read time, never here.
func (d *Directory) TouchLastMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	rec, err := d.Record(ctx, msg.SenderID, conversationID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	batch := d.db.pb.NewBatch()
	defer batch.Close()

	for _, userID := range rec.ParticipantIDs {
		existing, err := d.Record(ctx, userID, conversationID)
		if err != nil {
			// A participant added mid-send may not have a record yet.
			d.log.Warn("visibility record missing during touch",
				zap.String("conversation_id", conversationID), zap.String("user_id", userID))
			continue
		}
		existing.LastMessage = msg
		existing.UpdatedAt = now
		if userID != msg.SenderID {
			existing.UnreadCount++
		}
		if err := setRecord(batch, existing); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// MarkRead clears the viewer's unread count up to ts.
func (d *Directory) MarkRead(ctx context.Context, userID, conversationID string, ts int64) error {
	rec, err := d.Record(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	rec.UnreadCount = 0
	rec.LastReadAt = ts
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return d.db.set(visKey(userID, conversationID), data)
}

func setRecord(batch *pebble.Batch, rec *model.VisibilityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal visibility record: %w", err)
	}
	return batch.Set(visKey(rec.UserID, rec.ConversationID), data, nil)
}
