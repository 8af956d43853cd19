package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/forPelevin/gomoji"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
)

// AttachmentPurger removes attachment objects from the external store.
// Purge failures never fail the deletion that triggered them.
type AttachmentPurger interface {
	Purge(ctx context.Context, att *model.Attachment) error
}

// MessageStore owns message rows and their reaction, read-receipt and
// soft-delete state.
type MessageStore struct {
	db     *DB
	purger AttachmentPurger
	log    *logger.Logger

	// mu guards lastTS so appends within one process get strictly
	// increasing timestamps, keeping (conversation, timestamp) unique.
	mu     sync.Mutex
	lastTS int64
}

// NewMessageStore creates a message store. purger may be nil.
func NewMessageStore(db *DB, purger AttachmentPurger, log *logger.Logger) *MessageStore {
	return &MessageStore{db: db, purger: purger, log: log}
}

// Page is one chronological slice of a conversation's history.
type Page struct {
	Messages []*model.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
	// NextCursor is the timestamp of the oldest returned row; pass it back
	// to fetch the preceding page.
	NextCursor int64 `json:"nextCursor,omitempty"`
}

// Append assigns the message its ID, ordering timestamp and status, then
// persists it. This is the only write whose failure fails a send.
func (s *MessageStore) Append(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	ts := time.Now().UTC().UnixNano()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.mu.Unlock()

	msg.ID = uuid.Must(uuid.NewV7()).String()
	msg.Timestamp = ts
	msg.CreatedAt = time.Unix(0, ts).UTC()
	msg.Status = model.StatusSent

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := s.db.set(msgKey(msg.ConversationID, ts), data); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}

// Get returns one message by its conversation and ordering timestamp.
func (s *MessageStore) Get(ctx context.Context, conversationID string, ts int64) (*model.Message, error) {
	data, err := s.db.get(msgKey(conversationID, ts))
	if err != nil {
		return nil, fmt.Errorf("message %d in %s: %w", ts, conversationID, err)
	}
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("corrupt message row: %w", err)
	}
	return &msg, nil
}

// ListPage fetches up to limit messages older than cursor (all newest when
// cursor is zero), scanned newest-first and returned chronologically.
// HasMore is true iff more than limit rows were available.
func (s *MessageStore) ListPage(ctx context.Context, conversationID string, limit int, cursor int64) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}

	prefix := msgPrefix(conversationID)
	upper := prefixUpperBound(prefix)
	if cursor > 0 {
		// UpperBound is exclusive, so the cursor row itself is skipped.
		upper = msgKey(conversationID, cursor)
	}

	iter, err := s.db.pb.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var newestFirst []*model.Message
	for ok := iter.Last(); ok && len(newestFirst) <= limit; ok = iter.Prev() {
		var msg model.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			s.log.Warn("skipping corrupt message row", zap.ByteString("key", iter.Key()), zap.Error(err))
			continue
		}
		newestFirst = append(newestFirst, &msg)
	}

	page := &Page{}
	if len(newestFirst) > limit {
		page.HasMore = true
		newestFirst = newestFirst[:limit]
	}

	// Reverse into chronological order.
	for i := len(newestFirst) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, newestFirst[i])
	}
	if len(page.Messages) > 0 {
		page.NextCursor = page.Messages[0].Timestamp
	}
	return page, nil
}

// ToggleReaction adds or removes userID under reactions[emoji] and returns
// the updated message. The emoji key is dropped when its set empties. This
// is a read-modify-write without a storage-level guard; concurrent toggles
// on the same message may race (accepted relaxation).
func (s *MessageStore) ToggleReaction(ctx context.Context, conversationID string, ts int64, userID, emoji string) (*model.Message, error) {
	if err := validateReaction(emoji); err != nil {
		return nil, err
	}

	msg, err := s.Get(ctx, conversationID, ts)
	if err != nil {
		return nil, err
	}

	users := msg.Reactions[emoji]
	removed := false
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		users = append(users, userID)
	}

	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}
	if len(users) == 0 {
		delete(msg.Reactions, emoji)
	} else {
		msg.Reactions[emoji] = users
	}

	if err := s.put(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead unions userID into readBy. The second return is false when the
// user had already read the message, making repeats no-ops.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID string, ts int64, userID string) (*model.Message, bool, error) {
	msg, err := s.Get(ctx, conversationID, ts)
	if err != nil {
		return nil, false, err
	}
	if !msg.ReadUnion(userID) {
		return msg, false, nil
	}
	if err := s.put(msg); err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// SoftDelete marks the message deleted. forEveryone requires the requester
// to be the sender and best-effort purges any bound attachment; otherwise
// the message is hidden from the requester only.
func (s *MessageStore) SoftDelete(ctx context.Context, conversationID string, ts int64, requesterID string, forEveryone bool) (*model.Message, error) {
	msg, err := s.Get(ctx, conversationID, ts)
	if err != nil {
		return nil, err
	}

	if forEveryone {
		if msg.SenderID != requesterID {
			return nil, fmt.Errorf("delete for everyone by non-sender %s: %w", requesterID, model.ErrUnauthorized)
		}
		msg.DeletedForEveryone = true
		msg.DeletedAt = time.Now().UTC().UnixNano()
		if msg.Attachment != nil && s.purger != nil {
			if perr := s.purger.Purge(ctx, msg.Attachment); perr != nil {
				s.log.Warn("attachment purge failed",
					zap.String("message_id", msg.ID), zap.Error(perr))
			}
		}
	} else {
		already := false
		for _, id := range msg.DeletedBy {
			if id == requesterID {
				already = true
				break
			}
		}
		if !already {
			msg.DeletedBy = append(msg.DeletedBy, requesterID)
		}
	}

	if err := s.put(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// CacheTranslations merges the given entries into the message's translation
// cache field by field. Existing entries are never overwritten, so two
// concurrent fan-outs caching different languages both survive.
func (s *MessageStore) CacheTranslations(ctx context.Context, conversationID string, ts int64, translations map[string]string) error {
	if len(translations) == 0 {
		return nil
	}
	msg, err := s.Get(ctx, conversationID, ts)
	if err != nil {
		return err
	}
	if msg.Translations == nil {
		msg.Translations = make(map[string]string, len(translations))
	}
	for lang, text := range translations {
		if _, ok := msg.Translations[lang]; !ok {
			msg.Translations[lang] = text
		}
	}
	return s.put(msg)
}

func (s *MessageStore) put(msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.set(msgKey(msg.ConversationID, msg.Timestamp), data)
}

// validateReaction requires exactly one emoji and nothing else.
func validateReaction(reaction string) error {
	found := gomoji.CollectAll(reaction)
	if len(found) != 1 || found[0].Character != reaction {
		return fmt.Errorf("reaction must be a single emoji: %w", model.ErrValidation)
	}
	return nil
}
