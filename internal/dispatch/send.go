package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/translate"
	"github.com/polychat/chat-platform/pkg/logger"
	"github.com/polychat/chat-platform/pkg/metrics"
)

// translationSet computes at most one translation per target language for a
// single message, no matter how many recipients share that language.
type translationSet struct {
	mu      sync.Mutex
	entries map[string]*langEntry
}

type langEntry struct {
	once sync.Once
	text string
	ok   bool
}

func newTranslationSet() *translationSet {
	return &translationSet{entries: make(map[string]*langEntry)}
}

func (ts *translationSet) get(lang string, fn func() (string, error)) (string, bool) {
	ts.mu.Lock()
	entry, exists := ts.entries[lang]
	if !exists {
		entry = &langEntry{}
		ts.entries[lang] = entry
	}
	ts.mu.Unlock()

	entry.once.Do(func() {
		text, err := fn()
		if err != nil {
			// One immediate retry; a second failure falls back to the original.
			text, err = fn()
		}
		if err == nil {
			entry.text = text
			entry.ok = true
		}
	})
	// Only a successful reuse counts as a hit; a shared failure is not
	// cache effectiveness.
	if exists && entry.ok {
		metrics.TranslationCacheHits.Inc()
	}
	return entry.text, entry.ok
}

// successes returns the computed translations, keyed by language.
func (ts *translationSet) successes() map[string]string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make(map[string]string, len(ts.entries))
	for lang, entry := range ts.entries {
		if entry.ok {
			out[lang] = entry.text
		}
	}
	return out
}

func (d *Dispatcher) handleSend(ctx context.Context, senderID string, p *model.SendPayload) error {
	started := time.Now()
	log := d.log.WithEvent(string(model.ActionSend), p.ConversationID, senderID)
	log.Debug("event received", zap.String("stage", string(stageReceived)))

	if err := d.validateSend(p, log); err != nil {
		return err
	}

	// Membership check doubles as authorization.
	rec, err := d.directory.Record(ctx, senderID, p.ConversationID)
	if err != nil {
		return fmt.Errorf("sender is not a participant: %w", err)
	}
	log.Debug("event validated", zap.String("stage", string(stageValidated)))

	sender := d.resolveUser(ctx, senderID, log)

	msg := &model.Message{
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		Type:           p.Type,
		Content:        p.Content,
		Attachment:     p.Attachment,
		ReplyTo:        p.ReplyTo,
	}
	if d.canTranslate(msg, p) {
		msg.Language = d.detectLanguage(ctx, p.Content, log)
	}

	// Persistence is the only fatal step. Everything after it degrades.
	if err := d.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Type)).Inc()
	log = d.log.WithEvent(string(model.ActionSend), p.ConversationID, senderID).
		With(zap.String("message_id", msg.ID), zap.Int64("timestamp", msg.Timestamp))
	log.Debug("message persisted", zap.String("stage", string(stagePersisted)))

	if err := d.directory.TouchLastMessage(ctx, msg.ConversationID, msg); err != nil {
		log.Error("failed to update conversation records", zap.Error(err))
	}

	participants := rec.ParticipantIDs
	log.Debug("participants resolved",
		zap.String("stage", string(stageParticipants)), zap.Int("count", len(participants)))

	translations := newTranslationSet()
	var wg sync.WaitGroup
	for _, participantID := range participants {
		wg.Add(1)
		go func(participantID string) {
			defer wg.Done()
			d.deliverMessage(ctx, msg, p, sender, participantID, translations)
		}(participantID)
	}
	wg.Wait()
	log.Debug("fan-out complete",
		zap.String("stage", string(stageDelivered)),
		zap.Duration("elapsed", time.Since(started)))

	if computed := translations.successes(); len(computed) > 0 {
		if err := d.messages.CacheTranslations(ctx, msg.ConversationID, msg.Timestamp, computed); err != nil {
			log.Error("failed to cache translations", zap.Error(err))
		}
		log.Debug("translations cached",
			zap.String("stage", string(stageTranslated)), zap.Int("languages", len(computed)))
	}

	d.fallback.Notify(ctx, msg, sender, participants)
	log.Debug("offline fallback complete", zap.String("stage", string(stageNotified)))

	metrics.FanoutDuration.Observe(time.Since(started).Seconds())
	log.Debug("send complete", zap.String("stage", string(stageDone)))
	return nil
}

// validateSend checks the payload and nulls out malformed optional parts.
// A broken attachment or reply reference never sinks the whole message.
func (d *Dispatcher) validateSend(p *model.SendPayload, log *logger.Logger) error {
	if p.ConversationID == "" {
		return fmt.Errorf("conversationId is required: %w", model.ErrValidation)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown message type %q: %w", p.Type, model.ErrValidation)
	}
	if p.Type == model.MessageText && strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("text message requires content: %w", model.ErrValidation)
	}
	if len(p.Content) > model.MaxContentBytes {
		return fmt.Errorf("content exceeds %d bytes: %w", model.MaxContentBytes, model.ErrValidation)
	}
	if !utf8.ValidString(p.Content) {
		return fmt.Errorf("content is not valid UTF-8: %w", model.ErrValidation)
	}
	if p.Attachment != nil && (p.Attachment.ID == "" || p.Attachment.Key == "") {
		log.Warn("dropping malformed attachment metadata")
		p.Attachment = nil
	}
	if p.ReplyTo != nil {
		if p.ReplyTo.MessageID == "" {
			log.Warn("dropping malformed reply reference")
			p.ReplyTo = nil
		} else if runes := []rune(p.ReplyTo.Content); len(runes) > model.ReplyContentMax {
			p.ReplyTo.Content = string(runes[:model.ReplyContentMax])
		}
	}
	return nil
}

// canTranslate reports whether this payload carries translatable text.
// Document sends opt in explicitly and ride the long-form path.
func (d *Dispatcher) canTranslate(msg *model.Message, p *model.SendPayload) bool {
	if d.translator == nil || strings.TrimSpace(msg.Content) == "" {
		return false
	}
	if msg.Type.Translatable() {
		return true
	}
	return p.TranslateDocument && msg.Type == model.MessageFile
}

func (d *Dispatcher) detectLanguage(ctx context.Context, content string, log *logger.Logger) string {
	lang, err := d.translator.DetectLanguage(ctx, content)
	if err != nil {
		log.Warn("language detection failed, skipping translation", zap.Error(err))
		return ""
	}
	return lang
}

// deliverMessage builds the per-recipient payload, translating when the
// recipient reads a different language, and pushes it out.
func (d *Dispatcher) deliverMessage(
	ctx context.Context,
	msg *model.Message,
	p *model.SendPayload,
	sender *model.User,
	participantID string,
	translations *translationSet,
) {
	delivery := model.Delivery{Message: *msg, TranslatedContent: msg.Content}
	if sender != nil {
		delivery.Sender = sender.Snapshot()
	}

	if d.canTranslate(msg, p) && msg.Language != "" && participantID != msg.SenderID {
		if target := d.resolveUser(ctx, participantID, d.log); target != nil &&
			target.Language != "" && target.Language != msg.Language {
			text, ok := translations.get(target.Language, func() (string, error) {
				return d.translator.Translate(ctx, &translate.Request{
					Text:          msg.Content,
					SourceLang:    msg.Language,
					TargetLang:    target.Language,
					TargetCountry: target.Country,
					TargetRegion:  target.Region,
					Document:      p.TranslateDocument && msg.Type == model.MessageFile,
				})
			})
			// A failed translation keeps the original content, and the
			// payload must not claim a language it is not in.
			if ok {
				delivery.TargetLanguage = target.Language
				delivery.TranslatedContent = text
			}
		}
	}

	payload := d.envelope(model.ActionReceive, &delivery)
	if payload == nil {
		return
	}
	d.deliverToUser(ctx, participantID, payload)
}

// resolveUser is best-effort: a profile lookup failure degrades to an
// untranslated delivery, never to a dropped message.
func (d *Dispatcher) resolveUser(ctx context.Context, userID string, log *logger.Logger) *model.User {
	user, err := d.users.Resolve(ctx, userID)
	if err != nil {
		log.Warn("failed to resolve user profile", zap.String("user_id", userID), zap.Error(err))
		return &model.User{ID: userID}
	}
	return user
}
