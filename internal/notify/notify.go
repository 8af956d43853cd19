// Package notify pushes to offline participants after fan-out. Push is
// strictly best-effort: failures are logged and swallowed, never blocking
// or failing the send that triggered them.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/bus"
	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/registry"
	"github.com/polychat/chat-platform/pkg/logger"
	"github.com/polychat/chat-platform/pkg/metrics"
)

const previewMax = 120

// Notification is one push to a single user.
type Notification struct {
	UserID string
	Title  string
	Body   string
	Data   map[string]string
}

// Provider delivers notifications to the external push service.
type Provider interface {
	Send(ctx context.Context, n *Notification) error
}

// JetStreamProvider hands notifications to the push pipeline over NATS.
type JetStreamProvider struct {
	pub *bus.PushPublisher
}

// NewJetStreamProvider wraps a bus push publisher.
func NewJetStreamProvider(pub *bus.PushPublisher) *JetStreamProvider {
	return &JetStreamProvider{pub: pub}
}

func (p *JetStreamProvider) Send(ctx context.Context, n *Notification) error {
	return p.pub.Send(ctx, &bus.PushRequest{
		UserID: n.UserID,
		Title:  n.Title,
		Body:   n.Body,
		Data:   n.Data,
	})
}

// Fallback decides, after fan-out, which participants get a push.
type Fallback struct {
	provider Provider
	registry registry.Registry

	// alwaysNotify pushes regardless of live connections. Configured via
	// PUSH_ALWAYS_NOTIFY; off in production.
	alwaysNotify bool

	log *logger.Logger
}

// NewFallback creates the notification fallback. provider may be nil to
// disable push entirely.
func NewFallback(provider Provider, reg registry.Registry, alwaysNotify bool, log *logger.Logger) *Fallback {
	return &Fallback{provider: provider, registry: reg, alwaysNotify: alwaysNotify, log: log}
}

// Notify pushes the message to every participant other than the sender who
// has no live connection (or to all of them when alwaysNotify is set).
func (f *Fallback) Notify(ctx context.Context, msg *model.Message, sender *model.User, participantIDs []string) {
	if f.provider == nil {
		return
	}
	title, body := Preview(msg, sender)

	for _, userID := range participantIDs {
		if userID == msg.SenderID {
			continue
		}
		if !f.alwaysNotify {
			conns, err := f.registry.ConnectionsFor(ctx, userID)
			if err != nil {
				f.log.Warn("registry lookup failed, skipping push",
					zap.String("user_id", userID), zap.Error(err))
				continue
			}
			if len(conns) > 0 {
				continue
			}
		}

		err := f.provider.Send(ctx, &Notification{
			UserID: userID,
			Title:  title,
			Body:   body,
			Data: map[string]string{
				"conversationId": msg.ConversationID,
				"messageId":      msg.ID,
				"type":           string(msg.Type),
			},
		})
		if err != nil {
			metrics.PushFallbacksTotal.WithLabelValues("error").Inc()
			f.log.Warn("push failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		metrics.PushFallbacksTotal.WithLabelValues("sent").Inc()
	}
}

// Preview builds a type-appropriate push title and body: a truncated text
// preview for text messages, a generic label for everything else.
func Preview(msg *model.Message, sender *model.User) (title, body string) {
	title = "New message"
	if sender != nil && sender.Username != "" {
		title = sender.Username
	}
	if msg.Type == model.MessageText {
		body = msg.Content
		if len([]rune(body)) > previewMax {
			body = string([]rune(body)[:previewMax]) + "…"
		}
		return title, body
	}
	return title, fmt.Sprintf("(%s) message", msg.Type)
}
