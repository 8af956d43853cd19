// Package dispatch orchestrates inbound realtime events: validate, persist,
// resolve participants, translate per recipient, push to live connections
// and fall back to offline notification.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/polychat/chat-platform/internal/bus"
	"github.com/polychat/chat-platform/internal/identity"
	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/internal/notify"
	"github.com/polychat/chat-platform/internal/realtime"
	"github.com/polychat/chat-platform/internal/registry"
	"github.com/polychat/chat-platform/internal/store"
	"github.com/polychat/chat-platform/internal/translate"
	"github.com/polychat/chat-platform/pkg/logger"
	"github.com/polychat/chat-platform/pkg/metrics"
)

// stage names the dispatcher state machine steps, used in logs.
type stage string

const (
	stageReceived     stage = "received"
	stageValidated    stage = "validated"
	stagePersisted    stage = "persisted"
	stageParticipants stage = "participants_resolved"
	stageTranslated   stage = "per_participant_translated"
	stageDelivered    stage = "delivered"
	stageNotified     stage = "notified"
	stageDone         stage = "done"
)

// Dispatcher is the fan-out engine. One Dispatch call is one short-lived
// unit of work; there are no long-running subscriptions beyond the
// connection's own lifetime.
type Dispatcher struct {
	messages   *store.MessageStore
	directory  *store.Directory
	registry   registry.Registry
	hub        *realtime.Hub
	translator translate.Gateway
	users      identity.Resolver
	fallback   *notify.Fallback
	relay      *bus.Relay // nil on single-instance deployments
	log        *logger.Logger
}

// New wires a dispatcher. translator and relay may be nil.
func New(
	messages *store.MessageStore,
	directory *store.Directory,
	reg registry.Registry,
	hub *realtime.Hub,
	translator translate.Gateway,
	users identity.Resolver,
	fallback *notify.Fallback,
	relay *bus.Relay,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		messages:   messages,
		directory:  directory,
		registry:   reg,
		hub:        hub,
		translator: translator,
		users:      users,
		fallback:   fallback,
		relay:      relay,
		log:        log,
	}
}

// Dispatch decodes one inbound envelope from senderID and runs the matching
// handler. Malformed payloads are dropped and logged, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, senderID string, raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.log.Warn("dropping malformed envelope", zap.String("sender_id", senderID), zap.Error(err))
		metrics.EventsTotal.WithLabelValues("unknown", "invalid").Inc()
		return
	}

	err := d.route(ctx, senderID, &env)
	metrics.EventsTotal.WithLabelValues(string(env.Action), outcome(err)).Inc()
	if err == nil {
		return
	}

	log := d.log.WithEvent(string(env.Action), "", senderID)
	switch {
	case errors.Is(err, model.ErrValidation):
		log.Warn("dropping invalid event", zap.Error(err))
	case errors.Is(err, model.ErrNotFound):
		log.Warn("event target missing, aborted", zap.Error(err))
	case errors.Is(err, model.ErrUnauthorized):
		log.Warn("event rejected", zap.Error(err))
	default:
		log.Error("event failed", zap.Error(err))
	}
}

func (d *Dispatcher) route(ctx context.Context, senderID string, env *model.Envelope) error {
	switch env.Action {
	case model.ActionSend:
		var p model.SendPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return d.handleSend(ctx, senderID, &p)
	case model.ActionTyping:
		var p model.TypingPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return d.handleTyping(ctx, senderID, &p)
	case model.ActionReaction:
		var p model.ReactionPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return d.handleReaction(ctx, senderID, &p)
	case model.ActionRead:
		var p model.ReadPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return d.handleRead(ctx, senderID, &p)
	case model.ActionDeleted:
		var p model.DeletePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return d.handleDelete(ctx, senderID, &p)
	default:
		return fmt.Errorf("unknown action %q: %w", env.Action, model.ErrValidation)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing event data: %w", model.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed event data: %v: %w", err, model.ErrValidation)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrUnauthorized):
		return "rejected"
	default:
		return "error"
	}
}

// deliverToUser pushes an encoded envelope to every local connection of
// userID and relays it to other instances. A connection that fails is
// deregistered immediately and never blocks the others.
func (d *Dispatcher) deliverToUser(ctx context.Context, userID string, payload []byte) {
	for _, conn := range d.hub.ConnectionsOf(userID) {
		if err := conn.Send(payload); err != nil {
			d.dropConnection(ctx, conn.ID)
			metrics.DeliveriesTotal.WithLabelValues("gone").Inc()
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
	}
	if d.relay != nil {
		if err := d.relay.PublishUserEvent(ctx, userID, payload); err != nil {
			d.log.Warn("relay publish failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// HandleRelayed delivers an event relayed from another instance to this
// instance's local connections of userID.
func (d *Dispatcher) HandleRelayed(userID string, payload []byte) {
	ctx := context.Background()
	for _, conn := range d.hub.ConnectionsOf(userID) {
		if err := conn.Send(payload); err != nil {
			d.dropConnection(ctx, conn.ID)
			metrics.DeliveriesTotal.WithLabelValues("gone").Inc()
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
	}
}

// dropConnection is the self-healing path: a push that reports a gone
// connection removes it from both the hub and the registry at once.
func (d *Dispatcher) dropConnection(ctx context.Context, connectionID string) {
	d.hub.Detach(connectionID)
	if err := d.registry.Unregister(ctx, connectionID); err != nil {
		d.log.Warn("failed to unregister stale connection",
			zap.String("connection_id", connectionID), zap.Error(err))
	}
	metrics.StaleConnectionsTotal.Inc()
}

// envelope encodes an outbound frame, returning nil on marshal failure.
func (d *Dispatcher) envelope(action model.Action, v any) []byte {
	payload, err := model.NewEnvelope(action, v)
	if err != nil {
		d.log.Error("failed to encode outbound envelope", zap.String("action", string(action)), zap.Error(err))
		return nil
	}
	return payload
}
