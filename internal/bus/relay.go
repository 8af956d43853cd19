package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/polychat/chat-platform/internal/model"
)

const (
	// OffloadStream carries durable handoffs to external collaborators:
	// push notifications and attachment purge requests.
	OffloadStream = "CHAT_OFFLOAD"

	pushSubjectPrefix  = "push.user."
	purgeSubject       = "attachments.purge"
	relaySubjectPrefix = "chat.user."

	originHeader = "Polychat-Origin"
)

// EnsureOffloadStream creates the offload stream if it does not exist.
func (c *Client) EnsureOffloadStream(ctx context.Context) error {
	_, err := c.js.Stream(ctx, OffloadStream)
	if err == nil {
		return nil
	}
	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        OffloadStream,
		Subjects:    []string{pushSubjectPrefix + ">", purgeSubject},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      72 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Push notification and attachment purge handoffs",
	})
	if err != nil {
		return fmt.Errorf("failed to create offload stream: %w", err)
	}
	return nil
}

// Relay fans realtime events out across server instances. Each instance
// publishes every outbound user event; the others deliver it to their own
// local connections of that user.
type Relay struct {
	client     *Client
	instanceID string
}

// NewRelay creates a relay with a unique instance identity.
func NewRelay(client *Client) *Relay {
	return &Relay{client: client, instanceID: uuid.NewString()}
}

// PublishUserEvent relays an already-encoded envelope for userID.
func (r *Relay) PublishUserEvent(ctx context.Context, userID string, payload []byte) error {
	msg := nats.NewMsg(relaySubjectPrefix + userID)
	msg.Header.Set(originHeader, r.instanceID)
	msg.Data = payload
	return r.client.conn.PublishMsg(msg)
}

// Subscribe invokes handler for every user event relayed by other
// instances. Events published by this instance are skipped.
func (r *Relay) Subscribe(handler func(userID string, payload []byte)) (*nats.Subscription, error) {
	return r.client.conn.Subscribe(relaySubjectPrefix+"*", func(msg *nats.Msg) {
		if msg.Header.Get(originHeader) == r.instanceID {
			return
		}
		userID := msg.Subject[len(relaySubjectPrefix):]
		handler(userID, msg.Data)
	})
}

// PushRequest is the payload handed to the external push pipeline.
type PushRequest struct {
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// PushPublisher hands push requests to the external pipeline via JetStream.
type PushPublisher struct {
	client *Client
}

// NewPushPublisher creates a push publisher.
func NewPushPublisher(client *Client) *PushPublisher {
	return &PushPublisher{client: client}
}

// Send publishes one push request. Delivery beyond the stream is the
// external pipeline's responsibility.
func (p *PushPublisher) Send(ctx context.Context, req *PushRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}
	if _, err := p.client.js.Publish(ctx, pushSubjectPrefix+req.UserID, data); err != nil {
		return fmt.Errorf("failed to publish push request: %w", err)
	}
	return nil
}

// Purger hands attachment purge requests to the external attachment store.
type Purger struct {
	client *Client
}

// NewPurger creates an attachment purger.
func NewPurger(client *Client) *Purger {
	return &Purger{client: client}
}

// Purge publishes one purge request for the attachment object.
func (p *Purger) Purge(ctx context.Context, att *model.Attachment) error {
	data, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("failed to marshal purge request: %w", err)
	}
	if _, err := p.client.js.Publish(ctx, purgeSubject, data); err != nil {
		return fmt.Errorf("failed to publish purge request: %w", err)
	}
	return nil
}
