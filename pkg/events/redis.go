package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/paperstack/paperstack/pkg/observability"
	"github.com/paperstack/paperstack/pkg/permission"
)

// DefaultChannel is the redis pub/sub channel permission change events
// travel on between instances.
const DefaultChannel = "paperstack:permission-events"

// envelope wraps an event with the publishing instance id so an instance
// can ignore its own broadcasts.
type envelope struct {
	Origin string                 `json:"origin"`
	Event  permission.ChangeEvent `json:"event"`
}

// Relay broadcasts local permission change events to other instances over
// redis pub/sub and applies foreign events to the local cache layer.
// Subscribe the relay to the local bus; foreign events are delivered to the
// local handler directly, never back onto the bus, so broadcasts cannot
// loop.
type Relay struct {
	client     *redis.Client
	channel    string
	instanceID string
	local      permission.ChangeHandler
	logger     *observability.Logger
}

func NewRelay(client *redis.Client, channel, instanceID string, local permission.ChangeHandler, logger *observability.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		local:      local,
		logger:     logger,
	}
}

// OnPermissionChange publishes a locally produced event. Broadcast failures
// are logged, not returned; the local caches were already invalidated
// synchronously and remote instances fall back to TTL expiry.
func (r *Relay) OnPermissionChange(event permission.ChangeEvent) {
	payload, err := json.Marshal(envelope{Origin: r.instanceID, Event: event})
	if err != nil {
		r.logError(err, "marshaling permission event")
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.logError(err, "publishing permission event")
	}
}

// Run subscribes to the channel and applies foreign events until the
// context is canceled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logError(err, "decoding permission event")
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}
			r.local.OnPermissionChange(env.Event)
		}
	}
}

func (r *Relay) logError(err error, message string) {
	if r.logger != nil {
		r.logger.WithError(err).Error(message)
	}
}
