package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

// bridgeEnvelope wraps an encoded frame with its target user so any instance
// can route it to local sessions.
type bridgeEnvelope struct {
	UserID uuid.UUID       `json:"userId"`
	Event  string          `json:"event"`
	Frame  json.RawMessage `json:"frame"`
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

type localDeliverer interface {
	deliverFrame(ctx context.Context, userID uuid.UUID, event string, raw []byte)
}

// Bridge fans events out across API instances over a Redis pub/sub channel.
// Every instance, the publishing one included, delivers to its local hub only
// when the message comes back off the channel, so a frame reaches each
// session exactly once.
type Bridge struct {
	channel string
	pub     channelPublisher
	hub     localDeliverer
	logg    *logger.Logger
}

// NewBridge wires the cross-instance event bridge.
func NewBridge(channel string, pub channelPublisher, hub *Hub, logg *logger.Logger) (*Bridge, error) {
	if channel == "" {
		return nil, fmt.Errorf("bridge channel required")
	}
	if pub == nil {
		return nil, fmt.Errorf("channel publisher required")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	return &Bridge{channel: channel, pub: pub, hub: hub, logg: logg}, nil
}

// PublishToUser encodes the event and puts it on the bridge channel.
func (b *Bridge) PublishToUser(ctx context.Context, userID uuid.UUID, ev Event) error {
	raw, err := Encode(ev)
	if err != nil {
		return err
	}

	envelope, err := json.Marshal(bridgeEnvelope{
		UserID: userID,
		Event:  ev.Name(),
		Frame:  raw,
	})
	if err != nil {
		return fmt.Errorf("encoding bridge envelope: %w", err)
	}

	if err := b.pub.Publish(ctx, b.channel, envelope); err != nil {
		return fmt.Errorf("publishing realtime event: %w", err)
	}
	return nil
}

// HandleMessage routes one bridge payload to local sessions. Malformed
// payloads are logged and skipped so the loop keeps draining.
func (b *Bridge) HandleMessage(ctx context.Context, payload string) {
	var envelope bridgeEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		if b.logg != nil {
			b.logg.Error(ctx, "invalid bridge payload", err)
		}
		return
	}
	if envelope.UserID == uuid.Nil || envelope.Event == "" {
		return
	}
	b.hub.deliverFrame(ctx, envelope.UserID, envelope.Event, envelope.Frame)
}

type messageSource interface {
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
}

// Run drains the bridge channel until the context ends. *redis.PubSub from
// the redis client's Subscribe satisfies the source.
func (b *Bridge) Run(ctx context.Context, src messageSource) error {
	if src == nil {
		return fmt.Errorf("message source required")
	}
	for {
		msg, err := src.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if b.logg != nil {
				b.logg.Error(ctx, "bridge receive failed", err)
			}
			continue
		}
		b.HandleMessage(ctx, msg.Payload)
	}
}
