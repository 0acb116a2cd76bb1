package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/aria7-op/school-mis-backend/pkg/db/models"
	pkgerrors "github.com/aria7-op/school-mis-backend/pkg/errors"
	"github.com/aria7-op/school-mis-backend/pkg/idempotency"
	"github.com/aria7-op/school-mis-backend/pkg/logger"
)

const domainNotificationConsumer = "domain-notifications"

// kindByEventType maps domain event types to producer templates.
var kindByEventType = map[string]string{
	"student.admitted":    KindStudent,
	"attendance.recorded": KindAttendance,
	"payment.received":    KindPayment,
	"user.created":        KindUser,
	"system.alert":        KindSystem,
	"customer.registered": KindCustomer,
	"inventory.low":       KindInventory,
}

type producer interface {
	Produce(ctx context.Context, kind string, params ProduceParams) (*models.Notification, error)
}

// eventEnvelope is the outer message shape on the domain topic.
type eventEnvelope struct {
	EventID string          `json:"eventId"`
	Data    json.RawMessage `json:"data"`
}

type domainEventPayload struct {
	SchoolID          uuid.UUID `json:"schoolId"`
	UserID            uuid.UUID `json:"userId"`
	Subject           string    `json:"subject"`
	RelatedEntityType *string   `json:"relatedEntityType,omitempty"`
	RelatedEntityID   *string   `json:"relatedEntityId,omitempty"`
}

// Consumer watches the domain event subscription and turns recognized events
// into stored, pushed notifications.
type Consumer struct {
	svc          producer
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a domain notification consumer.
func NewConsumer(svc producer, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:          svc,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	kind, ok := kindByEventType[eventType]
	if !ok {
		c.logg.Info(logCtx, "skipping unrecognized event")
		return processResult{ack: true}
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, domainNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var payload domainEventPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Delete(ctx, domainNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"school_id": payload.SchoolID.String(),
		"user_id":   payload.UserID.String(),
		"kind":      kind,
	})

	_, err = c.svc.Produce(ctx, kind, ProduceParams{
		SchoolID:          payload.SchoolID,
		UserID:            payload.UserID,
		Subject:           payload.Subject,
		RelatedEntityType: payload.RelatedEntityType,
		RelatedEntityID:   payload.RelatedEntityID,
	})
	if err != nil {
		// A validation failure will never succeed on redelivery; drop it.
		if appErr := pkgerrors.As(err); appErr != nil && appErr.Code() == pkgerrors.CodeValidation {
			c.logg.Error(logCtx, "dropping invalid event payload", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, domainNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "domain event converted to notification")
	return processResult{ack: true}
}
