package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const consumerName = "ratings-worker"

type aggregateRecomputer interface {
	RecomputeAggregate(ctx context.Context, userID uuid.UUID) (*models.UserRatingAggregate, error)
}

type onceRunner interface {
	Do(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer replays rating_submitted events into the target's aggregate. The
// API recomputes inline; this path repairs rollups whose inline recompute failed.
type Consumer struct {
	ratings      aggregateRecomputer
	once         onceRunner
	subscription subscriber
	decoders     *registry.Decoders
	logg         *logger.Logger
}

// NewConsumer wires the ratings subscription.
func NewConsumer(ratings aggregateRecomputer, once onceRunner, subscription subscriber, logg *logger.Logger) (*Consumer, error) {
	if ratings == nil {
		return nil, errors.New("ratings service is required")
	}
	if once == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if subscription == nil {
		return nil, errors.New("ratings subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	decoders := registry.NewDecoders()
	registry.Handle[payloads.RatingSubmittedEvent](decoders, enums.EventRatingSubmitted, 1)
	return &Consumer{
		ratings:      ratings,
		once:         once,
		subscription: subscription,
		decoders:     decoders,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		eventType := enums.OutboxEventType(msg.Attributes["event_type"])
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(c.logg.WithField(ctx, "message_id", msg.ID), "decode ratings envelope", err)
			msg.Ack()
			return
		}
		if err := c.Process(ctx, eventType, envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process recomputes the target's aggregate once per event. A failed
// recompute is returned so the message is redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})
	if eventType != enums.EventRatingSubmitted {
		c.logg.Info(logCtx, "event not handled by ratings consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}
	decoded, err := c.decoders.Decode(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "decode rating payload", err)
		return nil
	}
	event := decoded.(payloads.RatingSubmittedEvent)
	if event.TargetID == uuid.Nil {
		c.logg.Error(logCtx, "rating payload missing target", fmt.Errorf("empty target_id"))
		return nil
	}

	logCtx = c.logg.WithField(logCtx, "target_id", event.TargetID.String())
	ran, err := c.once.Do(ctx, consumerName, eventID, func(ctx context.Context) error {
		_, err := c.ratings.RecomputeAggregate(ctx, event.TargetID)
		return err
	})
	switch {
	case err != nil:
		c.logg.Error(logCtx, "recompute rating aggregate", err)
		return err
	case !ran:
		c.logg.Info(logCtx, "event already processed")
	default:
		c.logg.Info(logCtx, "rating aggregate recomputed")
	}
	return nil
}
