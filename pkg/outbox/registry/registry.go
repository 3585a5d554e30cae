package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/pkg/config"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to its topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// PermanentError marks a row that will fail the same way on every attempt.
type PermanentError struct{ err error }

func (e PermanentError) Error() string { return "permanent: " + e.err.Error() }

func (e PermanentError) Unwrap() error { return e.err }

// Permanent wraps err so IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{err: err}
}

func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

// EventRegistry validates outbox rows before the relay publishes them: the
// event type must be routed, the aggregate must match, and the payload must
// decode into its current schema.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *Decoders
}

// NewEventRegistry routes listing lifecycle events to the listings topic and
// ratings to the ratings topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.ListingsTopic == "" || cfg.RatingsTopic == "" {
		return nil, errors.New("listings and ratings topics are required")
	}
	r := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}, decoders: NewDecoders()}
	route := func(e enums.OutboxEventType, a enums.OutboxAggregateType, topic string) {
		r.routes[e] = EventDescriptor{EventType: e, AggregateType: a, Topic: topic}
	}

	route(enums.EventBidPlaced, enums.AggregateListing, cfg.ListingsTopic)
	Handle[payloads.BidPlacedEvent](r.decoders, enums.EventBidPlaced, 1)
	route(enums.EventAuctionCompleted, enums.AggregateListing, cfg.ListingsTopic)
	Handle[payloads.AuctionCompletedEvent](r.decoders, enums.EventAuctionCompleted, 1)
	route(enums.EventListingConfirmed, enums.AggregateListing, cfg.ListingsTopic)
	Handle[payloads.ListingConfirmedEvent](r.decoders, enums.EventListingConfirmed, 1)
	route(enums.EventListingSold, enums.AggregateListing, cfg.ListingsTopic)
	Handle[payloads.ListingSoldEvent](r.decoders, enums.EventListingSold, 1)
	route(enums.EventRatingSubmitted, enums.AggregateRating, cfg.RatingsTopic)
	Handle[payloads.RatingSubmittedEvent](r.decoders, enums.EventRatingSubmitted, 1)

	return r, nil
}

// Resolve checks the row and decodes its payload. Every error it returns is
// permanent.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("%w: no route for %s", ErrUnsupported, event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(fmt.Errorf("%s row has no aggregate id", event.EventType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope)
	if err != nil {
		return nil, Permanent(err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
