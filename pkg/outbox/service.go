package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

// DomainEvent is a lifecycle change to be recorded in the same transaction as the write.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service queues domain events on the caller's transaction. Nothing is
// published here; the outbox publisher relays committed rows.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event. Types that occur once per aggregate are written with
// ON CONFLICT DO NOTHING so a duplicate is dropped instead of aborting tx.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	row, eventID, err := s.seal(event)
	if err != nil {
		return err
	}
	if tx == nil {
		return errors.New("transaction required")
	}
	tx = tx.WithContext(ctx)
	written := true
	if event.EventType.OncePerAggregate() {
		written, err = s.repo.InsertOnce(tx, row)
	} else {
		err = s.repo.Insert(tx, row)
	}
	if err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if written {
		s.logQueued(ctx, row, eventID)
	}
	return nil
}

// EmitIfNotExists queues event unless one of the same type is already queued
// for the aggregate. Types guarded by a unique index are also safe against a
// concurrent writer that passes the existence check at the same time.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	tx = tx.WithContext(ctx)
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return fmt.Errorf("check %s: %w", event.EventType, err)
	}
	if exists {
		return nil
	}

	row, eventID, err := s.seal(event)
	if err != nil {
		return err
	}
	written, err := s.repo.InsertOnce(tx, row)
	if err != nil {
		return fmt.Errorf("queue %s: %w", event.EventType, err)
	}
	if written {
		s.logQueued(ctx, row, eventID)
	}
	return nil
}

// seal wraps the event data in a versioned envelope and builds the row.
func (s *Service) seal(event DomainEvent) (models.OutboxEvent, string, error) {
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return models.OutboxEvent{}, "", fmt.Errorf("unknown event %q on aggregate %q", event.EventType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, "", fmt.Errorf("%s: aggregate id required", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    max(event.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}

func (s *Service) logQueued(ctx context.Context, row models.OutboxEvent, eventID string) {
	if s.logg == nil {
		return
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_id":       eventID,
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
	}), "outbox event queued")
}
