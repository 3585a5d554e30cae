package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	opBid      = "bid"
	opComplete = "complete"
	opConfirm  = "confirm"
)

// errLostRace marks a conditional write that matched no row because the listing moved on.
var errLostRace = errors.New("listing changed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}

type listingWatch interface {
	Publish(ctx context.Context, event enums.OutboxEventType, listing models.Listing)
}

// Service drives an auction from bidding through completion to a confirmed sale.
type Service interface {
	PlaceBid(ctx context.Context, input PlaceBidInput) (*LedgerResult, error)
	CompleteIfExpired(ctx context.Context, listingID uuid.UUID) (*TransitionResult, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
}

// ServiceParams carries the engine's collaborators. Notifier and Watch are optional.
type ServiceParams struct {
	Repo            listings.Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Notifier        notifier
	Watch           listingWatch
	Metrics         *metrics.EngineMetrics
	Logger          *logger.Logger
	ConflictRetries int
}

type service struct {
	repo     listings.Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier notifier
	watch    listingWatch
	metrics  *metrics.EngineMetrics
	logg     *logger.Logger
	retries  int
	now      func() time.Time
}

// NewService wires the lifecycle engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "listings repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	retries := params.ConflictRetries
	if retries < 0 {
		retries = 0
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		watch:    params.Watch,
		metrics:  params.Metrics,
		logg:     params.Logger,
		retries:  retries,
		now:      time.Now,
	}, nil
}

// withRetry reruns a read-validate-write cycle after a lost race, up to the
// configured number of retries, then surfaces CONFLICT.
func (s *service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if !errors.Is(err, errLostRace) {
			return err
		}
		s.metrics.IncConflict(op)
		if attempt >= s.retries {
			s.logg.Warn(s.logg.WithField(ctx, "attempts", attempt+1), fmt.Sprintf("%s lost a concurrent write", op))
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s lost a concurrent write", op))
		}
	}
}

func (s *service) notify(ctx context.Context, event notifications.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, event)
}

func (s *service) publish(ctx context.Context, event enums.OutboxEventType, listing models.Listing) {
	if s.watch == nil {
		return
	}
	s.watch.Publish(ctx, event, listing)
}

func dependencyError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errLostRace) || pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
