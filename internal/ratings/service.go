package ratings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/lock"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MinScore        = 1
	MaxScore        = 5
	maxReviewLength = 2000

	aggregateLockScope  = "rating-aggregate"
	defaultLockWait     = 10 * time.Second
	ratingUniqueIndex   = "ux_ratings_listing_id"
	opRate              = "rate"
	sideEffectAggregate = "rating_aggregate"
)

var errLostRace = errors.New("listing changed concurrently")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}

type listingWatch interface {
	Publish(ctx context.Context, event enums.OutboxEventType, listing models.Listing)
}

type lockFactory interface {
	For(key string) (lock.Lock, error)
}

type lockKeyer interface {
	LockKey(scope, id string) string
}

// Eligibility answers whether a user may rate a listing and, if so, whom.
type Eligibility struct {
	Eligible bool                      `json:"eligible"`
	Role     enums.ParticipantRole     `json:"role,omitempty"`
	TargetID *uuid.UUID                `json:"target_id,omitempty"`
	Reason   enums.RatingIneligibility `json:"reason,omitempty"`
}

// SubmitInput is a rating left by one counterparty for the other.
type SubmitInput struct {
	ListingID uuid.UUID
	RaterID   uuid.UUID
	TargetID  uuid.UUID
	Score     int
	Review    *string
}

// RatingResult is the stored rating plus the listing after the rated flag flipped.
type RatingResult struct {
	Rating  models.Rating
	Listing models.Listing
}

// AggregateView is a user's public rating summary.
type AggregateView struct {
	UserID       uuid.UUID               `json:"user_id"`
	Average      decimal.Decimal         `json:"average"`
	Count        int                     `json:"count"`
	Distribution types.ScoreDistribution `json:"distribution"`
	UpdatedAt    *time.Time              `json:"updated_at,omitempty"`
}

// Service gates post-sale ratings and maintains per-user aggregates.
type Service interface {
	CanRate(ctx context.Context, listingID, userID uuid.UUID) (*Eligibility, error)
	SubmitRating(ctx context.Context, input SubmitInput) (*RatingResult, error)
	Aggregate(ctx context.Context, userID uuid.UUID) (*AggregateView, error)
	RecomputeAggregate(ctx context.Context, userID uuid.UUID) (*models.UserRatingAggregate, error)
}

// ServiceParams carries the rating gate's collaborators. Notifier, Watch, Locks
// and Keys are optional; without Locks the aggregate is recomputed unguarded.
type ServiceParams struct {
	Repo            Repository
	Listings        listings.Repository
	Tx              txRunner
	Outbox          outboxPublisher
	Notifier        notifier
	Watch           listingWatch
	Locks           lockFactory
	Keys            lockKeyer
	Metrics         *metrics.EngineMetrics
	Logger          *logger.Logger
	LockWait        time.Duration
	ConflictRetries int
}

type service struct {
	repo     Repository
	listings listings.Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier notifier
	watch    listingWatch
	locks    lockFactory
	keys     lockKeyer
	metrics  *metrics.EngineMetrics
	logg     *logger.Logger
	lockWait time.Duration
	retries  int
	now      func() time.Time
}

// NewService wires the rating gate.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ratings repository required")
	}
	if params.Listings == nil {
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
	if params.Locks != nil && params.Keys == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "lock keys required with locks")
	}
	wait := params.LockWait
	if wait <= 0 {
		wait = defaultLockWait
	}
	retries := params.ConflictRetries
	if retries < 0 {
		retries = 0
	}
	return &service{
		repo:     params.Repo,
		listings: params.Listings,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		watch:    params.Watch,
		locks:    params.Locks,
		keys:     params.Keys,
		metrics:  params.Metrics,
		logg:     params.Logger,
		lockWait: wait,
		retries:  retries,
		now:      time.Now,
	}, nil
}

func (s *service) CanRate(ctx context.Context, listingID, userID uuid.UUID) (*Eligibility, error) {
	if listingID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id and user id required")
	}
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, listings.MapLookupError(err)
	}
	eligibility := EligibilityOf(*listing, userID)
	return &eligibility, nil
}

// EligibilityOf applies the rating rules to a listing as read.
func EligibilityOf(listing models.Listing, userID uuid.UUID) Eligibility {
	if !listing.SellerConfirmed || !listing.WinnerConfirmed {
		return Eligibility{Reason: enums.RatingIneligibleNotSold}
	}
	role, ok := listing.RoleOf(userID)
	if !ok {
		return Eligibility{Reason: enums.RatingIneligibleNotParticipant}
	}
	if listing.WinnerID != nil && *listing.WinnerID == listing.SellerID {
		return Eligibility{Role: role, Reason: enums.RatingIneligibleSelfWon}
	}
	if listing.HasBeenRated {
		return Eligibility{Role: role, Reason: enums.RatingIneligibleAlreadyRated}
	}
	return Eligibility{
		Eligible: true,
		Role:     role,
		TargetID: listing.ParticipantID(role.Counterparty()),
	}
}

func (s *service) SubmitRating(ctx context.Context, input SubmitInput) (*RatingResult, error) {
	if input.Score < MinScore || input.Score > MaxScore {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid rating").
			WithDetails(map[string]any{"rating": "must be between 1 and 5"})
	}
	if input.ListingID == uuid.Nil || input.RaterID == uuid.Nil || input.TargetID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing, rater and target ids required")
	}
	review, err := normalizeReview(input.Review)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": input.ListingID.String(),
		"rater_id":   input.RaterID.String(),
		"target_id":  input.TargetID.String(),
	})

	var result *RatingResult
	err = s.withRetry(ctx, func() error {
		listing, err := s.listings.FindByID(ctx, input.ListingID)
		if err != nil {
			return listings.MapLookupError(err)
		}
		eligibility := EligibilityOf(*listing, input.RaterID)
		if err := ineligibleError(eligibility); err != nil {
			return err
		}
		if eligibility.TargetID == nil || *eligibility.TargetID != input.TargetID {
			return pkgerrors.New(pkgerrors.CodeValidation, "rating target must be the counterparty")
		}

		now := s.now().UTC()
		rating := &models.Rating{
			ID:        uuid.New(),
			ListingID: listing.ID,
			RaterID:   input.RaterID,
			TargetID:  input.TargetID,
			Score:     input.Score,
			Review:    review,
			CreatedAt: now,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			applied, err := s.listings.WithTx(tx).ConditionalUpdate(ctx, listing.ID, listings.Expectation{Version: listing.Version, Unrated: true}, map[string]any{
				"has_been_rated": true,
				"updated_at":     now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing rated")
			}
			if !applied {
				return errLostRace
			}
			if err := s.repo.WithTx(tx).CreateRating(ctx, rating); err != nil {
				if pkgerrors.IsUniqueViolation(err, ratingUniqueIndex) {
					return alreadyRated()
				}
				if pkgerrors.IsCheckViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "rating rejected by store constraint")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rating")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRatingSubmitted,
				AggregateType: enums.AggregateRating,
				AggregateID:   rating.ID,
				Actor:         &outbox.ActorRef{UserID: input.RaterID, Role: eligibility.Role.String()},
				OccurredAt:    now,
				Data: payloads.RatingSubmittedEvent{
					RatingID:  rating.ID,
					ListingID: listing.ID,
					RaterID:   input.RaterID,
					TargetID:  input.TargetID,
					Score:     input.Score,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue rating event")
			}
			return nil
		})
		if err != nil {
			return err
		}

		rated := *listing
		rated.HasBeenRated = true
		rated.Version = listing.Version + 1
		rated.UpdatedAt = now
		result = &RatingResult{Rating: *rating, Listing: rated}
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(opRate, "error")
		return nil, err
	}

	s.metrics.IncTransition(opRate, "rated")
	s.logg.Info(ctx, "rating submitted")

	if _, err := s.RecomputeAggregate(ctx, input.TargetID); err != nil {
		s.metrics.IncSideEffectFailure(sideEffectAggregate)
		s.logg.Error(ctx, "recompute rating aggregate", err)
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, notifications.Event{
			Kind:         notifications.EventRatingSubmitted,
			ListingID:    result.Listing.ID,
			ListingTitle: result.Listing.Title,
			SellerID:     result.Listing.SellerID,
			RaterID:      input.RaterID,
			TargetID:     input.TargetID,
			Score:        input.Score,
		})
	}
	if s.watch != nil {
		s.watch.Publish(ctx, enums.EventRatingSubmitted, result.Listing)
	}
	return result, nil
}

func (s *service) Aggregate(ctx context.Context, userID uuid.UUID) (*AggregateView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	aggregate, err := s.repo.FindAggregate(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &AggregateView{
				UserID:       userID,
				Average:      decimal.Zero,
				Distribution: types.NewScoreDistribution(MinScore, MaxScore),
			}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rating aggregate")
	}
	updated := aggregate.UpdatedAt
	return &AggregateView{
		UserID:       aggregate.UserID,
		Average:      aggregate.Average,
		Count:        aggregate.Count,
		Distribution: aggregate.Distribution,
		UpdatedAt:    &updated,
	}, nil
}

// RecomputeAggregate rebuilds a user's rollup from every rating targeting them.
// Concurrent recomputes for the same user are serialized on a Redis lock.
func (s *service) RecomputeAggregate(ctx context.Context, userID uuid.UUID) (*models.UserRatingAggregate, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if s.locks != nil {
		l, err := s.locks.For(s.keys.LockKey(aggregateLockScope, userID.String()))
		if err != nil {
			return nil, err
		}
		waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
		err = lock.Wait(waitCtx, l, 0)
		cancel()
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := l.Release(context.Background()); err != nil {
				s.logg.Error(ctx, "release rating aggregate lock", err)
			}
		}()
	}

	counts, err := s.repo.CountByScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	aggregate := BuildAggregate(userID, counts, s.now().UTC())
	if err := s.repo.UpsertAggregate(ctx, &aggregate); err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// BuildAggregate folds a per-star tally into the stored rollup.
func BuildAggregate(userID uuid.UUID, counts []ScoreCount, now time.Time) models.UserRatingAggregate {
	distribution := types.NewScoreDistribution(MinScore, MaxScore)
	var total, count int64
	for _, row := range counts {
		distribution.Add(row.Score, row.Count)
		total += int64(row.Score) * int64(row.Count)
		count += int64(row.Count)
	}
	average := decimal.Zero
	if count > 0 {
		average = decimal.NewFromInt(total).DivRound(decimal.NewFromInt(count), 2)
	}
	return models.UserRatingAggregate{
		UserID:       userID,
		Average:      average,
		Count:        int(count),
		Distribution: distribution,
		UpdatedAt:    now,
	}
}

func (s *service) withRetry(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if !errors.Is(err, errLostRace) {
			return err
		}
		s.metrics.IncConflict(opRate)
		if attempt >= s.retries {
			s.logg.Warn(ctx, "rating lost a concurrent write")
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "rating lost a concurrent write")
		}
	}
}

func ineligibleError(e Eligibility) error {
	switch e.Reason {
	case "":
		return nil
	case enums.RatingIneligibleNotParticipant:
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller or the winner may rate this listing")
	case enums.RatingIneligibleAlreadyRated:
		return alreadyRated()
	case enums.RatingIneligibleSelfWon:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "seller won their own listing and has no counterparty to rate").
			WithDetails(map[string]any{"reason": e.Reason})
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not sold").
			WithDetails(map[string]any{"reason": e.Reason})
	}
}

func alreadyRated() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "listing already rated").
		WithDetails(map[string]any{"reason": enums.RatingIneligibleAlreadyRated})
}

func normalizeReview(review *string) (*string, error) {
	if review == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*review)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > maxReviewLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review too long").
			WithDetails(map[string]any{"review": "must be at most 2000 characters"})
	}
	return &trimmed, nil
}
