package ratings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/lock"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
	keys   []string
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.keys = append(m.keys, key)
	return true, nil
}

func (m *memStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

type staticKeys struct{}

func (staticKeys) LockKey(scope, id string) string { return "bh:lock:" + scope + ":" + id }

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notifications.Event) {
	r.events = append(r.events, event)
}

type harness struct {
	conn     *gorm.DB
	listings listings.Repository
	store    *memStore
	notifier *recordingNotifier
	svc      Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "ratings-test"})
	store := &memStore{}
	factory, err := lock.NewFactory(store, time.Minute)
	require.NoError(t, err)

	h := &harness{conn: conn, listings: listings.NewRepository(conn), store: store, notifier: &recordingNotifier{}}
	h.svc, err = NewService(ServiceParams{
		Repo:            NewRepository(conn),
		Listings:        h.listings,
		Tx:              db.Wrap(conn),
		Outbox:          outbox.NewService(outbox.NewRepository(conn), logg),
		Notifier:        h.notifier,
		Locks:           factory,
		Keys:            staticKeys{},
		Logger:          logg,
		LockWait:        time.Second,
		ConflictRetries: 1,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedSold(t *testing.T, mutate func(*models.Listing)) *models.Listing {
	t.Helper()
	winner := uuid.New()
	now := time.Now().UTC()
	listing := &models.Listing{
		ID:              uuid.New(),
		SellerID:        uuid.New(),
		Title:           "Espresso machine",
		PricingMode:     enums.PricingModeAuction,
		StartingBid:     decimal.NewFromInt(50),
		CurrentBid:      decimal.NewFromInt(80),
		HighestBidderID: &winner,
		WinnerID:        &winner,
		IsComplete:      true,
		SellerConfirmed: true,
		WinnerConfirmed: true,
		Status:          enums.ListingStatusSold,
		SoldAt:          &now,
	}
	if mutate != nil {
		mutate(listing)
	}
	require.NoError(t, h.listings.Create(context.Background(), listing))
	return listing
}

func TestSubmitRatingUpdatesAggregateAndBlocksSecondRating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	listing := h.seedSold(t, nil)
	winner := *listing.WinnerID
	review := "  great seller  "

	result, err := h.svc.SubmitRating(ctx, SubmitInput{
		ListingID: listing.ID,
		RaterID:   winner,
		TargetID:  listing.SellerID,
		Score:     5,
		Review:    &review,
	})
	require.NoError(t, err)
	assert.True(t, result.Listing.HasBeenRated)
	require.NotNil(t, result.Rating.Review)
	assert.Equal(t, "great seller", *result.Rating.Review)

	stored, err := h.listings.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasBeenRated)

	aggregate, err := h.svc.Aggregate(ctx, listing.SellerID)
	require.NoError(t, err)
	assert.Equal(t, 1, aggregate.Count)
	assert.True(t, aggregate.Average.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 1, aggregate.Distribution["5"])

	_, err = h.svc.SubmitRating(ctx, SubmitInput{
		ListingID: listing.ID,
		RaterID:   listing.SellerID,
		TargetID:  winner,
		Score:     4,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "the single rated flag blocks the reverse direction too")

	var ratings int64
	require.NoError(t, h.conn.Model(&models.Rating{}).Count(&ratings).Error)
	assert.EqualValues(t, 1, ratings)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, listing.SellerID, h.notifier.events[0].TargetID)

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventRatingSubmitted).Count(&events).Error)
	assert.EqualValues(t, 1, events)

	assert.Equal(t, []string{"bh:lock:rating-aggregate:" + listing.SellerID.String()}, h.store.keys)
	assert.Empty(t, h.store.values, "the aggregate lock is released after the recompute")
}

func TestSubmitRatingRejectsOutOfRangeBeforeReading(t *testing.T) {
	h := newHarness(t)
	for _, score := range []int{0, 6, -1} {
		_, err := h.svc.SubmitRating(context.Background(), SubmitInput{
			ListingID: uuid.New(),
			RaterID:   uuid.New(),
			TargetID:  uuid.New(),
			Score:     score,
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "score %d", score)
	}
}

func TestSubmitRatingEligibilityFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	unconfirmed := h.seedSold(t, func(l *models.Listing) {
		l.WinnerConfirmed = false
		l.Status = enums.ListingStatusActive
		l.SoldAt = nil
	})
	_, err := h.svc.SubmitRating(ctx, SubmitInput{ListingID: unconfirmed.ID, RaterID: unconfirmed.SellerID, TargetID: *unconfirmed.WinnerID, Score: 3})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	sold := h.seedSold(t, nil)
	_, err = h.svc.SubmitRating(ctx, SubmitInput{ListingID: sold.ID, RaterID: uuid.New(), TargetID: sold.SellerID, Score: 3})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.SubmitRating(ctx, SubmitInput{ListingID: sold.ID, RaterID: sold.SellerID, TargetID: sold.SellerID, Score: 3})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "a participant cannot rate themselves")

	stored, err := h.listings.FindByID(ctx, sold.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasBeenRated)
}

func TestCanRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	listing := h.seedSold(t, nil)

	seller, err := h.svc.CanRate(ctx, listing.ID, listing.SellerID)
	require.NoError(t, err)
	assert.True(t, seller.Eligible)
	assert.Equal(t, enums.ParticipantRoleSeller, seller.Role)
	require.NotNil(t, seller.TargetID)
	assert.Equal(t, *listing.WinnerID, *seller.TargetID)

	stranger, err := h.svc.CanRate(ctx, listing.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, stranger.Eligible)
	assert.Equal(t, enums.RatingIneligibleNotParticipant, stranger.Reason)

	_, err = h.svc.CanRate(ctx, uuid.New(), listing.SellerID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSelfWonListingHasNoCounterpartyToRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	listing := h.seedSold(t, func(l *models.Listing) {
		l.WinnerID = &l.SellerID
		l.HighestBidderID = &l.SellerID
	})

	eligibility, err := h.svc.CanRate(ctx, listing.ID, listing.SellerID)
	require.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.Equal(t, enums.RatingIneligibleSelfWon, eligibility.Reason)
	assert.Nil(t, eligibility.TargetID)

	_, err = h.svc.SubmitRating(ctx, SubmitInput{ListingID: listing.ID, RaterID: listing.SellerID, TargetID: listing.SellerID, Score: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.False(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	stored, err := h.listings.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasBeenRated)

	view, err := h.svc.Aggregate(ctx, listing.SellerID)
	require.NoError(t, err)
	assert.Zero(t, view.Count)
}

func TestRecomputeAggregateUsesFullHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	target := uuid.New()
	repo := NewRepository(h.conn)
	for _, score := range []int{5, 4, 4, 2} {
		require.NoError(t, repo.CreateRating(ctx, &models.Rating{
			ListingID: uuid.New(),
			RaterID:   uuid.New(),
			TargetID:  target,
			Score:     score,
		}))
	}

	aggregate, err := h.svc.RecomputeAggregate(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 4, aggregate.Count)
	assert.True(t, aggregate.Average.Equal(decimal.RequireFromString("3.75")), "got %s", aggregate.Average)

	stored, err := repo.FindAggregate(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Distribution["4"])
	assert.Equal(t, 0, stored.Distribution["3"])

	require.NoError(t, repo.CreateRating(ctx, &models.Rating{ListingID: uuid.New(), RaterID: uuid.New(), TargetID: target, Score: 1}))
	again, err := h.svc.RecomputeAggregate(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 5, again.Count)
	assert.True(t, again.Average.Equal(decimal.RequireFromString("3.2")))
}

func TestRecomputeAggregateWaitsForHeldLock(t *testing.T) {
	h := newHarness(t)
	target := uuid.New()
	h.store.values = map[string]string{staticKeys{}.LockKey(aggregateLockScope, target.String()): "someone-else"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := h.svc.RecomputeAggregate(ctx, target)
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestAggregateForUnratedUser(t *testing.T) {
	h := newHarness(t)
	view, err := h.svc.Aggregate(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, view.Count)
	assert.True(t, view.Average.IsZero())
	assert.Len(t, view.Distribution, 5)
}

func TestBuildAggregateRoundsToCents(t *testing.T) {
	aggregate := BuildAggregate(uuid.New(), []ScoreCount{{Score: 5, Count: 1}, {Score: 4, Count: 2}}, time.Now())
	assert.True(t, aggregate.Average.Equal(decimal.RequireFromString("4.33")), "got %s", aggregate.Average)
}
