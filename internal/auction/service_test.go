package auction

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/db"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Notify(_ context.Context, event notifications.Event) {
	r.events = append(r.events, event)
}

type recordingWatch struct {
	events []enums.OutboxEventType
}

func (r *recordingWatch) Publish(_ context.Context, event enums.OutboxEventType, _ models.Listing) {
	r.events = append(r.events, event)
}

// racingRepo lets a competing writer bump the listing right after each read.
type racingRepo struct {
	listings.Repository
	races int
	bump  func(listingID uuid.UUID)
}

func (r *racingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	listing, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.races > 0 {
		r.races--
		r.bump(id)
	}
	return listing, nil
}

type harness struct {
	conn     *gorm.DB
	repo     listings.Repository
	notifier *recordingNotifier
	watch    *recordingWatch
	svc      *service
}

func newHarness(t *testing.T, wrap func(listings.Repository) listings.Repository) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "auction-test"})
	repo := listings.NewRepository(conn)
	engineRepo := repo
	if wrap != nil {
		engineRepo = wrap(repo)
	}
	h := &harness{conn: conn, repo: repo, notifier: &recordingNotifier{}, watch: &recordingWatch{}}
	svc, err := NewService(ServiceParams{
		Repo:            engineRepo,
		Tx:              db.Wrap(conn),
		Outbox:          outbox.NewService(outbox.NewRepository(conn), logg),
		Notifier:        h.notifier,
		Watch:           h.watch,
		Logger:          logg,
		ConflictRetries: 1,
	})
	require.NoError(t, err)
	h.svc = svc.(*service)
	return h
}

func (h *harness) seed(t *testing.T, mutate func(*models.Listing)) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		ID:          uuid.New(),
		SellerID:    uuid.New(),
		Title:       "Road bike",
		PricingMode: enums.PricingModeAuction,
		StartingBid: decimal.NewFromInt(10),
		CurrentBid:  decimal.NewFromInt(10),
		EndTime:     types.NewTimestamp(time.Now().Add(time.Hour)),
		Status:      enums.ListingStatusActive,
	}
	if mutate != nil {
		mutate(listing)
	}
	require.NoError(t, h.repo.Create(context.Background(), listing))
	return listing
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Listing {
	t.Helper()
	listing, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return listing
}

func (h *harness) outboxCount(t *testing.T, eventType enums.OutboxEventType, listingID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, listingID).
		Count(&count).Error)
	return count
}

func TestPlaceBidRejectsLowBidThenAcceptsHigher(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	listing := h.seed(t, nil)
	first := uuid.New()
	second := uuid.New()

	low, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: first, Amount: decimal.NewFromInt(9)})
	require.NoError(t, err)
	assert.False(t, low.Accepted)
	assert.Equal(t, enums.BidRejectionBidTooLow, low.Reason)

	equal, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: first, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, enums.BidRejectionBidTooLow, equal.Reason, "a bid equal to the current bid is too low")

	opening, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: first, Amount: decimal.NewFromInt(12)})
	require.NoError(t, err)
	require.True(t, opening.Accepted)

	accepted, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: second, Amount: decimal.NewFromInt(15)})
	require.NoError(t, err)
	require.True(t, accepted.Accepted)
	assert.True(t, accepted.Listing.CurrentBid.Equal(decimal.NewFromInt(15)))

	stored := h.reload(t, listing.ID)
	assert.True(t, stored.CurrentBid.Equal(decimal.NewFromInt(15)))
	require.NotNil(t, stored.HighestBidderID)
	assert.Equal(t, second, *stored.HighestBidderID)
	assert.EqualValues(t, 2, stored.Version)

	bids, _, err := h.repo.ListBids(ctx, listings.ListBidsParams{ListingID: listing.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, second, bids[0].BidderID)
	assert.True(t, bids[0].IsLeading)
	assert.False(t, bids[1].IsLeading, "previous head must be demoted")

	assert.EqualValues(t, 2, h.outboxCount(t, enums.EventBidPlaced, listing.ID))
	require.Len(t, h.notifier.events, 2)
	outbid := h.notifier.events[1]
	require.NotNil(t, outbid.PreviousLeaderID)
	assert.Equal(t, first, *outbid.PreviousLeaderID)
	assert.Equal(t, []enums.OutboxEventType{enums.EventBidPlaced, enums.EventBidPlaced}, h.watch.events)
}

func TestPlaceBidRejectionReasons(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	bidder := uuid.New()

	fixed := h.seed(t, func(l *models.Listing) {
		l.PricingMode = enums.PricingModeFixedPrice
		l.FixedPrice = decimal.NewNullDecimal(decimal.NewFromInt(100))
	})
	complete := h.seed(t, func(l *models.Listing) { l.IsComplete = true })
	expired := h.seed(t, func(l *models.Listing) { l.EndTime = types.NewTimestamp(time.Now().Add(-time.Minute)) })
	capped := h.seed(t, func(l *models.Listing) { l.MaxBid = decimal.NewNullDecimal(decimal.NewFromInt(50)) })

	cases := []struct {
		name      string
		listingID uuid.UUID
		amount    int64
		reason    enums.BidRejectionReason
	}{
		{"fixed price", fixed.ID, 20, enums.BidRejectionNotAuction},
		{"already complete", complete.ID, 20, enums.BidRejectionAuctionClosed},
		{"clock ran out", expired.ID, 20, enums.BidRejectionAuctionClosed},
		{"above maximum", capped.ID, 51, enums.BidRejectionAboveMaximum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: tc.listingID, BidderID: bidder, Amount: decimal.NewFromInt(tc.amount)})
			require.NoError(t, err)
			assert.False(t, result.Accepted)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}

	atCap, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: capped.ID, BidderID: bidder, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, atCap.Accepted, "a bid equal to the maximum is allowed")
	assert.Len(t, h.notifier.events, 1, "only the accepted bid notifies")
}

func TestPlaceBidValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	listing := h.seed(t, nil)

	_, err := h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: uuid.New(), Amount: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, Amount: decimal.NewFromInt(20)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: uuid.New(), BidderID: uuid.New(), Amount: decimal.NewFromInt(20)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPlaceBidRetriesOnceAfterLostRace(t *testing.T) {
	var h *harness
	racer := &racingRepo{races: 1}
	h = newHarness(t, func(repo listings.Repository) listings.Repository {
		racer.Repository = repo
		return racer
	})
	competitor := uuid.New()
	racer.bump = func(id uuid.UUID) {
		require.NoError(t, h.conn.Model(&models.Listing{}).Where("id = ?", id).UpdateColumns(map[string]any{
			"current_bid":       decimal.NewFromInt(20),
			"highest_bidder_id": competitor,
			"version":           gorm.Expr("version + 1"),
		}).Error)
	}
	listing := h.seed(t, nil)

	lower, err := h.svc.PlaceBid(context.Background(), PlaceBidInput{ListingID: listing.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(15)})
	require.NoError(t, err)
	assert.False(t, lower.Accepted, "the retry re-validates against the competing bid")
	assert.Equal(t, enums.BidRejectionBidTooLow, lower.Reason)

	stored := h.reload(t, listing.ID)
	assert.True(t, stored.CurrentBid.Equal(decimal.NewFromInt(20)), "a stale bid must never overwrite a higher one")
	assert.Zero(t, h.outboxCount(t, enums.EventBidPlaced, listing.ID))
}

func TestPlaceBidSurfacesConflictAfterRetries(t *testing.T) {
	var h *harness
	racer := &racingRepo{races: 2}
	h = newHarness(t, func(repo listings.Repository) listings.Repository {
		racer.Repository = repo
		return racer
	})
	racer.bump = func(id uuid.UUID) {
		require.NoError(t, h.conn.Model(&models.Listing{}).Where("id = ?", id).
			UpdateColumn("version", gorm.Expr("version + 1")).Error)
	}
	listing := h.seed(t, nil)

	_, err := h.svc.PlaceBid(context.Background(), PlaceBidInput{ListingID: listing.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(15)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, "please try again", pkgerrors.MetadataFor(pkgerrors.CodeConflict).PublicMessage)

	var bids int64
	require.NoError(t, h.conn.Model(&models.ListingBid{}).Where("listing_id = ?", listing.ID).Count(&bids).Error)
	assert.Zero(t, bids, "a lost race leaves no ledger row behind")
	assert.Empty(t, h.notifier.events)
}

func TestCompleteIfExpiredSetsWinner(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	winner := uuid.New()
	listing := h.seed(t, func(l *models.Listing) {
		l.EndTime = types.NewTimestamp(time.Now().Add(-10 * time.Minute))
		l.HighestBidderID = &winner
		l.CurrentBid = decimal.NewFromInt(42)
	})

	result, err := h.svc.CompleteIfExpired(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	stored := h.reload(t, listing.ID)
	assert.True(t, stored.IsComplete)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, winner, *stored.WinnerID)
	assert.False(t, stored.SellerConfirmed)
	assert.False(t, stored.WinnerConfirmed)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, enums.ListingStatusActive, stored.Status)

	again, err := h.svc.CompleteIfExpired(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyComplete, again.Outcome)

	assert.EqualValues(t, 1, h.outboxCount(t, enums.EventAuctionCompleted, listing.ID))
	require.Len(t, h.notifier.events, 1, "only the completing call notifies")
	assert.Equal(t, notifications.EventAuctionCompleted, h.notifier.events[0].Kind)
}

func TestCompleteIfExpiredWithoutBids(t *testing.T) {
	h := newHarness(t, nil)
	listing := h.seed(t, func(l *models.Listing) {
		l.EndTime = types.Timestamp{}
		l.ExpiresAt = types.NewTimestamp(time.Now().Add(-time.Hour))
	})

	result, err := h.svc.CompleteIfExpired(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)

	stored := h.reload(t, listing.ID)
	assert.True(t, stored.IsComplete)
	assert.Nil(t, stored.WinnerID)
}

func TestCompleteIfExpiredLeavesOpenAndUnknownAuctions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	open := h.seed(t, nil)
	result, err := h.svc.CompleteIfExpired(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotExpired, result.Outcome)

	unknown := h.seed(t, func(l *models.Listing) {
		l.EndTime = types.Timestamp{}
		l.DurationLabel = strPtr("2 days left")
	})
	result, err = h.svc.CompleteIfExpired(ctx, unknown.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUndetermined, result.Outcome)

	assert.False(t, h.reload(t, open.ID).IsComplete)
	assert.False(t, h.reload(t, unknown.ID).IsComplete)
	assert.Empty(t, h.notifier.events)
}

func TestCompleteIfExpiredLosingRaceReportsAlreadyComplete(t *testing.T) {
	var h *harness
	racer := &racingRepo{races: 1}
	h = newHarness(t, func(repo listings.Repository) listings.Repository {
		racer.Repository = repo
		return racer
	})
	racer.bump = func(id uuid.UUID) {
		require.NoError(t, h.conn.Model(&models.Listing{}).Where("id = ?", id).UpdateColumns(map[string]any{
			"is_complete": true,
			"version":     gorm.Expr("version + 1"),
		}).Error)
	}
	listing := h.seed(t, func(l *models.Listing) {
		l.EndTime = types.NewTimestamp(time.Now().Add(-time.Minute))
	})

	result, err := h.svc.CompleteIfExpired(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyComplete, result.Outcome)
	assert.Empty(t, h.notifier.events, "the losing caller fires no side effects")
	assert.Zero(t, h.outboxCount(t, enums.EventAuctionCompleted, listing.ID))
}

func TestConfirmRequiresBothParties(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	winner := uuid.New()
	listing := h.seed(t, func(l *models.Listing) {
		l.IsComplete = true
		l.WinnerID = &winner
		l.HighestBidderID = &winner
	})

	first, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: listing.SellerID, Role: enums.ParticipantRoleSeller})
	require.NoError(t, err)
	assert.True(t, first.SellerConfirmed)
	assert.False(t, first.Sold)
	assert.Equal(t, enums.ListingStatusActive, h.reload(t, listing.ID).Status)

	repeat, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: listing.SellerID})
	require.NoError(t, err)
	assert.True(t, repeat.SellerConfirmed)
	assert.False(t, repeat.Sold)

	second, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: winner, Role: enums.ParticipantRoleWinner})
	require.NoError(t, err)
	assert.True(t, second.Sold)
	assert.True(t, second.WinnerConfirmed)

	stored := h.reload(t, listing.ID)
	assert.Equal(t, enums.ListingStatusSold, stored.Status)
	assert.True(t, stored.SellerConfirmed)
	assert.True(t, stored.WinnerConfirmed)
	assert.NotNil(t, stored.SoldAt)

	assert.EqualValues(t, 2, h.outboxCount(t, enums.EventListingConfirmed, listing.ID))
	assert.EqualValues(t, 1, h.outboxCount(t, enums.EventListingSold, listing.ID))
	assert.Equal(t, []enums.OutboxEventType{enums.EventListingConfirmed, enums.EventListingSold}, h.watch.events)
}

func TestConfirmSelfWonListingWithoutRole(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	listing := h.seed(t, func(l *models.Listing) {
		l.IsComplete = true
		l.WinnerID = &l.SellerID
		l.HighestBidderID = &l.SellerID
	})

	first, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: listing.SellerID})
	require.NoError(t, err)
	assert.Equal(t, enums.ParticipantRoleSeller, first.Role)
	assert.False(t, first.Sold)

	second, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: listing.SellerID})
	require.NoError(t, err)
	assert.Equal(t, enums.ParticipantRoleWinner, second.Role)
	assert.True(t, second.Sold)

	again, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: listing.ID, UserID: listing.SellerID})
	require.NoError(t, err)
	assert.True(t, again.Sold)

	stored := h.reload(t, listing.ID)
	assert.Equal(t, enums.ListingStatusSold, stored.Status)
	assert.True(t, stored.SellerConfirmed)
	assert.True(t, stored.WinnerConfirmed)
	assert.EqualValues(t, 1, h.outboxCount(t, enums.EventListingSold, listing.ID))
}

func TestConfirmRejections(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	winner := uuid.New()

	open := h.seed(t, nil)
	_, err := h.svc.Confirm(ctx, ConfirmInput{ListingID: open.ID, UserID: open.SellerID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	noWinner := h.seed(t, func(l *models.Listing) { l.IsComplete = true })
	_, err = h.svc.Confirm(ctx, ConfirmInput{ListingID: noWinner.ID, UserID: noWinner.SellerID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	closed := h.seed(t, func(l *models.Listing) {
		l.IsComplete = true
		l.WinnerID = &winner
	})
	_, err = h.svc.Confirm(ctx, ConfirmInput{ListingID: closed.ID, UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Confirm(ctx, ConfirmInput{ListingID: closed.ID, UserID: winner, Role: enums.ParticipantRoleSeller})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "claiming the other side is a hard rejection")

	stored := h.reload(t, closed.ID)
	assert.False(t, stored.SellerConfirmed)
	assert.False(t, stored.WinnerConfirmed)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func strPtr(v string) *string { return &v }
