package auction

import (
	"context"

	"github.com/angelmondragon/bidhaven-backend/internal/expiry"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/internal/notifications"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransitionOutcome is the result of asking an auction to close.
type TransitionOutcome string

const (
	OutcomeCompleted       TransitionOutcome = "completed"
	OutcomeAlreadyComplete TransitionOutcome = "already_complete"
	OutcomeNotExpired      TransitionOutcome = "not_expired"
	OutcomeUndetermined    TransitionOutcome = "undetermined"
)

// TransitionResult carries the outcome and the listing as last seen.
type TransitionResult struct {
	Outcome TransitionOutcome
	Listing models.Listing
}

// CompleteIfExpired closes an auction whose clock ran out. Any caller may
// trigger it; exactly one caller performs the write and fires the side effects.
func (s *service) CompleteIfExpired(ctx context.Context, listingID uuid.UUID) (*TransitionResult, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	ctx = s.logg.WithListingID(ctx, listingID.String())

	var result *TransitionResult
	err := s.withRetry(ctx, opComplete, func() error {
		listing, err := s.repo.FindByID(ctx, listingID)
		if err != nil {
			return listings.MapLookupError(err)
		}
		if !listing.IsAuction() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not an auction")
		}
		if listing.IsComplete {
			result = &TransitionResult{Outcome: OutcomeAlreadyComplete, Listing: *listing}
			return nil
		}
		if listing.Status != enums.ListingStatusActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not active")
		}

		now := s.now().UTC()
		switch expiry.HasExpired(*listing, now) {
		case expiry.StateActive:
			result = &TransitionResult{Outcome: OutcomeNotExpired, Listing: *listing}
			return nil
		case expiry.StateUnknown:
			result = &TransitionResult{Outcome: OutcomeUndetermined, Listing: *listing}
			return nil
		}

		var winner any
		if listing.HighestBidderID != nil {
			winner = *listing.HighestBidderID
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			applied, err := s.repo.WithTx(tx).ConditionalUpdate(ctx, listing.ID, listings.Expectation{Version: listing.Version, Incomplete: true}, map[string]any{
				"is_complete":      true,
				"winner_id":        winner,
				"seller_confirmed": false,
				"winner_confirmed": false,
				"completed_at":     now,
				"updated_at":       now,
			})
			if err != nil {
				return dependencyError(err, "complete listing")
			}
			if !applied {
				return errLostRace
			}
			return dependencyError(s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventAuctionCompleted,
				AggregateType: enums.AggregateListing,
				AggregateID:   listing.ID,
				OccurredAt:    now,
				Data: payloads.AuctionCompletedEvent{
					ListingID:   listing.ID,
					SellerID:    listing.SellerID,
					WinnerID:    listing.HighestBidderID,
					FinalBid:    finalBid(*listing),
					CompletedAt: now,
				},
			}), "queue completion event")
		})
		if err != nil {
			return err
		}

		completed := *listing
		completed.IsComplete = true
		completed.WinnerID = listing.HighestBidderID
		completed.SellerConfirmed = false
		completed.WinnerConfirmed = false
		completed.CompletedAt = &now
		completed.UpdatedAt = now
		completed.Version = listing.Version + 1
		result = &TransitionResult{Outcome: OutcomeCompleted, Listing: completed}
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(opComplete, "error")
		return nil, err
	}

	s.metrics.IncTransition(opComplete, string(result.Outcome))
	if result.Outcome != OutcomeCompleted {
		return result, nil
	}

	s.logg.Info(ctx, "auction completed")
	s.notify(ctx, notifications.Event{
		Kind:         notifications.EventAuctionCompleted,
		ListingID:    result.Listing.ID,
		ListingTitle: result.Listing.Title,
		SellerID:     result.Listing.SellerID,
		WinnerID:     result.Listing.WinnerID,
		Amount:       result.Listing.CurrentBid,
	})
	s.publish(ctx, enums.EventAuctionCompleted, result.Listing)
	return result, nil
}

func finalBid(listing models.Listing) *decimal.Decimal {
	if listing.HighestBidderID == nil {
		return nil
	}
	amount := listing.CurrentBid
	return &amount
}
