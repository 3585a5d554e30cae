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

// PlaceBidInput is a bidder's offer on an auction listing.
type PlaceBidInput struct {
	ListingID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
}

// LedgerResult reports whether a bid was accepted. A rejection is not an error.
type LedgerResult struct {
	Accepted bool
	Reason   enums.BidRejectionReason
	Listing  models.Listing
	Bid      *models.ListingBid
}

func (s *service) PlaceBid(ctx context.Context, input PlaceBidInput) (*LedgerResult, error) {
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if input.BidderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bidder id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid amount must be positive")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": input.ListingID.String(),
		"bidder_id":  input.BidderID.String(),
		"amount":     input.Amount.String(),
	})

	var (
		result   *LedgerResult
		previous *uuid.UUID
	)
	err := s.withRetry(ctx, opBid, func() error {
		listing, err := s.repo.FindByID(ctx, input.ListingID)
		if err != nil {
			return listings.MapLookupError(err)
		}
		if reason, ok := s.rejectBid(*listing, input.Amount); !ok {
			result = &LedgerResult{Accepted: false, Reason: reason, Listing: *listing}
			return nil
		}

		now := s.now().UTC()
		bid := &models.ListingBid{
			ID:        uuid.New(),
			ListingID: listing.ID,
			BidderID:  input.BidderID,
			Amount:    input.Amount,
			IsLeading: true,
			CreatedAt: now,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			applied, err := repo.ConditionalUpdate(ctx, listing.ID, listings.Expectation{Version: listing.Version, Incomplete: true}, map[string]any{
				"current_bid":       input.Amount,
				"highest_bidder_id": input.BidderID,
				"updated_at":        now,
			})
			if err != nil {
				return dependencyError(err, "update listing bid")
			}
			if !applied {
				return errLostRace
			}
			if err := repo.DemoteLeadingBids(ctx, listing.ID); err != nil {
				return dependencyError(err, "demote leading bids")
			}
			if err := repo.CreateBid(ctx, bid); err != nil {
				return dependencyError(err, "record bid")
			}
			return dependencyError(s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBidPlaced,
				AggregateType: enums.AggregateListing,
				AggregateID:   listing.ID,
				Actor:         &outbox.ActorRef{UserID: input.BidderID, Role: "bidder"},
				OccurredAt:    now,
				Data: payloads.BidPlacedEvent{
					ListingID:        listing.ID,
					BidID:            bid.ID,
					SellerID:         listing.SellerID,
					BidderID:         input.BidderID,
					PreviousLeaderID: listing.HighestBidderID,
					Amount:           input.Amount,
					PlacedAt:         now,
				},
			}), "queue bid event")
		})
		if err != nil {
			return err
		}

		previous = listing.HighestBidderID
		updated := *listing
		updated.CurrentBid = input.Amount
		bidder := input.BidderID
		updated.HighestBidderID = &bidder
		updated.Version = listing.Version + 1
		updated.UpdatedAt = now
		result = &LedgerResult{Accepted: true, Listing: updated, Bid: bid}
		return nil
	})
	if err != nil {
		s.metrics.IncBid("error")
		return nil, err
	}

	if !result.Accepted {
		s.metrics.IncBid(string(result.Reason))
		s.logg.Info(s.logg.WithField(ctx, "reason", result.Reason), "bid rejected")
		return result, nil
	}

	s.metrics.IncBid("accepted")
	s.logg.Info(ctx, "bid accepted")
	s.notify(ctx, notifications.Event{
		Kind:             notifications.EventBidAccepted,
		ListingID:        result.Listing.ID,
		ListingTitle:     result.Listing.Title,
		SellerID:         result.Listing.SellerID,
		BidderID:         input.BidderID,
		PreviousLeaderID: previous,
		Amount:           input.Amount,
	})
	s.publish(ctx, enums.EventBidPlaced, result.Listing)
	return result, nil
}

// rejectBid applies the acceptance rules in order and returns the first failing reason.
func (s *service) rejectBid(listing models.Listing, amount decimal.Decimal) (enums.BidRejectionReason, bool) {
	if !listing.IsAuction() {
		return enums.BidRejectionNotAuction, false
	}
	if listing.IsComplete || listing.Status != enums.ListingStatusActive {
		return enums.BidRejectionAuctionClosed, false
	}
	if expiry.HasExpired(listing, s.now()) == expiry.StateExpired {
		return enums.BidRejectionAuctionClosed, false
	}
	if amount.LessThanOrEqual(listing.CurrentBid) {
		return enums.BidRejectionBidTooLow, false
	}
	if listing.MaxBid.Valid && amount.GreaterThan(listing.MaxBid.Decimal) {
		return enums.BidRejectionAboveMaximum, false
	}
	return "", true
}
