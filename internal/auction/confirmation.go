package auction

import (
	"context"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConfirmInput is one participant acknowledging the hand-off. Role may be left
// empty, in which case it is derived from the listing.
type ConfirmInput struct {
	ListingID uuid.UUID
	UserID    uuid.UUID
	Role      enums.ParticipantRole
}

// ConfirmResult reports both flags after the call and whether the listing is sold.
type ConfirmResult struct {
	Role            enums.ParticipantRole
	Sold            bool
	SellerConfirmed bool
	WinnerConfirmed bool
	Listing         models.Listing
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Role != "" && !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid participant role")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": input.ListingID.String(),
		"user_id":    input.UserID.String(),
	})

	var (
		result  *ConfirmResult
		changed bool
	)
	err := s.withRetry(ctx, opConfirm, func() error {
		changed = false
		listing, err := s.repo.FindByID(ctx, input.ListingID)
		if err != nil {
			return listings.MapLookupError(err)
		}
		if !listing.IsComplete {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not complete")
		}
		if listing.WinnerID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "listing closed without a winner")
		}
		role, err := confirmingRole(*listing, input)
		if err != nil {
			return err
		}

		current := confirmResultOf(*listing, role)
		if confirmedBy(*listing, role) {
			result = &current
			return nil
		}

		now := s.now().UTC()
		next := *listing
		updates := map[string]any{"updated_at": now}
		if role == enums.ParticipantRoleSeller {
			next.SellerConfirmed = true
			updates["seller_confirmed"] = true
		} else {
			next.WinnerConfirmed = true
			updates["winner_confirmed"] = true
		}
		sold := next.SellerConfirmed && next.WinnerConfirmed
		if sold {
			next.Status = enums.ListingStatusSold
			next.SoldAt = &now
			updates["status"] = enums.ListingStatusSold
			updates["sold_at"] = now
		}

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			applied, err := s.repo.WithTx(tx).ConditionalUpdate(ctx, listing.ID, listings.Expectation{Version: listing.Version}, updates)
			if err != nil {
				return dependencyError(err, "confirm listing")
			}
			if !applied {
				return errLostRace
			}
			actor := &outbox.ActorRef{UserID: input.UserID, Role: role.String()}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventListingConfirmed,
				AggregateType: enums.AggregateListing,
				AggregateID:   listing.ID,
				Actor:         actor,
				OccurredAt:    now,
				Data: payloads.ListingConfirmedEvent{
					ListingID:       listing.ID,
					UserID:          input.UserID,
					Role:            role,
					SellerConfirmed: next.SellerConfirmed,
					WinnerConfirmed: next.WinnerConfirmed,
				},
			}); err != nil {
				return dependencyError(err, "queue confirmation event")
			}
			if !sold {
				return nil
			}
			return dependencyError(s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventListingSold,
				AggregateType: enums.AggregateListing,
				AggregateID:   listing.ID,
				Actor:         actor,
				OccurredAt:    now,
				Data: payloads.ListingSoldEvent{
					ListingID: listing.ID,
					SellerID:  listing.SellerID,
					WinnerID:  listing.WinnerID,
					SoldAt:    now,
				},
			}), "queue sold event")
		})
		if err != nil {
			return err
		}

		next.Version = listing.Version + 1
		next.UpdatedAt = now
		confirmed := confirmResultOf(next, role)
		result = &confirmed
		changed = true
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(opConfirm, "error")
		return nil, err
	}

	if !changed {
		s.metrics.IncTransition(opConfirm, "unchanged")
		return result, nil
	}

	ctx = s.logg.WithParticipantRole(ctx, result.Role.String())
	if result.Sold {
		s.metrics.IncTransition(opConfirm, "sold")
		s.logg.Info(ctx, "listing sold")
		s.publish(ctx, enums.EventListingSold, result.Listing)
		return result, nil
	}
	s.metrics.IncTransition(opConfirm, "confirmed")
	s.logg.Info(ctx, "listing confirmed")
	s.publish(ctx, enums.EventListingConfirmed, result.Listing)
	return result, nil
}

// confirmingRole resolves the caller's side of the transaction. A role claim
// that does not match the listing is rejected outright. A seller who won their
// own listing holds both sides and confirms the one still open.
func confirmingRole(listing models.Listing, input ConfirmInput) (enums.ParticipantRole, error) {
	if input.Role != "" {
		participant := listing.ParticipantID(input.Role)
		if participant == nil || *participant != input.UserID {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "user does not hold the claimed role")
		}
		return input.Role, nil
	}
	role, ok := listing.RoleOf(input.UserID)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "user is not a participant of this listing")
	}
	if role == enums.ParticipantRoleSeller && listing.SellerConfirmed && listing.WinnerID != nil && *listing.WinnerID == input.UserID {
		return enums.ParticipantRoleWinner, nil
	}
	return role, nil
}

func confirmedBy(listing models.Listing, role enums.ParticipantRole) bool {
	if role == enums.ParticipantRoleSeller {
		return listing.SellerConfirmed
	}
	return listing.WinnerConfirmed
}

func confirmResultOf(listing models.Listing, role enums.ParticipantRole) ConfirmResult {
	return ConfirmResult{
		Role:            role,
		Sold:            listing.Status == enums.ListingStatusSold,
		SellerConfirmed: listing.SellerConfirmed,
		WinnerConfirmed: listing.WinnerConfirmed,
		Listing:         listing,
	}
}
