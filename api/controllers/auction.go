package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidhaven-backend/api/validators"
	"github.com/angelmondragon/bidhaven-backend/internal/auction"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

type placeBidRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type confirmRequest struct {
	Role string `json:"role,omitempty" validate:"omitempty,oneof=seller winner"`
}

// PlaceBid submits the caller's bid. An accepted bid answers 201; a rejected
// one answers 200 with accepted=false and the reason.
func PlaceBid(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("auction service", svc != nil, logg, authed(func(r *http.Request, bidder uuid.UUID) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		var body placeBidRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return reply{}, err
		}

		result, err := svc.PlaceBid(r.Context(), auction.PlaceBidInput{
			ListingID: listingID,
			BidderID:  bidder,
			Amount:    *body.Amount,
		})
		if err != nil {
			return reply{}, err
		}
		view := auction.NewBidOutcomeView(*result, time.Now())
		if result.Accepted {
			return created(view), nil
		}
		return ok(view), nil
	}))
}

// CompleteListing closes an auction whose clock has run out. Any
// authenticated user may trigger it.
func CompleteListing(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("auction service", svc != nil, logg, authed(func(r *http.Request, _ uuid.UUID) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		result, err := svc.CompleteIfExpired(r.Context(), listingID)
		if err != nil {
			return reply{}, err
		}
		return ok(auction.NewTransitionView(*result, time.Now())), nil
	}))
}

// ConfirmListing records the caller's hand-off acknowledgement. The body is
// optional; without a role the caller's side is derived from the listing.
func ConfirmListing(svc auction.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("auction service", svc != nil, logg, authed(func(r *http.Request, caller uuid.UUID) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		var body confirmRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				return reply{}, err
			}
		}

		result, err := svc.Confirm(r.Context(), auction.ConfirmInput{
			ListingID: listingID,
			UserID:    caller,
			Role:      enums.ParticipantRole(strings.ToLower(body.Role)),
		})
		if err != nil {
			return reply{}, err
		}
		return ok(auction.NewConfirmView(*result, time.Now())), nil
	}))
}
