package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidhaven-backend/api/validators"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 4000
)

type createListingRequest struct {
	Title           string           `json:"title" validate:"required,min=3,max=200"`
	Description     *string          `json:"description,omitempty"`
	PricingMode     string           `json:"pricing_mode" validate:"required,oneof=auction fixed"`
	FixedPrice      *decimal.Decimal `json:"fixed_price,omitempty"`
	StartingBid     *decimal.Decimal `json:"starting_bid,omitempty"`
	BidIncrement    *decimal.Decimal `json:"bid_increment,omitempty"`
	MaxBid          *decimal.Decimal `json:"max_bid,omitempty"`
	EndTime         types.Timestamp  `json:"end_time,omitempty"`
	DurationDays    int              `json:"duration_days" validate:"min=0,max=30"`
	DurationHours   int              `json:"duration_hours" validate:"min=0,max=23"`
	DurationMinutes int              `json:"duration_minutes" validate:"min=0,max=59"`
	Draft           bool             `json:"draft"`
}

func (b createListingRequest) input(seller uuid.UUID) listings.CreateListingInput {
	in := listings.CreateListingInput{
		SellerID:        seller,
		Title:           validators.SanitizeString(b.Title, maxTitleLength),
		PricingMode:     enums.PricingMode(strings.ToLower(b.PricingMode)),
		FixedPrice:      b.FixedPrice,
		StartingBid:     b.StartingBid,
		BidIncrement:    b.BidIncrement,
		MaxBid:          b.MaxBid,
		EndTime:         b.EndTime,
		DurationDays:    b.DurationDays,
		DurationHours:   b.DurationHours,
		DurationMinutes: b.DurationMinutes,
		Draft:           b.Draft,
	}
	if b.Description != nil {
		desc := validators.SanitizeString(*b.Description, maxDescriptionLength)
		in.Description = &desc
	}
	return in
}

// CreateListing publishes a listing owned by the caller.
func CreateListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("listings service", svc != nil, logg, authed(func(r *http.Request, seller uuid.UUID) (reply, error) {
		var body createListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return reply{}, err
		}
		view, err := svc.Create(r.Context(), body.input(seller))
		return created(view), err
	}))
}

// GetListing returns a listing together with the resolver's current verdict.
func GetListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("listings service", svc != nil, logg, func(r *http.Request) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		view, err := svc.Get(r.Context(), listingID)
		return ok(view), err
	})
}

// ListListingBids pages through a listing's bid ledger, newest first.
func ListListingBids(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("listings service", svc != nil, logg, func(r *http.Request) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		page, err := pageParams(r)
		if err != nil {
			return reply{}, err
		}
		list, err := svc.ListBids(r.Context(), listingID, page)
		return ok(list), err
	})
}
