package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes listing creation and read operations.
type Service interface {
	Create(ctx context.Context, input CreateListingInput) (*ListingView, error)
	Get(ctx context.Context, id uuid.UUID) (*ListingView, error)
	ListBids(ctx context.Context, listingID uuid.UUID, params pagination.Params) (*BidList, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires listing dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "listings repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateListingInput) (*ListingView, error) {
	listing, err := s.buildListing(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
	}
	view := NewListingView(*listing, s.now())
	return &view, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ListingView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, MapLookupError(err)
	}
	view := NewListingView(*listing, s.now())
	return &view, nil
}

func (s *service) ListBids(ctx context.Context, listingID uuid.UUID, params pagination.Params) (*BidList, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	query := ListBidsParams{ListingID: listingID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	if _, err := s.repo.FindByID(ctx, listingID); err != nil {
		return nil, MapLookupError(err)
	}
	bids, next, err := s.repo.ListBids(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bids")
	}
	list := NewBidList(bids, next)
	return &list, nil
}

func (s *service) buildListing(input CreateListingInput) (*models.Listing, error) {
	if input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if !input.PricingMode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pricing mode")
	}

	now := s.now().UTC()
	listing := &models.Listing{
		SellerID:    input.SellerID,
		Title:       title,
		Description: input.Description,
		PricingMode: input.PricingMode,
		Status:      enums.ListingStatusActive,
	}
	if input.Draft {
		listing.Status = enums.ListingStatusDraft
	}

	if input.PricingMode == enums.PricingModeFixedPrice {
		if input.FixedPrice == nil || !input.FixedPrice.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "fixed price must be positive")
		}
		listing.FixedPrice = decimal.NewNullDecimal(*input.FixedPrice)
		return listing, nil
	}

	if input.StartingBid == nil || input.StartingBid.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "starting bid must not be negative")
	}
	listing.StartingBid = *input.StartingBid
	listing.CurrentBid = *input.StartingBid
	if input.BidIncrement != nil {
		if input.BidIncrement.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid increment must not be negative")
		}
		listing.BidIncrement = *input.BidIncrement
	}
	if input.MaxBid != nil {
		if !input.MaxBid.GreaterThan(listing.StartingBid) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "max bid must exceed the starting bid")
		}
		listing.MaxBid = decimal.NewNullDecimal(*input.MaxBid)
	}

	hasDuration := input.DurationDays > 0 || input.DurationHours > 0 || input.DurationMinutes > 0
	if input.DurationDays < 0 || input.DurationHours < 0 || input.DurationMinutes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration components must not be negative")
	}
	switch {
	case input.EndTime.Valid:
		if !input.EndTime.Time.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be in the future")
		}
		listing.EndTime = input.EndTime
	case hasDuration:
		listing.PostedAt = types.NewTimestamp(now)
		listing.DurationDays = input.DurationDays
		listing.DurationHours = input.DurationHours
		listing.DurationMinutes = input.DurationMinutes
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction requires an end time or a duration")
	}
	return listing, nil
}

// MapLookupError converts repository lookup failures into typed errors.
func MapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
}
