package listings

import (
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/expiry"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateListingInput carries the seller-supplied fields of a new listing.
type CreateListingInput struct {
	SellerID        uuid.UUID
	Title           string
	Description     *string
	PricingMode     enums.PricingMode
	FixedPrice      *decimal.Decimal
	StartingBid     *decimal.Decimal
	BidIncrement    *decimal.Decimal
	MaxBid          *decimal.Decimal
	EndTime         types.Timestamp
	DurationDays    int
	DurationHours   int
	DurationMinutes int
	Draft           bool
}

// ConfirmationView mirrors the two acknowledgement flags.
type ConfirmationView struct {
	SellerConfirmed bool `json:"seller_confirmed"`
	WinnerConfirmed bool `json:"winner_confirmed"`
}

// ListingView is the API representation of a listing, including the resolver's verdict.
type ListingView struct {
	ID              uuid.UUID           `json:"id"`
	SellerID        uuid.UUID           `json:"seller_id"`
	Title           string              `json:"title"`
	Description     *string             `json:"description,omitempty"`
	PricingMode     enums.PricingMode   `json:"pricing_mode"`
	FixedPrice      *decimal.Decimal    `json:"fixed_price,omitempty"`
	StartingBid     decimal.Decimal     `json:"starting_bid"`
	CurrentBid      decimal.Decimal     `json:"current_bid"`
	BidIncrement    decimal.Decimal     `json:"bid_increment"`
	MaxBid          *decimal.Decimal    `json:"max_bid,omitempty"`
	HighestBidderID *uuid.UUID          `json:"highest_bidder_id,omitempty"`
	EndsAt          *time.Time          `json:"ends_at,omitempty"`
	ExpiryState     string              `json:"expiry_state"`
	Status          enums.ListingStatus `json:"status"`
	IsComplete      bool                `json:"is_complete"`
	WinnerID        *uuid.UUID          `json:"winner_id,omitempty"`
	Confirmation    ConfirmationView    `json:"confirmation"`
	HasBeenRated    bool                `json:"has_been_rated"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	SoldAt          *time.Time          `json:"sold_at,omitempty"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
}

// BidView is one ledger entry.
type BidView struct {
	ID        uuid.UUID       `json:"id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsLeading bool            `json:"is_leading"`
	CreatedAt time.Time       `json:"created_at"`
}

// BidList wraps a ledger page plus the next page cursor.
type BidList struct {
	Bids       []BidView `json:"bids"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// NewListingView renders a listing as seen at now.
func NewListingView(l models.Listing, now time.Time) ListingView {
	resolved := expiry.Resolve(expiry.TimingOf(l), now)
	return ListingView{
		ID:              l.ID,
		SellerID:        l.SellerID,
		Title:           l.Title,
		Description:     l.Description,
		PricingMode:     l.PricingMode,
		FixedPrice:      nullDecimal(l.FixedPrice),
		StartingBid:     l.StartingBid,
		CurrentBid:      l.CurrentBid,
		BidIncrement:    l.BidIncrement,
		MaxBid:          nullDecimal(l.MaxBid),
		HighestBidderID: l.HighestBidderID,
		EndsAt:          resolved.EndsAt,
		ExpiryState:     resolved.State.String(),
		Status:          l.Status,
		IsComplete:      l.IsComplete,
		WinnerID:        l.WinnerID,
		Confirmation: ConfirmationView{
			SellerConfirmed: l.SellerConfirmed,
			WinnerConfirmed: l.WinnerConfirmed,
		},
		HasBeenRated: l.HasBeenRated,
		CompletedAt:  l.CompletedAt,
		SoldAt:       l.SoldAt,
		Version:      l.Version,
		CreatedAt:    l.CreatedAt,
	}
}

// NewBidList renders a ledger page.
func NewBidList(bids []models.ListingBid, next *pagination.Cursor) BidList {
	out := BidList{Bids: make([]BidView, 0, len(bids))}
	for _, bid := range bids {
		out.Bids = append(out.Bids, NewBidView(bid))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out
}

// NewBidView renders one ledger entry.
func NewBidView(bid models.ListingBid) BidView {
	return BidView{
		ID:        bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		IsLeading: bid.IsLeading,
		CreatedAt: bid.CreatedAt,
	}
}

func nullDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
