package payloads

import (
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidPlacedEvent is emitted when a bid becomes the new leader of an auction.
type BidPlacedEvent struct {
	ListingID        uuid.UUID       `json:"listing_id"`
	BidID            uuid.UUID       `json:"bid_id"`
	SellerID         uuid.UUID       `json:"seller_id"`
	BidderID         uuid.UUID       `json:"bidder_id"`
	PreviousLeaderID *uuid.UUID      `json:"previous_leader_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PlacedAt         time.Time       `json:"placed_at"`
}

// AuctionCompletedEvent is emitted once per auction when it closes.
type AuctionCompletedEvent struct {
	ListingID   uuid.UUID        `json:"listing_id"`
	SellerID    uuid.UUID        `json:"seller_id"`
	WinnerID    *uuid.UUID       `json:"winner_id,omitempty"`
	FinalBid    *decimal.Decimal `json:"final_bid,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ListingConfirmedEvent records one participant confirming the hand-off.
type ListingConfirmedEvent struct {
	ListingID       uuid.UUID             `json:"listing_id"`
	UserID          uuid.UUID             `json:"user_id"`
	Role            enums.ParticipantRole `json:"role"`
	SellerConfirmed bool                  `json:"seller_confirmed"`
	WinnerConfirmed bool                  `json:"winner_confirmed"`
}

// ListingSoldEvent is emitted when the second confirmation lands.
type ListingSoldEvent struct {
	ListingID uuid.UUID  `json:"listing_id"`
	SellerID  uuid.UUID  `json:"seller_id"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
	SoldAt    time.Time  `json:"sold_at"`
}

// RatingSubmittedEvent carries the rating a participant left after a sale.
type RatingSubmittedEvent struct {
	RatingID  uuid.UUID `json:"rating_id"`
	ListingID uuid.UUID `json:"listing_id"`
	RaterID   uuid.UUID `json:"rater_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Score     int       `json:"score"`
}
