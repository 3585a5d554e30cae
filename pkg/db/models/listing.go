package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/types"
)

// Listing is the sellable unit and the aggregate every lifecycle transition writes to.
// Timing columns keep the shapes older clients stored; Version guards every engine write.
type Listing struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID        uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title           string              `gorm:"column:title;type:text;not null"`
	Description     *string             `gorm:"column:description;type:text"`
	PricingMode     enums.PricingMode   `gorm:"column:pricing_mode;type:pricing_mode;not null"`
	FixedPrice      decimal.NullDecimal `gorm:"column:fixed_price;type:numeric(12,2)"`
	StartingBid     decimal.Decimal     `gorm:"column:starting_bid;type:numeric(12,2);not null"`
	CurrentBid      decimal.Decimal     `gorm:"column:current_bid;type:numeric(12,2);not null"`
	BidIncrement    decimal.Decimal     `gorm:"column:bid_increment;type:numeric(12,2);not null"`
	MaxBid          decimal.NullDecimal `gorm:"column:max_bid;type:numeric(12,2)"`
	HighestBidderID *uuid.UUID          `gorm:"column:highest_bidder_id;type:uuid"`
	EndTime         types.Timestamp     `gorm:"column:end_time;type:jsonb"`
	ExpiresAt       types.Timestamp     `gorm:"column:expires_at;type:jsonb"`
	PostedAt        types.Timestamp     `gorm:"column:posted_at;type:jsonb"`
	DurationDays    int                 `gorm:"column:duration_days;not null"`
	DurationHours   int                 `gorm:"column:duration_hours;not null"`
	DurationMinutes int                 `gorm:"column:duration_minutes;not null"`
	DurationLabel   *string             `gorm:"column:duration_label;type:text"`
	Status          enums.ListingStatus `gorm:"column:status;type:listing_status;not null"`
	IsComplete      bool                `gorm:"column:is_complete;not null"`
	WinnerID        *uuid.UUID          `gorm:"column:winner_id;type:uuid"`
	SellerConfirmed bool                `gorm:"column:seller_confirmed;not null"`
	WinnerConfirmed bool                `gorm:"column:winner_confirmed;not null"`
	HasBeenRated    bool                `gorm:"column:has_been_rated;not null"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	SoldAt          *time.Time          `gorm:"column:sold_at"`
	Version         int64               `gorm:"column:version;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsAuction reports whether the listing is sold through bidding.
func (l Listing) IsAuction() bool {
	return l.PricingMode == enums.PricingModeAuction
}

// RoleOf returns the participant role held by userID, if any.
func (l Listing) RoleOf(userID uuid.UUID) (enums.ParticipantRole, bool) {
	switch {
	case userID == l.SellerID:
		return enums.ParticipantRoleSeller, true
	case l.WinnerID != nil && *l.WinnerID == userID:
		return enums.ParticipantRoleWinner, true
	default:
		return "", false
	}
}

// ParticipantID returns the user holding role, or nil when nobody does.
func (l Listing) ParticipantID(role enums.ParticipantRole) *uuid.UUID {
	switch role {
	case enums.ParticipantRoleSeller:
		id := l.SellerID
		return &id
	case enums.ParticipantRoleWinner:
		return l.WinnerID
	default:
		return nil
	}
}
