package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingBid is one entry of a listing's bid ledger. Exactly one row per listing leads.
type ListingBid struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID uuid.UUID       `gorm:"column:listing_id;type:uuid;not null"`
	BidderID  uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	IsLeading bool            `gorm:"column:is_leading;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
