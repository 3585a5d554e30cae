package models

import (
	"time"

	"github.com/google/uuid"
)

// Rating is the single post-sale review recorded for a listing.
type Rating struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID uuid.UUID `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:ux_ratings_listing_id"`
	RaterID   uuid.UUID `gorm:"column:rater_id;type:uuid;not null"`
	TargetID  uuid.UUID `gorm:"column:target_id;type:uuid;not null"`
	Score     int       `gorm:"column:score;not null"`
	Review    *string   `gorm:"column:review;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
