package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bidhaven-backend/pkg/types"
)

// UserRatingAggregate is the rollup of every rating targeting a user.
type UserRatingAggregate struct {
	UserID       uuid.UUID               `gorm:"column:user_id;type:uuid;primaryKey"`
	Average      decimal.Decimal         `gorm:"column:average;type:numeric(4,2);not null"`
	Count        int                     `gorm:"column:count;not null"`
	Distribution types.ScoreDistribution `gorm:"column:distribution;type:jsonb;not null"`
	UpdatedAt    time.Time               `gorm:"column:updated_at"`
}
