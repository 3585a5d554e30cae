package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
)

// Notification stores in-app notifications addressed to a single user.
type Notification struct {
	ID           uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID  uuid.UUID              `gorm:"type:uuid;not null"`
	Type         enums.NotificationType `gorm:"type:notification_type;not null"`
	Title        string                 `gorm:"type:text;not null"`
	Message      string                 `gorm:"type:text;not null"`
	Link         *string                `gorm:"type:text"`
	OriginUserID *uuid.UUID             `gorm:"type:uuid"`
	ListingID    *uuid.UUID             `gorm:"type:uuid"`
	ReadAt       *time.Time             `gorm:"type:timestamptz"`
	CreatedAt    time.Time              `gorm:"type:timestamptz;autoCreateTime"`
}
