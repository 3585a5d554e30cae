package notifications

import (
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/google/uuid"
)

// NotificationView is the API shape of a notification.
type NotificationView struct {
	ID           uuid.UUID              `json:"id"`
	Type         enums.NotificationType `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	Link         *string                `json:"link,omitempty"`
	OriginUserID *uuid.UUID             `json:"origin_user_id,omitempty"`
	ListingID    *uuid.UUID             `json:"listing_id,omitempty"`
	Read         bool                   `json:"read"`
	ReadAt       *time.Time             `json:"read_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func newNotificationViews(rows []models.Notification) []NotificationView {
	out := make([]NotificationView, 0, len(rows))
	for _, n := range rows {
		out = append(out, NotificationView{
			ID:           n.ID,
			Type:         n.Type,
			Title:        n.Title,
			Message:      n.Message,
			Link:         n.Link,
			OriginUserID: n.OriginUserID,
			ListingID:    n.ListingID,
			Read:         n.ReadAt != nil,
			ReadAt:       n.ReadAt,
			CreatedAt:    n.CreatedAt,
		})
	}
	return out
}
