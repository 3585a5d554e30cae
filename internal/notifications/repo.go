package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists the per-user inbox.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type inboxQuery struct {
	recipientID uuid.UUID
	limit       int
	after       *pagination.Cursor
	unreadOnly  bool
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) inbox(ctx context.Context, recipientID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", recipientID)
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(notification).Error
}

// List returns one newest-first page and the cursor of the page after it.
func (r *repository) List(ctx context.Context, q inboxQuery) ([]models.Notification, *pagination.Cursor, error) {
	scope := r.inbox(ctx, q.recipientID)
	if q.unreadOnly {
		scope = scope.Where("read_at IS NULL")
	}

	var rows []models.Notification
	if err := pagination.NewestFirst(scope, q.after).Limit(pagination.LimitWithBuffer(q.limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, q.limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

// MarkRead stamps read_at unless it is already set and reports whether the
// notification exists in the recipient's inbox. Repeating it keeps the first stamp.
func (r *repository) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID, at time.Time) (bool, error) {
	res := r.inbox(ctx, recipientID).
		Where("id = ?", notificationID).
		UpdateColumn("read_at", gorm.Expr("COALESCE(read_at, ?)", at))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	res := r.inbox(ctx, recipientID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteOlderThan purges read notifications created before cutoff. Unread
// ones are kept regardless of age.
func (r *repository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	res := conn.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
