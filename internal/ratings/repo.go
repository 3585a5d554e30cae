package ratings

import (
	"context"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScoreCount is one row of a per-star tally.
type ScoreCount struct {
	Score int
	Count int
}

// Repository persists ratings and the per-user rollups derived from them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateRating(ctx context.Context, rating *models.Rating) error
	FindByListing(ctx context.Context, listingID uuid.UUID) (*models.Rating, error)
	CountByScore(ctx context.Context, targetID uuid.UUID) ([]ScoreCount, error)
	UpsertAggregate(ctx context.Context, aggregate *models.UserRatingAggregate) error
	FindAggregate(ctx context.Context, userID uuid.UUID) (*models.UserRatingAggregate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ratings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateRating(ctx context.Context, rating *models.Rating) error {
	if rating.ID == uuid.Nil {
		rating.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *repository) FindByListing(ctx context.Context, listingID uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	if err := r.db.WithContext(ctx).Where("listing_id = ?", listingID).First(&rating).Error; err != nil {
		return nil, err
	}
	return &rating, nil
}

// CountByScore tallies every rating targeting the user, grouped by star value.
func (r *repository) CountByScore(ctx context.Context, targetID uuid.UUID) ([]ScoreCount, error) {
	var rows []ScoreCount
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("score, COUNT(*) AS count").
		Where("target_id = ?", targetID).
		Group("score").
		Order("score ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) UpsertAggregate(ctx context.Context, aggregate *models.UserRatingAggregate) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"average", "count", "distribution", "updated_at"}),
		}).
		Create(aggregate).Error
}

func (r *repository) FindAggregate(ctx context.Context, userID uuid.UUID) (*models.UserRatingAggregate, error) {
	var aggregate models.UserRatingAggregate
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&aggregate).Error; err != nil {
		return nil, err
	}
	return &aggregate, nil
}
