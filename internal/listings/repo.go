package listings

import (
	"context"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Expectation is the state a conditional write requires at write time.
type Expectation struct {
	Version    int64
	Incomplete bool
	Unrated    bool
}

// ListBidsParams pages through a listing's ledger, newest first.
type ListBidsParams struct {
	ListingID uuid.UUID
	Limit     int
	Cursor    *pagination.Cursor
}

// Repository exposes persistence helpers for listings and their bid ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expect Expectation, updates map[string]any) (bool, error)
	CreateBid(ctx context.Context, bid *models.ListingBid) error
	DemoteLeadingBids(ctx context.Context, listingID uuid.UUID) error
	ListBids(ctx context.Context, params ListBidsParams) ([]models.ListingBid, *pagination.Cursor, error)
	FindExpiryCandidates(ctx context.Context, after *pagination.Cursor, limit int) ([]models.Listing, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a listings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// ConditionalUpdate applies updates only while the row still matches expect and
// bumps the version in the same statement. It reports whether a row changed.
func (r *repository) ConditionalUpdate(ctx context.Context, id uuid.UUID, expect Expectation, updates map[string]any) (bool, error) {
	patch := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		patch[k] = v
	}
	patch["version"] = expect.Version + 1
	if _, ok := patch["updated_at"]; !ok {
		patch["updated_at"] = time.Now().UTC()
	}

	query := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND version = ?", id, expect.Version)
	if expect.Incomplete {
		query = query.Where("is_complete = ?", false)
	}
	if expect.Unrated {
		query = query.Where("has_been_rated = ?", false)
	}

	result := query.UpdateColumns(patch)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CreateBid(ctx context.Context, bid *models.ListingBid) error {
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) DemoteLeadingBids(ctx context.Context, listingID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ListingBid{}).
		Where("listing_id = ? AND is_leading = ?", listingID, true).
		UpdateColumn("is_leading", false).Error
}

func (r *repository) ListBids(ctx context.Context, params ListBidsParams) ([]models.ListingBid, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.ListingBid{}).Where("listing_id = ?", params.ListingID)

	var bids []models.ListingBid
	err := pagination.NewestFirst(query, params.Cursor).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&bids).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(bids, params.Limit, func(b models.ListingBid) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return page, next, nil
}

// FindExpiryCandidates pages through open auctions oldest first. Deadlines are
// stored in several shapes, so the caller decides expiry per row.
func (r *repository) FindExpiryCandidates(ctx context.Context, after *pagination.Cursor, limit int) ([]models.Listing, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("pricing_mode = ? AND status = ? AND is_complete = ?", enums.PricingModeAuction, enums.ListingStatusActive, false)

	var listings []models.Listing
	if err := pagination.OldestFirst(query, after).Limit(limit).Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// CursorOf returns the keyset position of a listing for FindExpiryCandidates.
func CursorOf(l *models.Listing) *pagination.Cursor {
	return &pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
}
