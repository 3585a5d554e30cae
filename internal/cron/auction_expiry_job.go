package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/auction"
	"github.com/angelmondragon/bidhaven-backend/internal/expiry"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultSweepBatchSize = 200

type expiryCandidateRepo interface {
	FindExpiryCandidates(ctx context.Context, after *pagination.Cursor, limit int) ([]models.Listing, error)
}

type auctionCompleter interface {
	CompleteIfExpired(ctx context.Context, listingID uuid.UUID) (*auction.TransitionResult, error)
}

// AuctionExpiryJobParams configures the sweep that closes lapsed auctions.
type AuctionExpiryJobParams struct {
	Logger     *logger.Logger
	Repository expiryCandidateRepo
	Auctions   auctionCompleter
	BatchSize  int
}

// NewAuctionExpiryJob builds the sweep. Clients holding a listing open still
// trigger completion themselves; the sweep covers listings nobody has open.
func NewAuctionExpiryJob(params AuctionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if params.Auctions == nil {
		return nil, fmt.Errorf("auction service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &auctionExpiryJob{
		logg:     params.Logger,
		repo:     params.Repository,
		auctions: params.Auctions,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type auctionExpiryJob struct {
	logg     *logger.Logger
	repo     expiryCandidateRepo
	auctions auctionCompleter
	batch    int
	now      func() time.Time
}

func (j *auctionExpiryJob) Name() string { return "auction-expiry" }

func (j *auctionExpiryJob) Run(ctx context.Context) error {
	var (
		after     *pagination.Cursor
		scanned   int
		completed int
		skipped   int
		errs      error
	)
	for {
		candidates, err := j.repo.FindExpiryCandidates(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("load expiry candidates: %w", err))
		}
		if len(candidates) == 0 {
			break
		}
		scanned += len(candidates)
		now := j.now().UTC()
		for i := range candidates {
			listing := &candidates[i]
			if expiry.HasExpired(*listing, now) != expiry.StateExpired {
				skipped++
				continue
			}
			result, err := j.auctions.CompleteIfExpired(ctx, listing.ID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("complete listing %s: %w", listing.ID, err))
				continue
			}
			if result.Outcome == auction.OutcomeCompleted {
				completed++
			}
		}
		if len(candidates) < j.batch {
			break
		}
		after = listings.CursorOf(&candidates[len(candidates)-1])
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   scanned,
		"completed": completed,
		"skipped":   skipped,
		"failures":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "auction expiry sweep complete")
	return errs
}
