package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bidhaven-backend/api/validators"
	"github.com/angelmondragon/bidhaven-backend/internal/ratings"
	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

// Range is checked by the service so an out-of-range score surfaces as
// "invalid rating" rather than a generic validation failure.
type submitRatingRequest struct {
	TargetID uuid.UUID `json:"target_id" validate:"required"`
	Rating   int       `json:"rating"`
	Review   *string   `json:"review,omitempty"`
}

type ratingView struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	RaterID   uuid.UUID `json:"rater_id"`
	TargetID  uuid.UUID `json:"target_id"`
	Rating    int       `json:"rating"`
	Review    *string   `json:"review,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newRatingView(r models.Rating) ratingView {
	return ratingView{
		ID:        r.ID,
		ListingID: r.ListingID,
		RaterID:   r.RaterID,
		TargetID:  r.TargetID,
		Rating:    r.Score,
		Review:    r.Review,
		CreatedAt: r.CreatedAt,
	}
}

func RatingEligibility(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("ratings service", svc != nil, logg, authed(func(r *http.Request, caller uuid.UUID) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		eligibility, err := svc.CanRate(r.Context(), listingID, caller)
		return ok(eligibility), err
	}))
}

// SubmitRating records the caller's rating of their counterparty.
func SubmitRating(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("ratings service", svc != nil, logg, authed(func(r *http.Request, rater uuid.UUID) (reply, error) {
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			return reply{}, err
		}
		var body submitRatingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return reply{}, err
		}

		result, err := svc.SubmitRating(r.Context(), ratings.SubmitInput{
			ListingID: listingID,
			RaterID:   rater,
			TargetID:  body.TargetID,
			Score:     body.Rating,
			Review:    body.Review,
		})
		if err != nil {
			return reply{}, err
		}
		return created(newRatingView(result.Rating)), nil
	}))
}

// UserRating returns a user's public rating summary. Users never rated get zeros.
func UserRating(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return endpoint("ratings service", svc != nil, logg, func(r *http.Request) (reply, error) {
		userID, err := uuidParam(r, "userId")
		if err != nil {
			return reply{}, err
		}
		view, err := svc.Aggregate(r.Context(), userID)
		return ok(view), err
	})
}
