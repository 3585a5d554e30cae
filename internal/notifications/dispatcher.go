package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/angelmondragon/bidhaven-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind names the lifecycle change a dispatch reacts to.
type EventKind string

const (
	EventBidAccepted      EventKind = "bid_accepted"
	EventAuctionCompleted EventKind = "auction_completed"
	EventRatingSubmitted  EventKind = "rating_submitted"
)

// Event describes a committed lifecycle change. Fields irrelevant to Kind are ignored.
type Event struct {
	Kind         EventKind
	ListingID    uuid.UUID
	ListingTitle string
	SellerID     uuid.UUID

	// bids
	BidderID         uuid.UUID
	PreviousLeaderID *uuid.UUID
	Amount           decimal.Decimal

	// completion
	WinnerID *uuid.UUID

	// ratings
	RaterID  uuid.UUID
	TargetID uuid.UUID
	Score    int
}

type sink interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// Dispatcher turns lifecycle events into per-user notifications. It never
// reports failure to its caller.
type Dispatcher struct {
	sink    sink
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

// NewDispatcher builds a Dispatcher. metrics may be nil.
func NewDispatcher(sink sink, logg *logger.Logger, engineMetrics *metrics.EngineMetrics) (*Dispatcher, error) {
	if sink == nil {
		return nil, errors.New("notification sink required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Dispatcher{sink: sink, logg: logg, metrics: engineMetrics}, nil
}

// Notify creates every notification the event calls for. Each failure is
// logged and dropped; remaining recipients are still attempted.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	for _, n := range Plan(event) {
		notification := n
		if err := d.sink.Create(ctx, &notification); err != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"listing_id":        event.ListingID.String(),
				"recipient_id":      notification.RecipientID.String(),
				"notification_type": string(notification.Type),
			})
			d.logg.Error(logCtx, "notification dispatch failed", err)
			d.metrics.IncSideEffectFailure("notification")
		}
	}
}

// Plan maps an event to the notifications it produces, applying the
// suppression rules for self-directed messages.
func Plan(event Event) []models.Notification {
	switch event.Kind {
	case EventBidAccepted:
		return planBid(event)
	case EventAuctionCompleted:
		return planCompletion(event)
	case EventRatingSubmitted:
		return planRating(event)
	default:
		return nil
	}
}

func planBid(event Event) []models.Notification {
	var out []models.Notification
	if event.SellerID != event.BidderID {
		out = append(out, newNotification(event, event.SellerID, enums.NotificationTypeBidPlaced, &event.BidderID,
			"New bid on your listing",
			fmt.Sprintf("A bid of %s was placed on %s.", event.Amount.StringFixed(2), titleOf(event))))
	}
	prev := event.PreviousLeaderID
	if prev != nil && *prev != event.BidderID && *prev != event.SellerID {
		out = append(out, newNotification(event, *prev, enums.NotificationTypeOutbid, &event.BidderID,
			"You have been outbid",
			fmt.Sprintf("Someone bid %s on %s.", event.Amount.StringFixed(2), titleOf(event))))
	}
	return out
}

func planCompletion(event Event) []models.Notification {
	ended := "Your auction for %s has ended with no bids."
	if event.WinnerID != nil {
		ended = "Your auction for %s has ended. Confirm the sale once the exchange is done."
	}
	out := []models.Notification{
		newNotification(event, event.SellerID, enums.NotificationTypeAuctionEnded, event.WinnerID,
			"Auction ended", fmt.Sprintf(ended, titleOf(event))),
	}
	if event.WinnerID != nil && *event.WinnerID != event.SellerID {
		seller := event.SellerID
		out = append(out, newNotification(event, *event.WinnerID, enums.NotificationTypeAuctionWon, &seller,
			"You won the auction",
			fmt.Sprintf("You won %s. Confirm the sale once the exchange is done.", titleOf(event))))
	}
	return out
}

func planRating(event Event) []models.Notification {
	if event.TargetID == uuid.Nil || event.TargetID == event.RaterID {
		return nil
	}
	return []models.Notification{
		newNotification(event, event.TargetID, enums.NotificationTypeRatingReceived, &event.RaterID,
			"You received a rating",
			fmt.Sprintf("You were rated %d/5 for %s.", event.Score, titleOf(event))),
	}
}

func newNotification(event Event, recipient uuid.UUID, kind enums.NotificationType, origin *uuid.UUID, title, message string) models.Notification {
	link := ListingLink(event.ListingID)
	listingID := event.ListingID
	var originID *uuid.UUID
	if origin != nil {
		id := *origin
		originID = &id
	}
	return models.Notification{
		RecipientID:  recipient,
		Type:         kind,
		Title:        title,
		Message:      message,
		Link:         &link,
		OriginUserID: originID,
		ListingID:    &listingID,
	}
}

// ListingLink is the in-app deep link for a listing.
func ListingLink(listingID uuid.UUID) string {
	return "/listings/" + listingID.String()
}

func titleOf(event Event) string {
	if event.ListingTitle == "" {
		return "the listing"
	}
	return fmt.Sprintf("%q", event.ListingTitle)
}
