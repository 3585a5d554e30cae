package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type recordingSink struct {
	created []models.Notification
	failFor map[uuid.UUID]bool
}

func (r *recordingSink) Create(_ context.Context, n *models.Notification) error {
	if r.failFor[n.RecipientID] {
		return errors.New("insert failed")
	}
	r.created = append(r.created, *n)
	return nil
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func typesOf(ns []models.Notification) map[enums.NotificationType]uuid.UUID {
	out := make(map[enums.NotificationType]uuid.UUID, len(ns))
	for _, n := range ns {
		out[n.Type] = n.RecipientID
	}
	return out
}

func TestPlanBidNotifiesSellerAndPreviousLeader(t *testing.T) {
	seller, bidder, previous := uuid.New(), uuid.New(), uuid.New()
	listingID := uuid.New()
	planned := Plan(Event{
		Kind:             EventBidAccepted,
		ListingID:        listingID,
		ListingTitle:     "Camera",
		SellerID:         seller,
		BidderID:         bidder,
		PreviousLeaderID: &previous,
		Amount:           decimal.NewFromInt(15),
	})
	if len(planned) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(planned))
	}
	got := typesOf(planned)
	if got[enums.NotificationTypeBidPlaced] != seller {
		t.Fatalf("expected seller to get bid_placed")
	}
	if got[enums.NotificationTypeOutbid] != previous {
		t.Fatalf("expected previous leader to get outbid")
	}
	for _, n := range planned {
		if n.Link == nil || *n.Link != "/listings/"+listingID.String() {
			t.Fatalf("expected deep link, got %v", n.Link)
		}
		if n.OriginUserID == nil || *n.OriginUserID != bidder {
			t.Fatalf("expected bidder as origin user")
		}
		if n.ListingID == nil || *n.ListingID != listingID {
			t.Fatalf("expected listing id to be carried")
		}
	}
}

func TestPlanBidSuppression(t *testing.T) {
	seller, bidder := uuid.New(), uuid.New()

	cases := []struct {
		name     string
		event    Event
		expected int
	}{
		{
			name:     "seller bidding on own listing",
			event:    Event{Kind: EventBidAccepted, SellerID: seller, BidderID: seller},
			expected: 0,
		},
		{
			name:     "first bid has no previous leader",
			event:    Event{Kind: EventBidAccepted, SellerID: seller, BidderID: bidder},
			expected: 1,
		},
		{
			name:     "leader raising own bid",
			event:    Event{Kind: EventBidAccepted, SellerID: seller, BidderID: bidder, PreviousLeaderID: ptr(bidder)},
			expected: 1,
		},
		{
			name:     "previous leader was the seller",
			event:    Event{Kind: EventBidAccepted, SellerID: seller, BidderID: bidder, PreviousLeaderID: ptr(seller)},
			expected: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(Plan(tc.event)); got != tc.expected {
				t.Fatalf("expected %d notifications, got %d", tc.expected, got)
			}
		})
	}
}

func TestPlanCompletion(t *testing.T) {
	seller, winner := uuid.New(), uuid.New()

	withWinner := typesOf(Plan(Event{Kind: EventAuctionCompleted, SellerID: seller, WinnerID: &winner}))
	if withWinner[enums.NotificationTypeAuctionEnded] != seller || withWinner[enums.NotificationTypeAuctionWon] != winner {
		t.Fatalf("unexpected completion plan %v", withWinner)
	}

	noBids := Plan(Event{Kind: EventAuctionCompleted, SellerID: seller})
	if len(noBids) != 1 || noBids[0].Type != enums.NotificationTypeAuctionEnded {
		t.Fatalf("expected only auction_ended without a winner, got %+v", noBids)
	}

	selfWin := Plan(Event{Kind: EventAuctionCompleted, SellerID: seller, WinnerID: ptr(seller)})
	if len(selfWin) != 1 {
		t.Fatalf("expected auction_won to be suppressed for the seller, got %d", len(selfWin))
	}
}

func TestPlanRating(t *testing.T) {
	rater, target := uuid.New(), uuid.New()
	planned := Plan(Event{Kind: EventRatingSubmitted, RaterID: rater, TargetID: target, Score: 5})
	if len(planned) != 1 || planned[0].RecipientID != target || planned[0].Type != enums.NotificationTypeRatingReceived {
		t.Fatalf("unexpected rating plan %+v", planned)
	}
	if Plan(Event{Kind: "unknown"}) != nil {
		t.Fatal("expected unknown kinds to plan nothing")
	}
}

func TestDispatcherSwallowsSinkFailures(t *testing.T) {
	seller, bidder, previous := uuid.New(), uuid.New(), uuid.New()
	sink := &recordingSink{failFor: map[uuid.UUID]bool{seller: true}}
	dispatcher, err := NewDispatcher(sink, logger.New(logger.Options{ServiceName: "dispatch-test"}), nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	dispatcher.Notify(context.Background(), Event{
		Kind:             EventBidAccepted,
		ListingID:        uuid.New(),
		SellerID:         seller,
		BidderID:         bidder,
		PreviousLeaderID: &previous,
		Amount:           decimal.NewFromInt(20),
	})

	if len(sink.created) != 1 || sink.created[0].RecipientID != previous {
		t.Fatalf("expected outbid notification to survive the seller failure, got %+v", sink.created)
	}
}
