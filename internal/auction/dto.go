package auction

import (
	"time"

	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
)

// BidOutcomeView is the response to a bid. Rejections carry a reason.
type BidOutcomeView struct {
	Accepted bool                     `json:"accepted"`
	Reason   enums.BidRejectionReason `json:"reason,omitempty"`
	Listing  listings.ListingView     `json:"listing"`
	Bid      *listings.BidView        `json:"bid,omitempty"`
}

// TransitionView is the response to a completion request.
type TransitionView struct {
	Outcome TransitionOutcome    `json:"outcome"`
	Listing listings.ListingView `json:"listing"`
}

// ConfirmView is the response to a confirmation.
type ConfirmView struct {
	Role            enums.ParticipantRole `json:"role"`
	Sold            bool                  `json:"sold"`
	SellerConfirmed bool                  `json:"seller_confirmed"`
	WinnerConfirmed bool                  `json:"winner_confirmed"`
	Listing         listings.ListingView  `json:"listing"`
}

func NewBidOutcomeView(r LedgerResult, now time.Time) BidOutcomeView {
	view := BidOutcomeView{
		Accepted: r.Accepted,
		Reason:   r.Reason,
		Listing:  listings.NewListingView(r.Listing, now),
	}
	if r.Bid != nil {
		bid := listings.NewBidView(*r.Bid)
		view.Bid = &bid
	}
	return view
}

func NewTransitionView(r TransitionResult, now time.Time) TransitionView {
	return TransitionView{Outcome: r.Outcome, Listing: listings.NewListingView(r.Listing, now)}
}

func NewConfirmView(r ConfirmResult, now time.Time) ConfirmView {
	return ConfirmView{
		Role:            r.Role,
		Sold:            r.Sold,
		SellerConfirmed: r.SellerConfirmed,
		WinnerConfirmed: r.WinnerConfirmed,
		Listing:         listings.NewListingView(r.Listing, now),
	}
}
