package enums

// BidRejectionReason explains why a bid was refused without an error.
type BidRejectionReason string

const (
	BidRejectionNotAuction    BidRejectionReason = "NOT_AUCTION"
	BidRejectionAuctionClosed BidRejectionReason = "AUCTION_CLOSED"
	BidRejectionBidTooLow     BidRejectionReason = "BID_TOO_LOW"
	BidRejectionAboveMaximum  BidRejectionReason = "ABOVE_MAXIMUM"
)

// BidRejectionReasons lists every BidRejectionReason.
var BidRejectionReasons = []BidRejectionReason{
	BidRejectionNotAuction,
	BidRejectionAuctionClosed,
	BidRejectionBidTooLow,
	BidRejectionAboveMaximum,
}

func (r BidRejectionReason) String() string { return string(r) }

func (r BidRejectionReason) IsValid() bool {
	_, err := Parse(string(r), BidRejectionReasons...)
	return err == nil
}

// RatingIneligibility explains why a participant may not rate a listing.
type RatingIneligibility string

const (
	RatingIneligibleNotSold        RatingIneligibility = "NOT_SOLD"
	RatingIneligibleNotParticipant RatingIneligibility = "NOT_PARTICIPANT"
	RatingIneligibleAlreadyRated   RatingIneligibility = "ALREADY_RATED"
	RatingIneligibleSelfWon        RatingIneligibility = "SELF_WON"
)

func (r RatingIneligibility) String() string { return string(r) }

// OutboxDLQErrorReason records why an outbox row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
