package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateListing OutboxAggregateType = "listing"
	AggregateRating  OutboxAggregateType = "rating"
)

func (a OutboxAggregateType) IsValid() bool {
	_, err := Parse(string(a), AggregateListing, AggregateRating)
	return err == nil
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBidPlaced        OutboxEventType = "bid_placed"
	EventAuctionCompleted OutboxEventType = "auction_completed"
	EventListingConfirmed OutboxEventType = "listing_confirmed"
	EventListingSold      OutboxEventType = "listing_sold"
	EventRatingSubmitted  OutboxEventType = "rating_submitted"
)

// OutboxEventTypes lists every OutboxEventType in lifecycle order.
var OutboxEventTypes = []OutboxEventType{
	EventBidPlaced,
	EventAuctionCompleted,
	EventListingConfirmed,
	EventListingSold,
	EventRatingSubmitted,
}

func (e OutboxEventType) IsValid() bool {
	_, err := Parse(string(e), OutboxEventTypes...)
	return err == nil
}

// OncePerAggregate reports whether at most one event of this type may exist
// per aggregate. A unique index on outbox_events enforces the same set.
func (e OutboxEventType) OncePerAggregate() bool {
	switch e {
	case EventAuctionCompleted, EventListingSold, EventRatingSubmitted:
		return true
	}
	return false
}
