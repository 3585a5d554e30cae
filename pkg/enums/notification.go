package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeBidPlaced      NotificationType = "bid_placed"
	NotificationTypeOutbid         NotificationType = "outbid"
	NotificationTypeAuctionEnded   NotificationType = "auction_ended"
	NotificationTypeAuctionWon     NotificationType = "auction_won"
	NotificationTypeRatingReceived NotificationType = "rating_received"
)

func (n NotificationType) IsValid() bool {
	_, err := Parse(string(n),
		NotificationTypeBidPlaced,
		NotificationTypeOutbid,
		NotificationTypeAuctionEnded,
		NotificationTypeAuctionWon,
		NotificationTypeRatingReceived,
	)
	return err == nil
}
