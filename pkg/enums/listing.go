package enums

// PricingMode maps to the pricing_mode enum in Postgres.
type PricingMode string

const (
	PricingModeFixedPrice PricingMode = "fixed_price"
	PricingModeAuction    PricingMode = "auction"
)

func (m PricingMode) String() string { return string(m) }

func (m PricingMode) IsValid() bool {
	_, err := Parse(string(m), PricingModeFixedPrice, PricingModeAuction)
	return err == nil
}

// ListingStatus maps to the listing_status enum in Postgres. Auction expiry
// is derived from ends_at and never stored.
type ListingStatus string

const (
	ListingStatusDraft  ListingStatus = "draft"
	ListingStatusActive ListingStatus = "active"
	ListingStatusSold   ListingStatus = "sold"
)

func (s ListingStatus) String() string { return string(s) }

func (s ListingStatus) IsValid() bool {
	_, err := Parse(string(s), ListingStatusDraft, ListingStatusActive, ListingStatusSold)
	return err == nil
}

// ParticipantRole identifies which side of a completed sale a caller acts as.
type ParticipantRole string

const (
	ParticipantRoleSeller ParticipantRole = "seller"
	ParticipantRoleWinner ParticipantRole = "winner"
)

func (r ParticipantRole) String() string { return string(r) }

func (r ParticipantRole) IsValid() bool {
	_, err := Parse(string(r), ParticipantRoleSeller, ParticipantRoleWinner)
	return err == nil
}

// Counterparty returns the opposite role.
func (r ParticipantRole) Counterparty() ParticipantRole {
	if r == ParticipantRoleSeller {
		return ParticipantRoleWinner
	}
	return ParticipantRoleSeller
}
