package models

const (
	MilestoneCategoryPickup    = "PICKUP"
	MilestoneCategoryDeparture = "DEPARTURE"
	MilestoneCategoryTransit   = "TRANSIT"
	MilestoneCategoryArrival   = "ARRIVAL"
	MilestoneCategoryCustoms   = "CUSTOMS"
	MilestoneCategoryDelivery  = "DELIVERY"
)

// Milestone is read-only reference data describing a significant checkpoint
// in the logistics journey. The core never writes to this catalog at
// runtime; rows are seeded by the schema migration (see
// internal/storage/pgshipment/schema.go).
type Milestone struct {
	Code        string
	Name        string
	Category    string
	Sequence    int32
	Criticality bool

	ExpectedDurationMinutes int32
	SLAThresholdMinutes     int32
}
