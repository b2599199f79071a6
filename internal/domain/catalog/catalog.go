// Package catalog holds the canonical event-code vocabulary: the
// code-to-status mapping used by state derivation and the milestone
// reference data seeded into storage. It performs no I/O; it is a small
// lookup table, not a store.
package catalog

import "github.com/aerocargo/shiptrack/internal/models"

// StatusNone means the event code does not drive status derivation at all
// (e.g. a pure location ping with no status implication).
const StatusNone = ""

// CodeStatus maps a canonical event code to the status it drives, or to
// StatusNone.
//
// CANCELLED is deliberately not a key here: that status is produced only
// by administrative intervention, never from tracking events; the path
// is ingestion.Service.CancelShipment, not Apply.
var CodeStatus = map[string]string{
	"SHIPMENT_CREATED":   models.ShipmentStatusCreated,
	"BOOKING_CONFIRMED":  models.ShipmentStatusBooked,
	"CARGO_COLLECTED":    models.ShipmentStatusBooked,
	"MANIFEST_FILED":     models.ShipmentStatusManifested,
	"FLIGHT_DEPARTED":    models.ShipmentStatusDeparted,
	"IN_TRANSIT":         models.ShipmentStatusInTransit,
	"FLIGHT_ARRIVED":     models.ShipmentStatusArrived,
	"CUSTOMS_HOLD":       models.ShipmentStatusCustomsClearance,
	"CUSTOMS_CLEARED":    models.ShipmentStatusCustomsClearance,
	"OUT_FOR_DELIVERY":   models.ShipmentStatusOutForDelivery,
	"DELIVERED":          models.ShipmentStatusDelivered,
	"SHIPMENT_ON_HOLD":   models.ShipmentStatusOnHold,
	"EXCEPTION_REPORTED": models.ShipmentStatusException,
	"LOCATION_PING":      StatusNone,
}

// StatusFor returns the status an event code drives, and whether the code
// participates in derivation at all.
func StatusFor(code string) (status string, participates bool) {
	s, ok := CodeStatus[code]
	if !ok || s == StatusNone {
		return "", false
	}
	return s, true
}

// MilestoneCodes marks which event codes are milestones per the catalog,
// independent of the status they drive. SHIPMENT_CREATED counts as a
// milestone: it is the first checkpoint of the journey.
var MilestoneCodes = map[string]bool{
	"SHIPMENT_CREATED":  true,
	"BOOKING_CONFIRMED": true,
	"CARGO_COLLECTED":   true,
	"FLIGHT_DEPARTED":   true,
	"FLIGHT_ARRIVED":    true,
	"CUSTOMS_CLEARED":   true,
	"OUT_FOR_DELIVERY":  true,
	"DELIVERED":         true,
}

// ExceptionCodes marks which event codes are exceptions.
var ExceptionCodes = map[string]bool{
	"CUSTOMS_HOLD":       true,
	"SHIPMENT_ON_HOLD":   true,
	"EXCEPTION_REPORTED": true,
}

// Seed is the static milestone reference data loaded into storage at
// schema-migration time (internal/storage/pgshipment/schema.go). The
// pipeline never hard-codes this table; it reads from the store.
var Seed = []models.Milestone{
	{Code: "SHIPMENT_CREATED", Name: "Shipment created", Category: models.MilestoneCategoryPickup, Sequence: 0, Criticality: false, ExpectedDurationMinutes: 0, SLAThresholdMinutes: 0},
	{Code: "CARGO_COLLECTED", Name: "Cargo collected", Category: models.MilestoneCategoryPickup, Sequence: 1, Criticality: false, ExpectedDurationMinutes: 60, SLAThresholdMinutes: 180},
	{Code: "FLIGHT_DEPARTED", Name: "Flight departed", Category: models.MilestoneCategoryDeparture, Sequence: 2, Criticality: true, ExpectedDurationMinutes: 0, SLAThresholdMinutes: 60},
	{Code: "FLIGHT_ARRIVED", Name: "Flight arrived", Category: models.MilestoneCategoryArrival, Sequence: 3, Criticality: true, ExpectedDurationMinutes: 600, SLAThresholdMinutes: 720},
	{Code: "CUSTOMS_CLEARED", Name: "Customs cleared", Category: models.MilestoneCategoryCustoms, Sequence: 4, Criticality: true, ExpectedDurationMinutes: 240, SLAThresholdMinutes: 480},
	{Code: "OUT_FOR_DELIVERY", Name: "Out for delivery", Category: models.MilestoneCategoryDelivery, Sequence: 5, Criticality: false, ExpectedDurationMinutes: 120, SLAThresholdMinutes: 240},
	{Code: "DELIVERED", Name: "Delivered", Category: models.MilestoneCategoryDelivery, Sequence: 6, Criticality: true, ExpectedDurationMinutes: 0, SLAThresholdMinutes: 0},
}

// EstimatedDurationMinutes sums the expected duration of every milestone at
// or after the given sequence, used to compute estimated_delivery_date on
// demand rather than maintaining it incrementally.
func EstimatedDurationMinutes(fromSequence int32) int32 {
	var total int32
	for _, m := range Seed {
		if m.Sequence >= fromSequence {
			total += m.ExpectedDurationMinutes
		}
	}
	return total
}

// SequenceFor returns the catalog sequence number for a milestone code, or
// -1 if the code is not a cataloged milestone.
func SequenceFor(code string) int32 {
	for _, m := range Seed {
		if m.Code == code {
			return m.Sequence
		}
	}
	return -1
}
