package models

import "time"

// Shipment statuses. Order here is not significant; derivation order comes
// from the event stream, not from this list.
const (
	ShipmentStatusCreated          = "CREATED"
	ShipmentStatusBooked           = "BOOKED"
	ShipmentStatusManifested       = "MANIFESTED"
	ShipmentStatusDeparted         = "DEPARTED"
	ShipmentStatusInTransit        = "IN_TRANSIT"
	ShipmentStatusArrived          = "ARRIVED"
	ShipmentStatusCustomsClearance = "CUSTOMS_CLEARANCE"
	ShipmentStatusOutForDelivery   = "OUT_FOR_DELIVERY"
	ShipmentStatusDelivered        = "DELIVERED"
	ShipmentStatusCancelled        = "CANCELLED"
	ShipmentStatusOnHold           = "ON_HOLD"
	ShipmentStatusException        = "EXCEPTION"
)

// QuiescentStatuses are terminal: once reached the poll scheduler must never
// select the shipment again.
var QuiescentStatuses = map[string]bool{
	ShipmentStatusDelivered: true,
	ShipmentStatusCancelled: true,
}

func IsQuiescent(status string) bool {
	return QuiescentStatuses[status]
}

type Shipment struct {
	ID         uint64
	AWBNumber  string
	CustomerID string

	OriginAirport      string
	DestinationAirport string
	RouteAirports      []string

	FlightNumber string
	FlightDate   *time.Time

	Pieces           int32
	WeightKG         float64
	VolumeCBM        *float64
	Commodity        string
	DeclaredValue    float64
	DeclaredCurrency string

	CurrentStatus   string
	CurrentLocation string

	PickupDate            *time.Time
	DeliveryDate          *time.Time
	EstimatedDeliveryDate *time.Time

	TrackingEnabled          bool
	TrackingFrequencyMinutes int32
	LastTrackedAt            *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShipmentCreateInput struct {
	AWBNumber          string
	CustomerID         string
	OriginAirport      string
	DestinationAirport string
	RouteAirports      []string
	FlightNumber       string
	FlightDate         *time.Time
	Pieces             int32
	WeightKG           float64
	VolumeCBM          *float64
	Commodity          string
	DeclaredValue      float64
	DeclaredCurrency   string

	TrackingEnabled          bool
	TrackingFrequencyMinutes int32
}
