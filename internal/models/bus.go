package models

// BusEvent is what the ingestion pipeline publishes to the subscription hub
// after a commit. It carries enough of the shipment
// snapshot that clients don't need a second round trip.
type BusEvent struct {
	ShipmentID uint64
	CustomerID string
	AWBNumber  string

	Event Event

	CurrentStatus         string
	CurrentLocation       string
	EstimatedDeliveryDate *string
}

// NotificationJob is a unit of work for the dispatcher: a triggering
// event matched against one subscription, with a delivery attempt counter.
type NotificationJob struct {
	ID             uint64
	EventID        uint64
	ShipmentID     uint64
	SubscriptionID uint64
	Method         string
	Endpoint       string

	Attempts int32
	Status   string // PENDING | SENT | FAILED

	LastError string
}

const (
	NotificationJobStatusPending = "PENDING"
	NotificationJobStatusSent    = "SENT"
	NotificationJobStatusFailed  = "FAILED"
)
