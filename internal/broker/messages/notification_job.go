package messages

// NotificationJob is a wire DTO for the notification-job topic. No code
// builds or reads it: the ingestion pipeline's post-commit emit step
// publishes models.NotificationJob to that topic, and the dispatcher finds
// jobs by polling the store, not by reading the topic.
type NotificationJob struct {
	EventID        uint64 `json:"event_id"`
	ShipmentID     uint64 `json:"shipment_id"`
	SubscriptionID uint64 `json:"subscription_id"`
	Method         string `json:"method"`
	Endpoint       string `json:"endpoint"`
}
