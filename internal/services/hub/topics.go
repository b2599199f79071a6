// Package hub implements the in-process subscription/fan-out broker: two
// logical topics (shipment:{id}, customer:{id}), bounded per-client
// outbound queues with drop-oldest backpressure, and a critical-event
// side channel. Transport framing (websocket read/write loops) lives in
// internal/api/wsapi, not here; the hub only manages membership and
// queues already-built outbound messages.
package hub

import "fmt"

func ShipmentTopic(shipmentID uint64) string {
	return fmt.Sprintf("shipment:%d", shipmentID)
}

func CustomerTopic(customerID string) string {
	return fmt.Sprintf("customer:%s", customerID)
}

// Outbound message types.
const (
	TypeConnected              = "connected"
	TypeAuthenticated          = "authenticated"
	TypeAuthError              = "auth_error"
	TypeSubscribed             = "subscribed"
	TypeSubscriptionError      = "subscription_error"
	TypeTrackingEvent          = "tracking_event"
	TypeCriticalUpdate         = "critical_update"
	TypeCustomerTrackingUpdate = "customer_tracking_update"
	TypeBulkTrackingUpdate     = "bulk_tracking_update"
	TypeSnapshot               = "snapshot"
	TypeSystemNotification     = "system_notification"
	TypeServiceShutdown        = "service_shutdown"
	TypePong                   = "pong"
)

// Envelope is the wire shape every outbound push message shares: a type tag
// plus an arbitrary payload, so wsapi can marshal one envelope type
// regardless of which kind of message it is carrying.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ConnectedPayload struct {
	SessionID    string   `json:"session_id"`
	Capabilities []string `json:"capabilities"`
	ServerTime   string   `json:"server_time"`
}

type AuthenticatedPayload struct {
	SubscriberID string `json:"subscriber_id"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

type SubscribedPayload struct {
	ShipmentID uint64 `json:"shipment_id"`
	Topic      string `json:"topic"`
}

type TrackingEventPayload struct {
	ShipmentID       uint64 `json:"shipment_id"`
	AWBNumber        string `json:"awb"`
	Event            any    `json:"event"`
	ShipmentSnapshot any    `json:"shipment_snapshot"`
}

type CriticalUpdatePayload struct {
	TrackingEventPayload
	Notification NotificationPayload `json:"notification"`
}

type NotificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type"`
}

type CustomerTrackingUpdatePayload struct {
	CustomerID     string `json:"customer_id"`
	ShipmentUpdate any    `json:"shipmentUpdate"`
}

type BulkTrackingUpdatePayload struct {
	ShipmentID uint64 `json:"shipment_id"`
	Events     []any  `json:"events"`
}

// SnapshotPayload is the initial message Subscribe emits: current status,
// location, ETA, recent events.
type SnapshotPayload struct {
	ShipmentID            uint64  `json:"shipment_id"`
	AWBNumber             string  `json:"awb"`
	CurrentStatus         string  `json:"current_status"`
	CurrentLocation       string  `json:"current_location"`
	EstimatedDeliveryDate *string `json:"estimated_delivery_date,omitempty"`
	RecentEvents          []any   `json:"recent_events"`
}

type PongPayload struct {
	ServerTime string `json:"server_time"`
}
