package models

const (
	SubscriptionMethodEmail   = "EMAIL"
	SubscriptionMethodSMS     = "SMS"
	SubscriptionMethodPush    = "PUSH"
	SubscriptionMethodWebhook = "WEBHOOK"
)

// Subscription is unique by (ShipmentID, SubscriberID, Method).
type Subscription struct {
	ID           uint64
	ShipmentID   uint64
	SubscriberID string
	Method       string
	Endpoint     string

	FilterMilestone       bool
	FilterException       bool
	FilterLocationUpdates bool
	FilterAllEvents       bool

	Active bool
}

// Matches implements the subscription-matching rule: all_events, or
// milestone+is_milestone, or exception+is_exception, or
// location_updates+category=LOCATION_UPDATE.
func (s *Subscription) Matches(e *Event) bool {
	if !s.Active {
		return false
	}
	if s.FilterAllEvents {
		return true
	}
	if s.FilterMilestone && e.IsMilestone {
		return true
	}
	if s.FilterException && e.IsException {
		return true
	}
	if s.FilterLocationUpdates && e.Category == EventCategoryLocationUpdate {
		return true
	}
	return false
}
