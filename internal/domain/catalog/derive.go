package catalog

import (
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

// Derived is the subset of shipment fields computed from the event stream.
type Derived struct {
	Status       string
	Location     string
	DeliveryDate *time.Time
}

// DeriveState implements the status derivation rule: current_status is the
// status of the event with the greatest (event_datetime, created_at) whose
// mapping is not NONE; location is retained from that same event when
// non-empty, otherwise the previous non-empty value; delivery_date is set
// iff the winning event maps to DELIVERED. events need not be sorted;
// the function only picks a winner by the lexicographic order, so
// out-of-order Apply calls always converge to the same result regardless
// of call order.
func DeriveState(events []*models.Event, previousLocation string) Derived {
	var winner *models.Event
	for _, e := range events {
		if _, ok := StatusFor(e.Code); !ok {
			continue
		}
		if winner == nil || isLater(e, winner) {
			winner = e
		}
	}

	d := Derived{Location: previousLocation}
	if winner == nil {
		return d
	}

	status, _ := StatusFor(winner.Code)
	d.Status = status
	if winner.Location.Name != "" {
		d.Location = winner.Location.Name
	}
	if status == models.ShipmentStatusDelivered {
		t := winner.EventDatetime
		d.DeliveryDate = &t
	}
	return d
}

// isLater reports whether a wins over b under the (event_datetime,
// created_at) lexicographic order.
func isLater(a, b *models.Event) bool {
	if !a.EventDatetime.Equal(b.EventDatetime) {
		return a.EventDatetime.After(b.EventDatetime)
	}
	return a.CreatedAt.After(b.CreatedAt)
}
