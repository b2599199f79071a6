// Package source defines the adapter boundary: one operation, Fetch,
// normalizing an upstream payload into canonical events.
package source

import (
	"context"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

// Target is the minimal shipment context an adapter needs to fetch data:
// not the full Shipment row, so adapters can't accidentally depend on
// derived fields they shouldn't read.
type Target struct {
	ShipmentID   uint64
	AWBNumber    string
	FlightNumber string
	FlightDate   *time.Time
}

// Client is satisfied by every source adapter: Industry feed, Manual, and
// the Carrier/Customs stubs.
type Client interface {
	Fetch(ctx context.Context, target Target) ([]*models.Event, error)
}
