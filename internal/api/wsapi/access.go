package wsapi

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/aerocargo/shiptrack/internal/services/hub"
	"github.com/aerocargo/shiptrack/internal/services/ingestion"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
)

// ServiceAccess adapts ingestion.Service to the narrow interfaces wsapi
// and internal/services/hub need: hub.AccessChecker (customer-scoped
// subscribers may only join shipments they own), ShipmentResolver (AWB ->
// id for subscribe_shipment), a shared-secret TokenVerifier matching
// httpapi's own bearer-token stand-in, and wsapi.SnapshotBuilder (the
// Subscribe snapshot the push protocol emits on join).
type ServiceAccess struct {
	svc    *ingestion.Service
	secret string
}

func NewServiceAccess(svc *ingestion.Service, authSecret string) *ServiceAccess {
	return &ServiceAccess{svc: svc, secret: authSecret}
}

// OwnsShipment satisfies hub.AccessChecker. An empty customerID (no prior
// authenticate frame carrying one) owns nothing.
func (a *ServiceAccess) OwnsShipment(customerID string, shipmentID uint64) (bool, error) {
	if customerID == "" {
		return false, nil
	}
	sh, err := a.svc.GetShipment(context.Background(), shipmentID)
	if err != nil {
		return false, err
	}
	return sh.CustomerID == customerID, nil
}

// BuildSnapshot satisfies wsapi.SnapshotBuilder: current status, location,
// ETA, and recent events, reusing the same read operations the REST
// snapshot (httpapi.Server.snapshot) is built from.
func (a *ServiceAccess) BuildSnapshot(ctx context.Context, shipmentID uint64) (hub.Envelope, error) {
	sh, err := a.svc.GetShipment(ctx, shipmentID)
	if err != nil {
		return hub.Envelope{}, err
	}
	events, err := a.svc.ListEvents(ctx, shipmentID, pgshipment.EventFilter{}, 10, 0)
	if err != nil {
		return hub.Envelope{}, err
	}
	recent := make([]any, 0, len(events))
	for _, e := range events {
		recent = append(recent, e)
	}

	var eta *string
	if t, err := a.svc.EstimatedDeliveryDate(ctx, sh); err == nil && t != nil {
		str := t.Format(time.RFC3339)
		eta = &str
	}

	return hub.Envelope{Type: hub.TypeSnapshot, Data: hub.SnapshotPayload{
		ShipmentID:            sh.ID,
		AWBNumber:             sh.AWBNumber,
		CurrentStatus:         sh.CurrentStatus,
		CurrentLocation:       sh.CurrentLocation,
		EstimatedDeliveryDate: eta,
		RecentEvents:          recent,
	}}, nil
}

func (a *ServiceAccess) ResolveAWB(ctx context.Context, awb string) (uint64, error) {
	sh, err := a.svc.GetShipmentByAWB(ctx, awb)
	if err != nil {
		return 0, err
	}
	return sh.ID, nil
}

func (a *ServiceAccess) Verify(token string) bool {
	if a.secret == "" {
		return token != ""
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) == 1
}
