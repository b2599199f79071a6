package pgshipment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()
	freq := in.TrackingFrequencyMinutes
	if freq <= 0 {
		freq = 60
	}

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  awb_number, customer_id, origin_airport, destination_airport, route_airports,
  flight_number, flight_date, pieces, weight_kg, volume_cbm, commodity,
  declared_value, declared_currency, current_status, current_location,
  tracking_enabled, tracking_frequency_minutes, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
RETURNING id
`, in.AWBNumber, in.CustomerID, in.OriginAirport, in.DestinationAirport, strings.Join(in.RouteAirports, ","),
		in.FlightNumber, in.FlightDate, in.Pieces, in.WeightKG, in.VolumeCBM, in.Commodity,
		in.DeclaredValue, in.DeclaredCurrency, models.ShipmentStatusCreated, "",
		in.TrackingEnabled, freq, now,
	).Scan(&id)
	if err != nil {
		return nil, apperr.NewStore("create shipment", err)
	}

	return s.GetByID(ctx, id)
}

func (s *Storage) GetByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, shipmentSelectCols+`WHERE id = $1`, id)
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("shipment", strconv.FormatUint(id, 10))
	}
	if err != nil {
		return nil, apperr.NewStore("get shipment by id", err)
	}
	return sh, nil
}

func (s *Storage) GetByAWB(ctx context.Context, awb string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, shipmentSelectCols+`WHERE awb_number = $1`, awb)
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("shipment", awb)
	}
	if err != nil {
		return nil, apperr.NewStore("get shipment by awb", err)
	}
	return sh, nil
}

func (s *Storage) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Shipment, error) {
	limit = clampLimit(limit, 100)
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, shipmentSelectCols+`WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, apperr.NewStore("list shipments by customer", err)
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, apperr.NewStore("scan shipment", err)
		}
		out = append(out, sh)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// ClaimDueShipments selects the due-for-poll set and stamps
// last_tracked_at for the whole selected batch inside the same
// transaction, so a crash between claim and dispatch never leaves a
// shipment claimed-but-untouched forever. last_tracked_at is set once,
// to now, regardless of what happens to the fetches afterwards: a
// transient upstream failure does not accelerate the next poll, the
// shipment simply returns to the due set after its normal interval.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.NewStore("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, shipmentSelectCols+`
WHERE tracking_enabled = true
  AND current_status NOT IN ($1, $2)
  AND (last_tracked_at IS NULL OR now() - last_tracked_at >= make_interval(mins => tracking_frequency_minutes))
ORDER BY last_tracked_at ASC NULLS FIRST
LIMIT $3
FOR UPDATE SKIP LOCKED
`, models.ShipmentStatusDelivered, models.ShipmentStatusCancelled, limit)
	if err != nil {
		return nil, apperr.NewStore("select due shipments", err)
	}

	var picked []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			rows.Close()
			return nil, apperr.NewStore("scan due shipment", err)
		}
		picked = append(picked, sh)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, apperr.NewStore("rows", rows.Err())
	}

	for _, sh := range picked {
		if _, err := tx.Exec(ctx, `UPDATE shipments SET last_tracked_at = $2, updated_at = now() WHERE id = $1`, sh.ID, now.UTC()); err != nil {
			return nil, apperr.NewStore("lease shipment", err)
		}
		sh.LastTrackedAt = &now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.NewStore("commit tx", err)
	}
	return picked, nil
}

// SetCancelled marks the shipment CANCELLED and turns tracking off; the
// only path to this status is administrative intervention, never a
// tracking event.
func (s *Storage) SetCancelled(ctx context.Context, shipmentID uint64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE shipments SET current_status = $2, updated_at = $3, tracking_enabled = false WHERE id = $1
`, shipmentID, models.ShipmentStatusCancelled, at.UTC())
	if err != nil {
		return apperr.NewStore("cancel shipment", err)
	}
	return nil
}

const shipmentSelectCols = `
SELECT
  id, awb_number, customer_id, origin_airport, destination_airport, route_airports,
  flight_number, flight_date, pieces, weight_kg, volume_cbm, commodity,
  declared_value, declared_currency, current_status, current_location,
  pickup_date, delivery_date, estimated_delivery_date,
  tracking_enabled, tracking_frequency_minutes, last_tracked_at,
  created_at, updated_at
FROM shipments
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var sh models.Shipment
	var route string
	if err := row.Scan(
		&sh.ID, &sh.AWBNumber, &sh.CustomerID, &sh.OriginAirport, &sh.DestinationAirport, &route,
		&sh.FlightNumber, &sh.FlightDate, &sh.Pieces, &sh.WeightKG, &sh.VolumeCBM, &sh.Commodity,
		&sh.DeclaredValue, &sh.DeclaredCurrency, &sh.CurrentStatus, &sh.CurrentLocation,
		&sh.PickupDate, &sh.DeliveryDate, &sh.EstimatedDeliveryDate,
		&sh.TrackingEnabled, &sh.TrackingFrequencyMinutes, &sh.LastTrackedAt,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if route != "" {
		sh.RouteAirports = strings.Split(route, ",")
	}
	return &sh, nil
}

func clampLimit(limit, max int) int {
	if limit <= 0 {
		return 20
	}
	if limit > max {
		return max
	}
	return limit
}
