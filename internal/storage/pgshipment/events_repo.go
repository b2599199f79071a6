package pgshipment

import (
	"context"
	"strconv"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/domain/catalog"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ApplyEvent runs the whole ingestion step inside one transaction:
// existence/eligibility check, window-based dedup with cross-source
// precedence, event insert, and state rederivation. The unique index
// backs up the window scan for exact duplicates racing in from another
// process.
//
// allowDisabled lets manual applies through even when tracking_enabled is
// false; adapter-sourced applies are rejected in that case.
func (s *Storage) ApplyEvent(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var trackingEnabled bool
	var currentLocation string
	err = tx.QueryRow(ctx, `SELECT tracking_enabled, current_location FROM shipments WHERE id = $1 FOR UPDATE`, shipmentID).
		Scan(&trackingEnabled, &currentLocation)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OutcomeRejected, nil, apperr.NewNotFound("shipment", "")
	}
	if err != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("lock shipment", err)
	}
	if !allowDisabled && !trackingEnabled {
		return models.OutcomeRejected, nil, apperr.NewValidation("tracking_enabled", "DISABLED")
	}

	candidatePriority, err := s.sourcePriority(ctx, tx, candidate.SourceID)
	if err != nil {
		return models.OutcomeRejected, nil, err
	}

	windowStart := candidate.EventDatetime.Add(-models.DedupWindow)
	windowEnd := candidate.EventDatetime.Add(models.DedupWindow)

	rows, err := tx.Query(ctx, `
SELECT external_id, source_id, event_datetime
FROM events
WHERE shipment_id = $1 AND code = $2 AND event_datetime > $3 AND event_datetime < $4
`, shipmentID, candidate.Code, windowStart, windowEnd)
	if err != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("select dedup window", err)
	}
	type existingRow struct {
		externalID string
		sourceID   uint64
		eventTime  time.Time
	}
	var existing []existingRow
	for rows.Next() {
		var r existingRow
		if err := rows.Scan(&r.externalID, &r.sourceID, &r.eventTime); err != nil {
			rows.Close()
			return models.OutcomeRejected, nil, apperr.NewStore("scan dedup row", err)
		}
		existing = append(existing, r)
	}
	rows.Close()
	if rows.Err() != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("rows", rows.Err())
	}

	for _, r := range existing {
		if candidate.IsDuplicateOf(&models.Event{Code: candidate.Code, ExternalID: r.externalID, EventDatetime: r.eventTime}) {
			return models.OutcomeDuplicate, nil, nil
		}
		// Cross-source precedence: a lower-priority source's
		// event in the same code+time bucket is dropped as a duplicate of
		// a higher-or-equal precedence source's event, even when the
		// external id doesn't line up (e.g. one source supplies one, the
		// other doesn't).
		existingPriority, err := s.sourcePriority(ctx, tx, r.sourceID)
		if err != nil {
			return models.OutcomeRejected, nil, err
		}
		if existingPriority <= candidatePriority {
			return models.OutcomeDuplicate, nil, nil
		}
	}

	now := time.Now().UTC()
	var newID uint64
	err = tx.QueryRow(ctx, `
INSERT INTO events (
  shipment_id, code, description, category,
  location_name, location_country, location_city, airport_code, latitude, longitude,
  event_datetime, original_tz,
  is_milestone, is_exception, is_critical, severity,
  source_id, external_id, reference,
  temperature_celsius, humidity_percent,
  additional_info, customer_visible, processed, notification_sent,
  created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
ON CONFLICT (shipment_id, code, event_datetime, external_id) DO NOTHING
RETURNING id
`,
		shipmentID, candidate.Code, candidate.Description, candidate.Category,
		candidate.Location.Name, candidate.Location.Country, candidate.Location.City, candidate.Location.AirportCode, candidate.Location.Latitude, candidate.Location.Longitude,
		candidate.EventDatetime.UTC(), candidate.OriginalTZ,
		candidate.IsMilestone, candidate.IsException, candidate.IsCritical, orDefault(candidate.Severity, models.SeverityInfo),
		candidate.SourceID, candidate.ExternalID, candidate.Reference,
		candidate.TemperatureCelsius, candidate.HumidityPercent,
		candidate.AdditionalInfo, candidate.CustomerVisible, true, false,
		now,
	).Scan(&newID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The unique index caught an exact duplicate the window scan
		// missed (e.g. a concurrent Apply from another process).
		return models.OutcomeDuplicate, nil, nil
	}
	if err != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("insert event", err)
	}
	candidate.ID = newID
	candidate.ShipmentID = shipmentID
	candidate.CreatedAt = now

	if err := s.deriveAndUpdate(ctx, tx, shipmentID, currentLocation); err != nil {
		return models.OutcomeRejected, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.OutcomeRejected, nil, apperr.NewStore("commit tx", err)
	}
	return models.OutcomeCreated, candidate, nil
}

// deriveAndUpdate recomputes current_status/current_location/delivery_date
// from the full persisted event history and writes them back, all inside
// the caller's transaction; this is what makes Apply tolerant to
// out-of-order events: the winner is picked fresh from everything on
// file, not incrementally from the last Apply.
func (s *Storage) deriveAndUpdate(ctx context.Context, tx pgx.Tx, shipmentID uint64, previousLocation string) error {
	rows, err := tx.Query(ctx, `
SELECT code, location_name, event_datetime, created_at
FROM events
WHERE shipment_id = $1
`, shipmentID)
	if err != nil {
		return apperr.NewStore("select events for derivation", err)
	}
	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		if err := rows.Scan(&e.Code, &e.Location.Name, &e.EventDatetime, &e.CreatedAt); err != nil {
			rows.Close()
			return apperr.NewStore("scan event for derivation", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if rows.Err() != nil {
		return apperr.NewStore("rows", rows.Err())
	}

	derived := catalog.DeriveState(events, previousLocation)
	if derived.Status == "" {
		return nil
	}

	_, err = tx.Exec(ctx, `
UPDATE shipments
SET current_status = $2, current_location = $3, delivery_date = $4, updated_at = now()
WHERE id = $1
`, shipmentID, derived.Status, derived.Location, derived.DeliveryDate)
	if err != nil {
		return apperr.NewStore("update derived shipment state", err)
	}
	return nil
}

func (s *Storage) sourcePriority(ctx context.Context, tx pgx.Tx, sourceID uint64) (int32, error) {
	var priority int32
	err := tx.QueryRow(ctx, `SELECT priority FROM sources WHERE id = $1`, sourceID).Scan(&priority)
	if err != nil {
		return 0, apperr.NewStore("lookup source priority", err)
	}
	return priority, nil
}

type EventFilter struct {
	Category            string
	MilestoneOnly       bool
	ExceptionOnly       bool
	CustomerVisibleOnly bool
}

func (s *Storage) ListEvents(ctx context.Context, shipmentID uint64, filter EventFilter, limit, offset int) ([]*models.Event, error) {
	limit = clampLimit(limit, 1000)
	if offset < 0 {
		offset = 0
	}

	q := eventSelectCols + `WHERE shipment_id = $1`
	args := []any{shipmentID}
	n := 2
	if filter.Category != "" {
		q += " AND category = $" + strconv.Itoa(n)
		args = append(args, filter.Category)
		n++
	}
	if filter.MilestoneOnly {
		q += " AND is_milestone = true"
	}
	if filter.ExceptionOnly {
		q += " AND is_exception = true"
	}
	if filter.CustomerVisibleOnly {
		q += " AND customer_visible = true"
	}
	q += " ORDER BY event_datetime DESC, created_at DESC LIMIT $" + strconv.Itoa(n) + " OFFSET $" + strconv.Itoa(n+1)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.NewStore("list events", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.NewStore("scan event", err)
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// GetEvent loads a single event by id, used by the notification dispatcher
// to render the payload for a claimed job.
func (s *Storage) GetEvent(ctx context.Context, id uint64) (*models.Event, error) {
	row := s.db.QueryRow(ctx, eventSelectCols+`WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("event", strconv.FormatUint(id, 10))
	}
	if err != nil {
		return nil, apperr.NewStore("get event", err)
	}
	return e, nil
}

func (s *Storage) GetByExternalID(ctx context.Context, externalID string) ([]*models.Event, error) {
	if externalID == "" {
		return nil, apperr.NewValidation("external_id", "required")
	}
	rows, err := s.db.Query(ctx, eventSelectCols+`WHERE external_id = $1 ORDER BY event_datetime DESC`, externalID)
	if err != nil {
		return nil, apperr.NewStore("get by external id", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.NewStore("scan event", err)
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

type EventStats struct {
	Total      int64
	Milestones int64
	Exceptions int64
	Critical   int64
}

func (s *Storage) Stats(ctx context.Context, from, to time.Time) (EventStats, error) {
	var st EventStats
	err := s.db.QueryRow(ctx, `
SELECT
  count(*),
  count(*) FILTER (WHERE is_milestone),
  count(*) FILTER (WHERE is_exception),
  count(*) FILTER (WHERE is_critical)
FROM events
WHERE event_datetime >= $1 AND event_datetime < $2
`, from.UTC(), to.UTC()).Scan(&st.Total, &st.Milestones, &st.Exceptions, &st.Critical)
	if err != nil {
		return EventStats{}, apperr.NewStore("event stats", err)
	}
	return st, nil
}

const eventSelectCols = `
SELECT
  id, shipment_id, code, description, category,
  location_name, location_country, location_city, airport_code, latitude, longitude,
  event_datetime, original_tz,
  is_milestone, is_exception, is_critical, severity,
  source_id, external_id, reference,
  temperature_celsius, humidity_percent,
  additional_info, customer_visible, processed, notification_sent,
  created_at
FROM events
`

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	if err := row.Scan(
		&e.ID, &e.ShipmentID, &e.Code, &e.Description, &e.Category,
		&e.Location.Name, &e.Location.Country, &e.Location.City, &e.Location.AirportCode, &e.Location.Latitude, &e.Location.Longitude,
		&e.EventDatetime, &e.OriginalTZ,
		&e.IsMilestone, &e.IsException, &e.IsCritical, &e.Severity,
		&e.SourceID, &e.ExternalID, &e.Reference,
		&e.TemperatureCelsius, &e.HumidityPercent,
		&e.AdditionalInfo, &e.CustomerVisible, &e.Processed, &e.NotificationSent,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
