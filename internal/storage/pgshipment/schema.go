package pgshipment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS sources (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  priority INT NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS milestone_catalog (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT NOT NULL,
  sequence INT NOT NULL,
  criticality BOOLEAN NOT NULL DEFAULT false,
  expected_duration_minutes INT NOT NULL DEFAULT 0,
  sla_threshold_minutes INT NOT NULL DEFAULT 0
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  awb_number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,

  origin_airport TEXT NOT NULL,
  destination_airport TEXT NOT NULL,
  route_airports TEXT NOT NULL DEFAULT '',

  flight_number TEXT NOT NULL DEFAULT '',
  flight_date TIMESTAMPTZ NULL,

  pieces INT NOT NULL,
  weight_kg DOUBLE PRECISION NOT NULL,
  volume_cbm DOUBLE PRECISION NULL,
  commodity TEXT NOT NULL DEFAULT '',
  declared_value DOUBLE PRECISION NOT NULL DEFAULT 0,
  declared_currency TEXT NOT NULL DEFAULT '',

  current_status TEXT NOT NULL DEFAULT 'CREATED',
  current_location TEXT NOT NULL DEFAULT '',

  pickup_date TIMESTAMPTZ NULL,
  delivery_date TIMESTAMPTZ NULL,
  estimated_delivery_date TIMESTAMPTZ NULL,

  tracking_enabled BOOLEAN NOT NULL DEFAULT true,
  tracking_frequency_minutes INT NOT NULL DEFAULT 60,
  last_tracked_at TIMESTAMPTZ NULL,

  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,

  CHECK (pieces > 0),
  CHECK (weight_kg > 0)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_due ON shipments(tracking_enabled, current_status, last_tracked_at)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_customer ON shipments(customer_id)`,
		`
CREATE TABLE IF NOT EXISTS events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,

  code TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL,

  location_name TEXT NOT NULL DEFAULT '',
  location_country TEXT NOT NULL DEFAULT '',
  location_city TEXT NOT NULL DEFAULT '',
  airport_code TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION NULL,
  longitude DOUBLE PRECISION NULL,

  event_datetime TIMESTAMPTZ NOT NULL,
  original_tz TEXT NOT NULL DEFAULT '',

  is_milestone BOOLEAN NOT NULL DEFAULT false,
  is_exception BOOLEAN NOT NULL DEFAULT false,
  is_critical BOOLEAN NOT NULL DEFAULT false,
  severity TEXT NOT NULL DEFAULT 'INFO',

  source_id BIGINT NOT NULL REFERENCES sources(id),
  external_id TEXT NOT NULL DEFAULT '',
  reference TEXT NOT NULL DEFAULT '',

  temperature_celsius DOUBLE PRECISION NULL,
  humidity_percent DOUBLE PRECISION NULL,

  additional_info TEXT NOT NULL DEFAULT '',

  customer_visible BOOLEAN NOT NULL DEFAULT true,
  processed BOOLEAN NOT NULL DEFAULT true,
  notification_sent BOOLEAN NOT NULL DEFAULT false,

  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_events_shipment_time ON events(shipment_id, event_datetime DESC, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_external_id ON events(external_id) WHERE external_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_events_notification_sweep ON events(notification_sent) WHERE notification_sent = false`,
		// The time-window dedup check in events_repo.go can't be expressed
		// as a plain unique index; this catches the exact-match case when
		// two processes race past the window scan.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_events_exact_dedup ON events(shipment_id, code, event_datetime, external_id)`,
		`
CREATE TABLE IF NOT EXISTS subscriptions (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  subscriber_id TEXT NOT NULL,
  method TEXT NOT NULL,
  endpoint TEXT NOT NULL DEFAULT '',

  filter_milestone BOOLEAN NOT NULL DEFAULT false,
  filter_exception BOOLEAN NOT NULL DEFAULT false,
  filter_location_updates BOOLEAN NOT NULL DEFAULT false,
  filter_all_events BOOLEAN NOT NULL DEFAULT false,

  active BOOLEAN NOT NULL DEFAULT true,

  UNIQUE (shipment_id, subscriber_id, method)
)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_shipment_active ON subscriptions(shipment_id) WHERE active = true`,
		`
CREATE TABLE IF NOT EXISTS notification_jobs (
  id BIGSERIAL PRIMARY KEY,
  event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  subscription_id BIGINT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
  method TEXT NOT NULL,
  endpoint TEXT NOT NULL DEFAULT '',

  attempts INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'PENDING',
  last_error TEXT NOT NULL DEFAULT '',
  next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  UNIQUE (event_id, subscription_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_jobs_pending ON notification_jobs(status, next_attempt_at) WHERE status = 'PENDING'`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}

	return s.seedReferenceData(ctx)
}

// seedReferenceData inserts the milestone catalog and default sources if
// they are not present yet. The pipeline reads source priority from this
// table; it is never a hard-coded map in Go code.
func (s *Storage) seedReferenceData(ctx context.Context) error {
	milestones := []struct {
		code, name, category  string
		sequence              int
		criticality           bool
		expectedDuration, sla int
	}{
		{"SHIPMENT_CREATED", "Shipment created", "PICKUP", 0, false, 0, 0},
		{"CARGO_COLLECTED", "Cargo collected", "PICKUP", 1, false, 60, 180},
		{"FLIGHT_DEPARTED", "Flight departed", "DEPARTURE", 2, true, 0, 60},
		{"FLIGHT_ARRIVED", "Flight arrived", "ARRIVAL", 3, true, 600, 720},
		{"CUSTOMS_CLEARED", "Customs cleared", "CUSTOMS", 4, true, 240, 480},
		{"OUT_FOR_DELIVERY", "Out for delivery", "DELIVERY", 5, false, 120, 240},
		{"DELIVERED", "Delivered", "DELIVERY", 6, true, 0, 0},
	}
	for _, m := range milestones {
		_, err := s.db.Exec(ctx, `
INSERT INTO milestone_catalog (code, name, category, sequence, criticality, expected_duration_minutes, sla_threshold_minutes)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (code) DO NOTHING
`, m.code, m.name, m.category, m.sequence, m.criticality, m.expectedDuration, m.sla)
		if err != nil {
			return errors.Wrap(err, "seed milestone catalog")
		}
	}

	sources := []struct {
		name, typ string
		priority  int
	}{
		{"industry-feed", "INDUSTRY_FEED", 10},
		{"carrier-api", "CARRIER", 20},
		{"customs-api", "CUSTOMS", 20},
		{"ground-handler", "GROUND_HANDLER", 30},
		{"manual", "MANUAL", 1},
	}
	for _, src := range sources {
		_, err := s.db.Exec(ctx, `
INSERT INTO sources (name, type, priority)
VALUES ($1,$2,$3)
ON CONFLICT (name) DO NOTHING
`, src.name, src.typ, src.priority)
		if err != nil {
			return errors.Wrap(err, "seed sources")
		}
	}
	return nil
}
