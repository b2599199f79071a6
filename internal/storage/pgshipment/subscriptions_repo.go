package pgshipment

import (
	"context"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO subscriptions (
  shipment_id, subscriber_id, method, endpoint,
  filter_milestone, filter_exception, filter_location_updates, filter_all_events, active
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,true)
ON CONFLICT (shipment_id, subscriber_id, method)
DO UPDATE SET endpoint = EXCLUDED.endpoint,
  filter_milestone = EXCLUDED.filter_milestone,
  filter_exception = EXCLUDED.filter_exception,
  filter_location_updates = EXCLUDED.filter_location_updates,
  filter_all_events = EXCLUDED.filter_all_events,
  active = true
RETURNING id
`, sub.ShipmentID, sub.SubscriberID, sub.Method, sub.Endpoint,
		sub.FilterMilestone, sub.FilterException, sub.FilterLocationUpdates, sub.FilterAllEvents).
		Scan(&id)
	if err != nil {
		return nil, apperr.NewStore("create subscription", err)
	}
	sub.ID = id
	sub.Active = true
	return &sub, nil
}

// MatchingSubscriptions returns the active subscriptions for a shipment
// that match the given event. Filtering happens in SQL so the
// notification-job fan-out never loads subscriptions it won't use.
func (s *Storage) MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, subscriber_id, method, endpoint,
  filter_milestone, filter_exception, filter_location_updates, filter_all_events, active
FROM subscriptions
WHERE shipment_id = $1
  AND active = true
  AND (
    filter_all_events
    OR (filter_milestone AND $2)
    OR (filter_exception AND $3)
    OR (filter_location_updates AND $4)
  )
`, shipmentID, e.IsMilestone, e.IsException, e.Category == models.EventCategoryLocationUpdate)
	if err != nil {
		return nil, apperr.NewStore("matching subscriptions", err)
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.ShipmentID, &sub.SubscriberID, &sub.Method, &sub.Endpoint,
			&sub.FilterMilestone, &sub.FilterException, &sub.FilterLocationUpdates, &sub.FilterAllEvents, &sub.Active); err != nil {
			return nil, apperr.NewStore("scan subscription", err)
		}
		out = append(out, &sub)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

func (s *Storage) GetSubscription(ctx context.Context, id uint64) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.QueryRow(ctx, `
SELECT id, shipment_id, subscriber_id, method, endpoint,
  filter_milestone, filter_exception, filter_location_updates, filter_all_events, active
FROM subscriptions WHERE id = $1
`, id).Scan(&sub.ID, &sub.ShipmentID, &sub.SubscriberID, &sub.Method, &sub.Endpoint,
		&sub.FilterMilestone, &sub.FilterException, &sub.FilterLocationUpdates, &sub.FilterAllEvents, &sub.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("subscription", "")
	}
	if err != nil {
		return nil, apperr.NewStore("get subscription", err)
	}
	return &sub, nil
}

func (s *Storage) Unsubscribe(ctx context.Context, id uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE subscriptions SET active = false WHERE id = $1`, id)
	if err != nil {
		return apperr.NewStore("unsubscribe", err)
	}
	return nil
}
