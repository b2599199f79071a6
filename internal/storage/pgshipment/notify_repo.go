package pgshipment

import (
	"context"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/pkg/errors"
)

// CreateNotificationJob is idempotent on (event_id, subscription_id): the
// post-commit emit step and the sweeper may both try to create the same
// job, so a conflict just returns the existing row.
func (s *Storage) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO notification_jobs (event_id, shipment_id, subscription_id, method, endpoint, status)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (event_id, subscription_id) DO UPDATE SET method = EXCLUDED.method
RETURNING id
`, job.EventID, job.ShipmentID, job.SubscriptionID, job.Method, job.Endpoint, models.NotificationJobStatusPending).
		Scan(&id)
	if err != nil {
		return nil, apperr.NewStore("create notification job", err)
	}
	job.ID = id
	job.Status = models.NotificationJobStatusPending
	return &job, nil
}

// ClaimPendingJobs selects due jobs and locks them for the caller, the same
// FOR UPDATE SKIP LOCKED idiom used for ClaimDueShipments, so multiple
// dispatcher instances can run concurrently without double-sending.
func (s *Storage) ClaimPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, event_id, shipment_id, subscription_id, method, endpoint, attempts, status, last_error
FROM notification_jobs
WHERE status = $1 AND next_attempt_at <= $2
ORDER BY next_attempt_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, models.NotificationJobStatusPending, now.UTC(), limit)
	if err != nil {
		return nil, apperr.NewStore("claim pending jobs", err)
	}
	defer rows.Close()

	var out []*models.NotificationJob
	for rows.Next() {
		var j models.NotificationJob
		if err := rows.Scan(&j.ID, &j.EventID, &j.ShipmentID, &j.SubscriptionID, &j.Method, &j.Endpoint, &j.Attempts, &j.Status, &j.LastError); err != nil {
			return nil, apperr.NewStore("scan pending job", err)
		}
		out = append(out, &j)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// MarkJobSent records a successful at-least-once dispatch.
func (s *Storage) MarkJobSent(ctx context.Context, jobID uint64) error {
	_, err := s.db.Exec(ctx, `
UPDATE notification_jobs SET status = $2, updated_at = now() WHERE id = $1
`, jobID, models.NotificationJobStatusSent)
	if err != nil {
		return apperr.NewStore("mark job sent", err)
	}
	return nil
}

// MarkJobRetry records a transient failure and schedules the next
// attempt; the caller (internal/services/notify) computes nextAttemptAt
// from its backoff policy and decides when attempts have been exhausted.
func (s *Storage) MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE notification_jobs
SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = now()
WHERE id = $1
`, jobID, lastError, nextAttemptAt.UTC())
	if err != nil {
		return apperr.NewStore("mark job retry", err)
	}
	return nil
}

func (s *Storage) MarkJobFailed(ctx context.Context, jobID uint64, lastError string) error {
	_, err := s.db.Exec(ctx, `
UPDATE notification_jobs SET status = $2, last_error = $3, updated_at = now() WHERE id = $1
`, jobID, models.NotificationJobStatusFailed, lastError)
	if err != nil {
		return apperr.NewStore("mark job failed", err)
	}
	return nil
}

func (s *Storage) MarkEventNotified(ctx context.Context, eventID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE events SET notification_sent = true WHERE id = $1`, eventID)
	if err != nil {
		return apperr.NewStore("mark event notified", err)
	}
	return nil
}

// EventForSweep is the minimal projection the sweeper needs to recreate
// missing notification jobs.
type EventForSweep struct {
	Event      *models.Event
	ShipmentID uint64
}

// UnnotifiedEvents scans for events that have no completed delivery
// record, so the sweeper can recover from post-commit-emit losses. An
// event counts as needing a sweep if notification_sent is still false.
func (s *Storage) UnnotifiedEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := s.db.Query(ctx, eventSelectCols+`WHERE notification_sent = false ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, apperr.NewStore("unnotified events", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.NewStore("scan unnotified event", err)
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

// StalledJobs finds PENDING jobs whose updated_at is older than olderThan,
// so the original dispatcher likely died mid-attempt; the sweeper resets
// them to fire immediately.
func (s *Storage) StalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.NotificationJob, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx, `
SELECT id, event_id, shipment_id, subscription_id, method, endpoint, attempts, status, last_error
FROM notification_jobs
WHERE status = $1 AND updated_at < $2
LIMIT $3
`, models.NotificationJobStatusPending, cutoff, limit)
	if err != nil {
		return nil, apperr.NewStore("stalled jobs", err)
	}
	defer rows.Close()

	var out []*models.NotificationJob
	for rows.Next() {
		var j models.NotificationJob
		if err := rows.Scan(&j.ID, &j.EventID, &j.ShipmentID, &j.SubscriptionID, &j.Method, &j.Endpoint, &j.Attempts, &j.Status, &j.LastError); err != nil {
			return nil, apperr.NewStore("scan stalled job", err)
		}
		out = append(out, &j)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}
