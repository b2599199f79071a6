package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

// Backoff schedule: initial 2s, doubling, capped at 30s, up to 3 attempts
// total before a job is marked permanently failed.
const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
	maxAttempts    = 3
)

// Repository is the subset of pgshipment.Storage the dispatcher depends on.
type Repository interface {
	ClaimPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error)
	MarkJobSent(ctx context.Context, jobID uint64) error
	MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error
	MarkJobFailed(ctx context.Context, jobID uint64, lastError string) error
	MarkEventNotified(ctx context.Context, eventID uint64) error
}

// EventLoader fetches the triggering event a job refers to; notify depends
// on it rather than on pgshipment.Storage's full event surface.
type EventLoader interface {
	GetEvent(ctx context.Context, eventID uint64) (*models.Event, error)
}

type Dispatcher struct {
	repo      Repository
	events    EventLoader
	deliver   Deliverer
	pollEvery time.Duration
	batchSize int
}

func NewDispatcher(repo Repository, events EventLoader, deliver Deliverer, pollEvery time.Duration, batchSize int) *Dispatcher {
	if pollEvery <= 0 {
		pollEvery = 3 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{repo: repo, events: events, deliver: deliver, pollEvery: pollEvery, batchSize: batchSize}
}

// Run polls ClaimPendingJobs on a ticker until ctx is cancelled, dispatching
// each claimed job. The worker process runs it alongside Sweeper.Run.
func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.pollEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	jobs, err := d.repo.ClaimPendingJobs(ctx, time.Now().UTC(), d.batchSize)
	if err != nil {
		slog.Error("claim pending jobs", "error", err.Error())
		return
	}
	for _, job := range jobs {
		d.dispatch(ctx, job)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job *models.NotificationJob) {
	e, err := d.events.GetEvent(ctx, job.EventID)
	if err != nil {
		slog.Error("load triggering event", "job_id", job.ID, "event_id", job.EventID, "error", err.Error())
		if markErr := d.repo.MarkJobFailed(ctx, job.ID, err.Error()); markErr != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", markErr.Error())
		}
		return
	}

	payload, err := Render(e)
	if err != nil {
		_ = d.repo.MarkJobFailed(ctx, job.ID, err.Error())
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	result := d.deliver.Deliver(deliverCtx, job.Method, job.Endpoint, payload)
	cancel()

	switch result {
	case DeliveryOK:
		if err := d.repo.MarkJobSent(ctx, job.ID); err != nil {
			slog.Error("mark job sent", "job_id", job.ID, "error", err.Error())
			return
		}
		if err := d.repo.MarkEventNotified(ctx, job.EventID); err != nil {
			slog.Error("mark event notified", "event_id", job.EventID, "error", err.Error())
		}
	case DeliveryTransient:
		d.retryOrFail(ctx, job, "transient delivery failure")
	case DeliveryPermanent:
		slog.Error("permanent delivery failure", "job_id", job.ID, "method", job.Method)
		if err := d.repo.MarkJobFailed(ctx, job.ID, "permanent delivery failure"); err != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", err.Error())
		}
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, job *models.NotificationJob, reason string) {
	attempts := job.Attempts + 1
	if attempts >= maxAttempts {
		if err := d.repo.MarkJobFailed(ctx, job.ID, reason); err != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", err.Error())
		}
		return
	}
	delay := backoffDelay(attempts)
	if err := d.repo.MarkJobRetry(ctx, job.ID, reason, time.Now().UTC().Add(delay)); err != nil {
		slog.Error("mark job retry", "job_id", job.ID, "error", err.Error())
	}
}

func backoffDelay(attempt int32) time.Duration {
	d := initialBackoff
	for i := int32(1); i < attempt; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
