package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

// SweepRepository is the subset of pgshipment.Storage the sweeper needs:
// finding events that still need a notification job and jobs that appear
// stuck.
type SweepRepository interface {
	UnnotifiedEvents(ctx context.Context, limit int) ([]*models.Event, error)
	StalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.NotificationJob, error)
	MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error)
	CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error)
	MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error
	MarkEventNotified(ctx context.Context, eventID uint64) error
}

// Sweeper runs on startup and periodically: it re-creates missing
// notification jobs for events that were never fanned out (post-commit
// emit loss) and un-sticks jobs whose dispatcher died mid-attempt.
type Sweeper struct {
	repo     SweepRepository
	interval time.Duration
	batch    int
	stallAge time.Duration
}

func NewSweeper(repo SweepRepository, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &Sweeper{repo: repo, interval: interval, batch: batch, stallAge: 5 * time.Minute}
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.sweepOnce(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	events, err := s.repo.UnnotifiedEvents(ctx, s.batch)
	if err != nil {
		slog.Error("sweep unnotified events", "error", err.Error())
	}
	for _, e := range events {
		subs, err := s.repo.MatchingSubscriptions(ctx, e.ShipmentID, e)
		if err != nil {
			slog.Error("sweep matching subscriptions", "event_id", e.ID, "error", err.Error())
			continue
		}
		// An event nothing subscribes to has no delivery to wait for;
		// mark it notified so it leaves the sweep set.
		if len(subs) == 0 {
			if err := s.repo.MarkEventNotified(ctx, e.ID); err != nil {
				slog.Error("sweep mark event notified", "event_id", e.ID, "error", err.Error())
			}
			continue
		}
		for _, sub := range subs {
			if _, err := s.repo.CreateNotificationJob(ctx, models.NotificationJob{
				EventID:        e.ID,
				ShipmentID:     e.ShipmentID,
				SubscriptionID: sub.ID,
				Method:         sub.Method,
				Endpoint:       sub.Endpoint,
			}); err != nil {
				slog.Error("sweep recreate notification job", "event_id", e.ID, "subscription_id", sub.ID, "error", err.Error())
			}
		}
	}

	stalled, err := s.repo.StalledJobs(ctx, s.stallAge, s.batch)
	if err != nil {
		slog.Error("sweep stalled jobs", "error", err.Error())
		return
	}
	for _, job := range stalled {
		if err := s.repo.MarkJobRetry(ctx, job.ID, "reset by sweeper", time.Now().UTC()); err != nil {
			slog.Error("sweep reset stalled job", "job_id", job.ID, "error", err.Error())
		}
	}
}
