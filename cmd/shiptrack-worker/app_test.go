package main

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/config"
	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/services/poller"
	"github.com/stretchr/testify/require"
)

type fakeWorkerRepo struct {
	closed        bool
	claimCalls    int
	sourcesByName map[string]*models.Source
}

func newFakeWorkerRepo() *fakeWorkerRepo {
	return &fakeWorkerRepo{
		sourcesByName: map[string]*models.Source{
			"industry-feed": {ID: 1, Name: "industry-feed"},
			"carrier-api":   {ID: 2, Name: "carrier-api"},
			"customs-api":   {ID: 3, Name: "customs-api"},
		},
	}
}

func (r *fakeWorkerRepo) ClaimDueShipments(ctx context.Context, now time.Time, limit int) ([]*models.Shipment, error) {
	r.claimCalls++
	return nil, nil
}

func (r *fakeWorkerRepo) ClaimPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) MarkJobSent(ctx context.Context, jobID uint64) error { return nil }
func (r *fakeWorkerRepo) MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error {
	return nil
}
func (r *fakeWorkerRepo) MarkJobFailed(ctx context.Context, jobID uint64, lastError string) error {
	return nil
}
func (r *fakeWorkerRepo) MarkEventNotified(ctx context.Context, eventID uint64) error { return nil }
func (r *fakeWorkerRepo) GetEvent(ctx context.Context, eventID uint64) (*models.Event, error) {
	return &models.Event{ID: eventID}, nil
}
func (r *fakeWorkerRepo) UnnotifiedEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) StalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.NotificationJob, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error) {
	return nil, nil
}
func (r *fakeWorkerRepo) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error) {
	return &job, nil
}
func (r *fakeWorkerRepo) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	src, ok := r.sourcesByName[name]
	if !ok {
		return nil, apperr.NewNotFound("source", name)
	}
	return src, nil
}

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

type noopRateLimiter struct{}

func (noopRateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return true, 0, nil
}

func TestDefaultSources_IndustryFeedGatedByConfig(t *testing.T) {
	repo := newFakeWorkerRepo()

	cfg := &config.Config{}
	cfg.ShipTrack.IndustryFeedEnabled = false
	sources, err := defaultSources(cfg, repo)
	require.NoError(t, err)
	names := sourceNames(sources)
	require.NotContains(t, names, "industry-feed")
	require.Contains(t, names, "carrier-api")
	require.Contains(t, names, "customs-api")

	cfg.ShipTrack.IndustryFeedEnabled = true
	sources, err = defaultSources(cfg, repo)
	require.NoError(t, err)
	require.Contains(t, sourceNames(sources), "industry-feed")
}

func TestDefaultSources_MissingSourceRowErrors(t *testing.T) {
	repo := newFakeWorkerRepo()
	delete(repo.sourcesByName, "carrier-api")

	cfg := &config.Config{}
	_, err := defaultSources(cfg, repo)
	require.Error(t, err)
}

func TestRunWorker_ContextCanceled(t *testing.T) {
	repo := newFakeWorkerRepo()
	closed := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (WorkerRepository, func(), error) {
			return repo, func() { closed = true }, nil
		},
		newProducer:    func(cfg *config.Config) poller.Producer { return noopProducer{} },
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter { return noopRateLimiter{} },
		newSources:     defaultSources,
	}

	cfg := &config.Config{}
	cfg.ShipTrack.SchedulerIntervalMinutes = 0
	cfg.ShipTrack.NotificationPollIntervalSeconds = 0
	cfg.ShipTrack.NotificationSweepIntervalSeconds = 0

	ctx, cancel := context.WithCancel(context.Background())

	var app *workerApp
	readyCh := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := RunWorker(ctx, cfg, f, func(a *workerApp) {
		app = a
		close(readyCh)
	})

	require.Error(t, err)
	<-readyCh
	require.NotNil(t, app)
	require.True(t, closed)
}

func sourceNames(sources []poller.SourceClient) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Name)
	}
	return out
}
