package notify

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeSweepRepo struct {
	unnotified []*models.Event
	stalled    []*models.NotificationJob
	subs       map[uint64][]*models.Subscription
	created    []models.NotificationJob
	reset      []uint64
	notified   []uint64
}

func (f *fakeSweepRepo) UnnotifiedEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	return f.unnotified, nil
}
func (f *fakeSweepRepo) StalledJobs(ctx context.Context, olderThan time.Duration, limit int) ([]*models.NotificationJob, error) {
	return f.stalled, nil
}
func (f *fakeSweepRepo) MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error) {
	return f.subs[shipmentID], nil
}
func (f *fakeSweepRepo) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error) {
	f.created = append(f.created, job)
	return &job, nil
}
func (f *fakeSweepRepo) MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error {
	f.reset = append(f.reset, jobID)
	return nil
}
func (f *fakeSweepRepo) MarkEventNotified(ctx context.Context, eventID uint64) error {
	f.notified = append(f.notified, eventID)
	return nil
}

func TestSweeper_RecreatesMissingJobsAndResetsStalled(t *testing.T) {
	repo := &fakeSweepRepo{
		unnotified: []*models.Event{{ID: 1, ShipmentID: 7}},
		subs:       map[uint64][]*models.Subscription{7: {{ID: 9, Method: models.SubscriptionMethodEmail}}},
		stalled:    []*models.NotificationJob{{ID: 500}},
	}
	s := NewSweeper(repo, time.Minute, 100)
	s.sweepOnce(context.Background())

	require.Len(t, repo.created, 1)
	require.Equal(t, uint64(9), repo.created[0].SubscriptionID)
	require.Equal(t, []uint64{500}, repo.reset)
}

func TestSweeper_MarksSubscriberlessEventsNotified(t *testing.T) {
	repo := &fakeSweepRepo{
		unnotified: []*models.Event{{ID: 2, ShipmentID: 8}},
	}
	s := NewSweeper(repo, time.Minute, 100)
	s.sweepOnce(context.Background())

	require.Empty(t, repo.created)
	require.Equal(t, []uint64{2}, repo.notified)
}
