package notify

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeDispatchRepo struct {
	jobs     []*models.NotificationJob
	sent     []uint64
	retried  []uint64
	failed   []uint64
	notified []uint64
}

func (f *fakeDispatchRepo) ClaimPendingJobs(ctx context.Context, now time.Time, limit int) ([]*models.NotificationJob, error) {
	out := f.jobs
	f.jobs = nil
	return out, nil
}
func (f *fakeDispatchRepo) MarkJobSent(ctx context.Context, jobID uint64) error {
	f.sent = append(f.sent, jobID)
	return nil
}
func (f *fakeDispatchRepo) MarkJobRetry(ctx context.Context, jobID uint64, lastError string, nextAttemptAt time.Time) error {
	f.retried = append(f.retried, jobID)
	return nil
}
func (f *fakeDispatchRepo) MarkJobFailed(ctx context.Context, jobID uint64, lastError string) error {
	f.failed = append(f.failed, jobID)
	return nil
}
func (f *fakeDispatchRepo) MarkEventNotified(ctx context.Context, eventID uint64) error {
	f.notified = append(f.notified, eventID)
	return nil
}

type fakeEventLoader struct {
	event *models.Event
	err   error
}

func (f *fakeEventLoader) GetEvent(ctx context.Context, id uint64) (*models.Event, error) {
	return f.event, f.err
}

type fakeDeliverer struct {
	result DeliveryResult
}

func (f fakeDeliverer) Deliver(ctx context.Context, method, endpoint string, payload []byte) DeliveryResult {
	return f.result
}

func TestDispatcher_Dispatch_OK_MarksSentAndNotified(t *testing.T) {
	repo := &fakeDispatchRepo{}
	events := &fakeEventLoader{event: &models.Event{ID: 1, ShipmentID: 1, Code: "DELIVERED"}}
	d := NewDispatcher(repo, events, fakeDeliverer{result: DeliveryOK}, time.Second, 10)

	job := &models.NotificationJob{ID: 100, EventID: 1, Method: models.SubscriptionMethodWebhook}
	d.dispatch(context.Background(), job)

	require.Equal(t, []uint64{100}, repo.sent)
	require.Equal(t, []uint64{1}, repo.notified)
	require.Empty(t, repo.retried)
	require.Empty(t, repo.failed)
}

func TestDispatcher_Dispatch_Transient_RetriesThenFails(t *testing.T) {
	repo := &fakeDispatchRepo{}
	events := &fakeEventLoader{event: &models.Event{ID: 2}}
	d := NewDispatcher(repo, events, fakeDeliverer{result: DeliveryTransient}, time.Second, 10)

	job := &models.NotificationJob{ID: 200, EventID: 2, Attempts: maxAttempts - 1}
	d.dispatch(context.Background(), job)

	require.Equal(t, []uint64{200}, repo.failed)
	require.Empty(t, repo.sent)
}

func TestDispatcher_Dispatch_Permanent_MarksFailed(t *testing.T) {
	repo := &fakeDispatchRepo{}
	events := &fakeEventLoader{event: &models.Event{ID: 3}}
	d := NewDispatcher(repo, events, fakeDeliverer{result: DeliveryPermanent}, time.Second, 10)

	d.dispatch(context.Background(), &models.NotificationJob{ID: 300, EventID: 3})
	require.Equal(t, []uint64{300}, repo.failed)
}

func TestBackoffDelay_CapsAt30s(t *testing.T) {
	require.Equal(t, initialBackoff, backoffDelay(1))
	require.Equal(t, 4*time.Second, backoffDelay(2))
	require.LessOrEqual(t, backoffDelay(10), maxBackoff)
}
