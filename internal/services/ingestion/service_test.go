package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	shipment       *models.Shipment
	applyOutcome   models.ApplyOutcome
	applyEvent     *models.Event
	applyErr       error
	subs           []*models.Subscription
	createdJobs    []models.NotificationJob
	notifiedEvents []uint64
}

func (f *fakeRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	return f.shipment, nil
}
func (f *fakeRepo) GetByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	return f.shipment, nil
}
func (f *fakeRepo) GetByAWB(ctx context.Context, awb string) (*models.Shipment, error) {
	return f.shipment, nil
}
func (f *fakeRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Shipment, error) {
	return []*models.Shipment{f.shipment}, nil
}
func (f *fakeRepo) ApplyEvent(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error) {
	return f.applyOutcome, f.applyEvent, f.applyErr
}
func (f *fakeRepo) SetCancelled(ctx context.Context, shipmentID uint64, at time.Time) error {
	f.shipment.CurrentStatus = models.ShipmentStatusCancelled
	f.shipment.TrackingEnabled = false
	return nil
}
func (f *fakeRepo) ListEvents(ctx context.Context, shipmentID uint64, filter pgshipment.EventFilter, limit, offset int) ([]*models.Event, error) {
	return nil, nil
}
func (f *fakeRepo) GetByExternalID(ctx context.Context, externalID string) ([]*models.Event, error) {
	return nil, nil
}
func (f *fakeRepo) Stats(ctx context.Context, from, to time.Time) (pgshipment.EventStats, error) {
	return pgshipment.EventStats{}, nil
}
func (f *fakeRepo) MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error) {
	return f.subs, nil
}
func (f *fakeRepo) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	sub.ID = 1
	return &sub, nil
}
func (f *fakeRepo) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error) {
	job.ID = uint64(len(f.createdJobs) + 1)
	f.createdJobs = append(f.createdJobs, job)
	return &job, nil
}
func (f *fakeRepo) MarkEventNotified(ctx context.Context, eventID uint64) error {
	f.notifiedEvents = append(f.notifiedEvents, eventID)
	return nil
}
func (f *fakeRepo) ListMilestones(ctx context.Context) ([]models.Milestone, error) {
	return nil, nil
}

type fakePublisher struct {
	published []models.BusEvent
}

func (f *fakePublisher) Publish(be models.BusEvent) {
	f.published = append(f.published, be)
}

func TestService_Apply_Created_EmitsAndEnqueuesJobs(t *testing.T) {
	sh := &models.Shipment{ID: 1, CustomerID: "c-1", AWBNumber: "125-12345678", CurrentStatus: models.ShipmentStatusBooked}
	e := &models.Event{ID: 10, ShipmentID: 1, Code: "CARGO_COLLECTED", IsMilestone: true}
	repo := &fakeRepo{
		shipment:     sh,
		applyOutcome: models.OutcomeCreated,
		applyEvent:   e,
		subs:         []*models.Subscription{{ID: 5, Method: models.SubscriptionMethodPush}},
	}
	pub := &fakePublisher{}
	svc := New(repo, nil, pub, nil, 0, "")

	outcome, stored, err := svc.Apply(context.Background(), 1, e, false)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeCreated, outcome)
	require.Equal(t, e, stored)
	require.Len(t, pub.published, 1)
	require.Equal(t, uint64(1), pub.published[0].ShipmentID)
	require.Len(t, repo.createdJobs, 1)
	require.Equal(t, uint64(5), repo.createdJobs[0].SubscriptionID)
	require.Contains(t, repo.notifiedEvents, uint64(10))
}

func TestService_Apply_Duplicate_NoPostCommitWork(t *testing.T) {
	repo := &fakeRepo{applyOutcome: models.OutcomeDuplicate}
	pub := &fakePublisher{}
	svc := New(repo, nil, pub, nil, 0, "")

	outcome, stored, err := svc.Apply(context.Background(), 1, &models.Event{Code: "CARGO_COLLECTED"}, false)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeDuplicate, outcome)
	require.Nil(t, stored)
	require.Empty(t, pub.published)
}

func TestService_CreateShipment_ValidatesAWB(t *testing.T) {
	svc := New(&fakeRepo{}, nil, nil, nil, 0, "")
	_, err := svc.CreateShipment(context.Background(), models.ShipmentCreateInput{AWBNumber: "bad", Pieces: 1, WeightKG: 1})
	require.Error(t, err)
}
