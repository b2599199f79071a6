package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/services/ingestion"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	shipment      *models.Shipment
	events        []*models.Event
	subscriptions []*models.Subscription
	sources       map[string]*models.Source
}

func newFakeRepo() *fakeRepo {
	now := time.Now().UTC()
	return &fakeRepo{
		shipment: &models.Shipment{
			ID: 1, AWBNumber: "020-12345678", CustomerID: "cust-1",
			CurrentStatus: models.ShipmentStatusCreated,
			CreatedAt:     now, UpdatedAt: now,
		},
		sources: map[string]*models.Source{
			"manual": {ID: 9, Name: "manual"},
		},
	}
}

func (r *fakeRepo) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	return r.shipment, nil
}
func (r *fakeRepo) GetByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	if id != r.shipment.ID {
		return nil, apperr.NewNotFound("shipment", "")
	}
	return r.shipment, nil
}
func (r *fakeRepo) GetByAWB(ctx context.Context, awb string) (*models.Shipment, error) {
	if awb != r.shipment.AWBNumber {
		return nil, apperr.NewNotFound("shipment", awb)
	}
	return r.shipment, nil
}
func (r *fakeRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Shipment, error) {
	return []*models.Shipment{r.shipment}, nil
}
func (r *fakeRepo) ApplyEvent(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error) {
	candidate.ID = uint64(len(r.events) + 1)
	candidate.ShipmentID = shipmentID
	r.events = append(r.events, candidate)
	return models.OutcomeCreated, candidate, nil
}
func (r *fakeRepo) SetCancelled(ctx context.Context, shipmentID uint64, at time.Time) error {
	r.shipment.CurrentStatus = models.ShipmentStatusCancelled
	r.shipment.TrackingEnabled = false
	return nil
}
func (r *fakeRepo) ListEvents(ctx context.Context, shipmentID uint64, filter pgshipment.EventFilter, limit, offset int) ([]*models.Event, error) {
	return r.events, nil
}
func (r *fakeRepo) GetByExternalID(ctx context.Context, externalID string) ([]*models.Event, error) {
	return nil, nil
}
func (r *fakeRepo) Stats(ctx context.Context, from, to time.Time) (pgshipment.EventStats, error) {
	return pgshipment.EventStats{Total: int64(len(r.events))}, nil
}
func (r *fakeRepo) MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error) {
	return nil, nil
}
func (r *fakeRepo) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	sub.ID = uint64(len(r.subscriptions) + 1)
	sub.Active = true
	r.subscriptions = append(r.subscriptions, &sub)
	return &sub, nil
}
func (r *fakeRepo) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error) {
	return &job, nil
}
func (r *fakeRepo) MarkEventNotified(ctx context.Context, eventID uint64) error { return nil }
func (r *fakeRepo) ListMilestones(ctx context.Context) ([]models.Milestone, error) {
	return nil, nil
}
func (r *fakeRepo) Healthy(ctx context.Context) error { return nil }
func (r *fakeRepo) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, apperr.NewNotFound("source", name)
	}
	return src, nil
}

type fakePublisher struct{ published []models.BusEvent }

func (p *fakePublisher) Publish(be models.BusEvent) { p.published = append(p.published, be) }

type fakeJobNotifier struct{}

func (fakeJobNotifier) Publish(ctx context.Context, topic string, key, value []byte) error {
	return nil
}

func newTestServer(repo *fakeRepo) *Server {
	svc := ingestion.New(repo, nil, &fakePublisher{}, fakeJobNotifier{}, time.Minute, "jobs")
	return New(svc, nil, repo, nil, nil, repo, "s3cr3t")
}

func doRequest(t *testing.T, srv *Server, method, path, role, customerID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	if customerID != "" {
		req.Header.Set("X-Customer-Id", customerID)
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	rr := doRequest(t, srv, http.MethodGet, "/tracking/health", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleHealth_Unhealthy(t *testing.T) {
	repo := newFakeRepo()
	svc := ingestion.New(repo, nil, &fakePublisher{}, fakeJobNotifier{}, time.Minute, "jobs")
	srv := New(svc, nil, repo, nil, nil, unhealthyChecker{}, "s3cr3t")

	rr := doRequest(t, srv, http.MethodGet, "/tracking/health", "", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type unhealthyChecker struct{}

func (unhealthyChecker) Healthy(ctx context.Context) error { return errors.New("db down") }

func TestHandleCreateShipment_RequiresOperator(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	body := createShipmentRequest{AWBNumber: "020-12345678", CustomerID: "cust-1", Pieces: 1, WeightKG: 10.5}

	rr := doRequest(t, srv, http.MethodPost, "/tracking/shipments", "customer", "cust-1", body)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodPost, "/tracking/shipments", "operator", "", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp shipmentResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "020-12345678", resp.AWBNumber)
}

func TestHandleGetByAWB_Public(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	rr := doRequest(t, srv, http.MethodGet, "/tracking/awb/020-12345678", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/awb/999-99999999", "", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCustomerHistory_RequiresSelfOrStaff(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	rr := doRequest(t, srv, http.MethodGet, "/tracking/customer/cust-1/history", "", "cust-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/customer/cust-1/history", "", "cust-2", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/customer/cust-1/history", "operator", "cust-2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleCreateEvent_ManualApply(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	body := createEventRequest{
		ShipmentID: repo.shipment.ID,
		Code:       "POD",
		Category:   models.EventCategoryMilestone,
	}
	rr := doRequest(t, srv, http.MethodPost, "/tracking/events", "operator", "", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "POD", resp.Code)
	require.Len(t, repo.events, 1)
	require.Equal(t, repo.sources["manual"].ID, repo.events[0].SourceID)
}

func TestHandleSubscribe_RequiresCustomerIdentity(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	body := subscribeRequest{ShipmentID: repo.shipment.ID, Method: models.SubscriptionMethodEmail, FilterAllEvents: true}

	rr := doRequest(t, srv, http.MethodPost, "/tracking/subscribe", "", "", body)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodPost, "/tracking/subscribe", "", "cust-1", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, repo.subscriptions, 1)
	require.Equal(t, "cust-1", repo.subscriptions[0].SubscriberID)
}

func TestHandleStatistics_RequiresAdmin(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	rr := doRequest(t, srv, http.MethodGet, "/tracking/statistics", "operator", "", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/statistics", "admin", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCustomerScopedReads_BlockOtherCustomers(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	rr := doRequest(t, srv, http.MethodGet, "/tracking/shipments/1", "customer", "cust-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/shipments/1", "customer", "cust-2", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/shipments/1/events", "customer", "cust-2", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/tracking/shipments/1/events", "operator", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleSubscribe_BlocksOtherCustomersShipment(t *testing.T) {
	repo := newFakeRepo()
	srv := newTestServer(repo)

	body := subscribeRequest{ShipmentID: repo.shipment.ID, Method: models.SubscriptionMethodEmail, FilterAllEvents: true}
	rr := doRequest(t, srv, http.MethodPost, "/tracking/subscribe", "", "cust-2", body)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Empty(t, repo.subscriptions)
}
