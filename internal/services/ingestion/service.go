// Package ingestion is the single entry point for tracking events: Apply
// runs dedup, persistence, state derivation and post-commit fan-out, and
// the same service carries the read-side operations the HTTP API needs,
// with a cache-aside snapshot in front of the hot shipment reads.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/cache"
	"github.com/aerocargo/shiptrack/internal/domain/catalog"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
)

var awbPattern = regexp.MustCompile(`^[0-9]{3}-[0-9]{8}$`)

// cancelledEventCode is rejected by Apply: CANCELLED is produced only by
// administrative intervention, never from tracking events; CancelShipment
// is the only legitimate path to that status, not an event code an adapter
// or operator can submit.
const cancelledEventCode = "CANCELLED"

// Repository is the subset of pgshipment.Storage the ingestion service
// depends on.
type Repository interface {
	CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error)
	GetByID(ctx context.Context, id uint64) (*models.Shipment, error)
	GetByAWB(ctx context.Context, awb string) (*models.Shipment, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*models.Shipment, error)

	ApplyEvent(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error)
	SetCancelled(ctx context.Context, shipmentID uint64, at time.Time) error
	ListEvents(ctx context.Context, shipmentID uint64, filter pgshipment.EventFilter, limit, offset int) ([]*models.Event, error)
	GetByExternalID(ctx context.Context, externalID string) ([]*models.Event, error)
	Stats(ctx context.Context, from, to time.Time) (pgshipment.EventStats, error)

	MatchingSubscriptions(ctx context.Context, shipmentID uint64, e *models.Event) ([]*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)

	CreateNotificationJob(ctx context.Context, job models.NotificationJob) (*models.NotificationJob, error)
	MarkEventNotified(ctx context.Context, eventID uint64) error

	ListMilestones(ctx context.Context) ([]models.Milestone, error)
}

// Publisher is the subscription hub's inbound face, kept as an interface so
// the ingestion service doesn't import internal/services/hub directly
// (avoids an import cycle and lets tests use a fake).
type Publisher interface {
	Publish(be models.BusEvent)
}

// JobNotifier publishes each newly created notification job to the job
// topic, best-effort. The dispatcher does not read that topic; its own DB
// poll + sweeper is the path that delivers jobs.
type JobNotifier interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo      Repository
	cache     cache.BytesCache
	publisher Publisher
	notifier  JobNotifier

	snapshotTTL time.Duration
	jobTopic    string
}

func New(repo Repository, c cache.BytesCache, publisher Publisher, notifier JobNotifier, snapshotTTL time.Duration, jobTopic string) *Service {
	return &Service{repo: repo, cache: c, publisher: publisher, notifier: notifier, snapshotTTL: snapshotTTL, jobTopic: jobTopic}
}

func (s *Service) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	if !awbPattern.MatchString(in.AWBNumber) {
		return nil, apperr.NewValidation("awb_number", "must match NNN-NNNNNNNN")
	}
	if in.Pieces <= 0 {
		return nil, apperr.NewValidation("pieces", "must be >= 1")
	}
	if in.WeightKG <= 0 {
		return nil, apperr.NewValidation("weight_kg", "must be > 0")
	}
	return s.repo.CreateShipment(ctx, in)
}

func (s *Service) GetShipment(ctx context.Context, id uint64) (*models.Shipment, error) {
	if s.cache != nil && s.snapshotTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, snapshotKey(id)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, sh)
	return sh, nil
}

func (s *Service) GetShipmentByAWB(ctx context.Context, awb string) (*models.Shipment, error) {
	if !awbPattern.MatchString(awb) {
		return nil, apperr.NewValidation("awb", "must match NNN-NNNNNNNN")
	}
	return s.repo.GetByAWB(ctx, awb)
}

func (s *Service) ListCustomerShipments(ctx context.Context, customerID string, limit, offset int) ([]*models.Shipment, error) {
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) ListEvents(ctx context.Context, shipmentID uint64, filter pgshipment.EventFilter, limit, offset int) ([]*models.Event, error) {
	return s.repo.ListEvents(ctx, shipmentID, filter, limit, offset)
}

func (s *Service) Stats(ctx context.Context, from, to time.Time) (pgshipment.EventStats, error) {
	if !from.Before(to) {
		return pgshipment.EventStats{}, apperr.NewValidation("date_range", "date_from must be before date_to")
	}
	return s.repo.Stats(ctx, from, to)
}

func (s *Service) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	if sub.ShipmentID == 0 {
		return nil, apperr.NewValidation("shipment_id", "required")
	}
	if sub.SubscriberID == "" {
		return nil, apperr.NewValidation("subscriber_id", "required")
	}
	switch sub.Method {
	case models.SubscriptionMethodEmail, models.SubscriptionMethodSMS, models.SubscriptionMethodPush, models.SubscriptionMethodWebhook:
	default:
		return nil, apperr.NewValidation("method", "must be one of EMAIL, SMS, PUSH, WEBHOOK")
	}
	if _, err := s.repo.GetByID(ctx, sub.ShipmentID); err != nil {
		return nil, err
	}
	return s.repo.CreateSubscription(ctx, sub)
}

// Apply ingests one canonical event: dedup against the persisted log,
// apply+derive in one transaction (delegated to the repository), then
// best-effort post-commit emit to the hub and the notification
// dispatcher.
func (s *Service) Apply(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error) {
	if candidate.Code == cancelledEventCode {
		return models.OutcomeRejected, nil, apperr.NewValidation("code", "CANCELLED is administrative-only, use CancelShipment")
	}

	outcome, stored, err := s.repo.ApplyEvent(ctx, shipmentID, candidate, allowDisabled)
	if err != nil {
		return models.OutcomeRejected, nil, err
	}
	if outcome != models.OutcomeCreated {
		return outcome, nil, nil
	}

	s.invalidateSnapshot(ctx, shipmentID)
	s.postCommitEmit(ctx, shipmentID, stored)
	return outcome, stored, nil
}

// postCommitEmit is best-effort: failures here are logged, never returned
// to the Apply caller, because the event is already durably committed and
// the periodic sweeper catches up using the notification_sent flag.
func (s *Service) postCommitEmit(ctx context.Context, shipmentID uint64, e *models.Event) {
	sh, err := s.repo.GetByID(ctx, shipmentID)
	if err != nil {
		slog.Error("post-commit: reload shipment failed", "shipment_id", shipmentID, "error", err.Error())
		return
	}

	if s.publisher != nil {
		var eta *string
		if sh.EstimatedDeliveryDate != nil {
			str := sh.EstimatedDeliveryDate.Format(time.RFC3339)
			eta = &str
		}
		s.publisher.Publish(models.BusEvent{
			ShipmentID:            shipmentID,
			CustomerID:            sh.CustomerID,
			AWBNumber:             sh.AWBNumber,
			Event:                 *e,
			CurrentStatus:         sh.CurrentStatus,
			CurrentLocation:       sh.CurrentLocation,
			EstimatedDeliveryDate: eta,
		})
	}

	subs, err := s.repo.MatchingSubscriptions(ctx, shipmentID, e)
	if err != nil {
		slog.Error("post-commit: matching subscriptions failed", "shipment_id", shipmentID, "error", err.Error())
		return
	}

	jobCreationFailed := false
	for _, sub := range subs {
		job, err := s.repo.CreateNotificationJob(ctx, models.NotificationJob{
			EventID:        e.ID,
			ShipmentID:     shipmentID,
			SubscriptionID: sub.ID,
			Method:         sub.Method,
			Endpoint:       sub.Endpoint,
		})
		if err != nil {
			slog.Error("post-commit: create notification job failed", "event_id", e.ID, "subscription_id", sub.ID, "error", err.Error())
			jobCreationFailed = true
			continue
		}
		if s.notifier != nil && s.jobTopic != "" {
			b, _ := json.Marshal(job)
			if err := s.notifier.Publish(ctx, s.jobTopic, fmt.Appendf(nil, "%d", job.ID), b); err != nil {
				slog.Warn("post-commit: notify dispatcher nudge failed", "job_id", job.ID, "error", err.Error())
			}
		}
	}

	// A failed CreateNotificationJob above leaves that subscription with no
	// job row at all; marking the event notified here would make it
	// invisible to the sweeper's "notification_sent=false" scan, so
	// the missing job would never be recreated. Leave it unmarked so the
	// sweeper retries the whole event next pass.
	if jobCreationFailed {
		return
	}
	if err := s.repo.MarkEventNotified(ctx, e.ID); err != nil {
		slog.Error("post-commit: mark event notified failed", "event_id", e.ID, "error", err.Error())
	}
}

// CancelShipment is the sole administrative path to
// current_status=CANCELLED. It also turns tracking off, since a cancelled
// shipment is tracking-quiescent.
func (s *Service) CancelShipment(ctx context.Context, shipmentID uint64) (*models.Shipment, error) {
	if _, err := s.repo.GetByID(ctx, shipmentID); err != nil {
		return nil, err
	}
	if err := s.repo.SetCancelled(ctx, shipmentID, time.Now().UTC()); err != nil {
		return nil, err
	}
	sh, err := s.repo.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, sh)
	return sh, nil
}

// EstimatedDeliveryDate computes the ETA on demand from the milestone
// catalog, instead of maintaining it incrementally on every Apply.
func (s *Service) EstimatedDeliveryDate(ctx context.Context, sh *models.Shipment) (*time.Time, error) {
	if sh.DeliveryDate != nil {
		return sh.DeliveryDate, nil
	}
	seq := catalog.SequenceFor(lastMilestoneCodeForStatus(sh.CurrentStatus))
	if seq < 0 {
		return nil, nil
	}
	minutes := catalog.EstimatedDurationMinutes(seq)
	if minutes == 0 {
		return nil, nil
	}
	base := sh.LastTrackedAt
	if base == nil {
		base = &sh.UpdatedAt
	}
	eta := base.Add(time.Duration(minutes) * time.Minute)
	return &eta, nil
}

// lastMilestoneCodeForStatus resolves a derived status back to the
// furthest-along cataloged milestone that drives it. More than one code
// can drive the same status (BOOKED comes from both BOOKING_CONFIRMED and
// CARGO_COLLECTED), so the pick is by catalog sequence, not map order.
func lastMilestoneCodeForStatus(status string) string {
	best := ""
	bestSeq := int32(-1)
	for code, st := range catalog.CodeStatus {
		if st != status || !catalog.MilestoneCodes[code] {
			continue
		}
		if seq := catalog.SequenceFor(code); seq > bestSeq {
			best, bestSeq = code, seq
		}
	}
	return best
}

func (s *Service) cacheSnapshot(ctx context.Context, sh *models.Shipment) {
	if s.cache == nil || s.snapshotTTL <= 0 {
		return
	}
	b, err := json.Marshal(sh)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(sh.ID), b, s.snapshotTTL); err != nil {
		slog.Warn("cache snapshot set failed", "shipment_id", sh.ID, "error", err.Error())
	}
}

func (s *Service) invalidateSnapshot(ctx context.Context, shipmentID uint64) {
	if s.cache == nil {
		return
	}
	sh, err := s.repo.GetByID(ctx, shipmentID)
	if err != nil {
		return
	}
	s.cacheSnapshot(ctx, sh)
}

func snapshotKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:current", id)
}
