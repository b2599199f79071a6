// Package poller implements the poll scheduler: claim the due set, fan
// out to source adapters with bounded concurrency, publish canonical
// events to the raw-update topic for the api process to apply. There is
// no per-shipment timer; one global tick sweeps the table and filters by
// due-ness, which bounds memory and survives restarts.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/broker/messages"
	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int) ([]*models.Shipment, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// SourceClient pairs an adapter with the source row id its fetched events
// should be stamped with; dedup precedence keys off source_id, not source
// name.
type SourceClient struct {
	SourceID uint64
	Name     string
	Client   source.Client
}

type Poller struct {
	repo     Repository
	sources  []SourceClient
	producer Producer
	rl       RateLimiter
	topic    string

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	rateLimitPerMinute int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, sources []SourceClient, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, sources: sources, producer: producer, rl: rl, topic: topic,
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueShipments(ctx, now, p.batchSize)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		shCopy := sh
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, shCopy); err != nil {
				p.totalErrors.Add(1)
				p.lastErrorMu.Lock()
				p.lastError = err.Error()
				p.lastErrorMu.Unlock()
				slog.Error("process shipment", "shipment_id", shCopy.ID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

// processOne fetches from every configured source for this shipment and
// publishes one RawEvent message per returned canonical event, or a
// fetch-error marker message when a source adapter fails, so the api side
// can log it without having to infer anything from a missing message.
func (p *Poller) processOne(ctx context.Context, sh *models.Shipment) error {
	target := source.Target{
		ShipmentID:   sh.ID,
		AWBNumber:    sh.AWBNumber,
		FlightNumber: sh.FlightNumber,
		FlightDate:   sh.FlightDate,
	}

	var firstErr error
	for _, sc := range p.sources {
		if err := p.rateLimited(ctx, sc.Name); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		events, err := sc.Client.Fetch(ctx, target)
		if err != nil {
			if pubErr := p.publishFetchError(ctx, sh.ID, sc.SourceID, err); pubErr != nil && firstErr == nil {
				firstErr = pubErr
			}
			continue
		}
		for _, e := range events {
			e.SourceID = sc.SourceID
			if pubErr := p.publishEvent(ctx, sh.ID, e); pubErr != nil && firstErr == nil {
				firstErr = pubErr
			}
		}
	}
	return firstErr
}

func (p *Poller) rateLimited(ctx context.Context, sourceName string) error {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return nil
	}
	minuteKey := fmt.Sprintf("rl:source:%s:%s", sourceName, time.Now().UTC().Format("200601021504"))
	allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		return err
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "source", sourceName, "count", n)
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

func (p *Poller) publishEvent(ctx context.Context, shipmentID uint64, e *models.Event) error {
	msg := messages.RawEvent{
		ShipmentID: shipmentID,
		SourceID:   e.SourceID,
		FetchedAt:  time.Now().UTC(),

		Code:        e.Code,
		Description: e.Description,
		Category:    e.Category,

		LocationName:    e.Location.Name,
		LocationCountry: e.Location.Country,
		LocationCity:    e.Location.City,
		AirportCode:     e.Location.AirportCode,
		Latitude:        e.Location.Latitude,
		Longitude:       e.Location.Longitude,

		EventDatetime: e.EventDatetime,
		OriginalTZ:    e.OriginalTZ,

		IsMilestone: e.IsMilestone,
		IsException: e.IsException,
		IsCritical:  e.IsCritical,
		Severity:    e.Severity,

		ExternalID: e.ExternalID,
		Reference:  e.Reference,

		TemperatureCelsius: e.TemperatureCelsius,
		HumidityPercent:    e.HumidityPercent,
		AdditionalInfo:     e.AdditionalInfo,
		CustomerVisible:    e.CustomerVisible,
	}
	return p.publish(ctx, shipmentID, msg)
}

func (p *Poller) publishFetchError(ctx context.Context, shipmentID, sourceID uint64, fetchErr error) error {
	msg := messages.RawEvent{
		ShipmentID: shipmentID,
		SourceID:   sourceID,
		FetchedAt:  time.Now().UTC(),
	}
	errStr := fetchErr.Error()
	msg.FetchError = &errStr
	msg.Transient = isTransient(fetchErr)
	return p.publish(ctx, shipmentID, msg)
}

func isTransient(err error) bool {
	var t *apperr.TransientUpstreamError
	return errors.As(err, &t)
}

func (p *Poller) publish(ctx context.Context, shipmentID uint64, msg messages.RawEvent) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := fmt.Appendf(nil, "%d", shipmentID)
	// Kafka может быть недоступна сразу после рестарта, поэтому пробуем с backoff.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.Publish(ctx, p.topic, key, b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
