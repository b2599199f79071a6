package poller

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	calls int
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

type fakeSource struct {
	events []*models.Event
	err    error
}

func (c fakeSource) Fetch(ctx context.Context, target source.Target) ([]*models.Event, error) {
	return c.events, c.err
}

func TestPoller_processOne_okPublishesPerEvent(t *testing.T) {
	now := time.Now().UTC()
	fp := &fakeProducer{}
	p := New(nil, []SourceClient{
		{SourceID: 1, Name: "industry-feed", Client: fakeSource{events: []*models.Event{
			{Code: "FLIGHT_DEPARTED", EventDatetime: now},
		}}},
	}, fp, fakeRL{allowed: true}, "shipment.raw-events")

	sh := &models.Shipment{ID: 42, AWBNumber: "123-45678901"}
	require.NoError(t, p.processOne(context.Background(), sh))
	require.Equal(t, 1, fp.calls)
	require.Equal(t, "shipment.raw-events", fp.topic)
	require.NotEmpty(t, fp.value)
}

func TestPoller_processOne_fetchErrorStillPublishesMarker(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, []SourceClient{
		{SourceID: 2, Name: "carrier-api", Client: fakeSource{err: apperr.NewTransientUpstream("carrier-api", context.DeadlineExceeded)}},
	}, fp, nil, "shipment.raw-events")

	sh := &models.Shipment{ID: 1}
	require.NoError(t, p.processOne(context.Background(), sh))
	require.Equal(t, 1, fp.calls)
}

func TestPoller_WithSettings(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, nil, fp, nil, "t").
		WithSettings(5*time.Second, 7, 9, 13)
	require.Equal(t, 5*time.Second, p.pollInterval)
	require.Equal(t, 7, p.batchSize)
	require.Equal(t, 9, p.concurrency)
	require.Equal(t, int64(13), p.rateLimitPerMinute)
}
