package poller

import (
	"context"
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	calls int
}

func (r *fakeRepo) ClaimDueShipments(ctx context.Context, now time.Time, limit int) ([]*models.Shipment, error) {
	r.calls++
	return []*models.Shipment{}, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, nil, noopProducer{}, nil, "t").WithSettings(5*time.Millisecond, 1, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls, 1)
}
