// Package manual implements the Manual source adapter: it never
// fetches anything upstream, it's the Fetch-shaped wrapper the HTTP API's
// manual-apply endpoint (POST /tracking/events) uses to push an
// operator-authored event through the same source.Client interface every
// other adapter uses, so the ingestion pipeline never special-cases it.
package manual

import (
	"context"

	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
)

type Adapter struct {
	sourceID uint64
}

func New(sourceID uint64) *Adapter {
	return &Adapter{sourceID: sourceID}
}

// FetchOne wraps a single operator-supplied event with the Manual source id
// stamped on it; there is no polling loop for Manual, so it is not wired
// into the scheduler's Fetch(target) call, only invoked directly by the
// HTTP handler.
func (a *Adapter) FetchOne(ctx context.Context, e *models.Event) (*models.Event, error) {
	e.SourceID = a.sourceID
	return e, nil
}

// Fetch satisfies source.Client for completeness (the scheduler's adapter
// list may include Manual for uniformity) but always returns nothing to
// fetch: Manual events arrive via direct Apply calls, not polling.
func (a *Adapter) Fetch(ctx context.Context, target source.Target) ([]*models.Event, error) {
	return nil, nil
}
