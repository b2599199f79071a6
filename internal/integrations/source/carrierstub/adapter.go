// Package carrierstub is the Carrier source stub: it returns an empty
// list and never fails. It fabricates nothing until a real carrier API
// integration replaces it.
package carrierstub

import (
	"context"

	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Fetch(ctx context.Context, target source.Target) ([]*models.Event, error) {
	return nil, nil
}
