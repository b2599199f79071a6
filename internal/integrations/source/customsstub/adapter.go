// Package customsstub is the Customs source stub, the same shape as
// carrierstub.
package customsstub

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
