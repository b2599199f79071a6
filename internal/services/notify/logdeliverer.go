package notify

import (
	"context"
	"log/slog"
)

// LogDeliverer stands in for the EMAIL and SMS transports until a real
// provider integration is wired: it logs the rendered payload at the
// point that integration would sit.
type LogDeliverer struct{}

func NewLogDeliverer() LogDeliverer { return LogDeliverer{} }

func (LogDeliverer) Deliver(ctx context.Context, method, endpoint string, payload []byte) DeliveryResult {
	slog.Info("notification delivered via stub transport", "method", method, "endpoint", endpoint)
	return DeliveryOK
}
