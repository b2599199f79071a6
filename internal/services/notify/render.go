package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
)

// RenderedNotification is the method-agnostic payload shape Render
// produces; concrete Deliverers may reshape it further for their wire
// format (a webhook posts it as-is, an SMS deliverer would reduce it to a
// text template).
type RenderedNotification struct {
	EventID     uint64 `json:"event_id"`
	ShipmentID  uint64 `json:"shipment_id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	IsMilestone bool   `json:"is_milestone"`
	IsException bool   `json:"is_exception"`
	OccurredAt  string `json:"occurred_at"`
}

// Render builds the delivery payload for a job's triggering event. It is
// method-agnostic: the dispatcher never formats text itself, concrete
// deliverers reshape the payload for their wire format.
func Render(e *models.Event) ([]byte, error) {
	return json.Marshal(RenderedNotification{
		EventID:     e.ID,
		ShipmentID:  e.ShipmentID,
		Code:        e.Code,
		Description: e.Description,
		IsMilestone: e.IsMilestone,
		IsException: e.IsException,
		OccurredAt:  e.EventDatetime.Format(time.RFC3339),
	})
}

// WebhookDeliverer posts the rendered payload to the subscription's
// endpoint URL.
type WebhookDeliverer struct {
	HTTPClient *http.Client
}

func NewWebhookDeliverer(timeout time.Duration) *WebhookDeliverer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookDeliverer{HTTPClient: &http.Client{Timeout: timeout}}
}

func (w *WebhookDeliverer) Deliver(ctx context.Context, method, endpoint string, payload []byte) DeliveryResult {
	if endpoint == "" {
		return DeliveryPermanent
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return DeliveryPermanent
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return DeliveryTransient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return DeliveryOK
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return DeliveryTransient
	default:
		return DeliveryPermanent
	}
}

// PushDeliverer covers PUSH subscriptions: the hub already delivered the
// event in real time when Apply published the BusEvent, so this delivery
// step is pure bookkeeping and always completes immediately.
type PushDeliverer struct{}

func (PushDeliverer) Deliver(ctx context.Context, method, endpoint string, payload []byte) DeliveryResult {
	return DeliveryOK
}
