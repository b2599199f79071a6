package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/broker/messages"
	"github.com/aerocargo/shiptrack/internal/models"
)

// kafkaConsumer matches kafka.Consumer's Consume shape, narrow enough
// that the handler can be tested without a real broker.
type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

// eventApplier is the one ingestion.Service method the raw-events consumer
// needs, kept narrow for testability.
type eventApplier interface {
	Apply(ctx context.Context, shipmentID uint64, candidate *models.Event, allowDisabled bool) (models.ApplyOutcome, *models.Event, error)
}

// applyRawEvent turns one poller-published messages.RawEvent into a
// canonical models.Event and runs it through the same Apply path every
// other source takes; the api process never special-cases "came from
// kafka" versus "came from a direct HTTP call".
func applyRawEvent(ctx context.Context, svc eventApplier, key, value []byte) error {
	var m messages.RawEvent
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}
	if m.FetchError != nil {
		slog.Warn("raw event carries a fetch error, skipping apply",
			"shipment_id", m.ShipmentID, "source_id", m.SourceID, "error", *m.FetchError, "transient", m.Transient)
		return nil
	}

	candidate := &models.Event{
		Code:        m.Code,
		Description: m.Description,
		Category:    m.Category,
		Location: models.Location{
			Name:        m.LocationName,
			Country:     m.LocationCountry,
			City:        m.LocationCity,
			AirportCode: m.AirportCode,
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
		},
		EventDatetime:      m.EventDatetime,
		OriginalTZ:         m.OriginalTZ,
		IsMilestone:        m.IsMilestone,
		IsException:        m.IsException,
		IsCritical:         m.IsCritical,
		Severity:           m.Severity,
		SourceID:           m.SourceID,
		ExternalID:         m.ExternalID,
		Reference:          m.Reference,
		TemperatureCelsius: m.TemperatureCelsius,
		HumidityPercent:    m.HumidityPercent,
		AdditionalInfo:     m.AdditionalInfo,
		CustomerVisible:    m.CustomerVisible,
	}

	outcome, _, err := svc.Apply(ctx, m.ShipmentID, candidate, false)
	if err != nil {
		// A store failure leaves the message uncommitted so kafka
		// redelivers it; anything else (missing shipment, tracking
		// disabled, bad payload) will fail the same way forever, so it
		// is logged and dropped rather than wedging the consumer.
		var storeErr *apperr.StoreError
		if errors.As(err, &storeErr) {
			slog.Error("apply raw event failed", "shipment_id", m.ShipmentID, "error", err.Error())
			return err
		}
		slog.Warn("raw event rejected", "shipment_id", m.ShipmentID, "source_id", m.SourceID, "error", err.Error())
		return nil
	}
	if outcome == models.OutcomeDuplicate {
		slog.Debug("raw event deduplicated", "shipment_id", m.ShipmentID, "external_id", m.ExternalID)
	}
	return nil
}
