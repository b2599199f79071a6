package wsapi

import (
	"context"
	"log/slog"

	"github.com/aerocargo/shiptrack/internal/services/hub"
)

// inboundMessage covers every client->server frame: authenticate,
// subscribe_shipment (by id or AWB), unsubscribe_shipment,
// subscribe_customer, and ping. Fields are flat on the message rather
// than nested under a "data" key, matching the outbound wire shape
// produced by marshalEnvelope.
type inboundMessage struct {
	Type string `json:"type"`

	Token        string `json:"token,omitempty"`
	SubscriberID string `json:"subscriber_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`

	ShipmentID uint64 `json:"shipment_id,omitempty"`
	AWB        string `json:"awb,omitempty"`
}

func (s *Server) handleInbound(ctx context.Context, client *hub.Client, msg inboundMessage) {
	switch msg.Type {
	case "authenticate":
		s.handleAuthenticate(client, msg)
	case "subscribe_shipment":
		s.handleSubscribeShipment(ctx, client, msg)
	case "unsubscribe_shipment":
		s.hub.UnsubscribeShipment(client.ID, msg.ShipmentID)
	case "subscribe_customer":
		if err := s.hub.SubscribeCustomer(client.ID, msg.CustomerID); err != nil {
			slog.Debug("subscribe_customer rejected", "client_id", client.ID, "error", err.Error())
		}
	case "ping":
		s.hub.Ping(client.ID)
	default:
		slog.Debug("unrecognized websocket message type", "client_id", client.ID, "type", msg.Type)
	}
}

func (s *Server) handleAuthenticate(client *hub.Client, msg inboundMessage) {
	if s.verifier != nil && !s.verifier.Verify(msg.Token) {
		slog.Debug("websocket authenticate rejected", "client_id", client.ID)
		return
	}
	if err := s.hub.Authenticate(client.ID, msg.SubscriberID, msg.CustomerID); err != nil {
		slog.Debug("websocket authenticate failed", "client_id", client.ID, "error", err.Error())
	}
}

func (s *Server) handleSubscribeShipment(ctx context.Context, client *hub.Client, msg inboundMessage) {
	shipmentID := msg.ShipmentID
	if shipmentID == 0 && msg.AWB != "" && s.resolver != nil {
		id, err := s.resolver.ResolveAWB(ctx, msg.AWB)
		if err != nil {
			slog.Debug("subscribe_shipment AWB lookup failed", "awb", msg.AWB, "error", err.Error())
			return
		}
		shipmentID = id
	}
	if shipmentID == 0 {
		return
	}

	var buildSnapshot func() (hub.Envelope, error)
	if s.snapshots != nil {
		buildSnapshot = func() (hub.Envelope, error) {
			return s.snapshots.BuildSnapshot(ctx, shipmentID)
		}
	}
	if err := s.hub.SubscribeShipment(client.ID, shipmentID, buildSnapshot); err != nil {
		slog.Debug("subscribe_shipment rejected", "client_id", client.ID, "shipment_id", shipmentID, "error", err.Error())
	}
}
