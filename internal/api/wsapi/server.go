// Package wsapi is the bidirectional push interface: a gorilla/websocket
// session per client, draining internal/services/hub's Envelope channel
// into frames and feeding inbound frames back into Hub method calls.
package wsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aerocargo/shiptrack/internal/services/hub"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ShipmentResolver resolves an AWB to a shipment id for subscribe_shipment
// requests that only carry the AWB; either identifier is accepted.
type ShipmentResolver interface {
	ResolveAWB(ctx context.Context, awb string) (uint64, error)
}

// TokenVerifier matches the bearer-secret check httpapi uses, so the push
// interface rejects the same unauthenticated callers the REST surface
// would.
type TokenVerifier interface {
	Verify(token string) bool
}

// SnapshotBuilder produces the initial snapshot message Subscribe emits:
// current status, location, ETA, recent events.
type SnapshotBuilder interface {
	BuildSnapshot(ctx context.Context, shipmentID uint64) (hub.Envelope, error)
}

type Server struct {
	hub       *hub.Hub
	resolver  ShipmentResolver
	verifier  TokenVerifier
	snapshots SnapshotBuilder
}

func New(h *hub.Hub, resolver ShipmentResolver, verifier TokenVerifier, snapshots SnapshotBuilder) *Server {
	return &Server{hub: h, resolver: resolver, verifier: verifier, snapshots: snapshots}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := s.hub.Connect()
	slog.Info("websocket client connected", "client_id", client.ID)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go s.writePump(conn, client, done)
	s.readPump(r.Context(), conn, client)
	close(done)

	s.hub.Disconnect(client.ID)
	_ = conn.Close()
	slog.Info("websocket client disconnected", "client_id", client.ID)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.handleInbound(ctx, client, msg)
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *hub.Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			b, err := marshalEnvelope(env)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func marshalEnvelope(env hub.Envelope) ([]byte, error) {
	b, err := json.Marshal(env.Data)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if len(b) > 0 && string(b) != "null" {
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
	}
	if m == nil {
		m = map[string]any{}
	}
	m["type"] = env.Type
	return json.Marshal(m)
}
