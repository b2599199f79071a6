package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aerocargo/shiptrack/internal/apperr"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/google/uuid"
)

// AccessChecker validates that a subscriber may join a given shipment or
// customer topic: customer-scoped callers may only subscribe to shipments
// they own. Kept as an interface so the hub doesn't depend on the
// ingestion service's storage layer directly.
//
// Ownership is keyed on customerID, not subscriberID: Shipment.CustomerID
// is the owning identity, and a single customer's authenticate frame may
// carry a subscriber_id distinct from its customer_id, the same
// distinction SubscribeCustomer and httpapi's requireSelf already key off.
type AccessChecker interface {
	OwnsShipment(customerID string, shipmentID uint64) (bool, error)
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	topics  map[string]map[string]*Client // topic -> clientID -> client

	queueCapacity      int
	maxDropsDisconnect int64

	access AccessChecker
}

// SetAccessChecker wires the checker after construction, for callers whose
// AccessChecker wraps a service that itself needs the hub as a Publisher
// (an unavoidable cycle the two-process api bootstrap breaks this way).
func (h *Hub) SetAccessChecker(access AccessChecker) {
	h.mu.Lock()
	h.access = access
	h.mu.Unlock()
}

func New(queueCapacity int, maxDropsDisconnect int64, access AccessChecker) *Hub {
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	if maxDropsDisconnect <= 0 {
		maxDropsDisconnect = 50
	}
	return &Hub{
		clients:            make(map[string]*Client),
		topics:             make(map[string]map[string]*Client),
		queueCapacity:      queueCapacity,
		maxDropsDisconnect: maxDropsDisconnect,
		access:             access,
	}
}

// Connect allocates client state and emits the welcome message.
func (h *Hub) Connect() *Client {
	c := newClient(uuid.NewString(), h.queueCapacity)

	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	c.enqueue(Envelope{Type: TypeConnected, Data: ConnectedPayload{
		SessionID:    c.ID,
		Capabilities: []string{"subscribe_shipment", "subscribe_customer", "ping"},
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
	}})
	return c
}

// Authenticate associates the client with a subscriber identity; Subscribe
// is refused until this has been called.
func (h *Hub) Authenticate(clientID, subscriberID, customerID string) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return apperr.NewNotFound("client", clientID)
	}
	if subscriberID == "" {
		c.enqueue(Envelope{Type: TypeAuthError, Data: ErrorPayload{Reason: "subscriber_id required"}})
		return apperr.NewValidation("subscriber_id", "required")
	}
	c.SubscriberID = subscriberID
	c.CustomerID = customerID
	c.enqueue(Envelope{Type: TypeAuthenticated, Data: AuthenticatedPayload{SubscriberID: subscriberID}})
	return nil
}

// SubscribeShipment joins shipment:{id} after an access check, emitting
// either subscribed or subscription_error.
func (h *Hub) SubscribeShipment(clientID string, shipmentID uint64, snapshot func() (Envelope, error)) error {
	c, err := h.authenticated(clientID)
	if err != nil {
		return err
	}

	if h.access != nil {
		ok, err := h.access.OwnsShipment(c.CustomerID, shipmentID)
		if err != nil || !ok {
			c.enqueue(Envelope{Type: TypeSubscriptionError, Data: ErrorPayload{Reason: "access denied"}})
			return apperr.NewAccessDenied(c.SubscriberID, fmt.Sprintf("shipment:%d", shipmentID))
		}
	}

	topic := ShipmentTopic(shipmentID)
	h.join(c, topic)
	c.enqueue(Envelope{Type: TypeSubscribed, Data: SubscribedPayload{ShipmentID: shipmentID, Topic: topic}})

	if snapshot != nil {
		if env, err := snapshot(); err == nil {
			c.enqueue(env)
		} else {
			slog.Warn("subscribe snapshot failed", "shipment_id", shipmentID, "error", err.Error())
		}
	}
	return nil
}

// SubscribeCustomer joins customer:{id} (self only; the caller is
// responsible for passing the authenticated client's own customer id).
func (h *Hub) SubscribeCustomer(clientID, customerID string) error {
	c, err := h.authenticated(clientID)
	if err != nil {
		return err
	}
	if c.CustomerID != customerID {
		c.enqueue(Envelope{Type: TypeSubscriptionError, Data: ErrorPayload{Reason: "access denied"}})
		return apperr.NewAccessDenied(c.SubscriberID, CustomerTopic(customerID))
	}
	topic := CustomerTopic(customerID)
	h.join(c, topic)
	c.enqueue(Envelope{Type: TypeSubscribed, Data: SubscribedPayload{Topic: topic}})
	return nil
}

func (h *Hub) UnsubscribeShipment(clientID string, shipmentID uint64) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.leave(c, ShipmentTopic(shipmentID))
}

// Disconnect leaves all topics and drops client state.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
		for _, topic := range c.joinedTopics() {
			if m, ok := h.topics[topic]; ok {
				delete(m, clientID)
				if len(m) == 0 {
					delete(h.topics, topic)
				}
			}
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) authenticated(clientID string) (*Client, error) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return nil, apperr.NewNotFound("client", clientID)
	}
	if c.SubscriberID == "" {
		c.enqueue(Envelope{Type: TypeSubscriptionError, Data: ErrorPayload{Reason: "not authenticated"}})
		return nil, apperr.NewAccessDenied("anonymous", "subscribe")
	}
	return c, nil
}

func (h *Hub) join(c *Client, topic string) {
	h.mu.Lock()
	c.join(topic)
	m, ok := h.topics[topic]
	if !ok {
		m = make(map[string]*Client)
		h.topics[topic] = m
	}
	m[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) leave(c *Client, topic string) {
	h.mu.Lock()
	c.leave(topic)
	if m, ok := h.topics[topic]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.topics, topic)
		}
	}
	h.mu.Unlock()
}

// Shutdown notifies every connected client the service is going away,
// then drops them; called during graceful shutdown before the listener
// closes.
func (h *Hub) Shutdown(reason string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(Envelope{Type: TypeServiceShutdown, Data: ErrorPayload{Reason: reason}})
		h.Disconnect(c.ID)
	}
}

// Ping replies with a pong carrying server time.
func (h *Hub) Ping(clientID string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.enqueue(Envelope{Type: TypePong, Data: PongPayload{ServerTime: time.Now().UTC().Format(time.RFC3339)}})
}

// Publish fans a BusEvent out to shipment:{id} and customer:{id}, emitting
// the critical-event side channel alongside the normal message when
// flagged. This is the hub's Publisher-interface implementation that
// internal/services/ingestion depends on.
func (h *Hub) Publish(be models.BusEvent) {
	payload := TrackingEventPayload{
		ShipmentID:       be.ShipmentID,
		AWBNumber:        be.AWBNumber,
		Event:            be.Event,
		ShipmentSnapshot: be,
	}
	env := Envelope{Type: TypeTrackingEvent, Data: payload}

	h.broadcast(ShipmentTopic(be.ShipmentID), env)
	h.broadcast(CustomerTopic(be.CustomerID), Envelope{
		Type: TypeCustomerTrackingUpdate,
		Data: CustomerTrackingUpdatePayload{CustomerID: be.CustomerID, ShipmentUpdate: be},
	})

	if be.Event.IsCritical || be.Event.IsException || be.Event.IsMilestone {
		notif := NotificationPayload{
			Title: fmt.Sprintf("Shipment %s update", be.AWBNumber),
			Body:  be.Event.Description,
			Type:  severityToType(be.Event),
		}
		critical := Envelope{Type: TypeCriticalUpdate, Data: CriticalUpdatePayload{
			TrackingEventPayload: payload,
			Notification:         notif,
		}}
		h.broadcast(ShipmentTopic(be.ShipmentID), critical)
		h.broadcast(CustomerTopic(be.CustomerID), critical)
	}
}

func severityToType(e models.Event) string {
	switch {
	case e.IsException:
		return "exception"
	case e.IsMilestone:
		return "milestone"
	default:
		return "critical"
	}
}

func (h *Hub) broadcast(topic string, env Envelope) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(env)
		if c.Drops() >= h.maxDropsDisconnect {
			slog.Warn("disconnecting client for repeated queue overflow", "client_id", c.ID, "drops", c.Drops())
			h.Disconnect(c.ID)
		}
	}
}
