package hub

import (
	"testing"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

type allowAllAccess struct{}

func (allowAllAccess) OwnsShipment(customerID string, shipmentID uint64) (bool, error) {
	return true, nil
}

func drain(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case env := <-c.Outbound():
		return env
	default:
		t.Fatal("expected a queued message")
		return Envelope{}
	}
}

func TestHub_ConnectAuthenticateSubscribe(t *testing.T) {
	h := New(8, 50, allowAllAccess{})

	c := h.Connect()
	require.Equal(t, TypeConnected, drain(t, c).Type)

	require.NoError(t, h.Authenticate(c.ID, "sub-1", "c-1"))
	require.Equal(t, TypeAuthenticated, drain(t, c).Type)

	require.NoError(t, h.SubscribeShipment(c.ID, 42, nil))
	require.Equal(t, TypeSubscribed, drain(t, c).Type)
	require.True(t, c.isJoined(ShipmentTopic(42)))

	h.UnsubscribeShipment(c.ID, 42)
	require.False(t, c.isJoined(ShipmentTopic(42)))
}

func TestHub_Publish_FanOutAndCriticalChannel(t *testing.T) {
	h := New(8, 50, allowAllAccess{})

	a := h.Connect()
	drain(t, a)
	require.NoError(t, h.Authenticate(a.ID, "sub-a", "c-1"))
	drain(t, a)
	require.NoError(t, h.SubscribeShipment(a.ID, 1, nil))
	drain(t, a)

	b := h.Connect()
	drain(t, b)
	require.NoError(t, h.Authenticate(b.ID, "sub-b", "c-1"))
	drain(t, b)
	require.NoError(t, h.SubscribeCustomer(b.ID, "c-1"))
	drain(t, b)

	h.Publish(models.BusEvent{
		ShipmentID: 1,
		CustomerID: "c-1",
		AWBNumber:  "125-12345678",
		Event:      models.Event{Code: "FLIGHT_ARRIVED", IsMilestone: true},
	})

	aMsg := drain(t, a)
	require.Equal(t, TypeTrackingEvent, aMsg.Type)
	aCritical := drain(t, a)
	require.Equal(t, TypeCriticalUpdate, aCritical.Type)

	bMsg := drain(t, b)
	require.Equal(t, TypeCustomerTrackingUpdate, bMsg.Type)
	bCritical := drain(t, b)
	require.Equal(t, TypeCriticalUpdate, bCritical.Type)
}

// customerOnlyAccess grants access by customerID alone, regardless of
// subscriberID, mirroring wsapi.ServiceAccess.OwnsShipment's real
// CustomerID-keyed check.
type customerOnlyAccess struct{ ownerCustomerID string }

func (a customerOnlyAccess) OwnsShipment(customerID string, shipmentID uint64) (bool, error) {
	return customerID == a.ownerCustomerID, nil
}

func TestHub_SubscribeShipment_ChecksCustomerIDNotSubscriberID(t *testing.T) {
	h := New(8, 50, customerOnlyAccess{ownerCustomerID: "c-1"})

	c := h.Connect()
	drain(t, c)
	// subscriber_id deliberately differs from customer_id, which the
	// authenticate frame allows.
	require.NoError(t, h.Authenticate(c.ID, "sub-other", "c-1"))
	drain(t, c)

	require.NoError(t, h.SubscribeShipment(c.ID, 7, nil))
	require.Equal(t, TypeSubscribed, drain(t, c).Type)
}

func TestHub_Backpressure_DropsOldestAndDisconnectsOnRepeatedOverflow(t *testing.T) {
	h := New(1, 2, allowAllAccess{})

	c := h.Connect()
	drain(t, c) // connected message consumes the only slot

	for i := 0; i < 5; i++ {
		h.Publish(models.BusEvent{ShipmentID: 99, CustomerID: "c-x", Event: models.Event{Code: "LOCATION_PING"}})
	}
	// never subscribed, so Publish doesn't even reach this client; drive
	// drops directly via SubscribeShipment's queue instead.
	require.NoError(t, h.Authenticate(c.ID, "s", "c-x"))
	drain(t, c)
	require.NoError(t, h.SubscribeShipment(c.ID, 99, nil))
	drain(t, c)

	for i := 0; i < 10; i++ {
		h.Publish(models.BusEvent{ShipmentID: 99, CustomerID: "c-x", Event: models.Event{Code: "LOCATION_PING"}})
	}
	require.True(t, c.Drops() > 0)
}

func TestHub_Shutdown_NotifiesAndDisconnects(t *testing.T) {
	h := New(8, 50, allowAllAccess{})
	c := h.Connect()
	drain(t, c)

	h.Shutdown("maintenance")
	require.Equal(t, TypeServiceShutdown, drain(t, c).Type)
	require.True(t, c.Closed())
}
