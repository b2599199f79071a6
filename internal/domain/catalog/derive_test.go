package catalog

import (
	"testing"
	"time"

	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/stretchr/testify/require"
)

func ev(code string, at time.Time, location string) *models.Event {
	return &models.Event{
		Code:          code,
		EventDatetime: at,
		CreatedAt:     at,
		Location:      models.Location{Name: location},
	}
}

func TestDeriveState_SingleMilestone(t *testing.T) {
	at := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	d := DeriveState([]*models.Event{ev("CARGO_COLLECTED", at, "SIN")}, "")
	require.Equal(t, models.ShipmentStatusBooked, d.Status)
	require.Equal(t, "SIN", d.Location)
	require.Nil(t, d.DeliveryDate)
}

func TestDeriveState_OutOfOrderDeliveryWins(t *testing.T) {
	collected := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	departed := time.Date(2025, 8, 5, 14, 0, 0, 0, time.UTC)
	delivered := time.Date(2025, 8, 7, 12, 0, 0, 0, time.UTC)

	// Delivery arrives before the departure event does; the winner is
	// still the latest by event time, not by arrival order.
	events := []*models.Event{
		ev("CARGO_COLLECTED", collected, "SIN"),
		ev("DELIVERED", delivered, "HKG"),
		ev("FLIGHT_DEPARTED", departed, "SIN"),
	}
	d := DeriveState(events, "")
	require.Equal(t, models.ShipmentStatusDelivered, d.Status)
	require.Equal(t, "HKG", d.Location)
	require.NotNil(t, d.DeliveryDate)
	require.True(t, d.DeliveryDate.Equal(delivered))
}

func TestDeriveState_PermutationInvariant(t *testing.T) {
	base := time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC)
	events := []*models.Event{
		ev("CARGO_COLLECTED", base.Add(1*time.Hour), "SIN"),
		ev("FLIGHT_DEPARTED", base.Add(4*time.Hour), "SIN"),
		ev("FLIGHT_ARRIVED", base.Add(10*time.Hour), "HKG"),
	}
	want := DeriveState(events, "")

	permutations := [][]*models.Event{
		{events[2], events[0], events[1]},
		{events[1], events[2], events[0]},
		{events[2], events[1], events[0]},
	}
	for _, p := range permutations {
		require.Equal(t, want, DeriveState(p, ""))
	}
}

func TestDeriveState_NonStatusCodesRetainPreviousLocation(t *testing.T) {
	at := time.Date(2025, 8, 6, 8, 0, 0, 0, time.UTC)
	d := DeriveState([]*models.Event{ev("LOCATION_PING", at, "TPE")}, "SIN")
	require.Equal(t, "", d.Status)
	require.Equal(t, "SIN", d.Location)
}

func TestDeriveState_SameTimeBreaksTiesOnCreatedAt(t *testing.T) {
	at := time.Date(2025, 8, 6, 8, 0, 0, 0, time.UTC)
	older := ev("FLIGHT_DEPARTED", at, "SIN")
	newer := ev("FLIGHT_ARRIVED", at, "HKG")
	newer.CreatedAt = at.Add(time.Second)

	d := DeriveState([]*models.Event{newer, older}, "")
	require.Equal(t, models.ShipmentStatusArrived, d.Status)
	require.Equal(t, "HKG", d.Location)
}

func TestSequenceFor_AndEstimatedDuration(t *testing.T) {
	require.Equal(t, int32(-1), SequenceFor("LOCATION_PING"))

	seq := SequenceFor("FLIGHT_ARRIVED")
	require.GreaterOrEqual(t, seq, int32(0))
	require.Greater(t, EstimatedDurationMinutes(seq), int32(0))
	require.Equal(t, int32(0), EstimatedDurationMinutes(SequenceFor("DELIVERED")))
}
