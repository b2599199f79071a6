package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvent_IsDuplicateOf(t *testing.T) {
	base := time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC)
	existing := &Event{Code: "CARGO_COLLECTED", EventDatetime: base}

	t.Run("same code inside window, no external ids", func(t *testing.T) {
		c := &Event{Code: "CARGO_COLLECTED", EventDatetime: base.Add(4*time.Minute + 59*time.Second)}
		require.True(t, c.IsDuplicateOf(existing))
	})

	t.Run("window boundary is exclusive", func(t *testing.T) {
		c := &Event{Code: "CARGO_COLLECTED", EventDatetime: base.Add(DedupWindow)}
		require.False(t, c.IsDuplicateOf(existing))
	})

	t.Run("different code is never a duplicate", func(t *testing.T) {
		c := &Event{Code: "FLIGHT_DEPARTED", EventDatetime: base}
		require.False(t, c.IsDuplicateOf(existing))
	})

	t.Run("matching external ids", func(t *testing.T) {
		a := &Event{Code: "X", EventDatetime: base, ExternalID: "ext-1"}
		b := &Event{Code: "X", EventDatetime: base.Add(time.Minute), ExternalID: "ext-1"}
		require.True(t, b.IsDuplicateOf(a))
	})

	t.Run("mismatched external ids", func(t *testing.T) {
		a := &Event{Code: "X", EventDatetime: base, ExternalID: "ext-1"}
		b := &Event{Code: "X", EventDatetime: base, ExternalID: "ext-2"}
		require.False(t, b.IsDuplicateOf(a))
	})

	t.Run("one side missing an external id", func(t *testing.T) {
		a := &Event{Code: "X", EventDatetime: base, ExternalID: "ext-1"}
		b := &Event{Code: "X", EventDatetime: base}
		require.False(t, b.IsDuplicateOf(a))
	})

	t.Run("candidate earlier than existing", func(t *testing.T) {
		c := &Event{Code: "CARGO_COLLECTED", EventDatetime: base.Add(-2 * time.Minute)}
		require.True(t, c.IsDuplicateOf(existing))
	})
}

func TestSubscription_Matches(t *testing.T) {
	milestone := &Event{IsMilestone: true}
	exception := &Event{IsException: true}
	location := &Event{Category: EventCategoryLocationUpdate}

	sub := &Subscription{Active: true, FilterMilestone: true}
	require.True(t, sub.Matches(milestone))
	require.False(t, sub.Matches(exception))
	require.False(t, sub.Matches(location))

	all := &Subscription{Active: true, FilterAllEvents: true}
	require.True(t, all.Matches(location))

	inactive := &Subscription{Active: false, FilterAllEvents: true}
	require.False(t, inactive.Matches(milestone))
}
