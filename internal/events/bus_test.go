package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitReachesSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	bus.Subscribe(FacilityChanged, func(e *Event) {
		got = append(got, e)
	})

	bus.Emit(FacilityChanged, "facilities", map[string]interface{}{"code": "TSF1", "action": "created"})
	bus.Emit(BalanceComputed, "balance", nil) // different type, not delivered

	require.Len(t, got, 1)
	assert.Equal(t, FacilityChanged, got[0].Type)
	assert.Equal(t, "facilities", got[0].Module)
	assert.Equal(t, "TSF1", got[0].Data["code"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	unsub := bus.Subscribe(AlertRaised, func(e *Event) { calls++ })

	bus.Emit(AlertRaised, "alerts", nil)
	unsub()
	bus.Emit(AlertRaised, "alerts", nil)

	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.SubscriberCount(AlertRaised))
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(WorkbookReloaded, func(e *Event) { panic("boom") })

	delivered := false
	bus.Subscribe(WorkbookReloaded, func(e *Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Emit(WorkbookReloaded, "workbook", nil)
	})
	assert.True(t, delivered)
}

func TestBus_EmitDataFlattensTypedPayload(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got *Event
	bus.Subscribe(BalanceComputed, func(e *Event) { got = e })

	bus.EmitData("balance", &BalanceComputedData{Year: 2025, Month: 3, Mode: "AUDIT", Status: "RED", ErrorPct: 7.5})

	require.NotNil(t, got)
	assert.Equal(t, "AUDIT", got.Data["mode"])
	assert.Equal(t, "RED", got.Data["status"])
	// JSON numbers decode as float64 in the map form.
	assert.Equal(t, float64(2025), got.Data["year"])
}

func TestBus_SubscribeAllCoversEveryType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	seen := map[EventType]int{}
	unsub := bus.SubscribeAll(func(e *Event) { seen[e.Type]++ })

	for _, et := range AllEventTypes() {
		bus.Emit(et, "test", nil)
	}
	assert.Len(t, seen, len(AllEventTypes()))

	unsub()
	bus.Emit(BalanceComputed, "test", nil)
	assert.Equal(t, 1, seen[BalanceComputed])
}
