package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/events"
)

func waitForSubscriber(t *testing.T, bus *events.Bus, eventType events.EventType) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount(eventType) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no subscriber appeared for %s", eventType)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// sseEvents parses the data payloads out of a raw SSE body.
func sseEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		out = append(out, payload)
	}
	return out
}

func TestEventsStreamHandler_ForwardsFilteredEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	handler := NewEventsStreamHandler(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?types=BalanceComputed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	waitForSubscriber(t, bus, events.BalanceComputed)

	// Matching event is forwarded, the filtered one is not
	bus.Emit(events.BalanceComputed, "balance", map[string]interface{}{"year": float64(2025), "month": float64(7)})
	bus.Emit(events.AlertRaised, "alerts", map[string]interface{}{"alert_id": "x"})

	// Give the loop a moment to drain the channel before disconnecting
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after disconnect")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	payloads := sseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(payloads), 2)

	assert.Equal(t, "connected", payloads[0]["type"])

	var types []string
	for _, p := range payloads[1:] {
		types = append(types, p["type"].(string))
	}
	assert.Contains(t, types, "BalanceComputed")
	assert.NotContains(t, types, "AlertRaised")

	// Unsubscribed after disconnect
	assert.Equal(t, 0, bus.SubscriberCount(events.BalanceComputed))
}

func TestEventsStreamHandler_UnfilteredReceivesEverything(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	handler := NewEventsStreamHandler(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(rec, req)
		close(done)
	}()

	waitForSubscriber(t, bus, events.WorkbookReloaded)

	bus.Emit(events.WorkbookReloaded, "workbook", map[string]interface{}{"path": "site.xlsx"})
	bus.Emit(events.AlertRaised, "alerts", map[string]interface{}{"alert_id": "a1"})

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after disconnect")
	}

	var types []string
	for _, p := range sseEvents(t, rec.Body.String()) {
		types = append(types, p["type"].(string))
	}
	assert.Contains(t, types, "WorkbookReloaded")
	assert.Contains(t, types, "AlertRaised")
}

func TestSubscribeFiltered(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	t.Run("empty filter subscribes to all types", func(t *testing.T) {
		unsubs := subscribeFiltered(bus, "", func(event *events.Event) {})
		require.Len(t, unsubs, 1)
		assert.Equal(t, 1, bus.SubscriberCount(events.BalanceComputed))
		assert.Equal(t, 1, bus.SubscriberCount(events.JobFailed))

		for _, u := range unsubs {
			u()
		}
		assert.Equal(t, 0, bus.SubscriberCount(events.BalanceComputed))
	})

	t.Run("filter subscribes listed types only", func(t *testing.T) {
		unsubs := subscribeFiltered(bus, "BalanceComputed, AlertRaised,", func(event *events.Event) {})
		require.Len(t, unsubs, 2)
		assert.Equal(t, 1, bus.SubscriberCount(events.BalanceComputed))
		assert.Equal(t, 1, bus.SubscriberCount(events.AlertRaised))
		assert.Equal(t, 0, bus.SubscriberCount(events.WorkbookReloaded))

		for _, u := range unsubs {
			u()
		}
	})
}
