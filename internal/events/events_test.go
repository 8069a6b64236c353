package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishJSON(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(EventBookingCreated, func(e *Event) error {
		got = append(got, *e)
		return nil
	})

	payload := BookingEventPayload{BookingID: 42, Reference: "ref-42", Status: "pending"}
	require.NoError(t, bus.PublishJSON(EventBookingCreated, payload))

	require.Len(t, got, 1)
	assert.Equal(t, EventBookingCreated, got[0].Type)

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &decoded))
	assert.Equal(t, int64(42), decoded.BookingID)
	assert.Equal(t, "ref-42", decoded.Reference)
}

func TestBusIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(EventTransactionConfirmed, func(e *Event) error {
		called = true
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventBookingCreated, BookingEventPayload{}))
	assert.False(t, called)
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.PublishJSON(EventBookingCreated, nil))
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, Nop{}.PublishJSON("anything", map[string]int{"x": 1}))
}
