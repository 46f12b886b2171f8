package events

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

func newTestBus() *Bus {
	return NewBus(zerolog.Nop())
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := newTestBus()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		bus.Subscribe(EventLogIngested, func(env Envelope) error {
			order = append(order, name)
			return nil
		})
	}

	err := bus.Publish(Envelope{
		Type:    EventLogIngested,
		Source:  "connector.test",
		Payload: types.LogIngested{Source: "test", Line: "hello", IngestedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	bus := newTestBus()

	var delivered []string
	bus.Subscribe(EventLogIngested, func(env Envelope) error {
		delivered = append(delivered, "failing")
		return errors.New("boom")
	})
	bus.Subscribe(EventLogIngested, func(env Envelope) error {
		panic("worse")
	})
	bus.Subscribe(EventLogIngested, func(env Envelope) error {
		delivered = append(delivered, "healthy")
		return nil
	})

	err := bus.Publish(Envelope{
		Type:    EventLogIngested,
		Source:  "connector.test",
		Payload: types.LogIngested{Line: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"failing", "healthy"}, delivered)
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	calls := 0
	sub := bus.Subscribe(EventIncidentCreated, func(env Envelope) error {
		calls++
		return nil
	})

	env := Envelope{
		Type:    EventIncidentCreated,
		Source:  "detector.test",
		Payload: types.IncidentCreated{IncidentID: "inc-1"},
	}
	require.NoError(t, bus.Publish(env))

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
	require.NoError(t, bus.Publish(env))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.SubscriberCount(EventIncidentCreated))
}

func TestUnsubscribeAll(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(EventLogIngested, func(Envelope) error { return nil })
	bus.Subscribe(EventIncidentCreated, func(Envelope) error { return nil })

	bus.UnsubscribeAll()

	assert.Equal(t, 0, bus.SubscriberCount(EventLogIngested))
	assert.Equal(t, 0, bus.SubscriberCount(EventIncidentCreated))
}

func TestPublishRejectsWrongPayloadType(t *testing.T) {
	bus := newTestBus()

	err := bus.Publish(Envelope{
		Type:    EventIncidentCreated,
		Source:  "detector.test",
		Payload: types.LogIngested{Line: "not an incident"},
	})
	assert.Error(t, err)
}

func TestCorrelationIDTravelsWithEnvelope(t *testing.T) {
	bus := newTestBus()

	var got string
	bus.Subscribe(EventIncidentCreated, func(env Envelope) error {
		got = env.CorrelationID
		return nil
	})

	require.NoError(t, bus.Publish(Envelope{
		Type:          EventIncidentCreated,
		Source:        "detector.test",
		CorrelationID: "corr-42",
		Payload:       types.IncidentCreated{IncidentID: "inc-1"},
	}))
	assert.Equal(t, "corr-42", got)
}

func TestTimestampDefaulted(t *testing.T) {
	bus := newTestBus()

	var ts time.Time
	bus.Subscribe(EventLogIngested, func(env Envelope) error {
		ts = env.Timestamp
		return nil
	})

	require.NoError(t, bus.Publish(Envelope{
		Type:    EventLogIngested,
		Source:  "connector.test",
		Payload: types.LogIngested{Line: "x"},
	}))
	assert.False(t, ts.IsZero())
}
