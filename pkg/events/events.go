package events

import (
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// EventType represents the type of event.
type EventType string

const (
	EventLogIngested         EventType = "log.ingested"
	EventIncidentCreated     EventType = "incident.created"
	EventIncidentUpdated     EventType = "incident.updated"
	EventIncidentStorm       EventType = "incident.storm"
	EventActionProposed      EventType = "action.proposed"
	EventActionApproved      EventType = "action.approved"
	EventActionExecuted      EventType = "action.executed"
	EventEnrichmentCompleted EventType = "enrichment.completed"
	EventModuleLifecycle     EventType = "module.lifecycle"
)

// Envelope is an immutable event record. Publishers create it; the bus
// and subscribers never mutate it. Subscribers that emit derivative
// events must carry the CorrelationID forward.
type Envelope struct {
	Type          EventType
	Source        string
	Timestamp     time.Time
	CorrelationID string
	Payload       any
}

// Handler processes one envelope. A returned error is logged and
// counted; it does not propagate to the publisher or later handlers.
type Handler func(Envelope) error

type subscription struct {
	id      uint64
	handler Handler
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus       *Bus
	eventType EventType
	id        uint64
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.eventType, s.id)
}

// Bus dispatches envelopes to subscribers. Many goroutines may publish
// concurrently; handlers for a single publish run sequentially in
// subscription order on the publisher's goroutine.
type Bus struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	nextID   uint64
	subs     map[EventType][]subscription
	payloads map[EventType]reflect.Type
}

// NewBus creates a bus with the well-known event vocabulary registered.
func NewBus(logger zerolog.Logger) *Bus {
	b := &Bus{
		logger:   logger,
		subs:     make(map[EventType][]subscription),
		payloads: make(map[EventType]reflect.Type),
	}
	b.RegisterPayload(EventLogIngested, types.LogIngested{})
	b.RegisterPayload(EventIncidentCreated, types.IncidentCreated{})
	b.RegisterPayload(EventIncidentUpdated, types.IncidentUpdated{})
	b.RegisterPayload(EventIncidentStorm, types.IncidentStorm{})
	b.RegisterPayload(EventActionProposed, types.ActionProposed{})
	b.RegisterPayload(EventActionApproved, types.ActionApproved{})
	b.RegisterPayload(EventActionExecuted, types.ActionExecuted{})
	b.RegisterPayload(EventEnrichmentCompleted, types.EnrichmentCompleted{})
	b.RegisterPayload(EventModuleLifecycle, types.ModuleLifecycle{})
	return b
}

// RegisterPayload binds an event type to the concrete payload type of
// the given prototype. Publishing that event type with any other
// payload type is rejected.
func (b *Bus) RegisterPayload(eventType EventType, prototype any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads[eventType] = reflect.TypeOf(prototype)
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: b.nextID, handler: handler})
	return &Subscription{bus: b, eventType: eventType, id: b.nextID}
}

func (b *Bus) remove(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll clears every registration. Used at shutdown.
func (b *Bus) UnsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[EventType][]subscription)
}

// Publish delivers the envelope to every handler registered for its
// type, in subscription order. Handler errors and panics are isolated
// and logged. The only error Publish itself returns is a payload type
// mismatch against the registry.
func (b *Bus) Publish(env Envelope) error {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}

	b.mu.RLock()
	if want, ok := b.payloads[env.Type]; ok {
		got := reflect.TypeOf(env.Payload)
		if got != want {
			b.mu.RUnlock()
			return oerrors.Runtimef("event %s requires payload %s, got %v", env.Type, want, got)
		}
	}
	// Snapshot so handlers can subscribe/unsubscribe during delivery.
	handlers := make([]subscription, len(b.subs[env.Type]))
	copy(handlers, b.subs[env.Type])
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(env.Type)).Inc()

	for _, sub := range handlers {
		b.deliver(env, sub)
	}
	return nil
}

func (b *Bus) deliver(env Envelope, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFailures.WithLabelValues(string(env.Type)).Inc()
			b.logger.Error().Str("event", string(env.Type)).Any("panic", r).Msg("event handler panicked")
		}
	}()

	if err := sub.handler(env); err != nil {
		metrics.HandlerFailures.WithLabelValues(string(env.Type)).Inc()
		b.logger.Error().Str("event", string(env.Type)).Err(err).Msg("event handler failed")
	}
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
