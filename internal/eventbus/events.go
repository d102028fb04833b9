// Package eventbus provides the event dispatch system used for
// observability hooks around query routing and chain execution.
package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Query lifecycle events
	EventQueryReceived   EventType = "query_received"
	EventQueryClassified EventType = "query_classified"
	EventQueryAnswered   EventType = "query_answered"
	EventQueryFailed     EventType = "query_failed"

	// Capability execution events
	EventCapabilityInvoked EventType = "capability_invoked"
	EventCapabilitySuccess EventType = "capability_success"
	EventCapabilityFailure EventType = "capability_failure"

	// Chain lifecycle events
	EventChainGenerated    EventType = "chain_generated"
	EventChainStarted      EventType = "chain_started"
	EventChainStepStarted  EventType = "chain_step_started"
	EventChainStepSkipped  EventType = "chain_step_skipped"
	EventChainStepSuccess  EventType = "chain_step_success"
	EventChainStepFailure  EventType = "chain_step_failure"
	EventChainStepRetried  EventType = "chain_step_retried"
	EventChainStepCached   EventType = "chain_step_cached"
	EventChainCompleted    EventType = "chain_completed"
	EventResponseRendered  EventType = "response_rendered"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types.
	// Returns a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// Type returns the event type
func (e *BaseEvent) Type() EventType { return e.eventType }

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} { return e.payload }

// Metadata returns additional event information
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 { return e.timestamp }

// Source returns what generated the event
func (e *BaseEvent) Source() string { return e.sourceInfo }
