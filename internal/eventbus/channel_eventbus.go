package eventbus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChannelEventBus is an implementation of EventBus using Go channels
type ChannelEventBus struct {
	// subscribers maps event types to a map of subscription IDs to handlers
	subscribers map[EventType]map[string]EventHandler

	// allSubscribers contains handlers that receive every event
	allSubscribers map[string]EventHandler

	// eventChan is the channel where events are published
	eventChan chan eventWithContext

	// done signals graceful shutdown
	done chan struct{}

	// closed indicates the bus has been shut down
	closed bool

	// wg tracks active workers
	wg sync.WaitGroup

	// mutex protects the subscriber maps and closed flag
	mutex sync.RWMutex

	// Configuration
	bufferSize  int
	workerCount int
}

// eventWithContext bundles an event with its context for processing
type eventWithContext struct {
	ctx   context.Context
	event Event
}

// Option configures the channel-based event bus
type Option func(*ChannelEventBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) Option {
	return func(eb *ChannelEventBus) {
		eb.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) Option {
	return func(eb *ChannelEventBus) {
		eb.workerCount = count
	}
}

// NewChannelEventBus creates a new channel-based event bus
func NewChannelEventBus(options ...Option) *ChannelEventBus {
	eb := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),
		done:           make(chan struct{}),
		bufferSize:     100,
		workerCount:    5,
	}

	for _, option := range options {
		option(eb)
	}

	eb.eventChan = make(chan eventWithContext, eb.bufferSize)
	eb.startWorkers()

	return eb
}

func (eb *ChannelEventBus) startWorkers() {
	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}
}

func (eb *ChannelEventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.done:
			return
		case evt := <-eb.eventChan:
			eb.processEvent(evt)
		}
	}
}

// processEvent dispatches the event to all relevant subscribers
func (eb *ChannelEventBus) processEvent(evt eventWithContext) {
	if evt.ctx.Err() != nil {
		return
	}

	// Copy the handler maps so the lock is not held during execution;
	// handlers may subscribe/unsubscribe themselves.
	eb.mutex.RLock()
	typeHandlers := make(map[string]EventHandler)
	if handlers, exists := eb.subscribers[evt.event.Type()]; exists {
		for id, handler := range handlers {
			typeHandlers[id] = handler
		}
	}
	allHandlers := make(map[string]EventHandler)
	for id, handler := range eb.allSubscribers {
		allHandlers[id] = handler
	}
	eb.mutex.RUnlock()

	for _, handler := range typeHandlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}
	for _, handler := range allHandlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}
}

func (eb *ChannelEventBus) executeHandler(ctx context.Context, event Event, handler EventHandler) {
	if ctx.Err() != nil {
		return
	}
	if err := handler(ctx, event); err != nil {
		// Log the error but don't stop other handlers
		log.Printf("Event handler error (event_type: %s): %v", event.Type(), err)
	}
}

// Publish sends an event to all subscribed handlers
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	eb.mutex.RLock()
	closed := eb.closed
	eb.mutex.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.done:
		return fmt.Errorf("event bus is closed")
	case eb.eventChan <- eventWithContext{ctx: ctx, event: event}:
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	subscriptionID := uuid.New().String()

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	for _, eventType := range eventTypes {
		if _, exists := eb.subscribers[eventType]; !exists {
			eb.subscribers[eventType] = make(map[string]EventHandler)
		}
		eb.subscribers[eventType][subscriptionID] = handler
	}

	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	subscriptionID := uuid.New().String()

	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	eb.allSubscribers[subscriptionID] = handler

	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return fmt.Errorf("event bus is closed")
	}

	delete(eb.allSubscribers, subscriptionID)
	for eventType, subscribers := range eb.subscribers {
		if _, exists := subscribers[subscriptionID]; exists {
			delete(eb.subscribers[eventType], subscriptionID)
		}
	}

	return nil
}

// Close shuts down the event bus, cleaning up resources
func (eb *ChannelEventBus) Close() error {
	eb.mutex.Lock()
	if eb.closed {
		eb.mutex.Unlock()
		return nil
	}
	eb.closed = true
	eb.mutex.Unlock()

	close(eb.done)

	// Give in-flight events a moment to drain before workers exit
	drainDeadline := time.After(100 * time.Millisecond)
	for {
		select {
		case evt := <-eb.eventChan:
			eb.processEvent(evt)
			continue
		case <-drainDeadline:
		}
		break
	}

	eb.wg.Wait()
	return nil
}
