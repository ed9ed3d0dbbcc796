package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quoteflow/cpq-backend/internal/domain/event"
)

// Dispatcher is the in-process bus between the workflow engine and its
// notification consumers. The engine publishes after its transaction
// commits; a failing consumer can never undo a committed quote
// transition.
type Dispatcher interface {
	// Subscribe registers a handler under a name for one event type.
	Subscribe(eventType event.Type, name string, fn Handler)

	// Unsubscribe removes the named handler for an event type.
	Unsubscribe(eventType event.Type, name string)

	// Dispatch delivers the event to every subscriber in registration
	// order and stops at the first error.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync delivers the event off the caller's goroutine.
	// Subscribers still run in registration order; errors are logged,
	// never returned.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Subscribers returns the registered handler names for an event type.
	Subscribers(eventType event.Type) []string

	// Close stops accepting events and waits for in-flight async
	// deliveries to finish.
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// bus is the concrete Dispatcher.
type bus struct {
	mu     sync.RWMutex
	subs   map[event.Type][]subscription
	logger Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewDispatcher creates an empty bus. A nil logger silences it.
func NewDispatcher(logger Logger) Dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	return &bus{
		subs:   make(map[event.Type][]subscription),
		logger: logger,
	}
}

func (b *bus) Subscribe(eventType event.Type, name string, fn Handler) {
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{name: name, fn: fn})
	b.mu.Unlock()

	b.logger.Info("Subscriber registered", "event_type", eventType, "name", name)
}

func (b *bus) Unsubscribe(eventType event.Type, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[eventType][:0]
	for _, sub := range b.subs[eventType] {
		if sub.name != name {
			kept = append(kept, sub)
		}
	}
	b.subs[eventType] = kept
}

func (b *bus) Dispatch(ctx context.Context, evt *event.Event) error {
	if b.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, sub := range b.snapshot(evt.Type) {
		if err := b.deliver(ctx, evt, sub); err != nil {
			return fmt.Errorf("subscriber %s: %w", sub.name, err)
		}
	}
	return nil
}

func (b *bus) DispatchAsync(ctx context.Context, evt *event.Event) {
	if b.closed.Load() {
		b.logger.Error("Event dropped, dispatcher is closed",
			"event_type", evt.Type, "event_id", evt.ID)
		return
	}

	subs := b.snapshot(evt.Type)
	if len(subs) == 0 {
		return
	}

	// One goroutine per event keeps subscriber order within the event
	// while decoupling delivery from the publisher.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, sub := range subs {
			if err := b.deliver(ctx, evt, sub); err != nil {
				b.logger.Error("Subscriber failed",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"quote_id", evt.QuoteID,
					"subscriber", sub.name,
					"error", err,
				)
			}
		}
	}()
}

func (b *bus) Subscribers(eventType event.Type) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.subs[eventType]))
	for _, sub := range b.subs[eventType] {
		names = append(names, sub.name)
	}
	return names
}

func (b *bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}
	b.wg.Wait()
	return nil
}

func (b *bus) snapshot(eventType event.Type) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make([]subscription, len(b.subs[eventType]))
	copy(subs, b.subs[eventType])
	return subs
}

// deliver runs one subscriber with panic containment; a panicking
// consumer must not take the publisher down with it.
func (b *bus) deliver(ctx context.Context, evt *event.Event, sub subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.fn(ctx, evt)
}
