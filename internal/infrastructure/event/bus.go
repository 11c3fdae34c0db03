package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kambio/backend/internal/domain/shared"
)

// InMemoryEventBus delivers domain events to subscribed handlers in
// process, synchronously, in subscription order. A failing or
// panicking handler is logged and skipped; publication itself never
// fails because a consumer did.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	catchAll []shared.EventHandler

	logger  *zap.Logger
	running atomic.Bool
}

// NewInMemoryEventBus creates an empty bus. Subscribe handlers before
// the first Publish; subscriptions taken later only see later events.
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		byType: make(map[string][]shared.EventHandler),
		logger: logger,
	}
}

// Subscribe registers a handler. With no explicit eventTypes the
// handler's own EventTypes() is used, and if that is empty too the
// handler receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.catchAll = append(b.catchAll, handler)
	} else {
		for _, et := range eventTypes {
			b.byType[et] = append(b.byType[et], handler)
		}
	}

	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler from every event type it was
// registered under.
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.catchAll = without(b.catchAll, handler)
	for et, hs := range b.byType {
		if pruned := without(hs, handler); len(pruned) == 0 {
			delete(b.byType, et)
		} else {
			b.byType[et] = pruned
		}
	}

	b.logger.Debug("handler unsubscribed")
}

// Publish dispatches each event to its type-specific handlers, then to
// the catch-all handlers. Handler errors are logged, never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, ev := range events {
		for _, h := range b.handlersFor(ev.EventType()) {
			if err := b.deliver(ctx, h, ev); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", ev.EventType()),
					zap.String("event_id", ev.EventID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Start marks the bus as running. Delivery is synchronous, so there is
// no background work to launch.
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop marks the bus as stopped.
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped")
	return nil
}

// handlersFor snapshots the delivery list so handlers may subscribe or
// unsubscribe while a publish is in flight.
func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.byType[eventType]
	out := make([]shared.EventHandler, 0, len(typed)+len(b.catchAll))
	out = append(out, typed...)
	out = append(out, b.catchAll...)
	return out
}

// deliver converts a handler panic into an error so one bad consumer
// cannot take down the publisher.
func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}

func without(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	out := handlers[:0:0]
	for _, h := range handlers {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
