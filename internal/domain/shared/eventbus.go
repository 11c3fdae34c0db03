package shared

import "context"

// EventHandler consumes domain events. EventTypes narrows the
// subscription; an empty slice subscribes the handler to everything.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventPublisher is the write side of the bus. Aggregates queue events,
// the application layer hands them here after a successful save.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus dispatches published events to subscribed handlers. Start
// and Stop bracket any background delivery the implementation runs.
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
