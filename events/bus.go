package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for engine notifications.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case EngineStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case MonitorUnboundEvent:
		event.Publish(b.dispatcher, e)
	case MasterUnboundEvent:
		event.Publish(b.dispatcher, e)
	case InputAddedEvent:
		event.Publish(b.dispatcher, e)
	case InputRemovedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceListChangedEvent:
		event.Publish(b.dispatcher, e)
	case ConversionFaultsEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler and returns an unsubscribe function.
// The handler's parameter type selects which events it receives.
// Usage: unsub := bus.Subscribe(func(e MonitorUnboundEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(EngineStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MonitorUnboundEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(MasterUnboundEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InputAddedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InputRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceListChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConversionFaultsEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
