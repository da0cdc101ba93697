package events

import (
	"sync"

	"evmbridge/core/types"
)

// Event represents a structured state change emitted by the bridge.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves into the generic
// attribute form consumed by the RPC and audit layers.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until the owning state transition commits. Nothing
// reaches subscribers for a call that is rolled back.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Drain returns the buffered events in emission order and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Discard drops every buffered event.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Fanout forwards every event to each of the wrapped emitters.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Render converts evt into its attribute form. Events that do not implement
// Typed render with their type only.
func Render(evt Event) *types.Event {
	if typed, ok := evt.(Typed); ok {
		if rendered := typed.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
