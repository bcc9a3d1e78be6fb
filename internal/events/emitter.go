package events

import (
	"log/slog"
	"sync"
)

// Handler receives an event payload.
type Handler func(payload any)

// entry pairs a handler with a registration ID so removal targets exactly
// one registration, never the whole set.
type entry struct {
	id int64
	fn Handler
}

// Emitter maps event names to ordered handler lists.
type Emitter struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int64
	handlers map[string][]entry
}

// NewEmitter creates an emitter. A nil logger falls back to slog.Default().
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		logger:   logger,
		handlers: make(map[string][]entry),
	}
}

// On registers a handler for an event and returns a function that removes
// exactly that registration. The returned function is safe to call more
// than once.
func (e *Emitter) On(event string, fn Handler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.handlers[event] = append(e.handlers[event], entry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		list := e.handlers[event]
		for i, ent := range list {
			if ent.id == id {
				e.handlers[event] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(e.handlers[event]) == 0 {
			delete(e.handlers, event)
		}
	}
}

// Emit dispatches payload to every handler registered for event,
// synchronously and in registration order. A handler panic is recovered
// and logged so the remaining handlers still run.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	list := e.handlers[event]
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	e.mu.Unlock()

	for _, ent := range snapshot {
		e.dispatch(event, ent, payload)
	}
}

// HandlerCount returns the number of handlers registered for event.
func (e *Emitter) HandlerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

// HasEvent reports whether any handler is registered for event.
func (e *Emitter) HasEvent(event string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handlers[event]
	return ok
}

func (e *Emitter) dispatch(event string, ent entry, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				"event", event,
				"panic", r,
			)
		}
	}()
	ent.fn(payload)
}
