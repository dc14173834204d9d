package wssession

import (
	"sync"
)

type (
	callback[T any] func(T)

	// Emitter is the outbound half of the event bridge: the controller emits every
	// lifecycle event and every fallback message under its method name.
	Emitter[K comparable, V any] interface {
		Emit(K, V)
	}

	listenerEntry[V any] struct {
		id uint64
		fn callback[V]
	}
)

// EventEmitterCallback is a simple event emitter. It maps events (of type K) to callbacks
// receiving values of type V. Callbacks run synchronously on the emitting goroutine, in
// registration order.
type EventEmitterCallback[K comparable, V any] struct {
	listeners map[K][]listenerEntry[V]
	nextID    uint64
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitterCallback and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitterCallback[K, V] {
	return &EventEmitterCallback[K, V]{
		listeners: make(map[K][]listenerEntry[V]),
	}
}

// On registers a new listener for the given event and returns a function removing it.
func (e *EventEmitterCallback[K, V]) On(event K, listener callback[V]) (off func()) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listenerEntry[V]{id: id, fn: listener})

	return func() { e.off(event, id) }
}

func (e *EventEmitterCallback[K, V]) off(event K, id uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()

	entries := e.listeners[event]
	for i, entry := range entries {
		if entry.id == id {
			e.listeners[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(e.listeners[event]) == 0 {
		delete(e.listeners, event)
	}
}

// Has reports whether at least one listener is registered for event.
func (e *EventEmitterCallback[K, V]) Has(event K) bool {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return len(e.listeners[event]) > 0
}

// Emit triggers all listeners registered for the given event synchronously. The method
// returns when every listener has returned. A listener may not register or remove
// listeners on the same emitter.
func (e *EventEmitterCallback[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	for _, entry := range e.listeners[event] {
		entry.fn(data)
	}
}

// Close removes all listeners.
func (e *EventEmitterCallback[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K][]listenerEntry[V])
}

type noopEmitter[K comparable, V any] struct{}

func (noopEmitter[K, V]) Emit(K, V) {}
