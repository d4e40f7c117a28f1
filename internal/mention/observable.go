package mention

import (
	"slices"
	"sync"
)

// observable holds a current value and broadcasts every change to its
// subscribers. New subscribers receive the current value right away.
// Notifications are serialized, so listeners must not call Set.
type observable[T any] struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	value     T
	replay    bool
	nextID    int
	listeners map[int]func(T)
}

func newObservable[T any](initial T) *observable[T] {
	return &observable[T]{
		value:     initial,
		replay:    true,
		listeners: make(map[int]func(T)),
	}
}

// newSignal creates an observable that does not replay its last value to
// new subscribers.
func newSignal[T any]() *observable[T] {
	return &observable[T]{listeners: make(map[int]func(T))}
}

func (o *observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

func (o *observable[T]) Set(value T) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.mu.Lock()
	o.value = value
	listeners := o.snapshotListeners()
	o.mu.Unlock()
	for _, listener := range listeners {
		listener(value)
	}
}

func (o *observable[T]) Subscribe(listener func(T)) func() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.mu.Lock()
	listenerID := o.nextID
	o.nextID++
	o.listeners[listenerID] = listener
	current := o.value
	o.mu.Unlock()
	if o.replay {
		listener(current)
	}
	return func() {
		o.mu.Lock()
		delete(o.listeners, listenerID)
		o.mu.Unlock()
	}
}

func (o *observable[T]) Clear() {
	o.mu.Lock()
	clear(o.listeners)
	o.mu.Unlock()
}

func (o *observable[T]) snapshotListeners() []func(T) {
	ids := make([]int, 0, len(o.listeners))
	for listenerID := range o.listeners {
		ids = append(ids, listenerID)
	}
	slices.Sort(ids)
	listeners := make([]func(T), 0, len(ids))
	for _, listenerID := range ids {
		listeners = append(listeners, o.listeners[listenerID])
	}
	return listeners
}
