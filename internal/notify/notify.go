// Package notify implements a generic watch/unwatch/notify substrate: a
// mapping from string keys to callback lists with registration handles for
// removal. It carries no cache semantics; the store layers key routing and
// load triggering on top of it.
package notify

import (
	"slices"
	"sync"
)

// Callback receives the payload for one key it was registered under.
type Callback[T any] func(payload T)

// entry pairs a callback with the id used to remove it. Function values are
// not comparable, so removal goes through the id.
type entry[T any] struct {
	id int
	fn Callback[T]
}

// Notifier fans payloads out to callbacks registered per key. The callback
// list is copied on write, so notifying never holds the lock while user code
// runs.
type Notifier[T any] struct {
	mu     sync.Mutex
	nextID int
	byKey  map[string][]entry[T]
}

// New creates an empty Notifier.
func New[T any]() *Notifier[T] {
	return &Notifier[T]{
		byKey: make(map[string][]entry[T]),
	}
}

// Registration identifies one Watch call for later removal.
type Registration struct {
	id   int
	keys []string
}

// WatchedKeys returns the keys this registration covers.
func (r *Registration) WatchedKeys() []string {
	return slices.Clone(r.keys)
}

// Watch registers fn under each of the given keys (duplicates collapsed) and
// returns the handle that removes the registration.
func (n *Notifier[T]) Watch(keys []string, fn Callback[T]) *Registration {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	reg := &Registration{id: n.nextID}
	for _, key := range keys {
		if slices.Contains(reg.keys, key) {
			continue
		}
		reg.keys = append(reg.keys, key)
		n.byKey[key] = append(slices.Clone(n.byKey[key]), entry[T]{id: reg.id, fn: fn})
	}
	return reg
}

// Unwatch removes a registration from every key it covers. Removing an
// already removed registration is a no-op.
func (n *Notifier[T]) Unwatch(reg *Registration) {
	if reg == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, key := range reg.keys {
		entries := n.byKey[key]
		i := slices.IndexFunc(entries, func(e entry[T]) bool { return e.id == reg.id })
		if i < 0 {
			continue
		}
		next := slices.Clone(entries)
		next = slices.Delete(next, i, i+1)
		if len(next) == 0 {
			delete(n.byKey, key)
		} else {
			n.byKey[key] = next
		}
	}
}

// Notify fires every callback registered under key with the payload.
// Callbacks run on the caller's goroutine, outside the notifier lock.
func (n *Notifier[T]) Notify(key string, payload T) {
	n.mu.Lock()
	entries := n.byKey[key]
	n.mu.Unlock()

	for _, e := range entries {
		e.fn(payload)
	}
}

// HasWatchers reports whether any callback is registered under key.
func (n *Notifier[T]) HasWatchers(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.byKey[key]) > 0
}

// ActiveKeys returns the keys that currently have at least one watcher, in
// unspecified order.
func (n *Notifier[T]) ActiveKeys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys := make([]string, 0, len(n.byKey))
	for key := range n.byKey {
		keys = append(keys, key)
	}
	return keys
}
