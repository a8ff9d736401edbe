package registry

import "sync"

// Registry is a thread-safe map of values indexed by key.
// Writers take the exclusive lock; lookups and snapshots share the read lock.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Add stores value under key unless the key is already present.
// It reports whether the value was stored.
func (r *Registry[K, V]) Add(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return false
	}
	r.entries[key] = value
	return true
}

// Set adds or replaces a value.
func (r *Registry[K, V]) Set(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Remove deletes a key and reports whether it was present.
func (r *Registry[K, V]) Remove(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// Clear removes every entry and returns what was removed.
func (r *Registry[K, V]) Clear() map[K]V {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.entries
	r.entries = make(map[K]V)
	return old
}

// Keys returns all keys in the registry.
// The order is not guaranteed.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Values returns all values in the registry.
// The order is not guaranteed.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, len(r.entries))
	for _, v := range r.entries {
		values = append(values, v)
	}
	return values
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
