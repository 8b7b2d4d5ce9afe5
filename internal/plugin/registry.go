package plugin

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

const (
	// BuiltinID is the provider id of the built-in map database. It never
	// occupies a registry slot.
	BuiltinID = 0

	// MaxProviders is the registry capacity, including the reserved slot 0.
	MaxProviders = 10
)

var (
	ErrNoCapacity       = errors.New("plugin: no provider slot available")
	ErrProviderMissing  = errors.New("plugin: provider is not registered")
	ErrCapabilityAbsent = errors.New("plugin: provider does not implement capability")
)

// Registry maps provider ids to providers. Slot occupancy is the only
// record of which ids are registered.
type Registry struct {
	mu    sync.RWMutex
	slots [MaxProviders]Provider
}

// Entry is a registered provider together with its id.
type Entry struct {
	ID       int
	Provider Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores p in the first free slot and returns its id. When every
// slot is taken it returns ErrNoCapacity and leaves the registry unchanged.
func (r *Registry) Register(p Provider) (int, error) {
	if p == nil {
		return -1, fmt.Errorf("plugin: register nil provider")
	}

	r.mu.Lock()
	id := -1
	for i := 1; i < MaxProviders; i++ {
		if r.slots[i] == nil {
			r.slots[i] = p
			id = i
			break
		}
	}
	r.mu.Unlock()

	if id < 0 {
		return -1, ErrNoCapacity
	}
	if b, ok := p.(Binder); ok {
		b.Bind(id)
	}
	log.Printf("[plugin] registered %q as provider %d", p.Name(), id)
	return id, nil
}

// Unregister clears the slot for id. It reports false, and does nothing,
// when id is out of range, reserved, or not registered.
func (r *Registry) Unregister(id int) bool {
	if id <= BuiltinID || id >= MaxProviders {
		return false
	}

	r.mu.Lock()
	p := r.slots[id]
	r.slots[id] = nil
	r.mu.Unlock()

	if p == nil {
		return false
	}
	log.Printf("[plugin] unregistered %q (provider %d)", p.Name(), id)
	return true
}

// Lookup returns the provider registered under id. Ids outside
// [0, MaxProviders) can only come from a corrupted identity and panic.
func (r *Registry) Lookup(id int) (Provider, bool) {
	if id < 0 || id >= MaxProviders {
		panic(fmt.Sprintf("plugin: provider id %d out of range", id))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.slots[id]
	return p, p != nil
}

// Providers returns the registered providers in ascending id order.
func (r *Registry) Providers() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, MaxProviders-1)
	for i := 1; i < MaxProviders; i++ {
		if r.slots[i] != nil {
			entries = append(entries, Entry{ID: i, Provider: r.slots[i]})
		}
	}
	return entries
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for i := 1; i < MaxProviders; i++ {
		if r.slots[i] != nil {
			n++
		}
	}
	return n
}
