package device

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Constructor builds the concrete device for a peripheral.
type Constructor func(p Peripheral) BluetoothDevice

// RegistryEntry is one supported hardware address.
type RegistryEntry struct {
	Address string
	Model   string
	New     Constructor
}

// Registry maps hardware addresses to device constructors. It is populated at
// startup and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[string, RegistryEntry]
}

func NewRegistry() *Registry {
	return &Registry{entries: orderedmap.New[string, RegistryEntry]()}
}

// Register adds or replaces the constructor for address.
func (r *Registry) Register(address, model string, ctor Constructor) {
	address = NormalizeAddress(address)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries.Set(address, RegistryEntry{Address: address, Model: model, New: ctor})
}

// Lookup returns the entry for address. A miss means the device is unsupported.
func (r *Registry) Lookup(address string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Get(NormalizeAddress(address))
}

// Entries lists registrations in insertion order.
func (r *Registry) Entries() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryEntry, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries.Len()
}
