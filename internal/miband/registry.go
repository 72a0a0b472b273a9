package miband

import (
	"github.com/google/uuid"
	"github.com/srg/inoli/internal/device"
)

// CharacteristicRegistry maps protocol UUIDs to the handles of one connection.
// It is not safe for concurrent use; Band guards it.
type CharacteristicRegistry struct {
	chars map[uuid.UUID]device.Characteristic
}

func NewCharacteristicRegistry() *CharacteristicRegistry {
	return &CharacteristicRegistry{chars: make(map[uuid.UUID]device.Characteristic)}
}

// Rebuild replaces every entry with chars. Old handles are never kept.
func (r *CharacteristicRegistry) Rebuild(chars []device.Characteristic) {
	r.Clear()
	for _, c := range chars {
		r.chars[c.UUID()] = c
	}
}

func (r *CharacteristicRegistry) Clear() {
	clear(r.chars)
}

func (r *CharacteristicRegistry) Len() int { return len(r.chars) }

// Get returns the handle for u. An empty registry means there is no connection.
func (r *CharacteristicRegistry) Get(u uuid.UUID) (device.Characteristic, error) {
	if len(r.chars) == 0 {
		return nil, device.ErrNotConnected
	}
	c, ok := r.chars[u]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{device.ShortUUID(u)}}
	}
	return c, nil
}

// Missing lists the required UUIDs absent from the registry.
func (r *CharacteristicRegistry) Missing(required []uuid.UUID) []string {
	var out []string
	for _, u := range required {
		if _, ok := r.chars[u]; !ok {
			out = append(out, device.ShortUUID(u))
		}
	}
	return out
}
