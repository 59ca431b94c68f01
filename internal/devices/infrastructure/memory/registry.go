package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	devices "vitalwatch-cloud/internal/devices/domain"
)

// Registry is an in-memory device registry for demo mode and testing.
type Registry struct {
	mu    sync.RWMutex
	fleet map[string]devices.Device
}

// NewRegistry constructs a registry, optionally pre-seeded.
func NewRegistry(seed ...devices.Device) *Registry {
	registry := &Registry{fleet: make(map[string]devices.Device)}
	for _, device := range seed {
		if device.ID != "" {
			registry.fleet[device.ID] = device
		}
	}
	return registry
}

// Put inserts or replaces a device.
func (r *Registry) Put(device devices.Device) error {
	if r == nil {
		return errors.New("device registry: nil registry")
	}
	if device.ID == "" {
		return errors.New("device registry: empty device id")
	}
	r.mu.Lock()
	r.fleet[device.ID] = device
	r.mu.Unlock()
	return nil
}

// ListEligible returns connected devices with an assigned subject.
func (r *Registry) ListEligible(ctx context.Context) ([]devices.Device, error) {
	_ = ctx
	if r == nil {
		return nil, errors.New("device registry: nil registry")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var eligible []devices.Device
	for _, device := range r.fleet {
		if device.Eligible() {
			eligible = append(eligible, device)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	return eligible, nil
}

// List returns the whole fleet.
func (r *Registry) List(ctx context.Context) ([]devices.Device, error) {
	_ = ctx
	if r == nil {
		return nil, errors.New("device registry: nil registry")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fleet := make([]devices.Device, 0, len(r.fleet))
	for _, device := range r.fleet {
		fleet = append(fleet, device)
	}
	sort.Slice(fleet, func(i, j int) bool { return fleet[i].ID < fleet[j].ID })
	return fleet, nil
}
