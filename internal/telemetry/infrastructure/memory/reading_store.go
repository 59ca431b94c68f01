package memory

import (
	"context"
	"errors"
	"sync"

	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

const defaultRecentLimit = 50

// ReadingStore is an in-memory reading store for demo mode and testing.
type ReadingStore struct {
	mu       sync.RWMutex
	byDevice map[string][]telemetry.Reading
}

// NewReadingStore constructs a store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{byDevice: make(map[string][]telemetry.Reading)}
}

// Append stores a copy of the reading in arrival order.
func (s *ReadingStore) Append(ctx context.Context, reading *telemetry.Reading) error {
	_ = ctx
	if s == nil {
		return errors.New("reading store: nil store")
	}
	if reading == nil {
		return errors.New("reading store: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.byDevice[reading.DeviceID] = append(s.byDevice[reading.DeviceID], *reading)
	s.mu.Unlock()
	return nil
}

// RecentByDevice returns up to limit readings newest first.
func (s *ReadingStore) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Reading, error) {
	_ = ctx
	if s == nil {
		return nil, errors.New("reading store: nil store")
	}
	if deviceID == "" {
		return nil, errors.New("reading store: empty device id")
	}
	if limit <= 0 || limit > defaultRecentLimit {
		limit = defaultRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.byDevice[deviceID]
	if len(stored) < limit {
		limit = len(stored)
	}
	recent := make([]telemetry.Reading, 0, limit)
	for i := len(stored) - 1; i >= len(stored)-limit; i-- {
		recent = append(recent, stored[i])
	}
	return recent, nil
}
