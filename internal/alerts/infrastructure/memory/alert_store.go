package memory

import (
	"context"
	"errors"
	"sync"

	alerts "vitalwatch-cloud/internal/alerts/domain"
)

const defaultRecentLimit = 20

// AlertStore is an in-memory alert store for demo mode and testing.
type AlertStore struct {
	mu       sync.RWMutex
	byDevice map[string][]alerts.Alert
}

// NewAlertStore constructs a store.
func NewAlertStore() *AlertStore {
	return &AlertStore{byDevice: make(map[string][]alerts.Alert)}
}

// Append stores a copy of the alert in arrival order.
func (s *AlertStore) Append(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if s == nil {
		return errors.New("alert store: nil store")
	}
	if alert == nil {
		return errors.New("alert store: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.byDevice[alert.DeviceID] = append(s.byDevice[alert.DeviceID], *alert)
	s.mu.Unlock()
	return nil
}

// RecentByDevice returns up to limit alerts newest first.
func (s *AlertStore) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]alerts.Alert, error) {
	_ = ctx
	if s == nil {
		return nil, errors.New("alert store: nil store")
	}
	if deviceID == "" {
		return nil, errors.New("alert store: empty device id")
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
	recent := make([]alerts.Alert, 0, limit)
	for i := len(stored) - 1; i >= len(stored)-limit; i-- {
		recent = append(recent, stored[i])
	}
	return recent, nil
}
