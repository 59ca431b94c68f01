package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrReadingNotFound indicates no readings exist for the device.
var ErrReadingNotFound = errors.New("telemetry: reading not found")

// Reading is one vitals sample for a device. Immutable once created;
// a device produces at most one reading per monitoring cycle.
type Reading struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	TemperatureC float64   `json:"temperature_c"`
	HeartRateBPM float64   `json:"heart_rate_bpm"`
	HydrationPct float64   `json:"hydration_pct"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.ID == "" {
		return errors.New("reading: empty id")
	}
	if r.DeviceID == "" {
		return errors.New("reading: empty device id")
	}
	if r.RecordedAt.IsZero() {
		return errors.New("reading: zero timestamp")
	}
	return nil
}

// ReadingRepository persists readings.
type ReadingRepository interface {
	Append(ctx context.Context, reading *Reading) error
}

// ReadingQuery loads recent readings for catch-up pulls.
type ReadingQuery interface {
	// RecentByDevice returns up to limit readings newest first.
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]Reading, error)
}
