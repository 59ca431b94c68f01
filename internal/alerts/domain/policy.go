package alerts

import (
	"errors"
	"fmt"
	"math"

	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

// Thresholds holds the safety bounds a reading is evaluated against.
// The zero value is not usable; start from DefaultThresholds.
type Thresholds struct {
	TemperatureMax float64 `yaml:"temperature_max"`
	HeartRateMin   float64 `yaml:"heart_rate_min"`
	HeartRateMax   float64 `yaml:"heart_rate_max"`
	HydrationMin   float64 `yaml:"hydration_min"`
}

// DefaultThresholds returns the standard safety bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TemperatureMax: 38.0,
		HeartRateMin:   80,
		HeartRateMax:   170,
		HydrationMin:   30,
	}
}

// Validate checks threshold invariants.
func (t Thresholds) Validate() error {
	if t.TemperatureMax <= 0 {
		return errors.New("thresholds: temperature max must be positive")
	}
	if t.HeartRateMin < 0 || t.HeartRateMax <= t.HeartRateMin {
		return errors.New("thresholds: invalid heart rate band")
	}
	if t.HydrationMin < 0 {
		return errors.New("thresholds: hydration min must not be negative")
	}
	return nil
}

// Evaluate turns a reading into zero or more alert drafts. It is pure
// and deterministic: evaluation order is temperature, heart rate,
// hydration, and identical input always yields the identical list.
// NaN or negative metric values never trigger; the synthetic generator
// is the sole numeric source and is assumed well-formed, so malformed
// input is ignored rather than surfaced as an error.
func (t Thresholds) Evaluate(reading telemetry.Reading) []AlertDraft {
	var drafts []AlertDraft

	if v := reading.TemperatureC; wellFormed(v) && v > t.TemperatureMax {
		drafts = append(drafts, AlertDraft{
			Category: CategoryTemperature,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("High temperature detected: %.1f°C", v),
			Value:    v,
		})
	}

	if v := reading.HeartRateBPM; wellFormed(v) && (v <= t.HeartRateMin || v >= t.HeartRateMax) {
		drafts = append(drafts, AlertDraft{
			Category: CategoryHeartRate,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Abnormal heart rate: %.0f BPM", v),
			Value:    v,
		})
	}

	if v := reading.HydrationPct; wellFormed(v) && v < t.HydrationMin {
		drafts = append(drafts, AlertDraft{
			Category: CategoryHydration,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Low hydration: %.0f%%", v),
			Value:    v,
		})
	}

	return drafts
}

func wellFormed(v float64) bool {
	return !math.IsNaN(v) && v >= 0
}
