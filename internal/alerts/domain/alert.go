package alerts

import (
	"context"
	"errors"
	"time"
)

// Category identifies which vital triggered an alert.
type Category string

const (
	CategoryTemperature Category = "temperature"
	CategoryHeartRate   Category = "heartRate"
	CategoryHydration   Category = "hydration"
)

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid returns true when the category is supported.
func (c Category) Valid() bool {
	switch c {
	case CategoryTemperature, CategoryHeartRate, CategoryHydration:
		return true
	default:
		return false
	}
}

// Valid returns true when the severity is supported.
func (s Severity) Valid() bool {
	switch s {
	case SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// AlertDraft is a policy verdict before it is stamped with device,
// subject and timestamp.
type AlertDraft struct {
	Category Category
	Severity Severity
	Message  string
	Value    float64
}

// Alert is a persisted, derived safety event. Alerts are never
// deduplicated; a single reading may raise several.
type Alert struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Read      bool      `json:"is_read"`
	RaisedAt  time.Time `json:"raised_at"`
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert: empty id")
	}
	if a.DeviceID == "" {
		return errors.New("alert: empty device id")
	}
	if !a.Category.Valid() {
		return errors.New("alert: invalid category")
	}
	if !a.Severity.Valid() {
		return errors.New("alert: invalid severity")
	}
	if a.Message == "" {
		return errors.New("alert: empty message")
	}
	if a.RaisedAt.IsZero() {
		return errors.New("alert: zero timestamp")
	}
	return nil
}

// AlertRepository persists alerts.
type AlertRepository interface {
	Append(ctx context.Context, alert *Alert) error
}

// AlertQuery loads recent alerts for catch-up pulls.
type AlertQuery interface {
	// RecentByDevice returns up to limit alerts newest first.
	RecentByDevice(ctx context.Context, deviceID string, limit int) ([]Alert, error)
}
