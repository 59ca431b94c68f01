package devices

import (
	"context"
	"time"
)

// Status is the connectivity state of a device.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Device is a wearable sensor unit. Ownership and pairing live with the
// registry collaborator; the monitoring core only reads eligibility.
type Device struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	SubjectID string    `json:"subject_id,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
}

// Eligible reports whether the device takes part in a monitoring cycle:
// connected and assigned to a subject.
func (d Device) Eligible() bool {
	return d.Status == StatusConnected && d.SubjectID != ""
}

// Registry exposes the device fleet to the monitoring core. ListEligible
// is queried fresh on every cycle; results are never cached across ticks.
type Registry interface {
	ListEligible(ctx context.Context) ([]Device, error)
	List(ctx context.Context) ([]Device, error)
}
