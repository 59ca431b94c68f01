package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	devices "vitalwatch-cloud/internal/devices/domain"
)

const defaultDevicesTable = "devices"

// Registry is a Postgres-backed device registry.
type Registry struct {
	db    *sql.DB
	table string
}

// RegistryOption configures the registry.
type RegistryOption func(*Registry)

// WithTable overrides the default table name.
func WithTable(table string) RegistryOption {
	return func(r *Registry) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRegistry constructs a registry with default table name.
func NewRegistry(db *sql.DB, opts ...RegistryOption) *Registry {
	registry := &Registry{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// ListEligible returns connected devices with an assigned subject.
func (r *Registry) ListEligible(ctx context.Context) ([]devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device registry: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, status, subject_id, last_seen
FROM %s
WHERE status = $1 AND subject_id IS NOT NULL AND subject_id <> ''
ORDER BY id`, r.table)
	return r.list(ctx, query, string(devices.StatusConnected))
}

// List returns the whole fleet.
func (r *Registry) List(ctx context.Context) ([]devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device registry: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, status, subject_id, last_seen
FROM %s
ORDER BY id`, r.table)
	return r.list(ctx, query)
}

func (r *Registry) list(ctx context.Context, query string, args ...any) ([]devices.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fleet []devices.Device
	for rows.Next() {
		var device devices.Device
		var status string
		var subjectID sql.NullString
		var lastSeen sql.NullTime
		if err := rows.Scan(&device.ID, &device.Name, &status, &subjectID, &lastSeen); err != nil {
			return nil, err
		}
		device.Status = devices.Status(status)
		device.SubjectID = subjectID.String
		if lastSeen.Valid {
			device.LastSeen = lastSeen.Time
		}
		fleet = append(fleet, device)
	}
	return fleet, rows.Err()
}
