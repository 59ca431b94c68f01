package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "vitalwatch-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "sensor_readings"

// DefaultRecentLimit bounds catch-up reads when no limit is given.
const DefaultRecentLimit = 50

// ReadingRepository is a Postgres store for sensor readings.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository with default table name.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append inserts one reading. Readings are immutable; duplicates by id
// are an error.
func (r *ReadingRepository) Append(ctx context.Context, reading *telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if err := reading.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, device_id, temperature_c, heart_rate_bpm, hydration_pct, recorded_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		reading.ID,
		reading.DeviceID,
		reading.TemperatureC,
		reading.HeartRateBPM,
		reading.HydrationPct,
		reading.RecordedAt,
	)
	return err
}

// RecentByDevice returns the newest readings for a device, newest first.
func (r *ReadingRepository) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("reading repo: empty device id")
	}
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	query := fmt.Sprintf(`
SELECT id, device_id, temperature_c, heart_rate_bpm, hydration_pct, recorded_at
FROM %s
WHERE device_id = $1
ORDER BY recorded_at DESC
LIMIT $2`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.TemperatureC,
			&reading.HeartRateBPM,
			&reading.HydrationPct,
			&reading.RecordedAt,
		); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}
