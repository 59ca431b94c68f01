package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alerts "vitalwatch-cloud/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

// DefaultRecentLimit bounds catch-up reads when no limit is given.
const DefaultRecentLimit = 20

// AlertRepository is a Postgres store for alerts.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AlertRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlertRepository constructs a repository with default table name.
func NewAlertRepository(db *sql.DB, opts ...RepositoryOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append inserts one alert.
func (r *AlertRepository) Append(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, device_id, subject_id, category, severity, message, value, is_read, raised_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, r.table)

	subjectID := sql.NullString{}
	if alert.SubjectID != "" {
		subjectID = sql.NullString{String: alert.SubjectID, Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.DeviceID,
		subjectID,
		string(alert.Category),
		string(alert.Severity),
		alert.Message,
		alert.Value,
		alert.Read,
		alert.RaisedAt,
	)
	return err
}

// RecentByDevice returns the newest alerts for a device, newest first.
func (r *AlertRepository) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("alert repo: empty device id")
	}
	if limit <= 0 || limit > DefaultRecentLimit {
		limit = DefaultRecentLimit
	}

	query := fmt.Sprintf(`
SELECT id, device_id, subject_id, category, severity, message, value, is_read, raised_at
FROM %s
WHERE device_id = $1
ORDER BY raised_at DESC
LIMIT $2`, r.table)

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []alerts.Alert
	for rows.Next() {
		var alert alerts.Alert
		var subjectID sql.NullString
		var category, severity string
		if err := rows.Scan(
			&alert.ID,
			&alert.DeviceID,
			&subjectID,
			&category,
			&severity,
			&alert.Message,
			&alert.Value,
			&alert.Read,
			&alert.RaisedAt,
		); err != nil {
			return nil, err
		}
		alert.SubjectID = subjectID.String
		alert.Category = alerts.Category(category)
		alert.Severity = alerts.Severity(severity)
		list = append(list, alert)
	}
	return list, rows.Err()
}
