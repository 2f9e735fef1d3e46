// Package timeentries stores synced time entries in PostgreSQL.
package timeentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

const columns = `id, guid, worker_id, job_id, start_time, end_time, start_location, end_location,
		notes, regular_hours, overtime_hours, content_hash, device_id, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, guid string) (*models.TimeEntry, error) {
	query := `SELECT ` + columns + ` FROM time_entries WHERE guid = $1`
	return scanEntry(r.db.QueryRowContext(ctx, query, guid))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, guid string) (*models.TimeEntry, error) {
	query := `SELECT ` + columns + ` FROM time_entries WHERE guid = $1 FOR UPDATE`
	return scanEntry(r.db.QueryRowContext(ctx, query, guid))
}

func (r *PostgresRepository) Upsert(ctx context.Context, e *models.TimeEntry) (int64, error) {
	startLoc, err := dbx.NullJSON(e.StartLocation)
	if err != nil {
		return 0, err
	}
	endLoc, err := dbx.NullJSON(e.EndLocation)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO time_entries (guid, worker_id, job_id, start_time, end_time, start_location, end_location,
			notes, regular_hours, overtime_hours, content_hash, device_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (guid)
		DO UPDATE SET
			job_id = EXCLUDED.job_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			start_location = EXCLUDED.start_location,
			end_location = EXCLUDED.end_location,
			notes = EXCLUDED.notes,
			regular_hours = EXCLUDED.regular_hours,
			overtime_hours = EXCLUDED.overtime_hours,
			content_hash = EXCLUDED.content_hash,
			device_id = EXCLUDED.device_id,
			updated_at = EXCLUDED.updated_at
			WHERE time_entries.worker_id = EXCLUDED.worker_id
		RETURNING id`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		e.GUID, e.WorkerID, e.JobID, e.StartTime, nullTime(e.EndTime), startLoc, endLoc,
		e.Notes, e.RegularHours, e.OvertimeHours, e.Hash, e.DeviceID, e.UpdatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the guid belongs to another worker
			return 0, fmt.Errorf("%w: time entry %s belongs to another worker", common.ErrValidation, e.GUID)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FindOverlapping(ctx context.Context, workerID int64, guid string, start time.Time, end *time.Time) (*models.TimeEntry, error) {
	query := `SELECT ` + columns + ` FROM time_entries
		WHERE worker_id = $1 AND guid <> $2
		  AND (end_time IS NULL OR end_time > $3)
		  AND ($4::timestamptz IS NULL OR start_time < $4)
		ORDER BY start_time
		LIMIT 1`
	return scanEntry(r.db.QueryRowContext(ctx, query, workerID, guid, start, nullTime(end)))
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanEntry(row *sql.Row) (*models.TimeEntry, error) {
	var (
		e                models.TimeEntry
		id               int64
		end              sql.NullTime
		startLoc, endLoc sql.NullString
	)
	err := row.Scan(&id, &e.GUID, &e.WorkerID, &e.JobID, &e.StartTime, &end, &startLoc, &endLoc,
		&e.Notes, &e.RegularHours, &e.OvertimeHours, &e.Hash, &e.DeviceID, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.ServerID = &id
	if end.Valid {
		t := end.Time
		e.EndTime = &t
	}
	if e.StartLocation, err = dbx.FromNullJSON[syncapi.GeoPoint](startLoc); err != nil {
		return nil, err
	}
	if e.EndLocation, err = dbx.FromNullJSON[syncapi.GeoPoint](endLoc); err != nil {
		return nil, err
	}
	return &e, nil
}
