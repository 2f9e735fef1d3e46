// Package timeentries stores time entries in the device database.
package timeentries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
	"github.com/dmitrijs2005/crewclock/internal/timex"
)

type SQLiteRepository struct {
	syncstate.Table
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{
		Table: syncstate.New(db, syncstate.TimeEntries, syncapi.TimeEntryType),
		db:    db,
	}
}

const columns = `guid, server_id, worker_id, job_id, start_time, end_time, start_location, end_location,
	notes, regular_hours, overtime_hours, is_synced, has_conflict, conflict_reason, synced_hash,
	created_at, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.TimeEntry) error {
	start, end, err := encodeLocations(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO time_entries (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.GUID, nullID(e.ServerID), e.WorkerID, e.JobID,
		timex.Millis(e.StartTime), timex.NullMillis(e.EndTime), start, end,
		e.Notes, e.RegularHours, e.OvertimeHours,
		e.IsSynced, e.HasConflict, e.ConflictReason, e.SyncedHash,
		timex.Millis(e.CreatedAt), timex.Millis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: insert time entry: %w", err)
	}
	return nil
}

// Update writes the content fields of e and marks it unsynced.
func (r *SQLiteRepository) Update(ctx context.Context, e *models.TimeEntry) error {
	start, end, err := encodeLocations(e)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE time_entries SET
			job_id = ?, start_time = ?, end_time = ?, start_location = ?, end_location = ?,
			notes = ?, regular_hours = ?, overtime_hours = ?, is_synced = 0, updated_at = ?
		WHERE guid = ?`,
		e.JobID, timex.Millis(e.StartTime), timex.NullMillis(e.EndTime), start, end,
		e.Notes, e.RegularHours, e.OvertimeHours, timex.Millis(e.UpdatedAt), e.GUID)
	if err != nil {
		return fmt.Errorf("db error: update time entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	e.IsSynced = false
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, guid string) (*models.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM time_entries WHERE guid = ?`, guid)
	return scanOne(row)
}

// GetActive returns the worker's open entry or common.ErrorNotFound.
func (r *SQLiteRepository) GetActive(ctx context.Context, workerID int64) (*models.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM time_entries WHERE worker_id = ? AND end_time IS NULL`, workerID)
	return scanOne(row)
}

// ListByWorker returns the newest entries first.
func (r *SQLiteRepository) ListByWorker(ctx context.Context, workerID int64, limit int) ([]*models.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM time_entries WHERE worker_id = ? ORDER BY start_time DESC LIMIT ?`,
		workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.TimeEntry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// ApplyServer stores the server's copy of an entry as the synced state.
func (r *SQLiteRepository) ApplyServer(ctx context.Context, se syncapi.TimeEntry, hash string) error {
	e := &models.TimeEntry{TimeEntry: se.Normalized()}
	start, end, err := encodeLocations(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO time_entries (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, '', ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			server_id = excluded.server_id, worker_id = excluded.worker_id, job_id = excluded.job_id,
			start_time = excluded.start_time, end_time = excluded.end_time,
			start_location = excluded.start_location, end_location = excluded.end_location,
			notes = excluded.notes, regular_hours = excluded.regular_hours,
			overtime_hours = excluded.overtime_hours, is_synced = 1, has_conflict = 0,
			conflict_reason = '', synced_hash = excluded.synced_hash, updated_at = excluded.updated_at`,
		e.GUID, nullID(e.ServerID), e.WorkerID, e.JobID,
		timex.Millis(e.StartTime), timex.NullMillis(e.EndTime), start, end,
		e.Notes, e.RegularHours, e.OvertimeHours, hash,
		timex.Millis(e.UpdatedAt), timex.Millis(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: apply server time entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, guid string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM time_entries WHERE guid = ?`, guid); err != nil {
		return fmt.Errorf("db error: delete time entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*models.TimeEntry, error) {
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return e, err
}

func scan(row scanner) (*models.TimeEntry, error) {
	var (
		e                   models.TimeEntry
		serverID, end       sql.NullInt64
		startLoc, endLoc    sql.NullString
		start, created, upd int64
	)
	err := row.Scan(&e.GUID, &serverID, &e.WorkerID, &e.JobID, &start, &end, &startLoc, &endLoc,
		&e.Notes, &e.RegularHours, &e.OvertimeHours, &e.IsSynced, &e.HasConflict, &e.ConflictReason,
		&e.SyncedHash, &created, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if serverID.Valid {
		id := serverID.Int64
		e.ServerID = &id
	}
	e.StartTime = timex.FromMillis(start)
	e.EndTime = timex.FromNullMillis(end)
	e.CreatedAt = timex.FromMillis(created)
	e.UpdatedAt = timex.FromMillis(upd)
	if e.StartLocation, err = DecodeLocation(startLoc); err != nil {
		return nil, err
	}
	if e.EndLocation, err = DecodeLocation(endLoc); err != nil {
		return nil, err
	}
	return &e, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func encodeLocations(e *models.TimeEntry) (sql.NullString, sql.NullString, error) {
	start, err := EncodeLocation(e.StartLocation)
	if err != nil {
		return start, sql.NullString{}, err
	}
	end, err := EncodeLocation(e.EndLocation)
	return start, end, err
}

// EncodeLocation renders an optional fix as a nullable JSON column value.
func EncodeLocation(g *syncapi.GeoPoint) (sql.NullString, error) {
	return dbx.NullJSON(g)
}

// DecodeLocation is the inverse of EncodeLocation.
func DecodeLocation(v sql.NullString) (*syncapi.GeoPoint, error) {
	return dbx.FromNullJSON[syncapi.GeoPoint](v)
}
