// Package breaks stores break entries in the device database.
package breaks

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
		Table: syncstate.New(db, syncstate.BreakEntries, syncapi.BreakEntryType),
		db:    db,
	}
}

const columns = `guid, server_id, time_entry_guid, break_type_id, start_time, end_time, duration_minutes,
	is_synced, has_conflict, conflict_reason, synced_hash, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, b *models.BreakEntry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO break_entries (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.GUID, nullID(b.ServerID), b.TimeEntryGUID, b.BreakTypeID,
		timex.Millis(b.StartTime), timex.NullMillis(b.EndTime), b.DurationMinutes,
		b.IsSynced, b.HasConflict, b.ConflictReason, b.SyncedHash, timex.Millis(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: insert break: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, b *models.BreakEntry) error {
	res, err := r.db.ExecContext(ctx, `UPDATE break_entries SET
			break_type_id = ?, start_time = ?, end_time = ?, duration_minutes = ?,
			is_synced = 0, updated_at = ?
		WHERE guid = ?`,
		b.BreakTypeID, timex.Millis(b.StartTime), timex.NullMillis(b.EndTime), b.DurationMinutes,
		timex.Millis(b.UpdatedAt), b.GUID)
	if err != nil {
		return fmt.Errorf("db error: update break: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	b.IsSynced = false
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, guid string) (*models.BreakEntry, error) {
	return scanOne(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM break_entries WHERE guid = ?`, guid))
}

func (r *SQLiteRepository) GetActive(ctx context.Context, timeEntryGUID string) (*models.BreakEntry, error) {
	return scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM break_entries WHERE time_entry_guid = ? AND end_time IS NULL`, timeEntryGUID))
}

func (r *SQLiteRepository) ListByEntry(ctx context.Context, timeEntryGUID string) ([]*models.BreakEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM break_entries WHERE time_entry_guid = ? ORDER BY start_time`, timeEntryGUID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.BreakEntry
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ApplyServer(ctx context.Context, sb syncapi.BreakEntry, hash string) error {
	b := sb.Normalized()
	_, err := r.db.ExecContext(ctx, `INSERT INTO break_entries (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, '', ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			server_id = excluded.server_id, time_entry_guid = excluded.time_entry_guid,
			break_type_id = excluded.break_type_id, start_time = excluded.start_time,
			end_time = excluded.end_time, duration_minutes = excluded.duration_minutes,
			is_synced = 1, has_conflict = 0, conflict_reason = '',
			synced_hash = excluded.synced_hash, updated_at = excluded.updated_at`,
		b.GUID, nullID(b.ServerID), b.TimeEntryGUID, b.BreakTypeID,
		timex.Millis(b.StartTime), timex.NullMillis(b.EndTime), b.DurationMinutes,
		hash, timex.Millis(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: apply server break: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, guid string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM break_entries WHERE guid = ?`, guid); err != nil {
		return fmt.Errorf("db error: delete break: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*models.BreakEntry, error) {
	b, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return b, err
}

func scan(row scanner) (*models.BreakEntry, error) {
	var (
		b             models.BreakEntry
		serverID, end sql.NullInt64
		start, upd    int64
	)
	err := row.Scan(&b.GUID, &serverID, &b.TimeEntryGUID, &b.BreakTypeID, &start, &end, &b.DurationMinutes,
		&b.IsSynced, &b.HasConflict, &b.ConflictReason, &b.SyncedHash, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if serverID.Valid {
		id := serverID.Int64
		b.ServerID = &id
	}
	b.StartTime = timex.FromMillis(start)
	b.EndTime = timex.FromNullMillis(end)
	b.UpdatedAt = timex.FromMillis(upd)
	return &b, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
