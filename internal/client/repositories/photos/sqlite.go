// Package photos stores photo metadata in the device database. The image
// itself stays in the file named by the uri column.
package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/timeentries"
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
		Table: syncstate.New(db, syncstate.Photos, syncapi.PhotoType),
		db:    db,
	}
}

const columns = `guid, server_id, time_entry_guid, file_name, mime_type, size_bytes, compressed_size_bytes,
	width, height, uri, captured_at, location, is_synced, has_conflict, conflict_reason, synced_hash, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, p *models.Photo) error {
	loc, err := timeentries.EncodeLocation(p.Location)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO photos (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GUID, nullInt(p.ServerID), nullString(p.TimeEntryGUID), p.FileName, p.MimeType, p.SizeBytes,
		nullInt(p.CompressedSizeBytes), p.Width, p.Height, p.URI, timex.Millis(p.CapturedAt), loc,
		p.IsSynced, p.HasConflict, p.ConflictReason, p.SyncedHash, timex.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: insert photo: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, guid string) (*models.Photo, error) {
	p, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM photos WHERE guid = ?`, guid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	return p, err
}

func (r *SQLiteRepository) ListByEntry(ctx context.Context, timeEntryGUID string) ([]*models.Photo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM photos WHERE time_entry_guid = ? ORDER BY captured_at`, timeEntryGUID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Photo
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// ApplyServer stores the server's metadata. The local uri is preserved.
func (r *SQLiteRepository) ApplyServer(ctx context.Context, sp syncapi.Photo, hash string) error {
	p := sp.Normalized()
	loc, err := timeentries.EncodeLocation(p.Location)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO photos (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, 1, 0, '', ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			server_id = excluded.server_id, time_entry_guid = excluded.time_entry_guid,
			file_name = excluded.file_name, mime_type = excluded.mime_type,
			size_bytes = excluded.size_bytes, compressed_size_bytes = excluded.compressed_size_bytes,
			width = excluded.width, height = excluded.height, captured_at = excluded.captured_at,
			location = excluded.location, is_synced = 1, has_conflict = 0, conflict_reason = '',
			synced_hash = excluded.synced_hash, updated_at = excluded.updated_at`,
		p.GUID, nullInt(p.ServerID), nullString(p.TimeEntryGUID), p.FileName, p.MimeType, p.SizeBytes,
		nullInt(p.CompressedSizeBytes), p.Width, p.Height, timex.Millis(p.CapturedAt), loc,
		hash, timex.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("db error: apply server photo: %w", err)
	}
	return nil
}

// Unlink detaches a photo from its time entry and marks it unsynced.
func (r *SQLiteRepository) Unlink(ctx context.Context, guid string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE photos SET time_entry_guid = NULL, is_synced = 0, updated_at = ? WHERE guid = ?`, timex.Millis(at), guid)
	if err != nil {
		return fmt.Errorf("db error: unlink photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Photo, error) {
	var (
		p                  models.Photo
		serverID, compSize sql.NullInt64
		entry, loc         sql.NullString
		captured, upd      int64
	)
	err := row.Scan(&p.GUID, &serverID, &entry, &p.FileName, &p.MimeType, &p.SizeBytes, &compSize,
		&p.Width, &p.Height, &p.URI, &captured, &loc, &p.IsSynced, &p.HasConflict, &p.ConflictReason,
		&p.SyncedHash, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if serverID.Valid {
		v := serverID.Int64
		p.ServerID = &v
	}
	if compSize.Valid {
		v := compSize.Int64
		p.CompressedSizeBytes = &v
	}
	if entry.Valid {
		v := entry.String
		p.TimeEntryGUID = &v
	}
	p.CapturedAt = timex.FromMillis(captured)
	p.UpdatedAt = timex.FromMillis(upd)
	if p.Location, err = timeentries.DecodeLocation(loc); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
