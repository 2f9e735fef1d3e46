// Package syncstate implements the sync bookkeeping columns shared by the
// time_entries, break_entries and photos tables.
package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Table operates on the sync columns of one record table. The table name
// comes from the constants below, never from input.
type Table struct {
	db         dbx.DBTX
	name       string
	entityType syncapi.EntityType
}

const (
	TimeEntries  = "time_entries"
	BreakEntries = "break_entries"
	Photos       = "photos"
)

func New(db dbx.DBTX, table string, entityType syncapi.EntityType) Table {
	return Table{db: db, name: table, entityType: entityType}
}

// ForType returns the Table holding records of entity type t.
func ForType(db dbx.DBTX, t syncapi.EntityType) (Table, error) {
	switch t {
	case syncapi.TimeEntryType:
		return New(db, TimeEntries, t), nil
	case syncapi.BreakEntryType:
		return New(db, BreakEntries, t), nil
	case syncapi.PhotoType:
		return New(db, Photos, t), nil
	default:
		return Table{}, fmt.Errorf("unknown entity type %q", t)
	}
}

func (t Table) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %s %s: %w", op, t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// MarkAcknowledged records that the server holds content with the given
// hash. isSynced is set only when markSynced is true, so a record edited
// again after the push stays dirty.
func (t Table) MarkAcknowledged(ctx context.Context, guid, hash string, serverID int64, markSynced bool) error {
	q := `UPDATE ` + t.name + ` SET synced_hash = ?, server_id = ?`
	if markSynced {
		q += `, is_synced = 1, has_conflict = 0, conflict_reason = ''`
	}
	q += ` WHERE guid = ?`
	return t.exec(ctx, "acknowledge", q, hash, serverID, guid)
}

// SetSyncedHash updates only the base hash.
func (t Table) SetSyncedHash(ctx context.Context, guid, hash string) error {
	return t.exec(ctx, "set hash", `UPDATE `+t.name+` SET synced_hash = ? WHERE guid = ?`, hash, guid)
}

func (t Table) MarkConflict(ctx context.Context, guid, reason string) error {
	return t.exec(ctx, "mark conflict",
		`UPDATE `+t.name+` SET has_conflict = 1, conflict_reason = ?, is_synced = 0 WHERE guid = ?`, reason, guid)
}

func (t Table) ClearConflict(ctx context.Context, guid string) error {
	return t.exec(ctx, "clear conflict",
		`UPDATE `+t.name+` SET has_conflict = 0, conflict_reason = '' WHERE guid = ?`, guid)
}

// SyncedHash returns the base hash of a record; empty if it never synced.
func (t Table) SyncedHash(ctx context.Context, guid string) (string, error) {
	var h string
	err := t.db.QueryRowContext(ctx, `SELECT synced_hash FROM `+t.name+` WHERE guid = ?`, guid).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return h, nil
}

// Orphans lists unsynced, conflict-free records with no queue row of any
// status. They result from a write that never reached the queue.
func (t Table) Orphans(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT r.guid FROM `+t.name+` r
		WHERE r.is_synced = 0 AND r.has_conflict = 0
		  AND NOT EXISTS (
			SELECT 1 FROM mutation_queue q WHERE q.type = ? AND q.entity_guid = r.guid
		  )
		ORDER BY r.updated_at`, string(t.entityType))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Counts returns the number of unsynced and conflicted records.
func (t Table) Counts(ctx context.Context) (unsynced, conflicted int, err error) {
	err = t.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN is_synced = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(has_conflict), 0)
		FROM `+t.name).Scan(&unsynced, &conflicted)
	if err != nil {
		return 0, 0, fmt.Errorf("db error: %w", err)
	}
	return unsynced, conflicted, nil
}
