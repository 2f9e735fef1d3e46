// Package conflicts stores the list of records waiting for manual review.
package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
	"github.com/dmitrijs2005/crewclock/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `guid, entity_type, entity_guid, kind, local_payload, server_payload, reason, detected_at`

// Upsert records a conflict. A newer conflict for the same entity replaces
// the older one.
func (r *SQLiteRepository) Upsert(ctx context.Context, c *models.Conflict) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sync_conflicts (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_guid) DO UPDATE SET
			kind = excluded.kind, local_payload = excluded.local_payload,
			server_payload = excluded.server_payload, reason = excluded.reason,
			detected_at = excluded.detected_at`,
		c.GUID, string(c.EntityType), c.EntityGUID, string(c.Kind), c.LocalPayload, c.ServerPayload,
		c.Reason, timex.Millis(c.DetectedAt))
	if err != nil {
		return fmt.Errorf("db error: insert conflict: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByEntity(ctx context.Context, entityGUID string) (*models.Conflict, error) {
	c, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM sync_conflicts WHERE entity_guid = ?`, entityGUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Conflict, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM sync_conflicts ORDER BY detected_at, guid`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteByEntity(ctx context.Context, entityGUID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_conflicts WHERE entity_guid = ?`, entityGUID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Conflict, error) {
	var (
		c        models.Conflict
		et, kind string
		detected int64
	)
	if err := row.Scan(&c.GUID, &et, &c.EntityGUID, &kind, &c.LocalPayload, &c.ServerPayload,
		&c.Reason, &detected); err != nil {
		return nil, err
	}
	c.EntityType = syncapi.EntityType(et)
	c.Kind = conflict.Kind(kind)
	c.DetectedAt = timex.FromMillis(detected)
	return &c, nil
}
