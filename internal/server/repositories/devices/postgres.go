// Package devices keeps a registry of client installations.
package devices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Touch(ctx context.Context, deviceID string, userID int64, now time.Time, push bool) error {
	var pushedAt sql.NullTime
	if push {
		pushedAt = sql.NullTime{Time: now, Valid: true}
	}
	query := `
		INSERT INTO devices (device_id, user_id, first_seen_at, last_seen_at, last_push_at)
		VALUES ($1, $2, $3, $3, $4)
		ON CONFLICT (device_id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			last_seen_at = EXCLUDED.last_seen_at,
			last_push_at = COALESCE(EXCLUDED.last_push_at, devices.last_push_at)`
	if _, err := r.db.ExecContext(ctx, query, deviceID, userID, now, pushedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
