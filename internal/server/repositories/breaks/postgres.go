// Package breaks stores synced break entries in PostgreSQL.
package breaks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, guid string) (*models.BreakEntry, error) {
	query := `
		SELECT id, guid, time_entry_guid, break_type_id, start_time, end_time, duration_minutes, content_hash, updated_at
		FROM break_entries
		WHERE guid = $1
		FOR UPDATE`

	var (
		b   models.BreakEntry
		id  int64
		end sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, guid).Scan(&id, &b.GUID, &b.TimeEntryGUID, &b.BreakTypeID,
		&b.StartTime, &end, &b.DurationMinutes, &b.Hash, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	b.ServerID = &id
	if end.Valid {
		t := end.Time
		b.EndTime = &t
	}
	return &b, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, b *models.BreakEntry) (int64, error) {
	query := `
		INSERT INTO break_entries (guid, time_entry_guid, break_type_id, start_time, end_time, duration_minutes, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guid)
		DO UPDATE SET
			break_type_id = EXCLUDED.break_type_id,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			duration_minutes = EXCLUDED.duration_minutes,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
			WHERE break_entries.time_entry_guid = EXCLUDED.time_entry_guid
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, b.GUID, b.TimeEntryGUID, b.BreakTypeID, b.StartTime, endOrNil(b.EndTime),
		b.DurationMinutes, b.Hash, b.UpdatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: break %s cannot move to another time entry", common.ErrValidation, b.GUID)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func endOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
