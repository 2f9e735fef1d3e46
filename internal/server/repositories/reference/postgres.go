// Package reference stores jobs, break types and system settings.
package reference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) JobsSince(ctx context.Context, since time.Time) ([]syncapi.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, code, name, active, updated_at FROM jobs WHERE updated_at > $1 ORDER BY id`, since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []syncapi.Job{}
	for rows.Next() {
		var j syncapi.Job
		if err := rows.Scan(&j.ID, &j.Code, &j.Name, &j.Active, &j.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) BreakTypesSince(ctx context.Context, since time.Time) ([]syncapi.BreakType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, paid, default_minutes, active, updated_at FROM break_types WHERE updated_at > $1 ORDER BY id`, since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []syncapi.BreakType{}
	for rows.Next() {
		var b syncapi.BreakType
		if err := rows.Scan(&b.ID, &b.Name, &b.Paid, &b.DefaultMinutes, &b.Active, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM system_settings`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

func (r *PostgresRepository) LastUpdate(ctx context.Context) (time.Time, error) {
	query := `
		SELECT GREATEST(
			(SELECT MAX(updated_at) FROM jobs),
			(SELECT MAX(updated_at) FROM break_types),
			(SELECT MAX(updated_at) FROM system_settings),
			(SELECT MAX(updated_at) FROM users))`
	var t sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	return t.Time, nil
}

func (r *PostgresRepository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) JobExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id)
}

func (r *PostgresRepository) BreakTypeExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM break_types WHERE id = $1)`, id)
}

// UpsertJob inserts a job or updates the one with the same code.
func (r *PostgresRepository) UpsertJob(ctx context.Context, j syncapi.Job) (int64, error) {
	query := `
		INSERT INTO jobs (code, name, active, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (code)
		DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = now()
		RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, j.Code, j.Name, j.Active).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
