// Package reference caches workers, jobs, break types and system settings
// pulled from the server.
package reference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/common"
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

func (r *SQLiteRepository) UpsertWorkers(ctx context.Context, ws []syncapi.Worker) error {
	for _, w := range ws {
		_, err := r.db.ExecContext(ctx, `INSERT INTO workers (id, name, active, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active, updated_at = excluded.updated_at`,
			w.ID, w.Name, w.Active, timex.Millis(w.UpdatedAt))
		if err != nil {
			return fmt.Errorf("db error: upsert worker %d: %w", w.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) UpsertJobs(ctx context.Context, js []syncapi.Job) error {
	for _, j := range js {
		_, err := r.db.ExecContext(ctx, `INSERT INTO jobs (id, code, name, active, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name,
				active = excluded.active, updated_at = excluded.updated_at`,
			j.ID, j.Code, j.Name, j.Active, timex.Millis(j.UpdatedAt))
		if err != nil {
			return fmt.Errorf("db error: upsert job %d: %w", j.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) UpsertBreakTypes(ctx context.Context, bs []syncapi.BreakType) error {
	for _, b := range bs {
		_, err := r.db.ExecContext(ctx, `INSERT INTO break_types (id, name, paid, default_minutes, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, paid = excluded.paid,
				default_minutes = excluded.default_minutes, active = excluded.active, updated_at = excluded.updated_at`,
			b.ID, b.Name, b.Paid, b.DefaultMinutes, b.Active, timex.Millis(b.UpdatedAt))
		if err != nil {
			return fmt.Errorf("db error: upsert break type %d: %w", b.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) SetSettings(ctx context.Context, s map[string]string) error {
	for k, v := range s {
		_, err := r.db.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v)
		if err != nil {
			return fmt.Errorf("db error: set setting %s: %w", k, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id int64) (*syncapi.Job, error) {
	var (
		j   syncapi.Job
		upd int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name, active, updated_at FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.Code, &j.Name, &j.Active, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	j.UpdatedAt = timex.FromMillis(upd)
	return &j, nil
}

// ListJobs returns active jobs ordered by code.
func (r *SQLiteRepository) ListJobs(ctx context.Context) ([]syncapi.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name, active, updated_at FROM jobs WHERE active = 1 ORDER BY code, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []syncapi.Job
	for rows.Next() {
		var (
			j   syncapi.Job
			upd int64
		)
		if err := rows.Scan(&j.ID, &j.Code, &j.Name, &j.Active, &upd); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		j.UpdatedAt = timex.FromMillis(upd)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetBreakType(ctx context.Context, id int64) (*syncapi.BreakType, error) {
	var (
		b   syncapi.BreakType
		upd int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, paid, default_minutes, active, updated_at
		FROM break_types WHERE id = ?`, id).Scan(&b.ID, &b.Name, &b.Paid, &b.DefaultMinutes, &b.Active, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	b.UpdatedAt = timex.FromMillis(upd)
	return &b, nil
}

// ListBreakTypes returns active break types ordered by name.
func (r *SQLiteRepository) ListBreakTypes(ctx context.Context) ([]syncapi.BreakType, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, paid, default_minutes, active, updated_at
		FROM break_types WHERE active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []syncapi.BreakType
	for rows.Next() {
		var (
			b   syncapi.BreakType
			upd int64
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Paid, &b.DefaultMinutes, &b.Active, &upd); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		b.UpdatedAt = timex.FromMillis(upd)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("db error: %w", err)
	}
	return v, true, nil
}

// CountActiveWorkers is the number of seats in use as last seen by the
// device.
func (r *SQLiteRepository) CountActiveWorkers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workers WHERE active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
