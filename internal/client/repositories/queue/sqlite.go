// Package queue stores the mutation queue in the device database.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
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

const columns = `id, type, entity_guid, payload, retry_count, last_error, status, revision, created_at, updated_at`

// Upsert inserts a pending item or, when one is already pending for the
// same entity, replaces its payload, resets its retry state and bumps its
// revision. created_at is kept, so the item keeps its place in line.
func (r *SQLiteRepository) Upsert(ctx context.Context, t syncapi.EntityType, guid string, payload []byte, now time.Time) (*models.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO mutation_queue (type, entity_guid, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (type, entity_guid) WHERE status = 'pending' DO UPDATE SET
			payload = excluded.payload,
			retry_count = 0,
			last_error = '',
			revision = mutation_queue.revision + 1,
			updated_at = excluded.updated_at
		RETURNING `+columns,
		string(t), guid, payload, timex.Millis(now), timex.Millis(now))

	item, err := scan(row)
	if err != nil {
		return nil, fmt.Errorf("db error: enqueue: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.QueueItem, error) {
	item, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM mutation_queue WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// ListPending returns pending items oldest first.
func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	return r.list(ctx, `SELECT `+columns+` FROM mutation_queue
		WHERE status = 'pending' ORDER BY created_at, id LIMIT ?`, limit)
}

func (r *SQLiteRepository) ListFailed(ctx context.Context) ([]*models.QueueItem, error) {
	return r.list(ctx, `SELECT `+columns+` FROM mutation_queue
		WHERE status = 'failed' ORDER BY updated_at, id`)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.QueueItem
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// IncrementRetry bumps the retry count of a pending item at the given
// revision. ok is false when the item was replaced or removed meanwhile.
func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id, revision int64, lastErr string, now time.Time) (retries int, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `
		UPDATE mutation_queue SET retry_count = retry_count + 1, last_error = ?, updated_at = ?
		WHERE id = ? AND revision = ? AND status = 'pending'
		RETURNING retry_count`, lastErr, timex.Millis(now), id, revision).Scan(&retries)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return retries, true, nil
}

// MarkFailed moves a pending item at the given revision to the failed list.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, revision int64, lastErr string, now time.Time) (bool, error) {
	return r.affected(ctx, `
		UPDATE mutation_queue SET status = 'failed', last_error = ?, updated_at = ?
		WHERE id = ? AND revision = ? AND status = 'pending'`, lastErr, timex.Millis(now), id, revision)
}

// DeleteIfRevision deletes the item only if it was not replaced since it
// was read.
func (r *SQLiteRepository) DeleteIfRevision(ctx context.Context, id, revision int64) (bool, error) {
	return r.affected(ctx, `DELETE FROM mutation_queue WHERE id = ? AND revision = ?`, id, revision)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	ok, err := r.affected(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteByEntity removes every queue row of an entity, whatever its status.
func (r *SQLiteRepository) DeleteByEntity(ctx context.Context, t syncapi.EntityType, guid string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE type = ? AND entity_guid = ?`, string(t), guid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// MarkDismissed retires a failed item. The row is kept as a marker that the
// user gave up on this version of the record.
func (r *SQLiteRepository) MarkDismissed(ctx context.Context, id int64, now time.Time) error {
	ok, err := r.affected(ctx, `
		UPDATE mutation_queue SET status = 'dismissed', updated_at = ?
		WHERE id = ? AND status = 'failed'`, timex.Millis(now), id)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// DeleteDismissed clears the dismissal markers of an entity.
func (r *SQLiteRepository) DeleteDismissed(ctx context.Context, t syncapi.EntityType, guid string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mutation_queue
		WHERE type = ? AND entity_guid = ? AND status = 'dismissed'`, string(t), guid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) HasPending(ctx context.Context, t syncapi.EntityType, guid string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutation_queue
		WHERE type = ? AND entity_guid = ? AND status = 'pending'`, string(t), guid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// SetPending moves a failed item back to the pending list with a fresh
// retry budget.
func (r *SQLiteRepository) SetPending(ctx context.Context, id int64, now time.Time) error {
	ok, err := r.affected(ctx, `
		UPDATE mutation_queue SET status = 'pending', retry_count = 0, updated_at = ?
		WHERE id = ? AND status = 'failed'`, timex.Millis(now), id)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// ReplacePayload swaps the payload and resets retry state without touching
// the item's place in line.
func (r *SQLiteRepository) ReplacePayload(ctx context.Context, id int64, payload []byte, now time.Time) error {
	ok, err := r.affected(ctx, `
		UPDATE mutation_queue SET payload = ?, retry_count = 0, last_error = '',
			revision = revision + 1, updated_at = ?
		WHERE id = ?`, payload, timex.Millis(now), id)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	var s models.QueueStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE((SELECT last_error FROM mutation_queue
				WHERE last_error <> '' AND status <> 'dismissed' ORDER BY updated_at DESC, id DESC LIMIT 1), '')
		FROM mutation_queue`).Scan(&s.Pending, &s.Failed, &s.LastError)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) affected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.QueueItem, error) {
	var (
		it           models.QueueItem
		typ, status  string
		created, upd int64
	)
	if err := row.Scan(&it.ID, &typ, &it.EntityGUID, &it.Payload, &it.RetryCount, &it.LastError,
		&status, &it.Revision, &created, &upd); err != nil {
		return nil, err
	}
	it.Type = syncapi.EntityType(typ)
	it.Status = models.QueueStatus(status)
	it.CreatedAt = timex.FromMillis(created)
	it.UpdatedAt = timex.FromMillis(upd)
	return &it, nil
}
