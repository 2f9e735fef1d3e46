// Package photos stores photo metadata in PostgreSQL. The image itself is
// kept in object storage under the row's storage key.
package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

const columns = `id, guid, worker_id, time_entry_guid, file_name, mime_type, size_bytes, compressed_size_bytes,
		width, height, captured_at, location, storage_key, content_hash, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, guid string) (*models.Photo, error) {
	return scanPhoto(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM photos WHERE guid = $1`, guid))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, guid string) (*models.Photo, error) {
	return scanPhoto(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM photos WHERE guid = $1 FOR UPDATE`, guid))
}

// Upsert inserts or replaces the photo metadata. A guid owned by another
// worker is rejected with common.ErrValidation.
func (r *PostgresRepository) Upsert(ctx context.Context, p *models.Photo) (int64, error) {
	loc, err := dbx.NullJSON(p.Location)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO photos (guid, worker_id, time_entry_guid, file_name, mime_type, size_bytes, compressed_size_bytes,
			width, height, captured_at, location, storage_key, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (guid)
		DO UPDATE SET
			time_entry_guid = EXCLUDED.time_entry_guid,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			compressed_size_bytes = EXCLUDED.compressed_size_bytes,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			captured_at = EXCLUDED.captured_at,
			location = EXCLUDED.location,
			storage_key = EXCLUDED.storage_key,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
			WHERE photos.worker_id = EXCLUDED.worker_id
		RETURNING id`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		p.GUID, p.WorkerID, nullString(p.TimeEntryGUID), p.FileName, p.MimeType, p.SizeBytes, nullInt(p.CompressedSizeBytes),
		p.Width, p.Height, p.CapturedAt, loc, p.StorageKey, p.Hash, p.UpdatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: photo %s belongs to another worker", common.ErrValidation, p.GUID)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func scanPhoto(row *sql.Row) (*models.Photo, error) {
	var (
		p          models.Photo
		id         int64
		parent     sql.NullString
		compressed sql.NullInt64
		loc        sql.NullString
	)
	err := row.Scan(&id, &p.GUID, &p.WorkerID, &parent, &p.FileName, &p.MimeType, &p.SizeBytes, &compressed,
		&p.Width, &p.Height, &p.CapturedAt, &loc, &p.StorageKey, &p.Hash, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	p.ServerID = &id
	if parent.Valid {
		p.TimeEntryGUID = &parent.String
	}
	if compressed.Valid {
		p.CompressedSizeBytes = &compressed.Int64
	}
	if p.Location, err = dbx.FromNullJSON[syncapi.GeoPoint](loc); err != nil {
		return nil, err
	}
	return &p, nil
}
