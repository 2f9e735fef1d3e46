// Package licenses keeps uploaded license documents.
package licenses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) GetActive(ctx context.Context) (*models.License, error) {
	query := `
		SELECT id, license_id, document, active, uploaded_at
		FROM licenses
		WHERE active`
	l := &models.License{}
	err := r.db.QueryRowContext(ctx, query).Scan(&l.ID, &l.LicenseID, &l.Document, &l.Active, &l.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) DeactivateAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE licenses SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Insert stores l as the active license. The previous one must have been
// deactivated in the same transaction.
func (r *PostgresRepository) Insert(ctx context.Context, l *models.License) (int64, error) {
	query := `
		INSERT INTO licenses (license_id, document, active)
		VALUES ($1, $2, TRUE)
		RETURNING id, uploaded_at`
	if err := r.db.QueryRowContext(ctx, query, l.LicenseID, l.Document).Scan(&l.ID, &l.UploadedAt); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	l.Active = true
	return l.ID, nil
}
