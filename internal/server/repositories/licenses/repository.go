package licenses

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	// GetActive returns common.ErrorNotFound when no license was uploaded.
	GetActive(ctx context.Context) (*models.License, error)
	DeactivateAll(ctx context.Context) error
	Insert(ctx context.Context, l *models.License) (int64, error)
}
