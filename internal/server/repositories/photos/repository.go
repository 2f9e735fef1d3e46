package photos

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound for an unknown guid.
	Get(ctx context.Context, guid string) (*models.Photo, error)
	GetForUpdate(ctx context.Context, guid string) (*models.Photo, error)
	// Upsert writes the metadata keyed by guid and returns its server id.
	Upsert(ctx context.Context, p *models.Photo) (int64, error)
}
