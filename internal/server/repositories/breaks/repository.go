package breaks

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	// GetForUpdate locks and returns the break, or common.ErrorNotFound.
	GetForUpdate(ctx context.Context, guid string) (*models.BreakEntry, error)
	Upsert(ctx context.Context, b *models.BreakEntry) (int64, error)
}
