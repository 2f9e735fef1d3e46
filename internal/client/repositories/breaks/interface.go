package breaks

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type Repository interface {
	Insert(ctx context.Context, b *models.BreakEntry) error
	Update(ctx context.Context, b *models.BreakEntry) error
	Get(ctx context.Context, guid string) (*models.BreakEntry, error)
	GetActive(ctx context.Context, timeEntryGUID string) (*models.BreakEntry, error)
	ListByEntry(ctx context.Context, timeEntryGUID string) ([]*models.BreakEntry, error)
	ApplyServer(ctx context.Context, b syncapi.BreakEntry, hash string) error
	Delete(ctx context.Context, guid string) error
}
