package photos

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type Repository interface {
	Insert(ctx context.Context, p *models.Photo) error
	Get(ctx context.Context, guid string) (*models.Photo, error)
	ListByEntry(ctx context.Context, timeEntryGUID string) ([]*models.Photo, error)
	ApplyServer(ctx context.Context, p syncapi.Photo, hash string) error
	Unlink(ctx context.Context, guid string, at time.Time) error
}
