package timeentries

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type Repository interface {
	Insert(ctx context.Context, e *models.TimeEntry) error
	Update(ctx context.Context, e *models.TimeEntry) error
	Get(ctx context.Context, guid string) (*models.TimeEntry, error)
	GetActive(ctx context.Context, workerID int64) (*models.TimeEntry, error)
	ListByWorker(ctx context.Context, workerID int64, limit int) ([]*models.TimeEntry, error)
	ApplyServer(ctx context.Context, e syncapi.TimeEntry, hash string) error
	Delete(ctx context.Context, guid string) error
}
