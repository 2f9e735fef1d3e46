package timeentries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound for an unknown guid.
	Get(ctx context.Context, guid string) (*models.TimeEntry, error)
	// GetForUpdate is Get that also locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, guid string) (*models.TimeEntry, error)
	// Upsert writes the entry keyed by guid and returns its server id.
	Upsert(ctx context.Context, e *models.TimeEntry) (int64, error)
	// FindOverlapping returns another entry of the worker whose window
	// intersects [start, end). A nil end is open. Returns
	// common.ErrorNotFound when there is none.
	FindOverlapping(ctx context.Context, workerID int64, guid string, start time.Time, end *time.Time) (*models.TimeEntry, error)
}
