package reference

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Repository reads and maintains the server-authoritative reference data.
type Repository interface {
	JobsSince(ctx context.Context, since time.Time) ([]syncapi.Job, error)
	BreakTypesSince(ctx context.Context, since time.Time) ([]syncapi.BreakType, error)
	Settings(ctx context.Context) (map[string]string, error)
	// LastUpdate is the newest updated_at over all reference tables.
	LastUpdate(ctx context.Context) (time.Time, error)

	JobExists(ctx context.Context, id int64) (bool, error)
	BreakTypeExists(ctx context.Context, id int64) (bool, error)

	UpsertJob(ctx context.Context, j syncapi.Job) (int64, error)
	SetSetting(ctx context.Context, key, value string) error
}
