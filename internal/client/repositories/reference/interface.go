package reference

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Repository caches server-owned reference data on the device.
type Repository interface {
	UpsertWorkers(ctx context.Context, ws []syncapi.Worker) error
	UpsertJobs(ctx context.Context, js []syncapi.Job) error
	UpsertBreakTypes(ctx context.Context, bs []syncapi.BreakType) error
	SetSettings(ctx context.Context, s map[string]string) error
	GetJob(ctx context.Context, id int64) (*syncapi.Job, error)
	ListJobs(ctx context.Context) ([]syncapi.Job, error)
	GetBreakType(ctx context.Context, id int64) (*syncapi.BreakType, error)
	ListBreakTypes(ctx context.Context) ([]syncapi.BreakType, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
	CountActiveWorkers(ctx context.Context) (int, error)
}
