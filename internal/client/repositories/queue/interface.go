package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type Repository interface {
	Upsert(ctx context.Context, t syncapi.EntityType, guid string, payload []byte, now time.Time) (*models.QueueItem, error)
	Get(ctx context.Context, id int64) (*models.QueueItem, error)
	ListPending(ctx context.Context, limit int) ([]*models.QueueItem, error)
	ListFailed(ctx context.Context) ([]*models.QueueItem, error)
	IncrementRetry(ctx context.Context, id, revision int64, lastErr string, now time.Time) (int, bool, error)
	MarkFailed(ctx context.Context, id, revision int64, lastErr string, now time.Time) (bool, error)
	DeleteIfRevision(ctx context.Context, id, revision int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	DeleteByEntity(ctx context.Context, t syncapi.EntityType, guid string) error
	MarkDismissed(ctx context.Context, id int64, now time.Time) error
	DeleteDismissed(ctx context.Context, t syncapi.EntityType, guid string) error
	HasPending(ctx context.Context, t syncapi.EntityType, guid string) (bool, error)
	SetPending(ctx context.Context, id int64, now time.Time) error
	ReplacePayload(ctx context.Context, id int64, payload []byte, now time.Time) error
	Stats(ctx context.Context) (*models.QueueStats, error)
}
