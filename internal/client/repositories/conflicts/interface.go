package conflicts

import (
	"context"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
)

type Repository interface {
	Upsert(ctx context.Context, c *models.Conflict) error
	GetByEntity(ctx context.Context, entityGUID string) (*models.Conflict, error)
	List(ctx context.Context) ([]*models.Conflict, error)
	DeleteByEntity(ctx context.Context, entityGUID string) error
}
