package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// CountActive is the number of seats in use.
	CountActive(ctx context.Context) (int, error)
	ListUpdated(ctx context.Context, since time.Time) ([]*models.User, error)
}
