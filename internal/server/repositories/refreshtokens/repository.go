// Package refreshtokens keeps the refresh tokens issued at login. A token
// is single use: refreshing deletes it and issues a new one.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	// Find returns common.ErrorNotFound for an unknown token.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	// DeleteExpired removes tokens that expired before now and reports how
	// many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
