package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Client is the server API as seen by the device.
type Client interface {
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Register(ctx context.Context, username, name string, salt, verifier []byte) (int64, error)
	Login(ctx context.Context, username string, verifier []byte, deviceID string) (*syncapi.LoginResponse, error)
	Push(ctx context.Context, req *syncapi.PushRequest) (*syncapi.PushResponse, error)
	Pull(ctx context.Context, since *time.Time) (*syncapi.PullResponse, error)
	LicenseStatus(ctx context.Context) (*license.Status, error)
	PhotoURL(ctx context.Context, guid string) (*syncapi.PhotoURLResponse, error)
	SetTokens(tokens syncapi.TokenPair)
	Tokens() syncapi.TokenPair
}

// Prober checks whether the server is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}
