// Package services contains the application services of the CrewClock
// device client. This file defines worker authentication: online and
// offline login, registration, the license gate and session storage.
package services

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/cryptox"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Session is the logged-in worker.
type Session struct {
	WorkerID int64
	Username string
	// Offline is true when the login was checked against cached
	// credentials only.
	Offline bool
	License license.Status
}

// AuthService defines authentication operations for the CLI.
//
// Login tries the server first and falls back to the cached verifier when
// the server is unreachable. Both paths pass through the license gate: a
// missing or invalid license blocks login with client.ErrLicense.
type AuthService interface {
	Register(ctx context.Context, username, name string, password []byte) (int64, error)
	Login(ctx context.Context, username string, password []byte) (*Session, error)
	OnlineLogin(ctx context.Context, username string, password []byte) (*Session, error)
	OfflineLogin(ctx context.Context, username string, password []byte) (*Session, error)
	Restore(ctx context.Context) (*Session, error)
	LicenseStatus(ctx context.Context) (license.Status, error)
	Logout(ctx context.Context) error
}

type authService struct {
	client     client.Client
	db         *sql.DB
	licenseKey ed25519.PublicKey
	log        logging.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService. licenseKey verifies the license
// offline; a nil key disables the gate.
func NewAuthService(c client.Client, db *sql.DB, licenseKey ed25519.PublicKey, log logging.Logger) AuthService {
	if log == nil {
		log = logging.Nop()
	}
	return &authService{client: c, db: db, licenseKey: licenseKey, log: log.With("module", "auth"), now: time.Now}
}

// EnsureDeviceID returns the device id, creating it on first use.
func EnsureDeviceID(ctx context.Context, db dbx.DBTX) (string, error) {
	meta := metadata.NewSQLiteRepository(db)
	id, err := meta.GetString(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := meta.SetString(ctx, metadata.KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Register creates a worker account. It generates a random salt, derives a
// key from the password and sends only salt and verifier to the server.
func (a *authService) Register(ctx context.Context, username, name string, password []byte) (int64, error) {
	if strings.TrimSpace(username) == "" || len(password) == 0 {
		return 0, fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}
	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	if salt == nil {
		return 0, errors.New("random source failed")
	}
	verifier := cryptox.VerifierFor(password, salt)
	return a.client.Register(ctx, username, name, salt, verifier)
}

func (a *authService) Login(ctx context.Context, username string, password []byte) (*Session, error) {
	s, err := a.OnlineLogin(ctx, username, password)
	if errors.Is(err, client.ErrUnavailable) {
		a.log.Info(ctx, "server unreachable, trying offline login", "username", username)
		return a.OfflineLogin(ctx, username, password)
	}
	return s, err
}

// OnlineLogin authenticates against the server and caches what offline
// login needs: username, salt, verifier, worker id and the license.
func (a *authService) OnlineLogin(ctx context.Context, username string, password []byte) (*Session, error) {
	deviceID, err := EnsureDeviceID(ctx, a.db)
	if err != nil {
		return nil, err
	}
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}
	verifier := cryptox.VerifierFor(password, salt)

	resp, err := a.client.Login(ctx, username, verifier, deviceID)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	st, err := a.gate(ctx, resp.License)
	if err != nil {
		return nil, err
	}

	tokens := syncapi.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	a.client.SetTokens(tokens)

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := metadata.NewSQLiteRepository(tx)
		if err := meta.SetString(ctx, metadata.KeyUsername, username); err != nil {
			return err
		}
		if err := meta.Set(ctx, metadata.KeySalt, salt); err != nil {
			return err
		}
		if err := meta.Set(ctx, metadata.KeyVerifier, verifier); err != nil {
			return err
		}
		if err := meta.SetInt64(ctx, metadata.KeyWorkerID, resp.WorkerID); err != nil {
			return err
		}
		if len(resp.License) > 0 {
			if err := meta.Set(ctx, metadata.KeyLicense, resp.License); err != nil {
				return err
			}
		}
		return SaveTokens(ctx, tx, tokens)
	})
	if err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}

	a.log.Info(ctx, "logged in", "username", username, "workerId", resp.WorkerID)
	return &Session{WorkerID: resp.WorkerID, Username: username, License: st}, nil
}

// OfflineLogin checks the password against the cached verifier and the
// cached license. It fails with client.ErrLocalDataNotAvailable when this
// device never logged in online.
func (a *authService) OfflineLogin(ctx context.Context, username string, password []byte) (*Session, error) {
	meta := metadata.NewSQLiteRepository(a.db)

	savedUsername, err := meta.GetString(ctx, metadata.KeyUsername)
	if err != nil {
		return nil, err
	}
	salt, err := meta.Get(ctx, metadata.KeySalt)
	if err != nil {
		return nil, err
	}
	verifier, err := meta.Get(ctx, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}
	workerID, ok, err := meta.GetInt64(ctx, metadata.KeyWorkerID)
	if err != nil {
		return nil, err
	}
	if savedUsername == "" || salt == nil || verifier == nil || !ok {
		return nil, client.ErrLocalDataNotAvailable
	}
	if savedUsername != username {
		return nil, client.ErrUnauthorized
	}
	if !cryptox.EqualVerifiers(verifier, cryptox.VerifierFor(password, salt)) {
		return nil, client.ErrUnauthorized
	}

	raw, err := meta.Get(ctx, metadata.KeyLicense)
	if err != nil {
		return nil, err
	}
	st, err := a.gate(ctx, raw)
	if err != nil {
		return nil, err
	}

	if err := a.restoreTokens(ctx); err != nil {
		return nil, err
	}
	return &Session{WorkerID: workerID, Username: username, Offline: true, License: st}, nil
}

// Restore resumes the session stored on the device without asking for the
// password. It returns client.ErrLocalDataNotAvailable if nobody is logged
// in.
func (a *authService) Restore(ctx context.Context) (*Session, error) {
	meta := metadata.NewSQLiteRepository(a.db)
	access, err := meta.GetString(ctx, metadata.KeyAccessToken)
	if err != nil {
		return nil, err
	}
	username, err := meta.GetString(ctx, metadata.KeyUsername)
	if err != nil {
		return nil, err
	}
	workerID, ok, err := meta.GetInt64(ctx, metadata.KeyWorkerID)
	if err != nil {
		return nil, err
	}
	if access == "" || !ok {
		return nil, client.ErrLocalDataNotAvailable
	}
	st, err := a.LicenseStatus(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.restoreTokens(ctx); err != nil {
		return nil, err
	}
	return &Session{WorkerID: workerID, Username: username, Offline: true, License: st}, nil
}

// LicenseStatus evaluates the cached license offline. Seats in use are the
// active workers last pulled from the server.
func (a *authService) LicenseStatus(ctx context.Context) (license.Status, error) {
	raw, err := metadata.NewSQLiteRepository(a.db).Get(ctx, metadata.KeyLicense)
	if err != nil {
		return license.Status{}, err
	}
	return a.gate(ctx, raw)
}

func (a *authService) gate(ctx context.Context, raw []byte) (license.Status, error) {
	if a.licenseKey == nil {
		return license.Status{IsValid: true, Errors: []string{}, Warnings: []string{}}, nil
	}
	if len(raw) == 0 {
		return license.Status{}, fmt.Errorf("%w: no license available on this device", client.ErrLicense)
	}
	seats, err := reference.NewSQLiteRepository(a.db).CountActiveWorkers(ctx)
	if err != nil {
		return license.Status{}, err
	}
	st := license.CheckStatusBytes(raw, a.licenseKey, seats, a.now())
	if !st.IsValid {
		return st, fmt.Errorf("%w: %s", client.ErrLicense, strings.Join(st.Errors, "; "))
	}
	for _, w := range st.Warnings {
		a.log.Warn(ctx, "license warning", "warning", w)
	}
	return st, nil
}

func (a *authService) restoreTokens(ctx context.Context) error {
	meta := metadata.NewSQLiteRepository(a.db)
	access, err := meta.GetString(ctx, metadata.KeyAccessToken)
	if err != nil {
		return err
	}
	refresh, err := meta.GetString(ctx, metadata.KeyRefreshToken)
	if err != nil {
		return err
	}
	if access != "" {
		a.client.SetTokens(syncapi.TokenPair{AccessToken: access, RefreshToken: refresh})
	}
	return nil
}

// Logout forgets the session tokens. Cached credentials stay so the worker
// can still log in offline.
func (a *authService) Logout(ctx context.Context) error {
	a.client.SetTokens(syncapi.TokenPair{})
	meta := metadata.NewSQLiteRepository(a.db)
	for _, k := range metadata.SessionKeys {
		if err := meta.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// SaveTokens persists a token pair. It is also the listener for tokens
// rotated by the HTTP client.
func SaveTokens(ctx context.Context, db dbx.DBTX, t syncapi.TokenPair) error {
	meta := metadata.NewSQLiteRepository(db)
	if err := meta.SetString(ctx, metadata.KeyAccessToken, t.AccessToken); err != nil {
		return err
	}
	return meta.SetString(ctx, metadata.KeyRefreshToken, t.RefreshToken)
}
