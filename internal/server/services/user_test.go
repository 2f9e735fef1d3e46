package services

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/auth"
	"github.com/dmitrijs2005/crewclock/internal/server/config"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newUserService(t *testing.T, db *sql.DB, st *store, key ed25519.PublicKey) *UserService {
	t.Helper()
	cfg := &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
	licenses := NewLicenseService(db, st, key, logging.Nop())
	return NewUserService(db, st, licenses, cfg, logging.Nop())
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)

	u, err := svc.Register(ctx, "  ann ", "Ann", []byte("salt"), []byte("verifier"))
	require.NoError(t, err)
	assert.Equal(t, "ann", u.UserName)
	assert.True(t, u.Active)

	res, err := svc.Login(ctx, "ann", []byte("verifier"), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.WorkerID)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Nil(t, res.License)

	id, err := auth.GetWorkerIDFromToken(res.AccessToken, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	assert.Equal(t, 1, st.devices["dev-1"])
	_, ok := st.tokens[res.RefreshToken]
	assert.True(t, ok, "refresh token must be stored")
}

func TestUserService_Register_Errors(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)

	_, err := svc.Register(ctx, " ", "x", []byte("s"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.Register(ctx, "ann", "x", nil, []byte("v"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Register(ctx, "ann", "Ann", []byte("s"), []byte("v"))
	require.NoError(t, err)
	_, err = svc.Register(ctx, "ann", "Ann", []byte("s"), []byte("v"))
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if !regexp.MustCompile(`error creating user`).MatchString(err.Error()) {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestUserService_GetSalt(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)
	_, err := svc.Register(ctx, "ann", "Ann", []byte("salt"), []byte("v"))
	require.NoError(t, err)

	salt, err := svc.GetSalt(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, []byte("salt"), salt)

	r1, err := svc.GetSalt(ctx, "ghost")
	require.NoError(t, err)
	r2, err := svc.GetSalt(ctx, "ghost")
	require.NoError(t, err)
	assert.Len(t, r1, 32)
	assert.NotEqual(t, r1, r2)

	st.failFind = errBoom
	_, err = svc.GetSalt(ctx, "ann")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestUserService_Login_Rejects(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)
	u, err := svc.Register(ctx, "ann", "Ann", []byte("s"), []byte("v"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann", []byte("wrong"), "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = svc.Login(ctx, "ghost", []byte("v"), "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	st.users[u.UserName].Active = false
	_, err = svc.Login(ctx, "ann", []byte("v"), "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	st.failFind = errBoom
	_, err = svc.Login(ctx, "ann", []byte("v"), "")
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.Empty(t, st.devices)
}

func TestUserService_LicenseGate(t *testing.T) {
	ctx := context.Background()
	pub, _ := testKeys(t)
	st := newStore()
	svc := newUserService(t, txDB(t), st, pub)

	_, err := svc.Register(ctx, "ann", "Ann", []byte("s"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrNoLicense)

	var le *LicenseError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Status.Errors, "no active license")
}

func TestUserService_RefreshToken_Rotates(t *testing.T) {
	ctx := context.Background()
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)
	_, err := svc.Register(ctx, "ann", "Ann", []byte("s"), []byte("v"))
	require.NoError(t, err)
	res, err := svc.Login(ctx, "ann", []byte("v"), "")
	require.NoError(t, err)

	pair, err := svc.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, pair.RefreshToken)

	// The old token is single use.
	_, err = svc.RefreshToken(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestUserService_RefreshToken_Expired(t *testing.T) {
	st := newStore()
	svc := newUserService(t, txDB(t), st, nil)
	require.NoError(t, st.RefreshTokens(nil).Create(context.Background(), 1, "old", time.Now().Add(-time.Minute)))

	_, err := svc.RefreshToken(context.Background(), "old")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestUserService_RefreshToken_BeginFails(t *testing.T) {
	db, mock := newSQLMockDB(t)
	st := newStore()
	svc := newUserService(t, db, st, nil)
	require.NoError(t, st.RefreshTokens(nil).Create(context.Background(), 1, "tok", time.Now().Add(time.Hour)))

	mock.ExpectBegin().WillReturnError(errBoom)

	_, err := svc.RefreshToken(context.Background(), "tok")
	if !errors.Is(err, errBoom) {
		t.Fatalf("want errBoom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserService_RefreshToken_CommitsWithSQLMock(t *testing.T) {
	db, mock := newSQLMockDB(t)
	st := newStore()
	svc := newUserService(t, db, st, nil)
	require.NoError(t, st.RefreshTokens(nil).Create(context.Background(), 1, "tok", time.Now().Add(time.Hour)))

	mock.ExpectBegin()
	mock.ExpectCommit()

	pair, err := svc.RefreshToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
