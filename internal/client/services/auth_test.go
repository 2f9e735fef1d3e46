package services

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/client/fakeapi"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/client/testdb"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

func signedLicense(t *testing.T, seats int, expires *time.Time) (ed25519.PublicKey, []byte) {
	t.Helper()
	pub, priv, err := license.GenerateKey()
	require.NoError(t, err)
	l, err := license.Sign(license.Data{
		LicenseID: "LIC-1",
		SeatsMax:  seats,
		ExpiresAt: expires,
		IssuedAt:  time.Now().Add(-24 * time.Hour).UTC(),
		Issuer:    "CrewClock",
	}, priv)
	require.NoError(t, err)
	raw, err := l.Marshal()
	require.NoError(t, err)
	return pub, raw
}

func TestAuth_RegisterValidates(t *testing.T) {
	svc := NewAuthService(fakeapi.New(), testdb.Open(t), nil, nil)

	_, err := svc.Register(context.Background(), " ", "Ann", []byte("pw"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Register(context.Background(), "ann", "Ann", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAuth_OnlineLoginCachesCredentials(t *testing.T) {
	ctx := context.Background()
	api := fakeapi.New()
	db := testdb.Open(t)
	svc := NewAuthService(api, db, nil, nil)

	id, err := svc.Register(ctx, "ann", "Ann", []byte("secret"))
	require.NoError(t, err)

	s, err := svc.Login(ctx, "ann", []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, id, s.WorkerID)
	assert.False(t, s.Offline)
	assert.True(t, s.License.IsValid)
	assert.Equal(t, "access-ann", api.Tokens().AccessToken)

	meta := metadata.NewSQLiteRepository(db)
	u, err := meta.GetString(ctx, metadata.KeyUsername)
	require.NoError(t, err)
	assert.Equal(t, "ann", u)
	wid, ok, err := meta.GetInt64(ctx, metadata.KeyWorkerID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, wid)
	refresh, err := meta.GetString(ctx, metadata.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-ann", refresh)
	dev, err := meta.GetString(ctx, metadata.KeyDeviceID)
	require.NoError(t, err)
	assert.NotEmpty(t, dev)
}

func TestAuth_WrongPasswordOnline(t *testing.T) {
	ctx := context.Background()
	api := fakeapi.New()
	svc := NewAuthService(api, testdb.Open(t), nil, nil)
	_, err := svc.Register(ctx, "ann", "Ann", []byte("secret"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann", []byte("nope"))
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestAuth_FallsBackToOfflineLogin(t *testing.T) {
	ctx := context.Background()
	api := fakeapi.New()
	svc := NewAuthService(api, testdb.Open(t), nil, nil)
	id, err := svc.Register(ctx, "ann", "Ann", []byte("secret"))
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ann", []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx))
	assert.Empty(t, api.Tokens().AccessToken)

	api.SetDown(true)

	s, err := svc.Login(ctx, "ann", []byte("secret"))
	require.NoError(t, err)
	assert.True(t, s.Offline)
	assert.Equal(t, id, s.WorkerID)

	_, err = svc.Login(ctx, "ann", []byte("wrong"))
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	_, err = svc.Login(ctx, "bob", []byte("secret"))
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestAuth_OfflineLoginWithoutCache(t *testing.T) {
	api := fakeapi.New()
	api.SetDown(true)
	svc := NewAuthService(api, testdb.Open(t), nil, nil)

	_, err := svc.Login(context.Background(), "ann", []byte("secret"))
	assert.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}

func TestAuth_RestoreAndLogout(t *testing.T) {
	ctx := context.Background()
	api := fakeapi.New()
	db := testdb.Open(t)
	svc := NewAuthService(api, db, nil, nil)

	_, err := svc.Restore(ctx)
	assert.ErrorIs(t, err, client.ErrLocalDataNotAvailable)

	_, err = svc.Register(ctx, "ann", "Ann", []byte("secret"))
	require.NoError(t, err)
	_, err = svc.Login(ctx, "ann", []byte("secret"))
	require.NoError(t, err)

	// A new process starts without tokens in the client.
	fresh := fakeapi.New()
	s, err := NewAuthService(fresh, db, nil, nil).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ann", s.Username)
	assert.Equal(t, "access-ann", fresh.Tokens().AccessToken)

	require.NoError(t, svc.Logout(ctx))
	_, err = svc.Restore(ctx)
	assert.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
}

func TestAuth_LicenseGate(t *testing.T) {
	ctx := context.Background()

	t.Run("no license blocks login", func(t *testing.T) {
		pub, _ := signedLicense(t, 5, nil)
		api := fakeapi.New()
		svc := NewAuthService(api, testdb.Open(t), pub, nil)
		_, err := svc.Register(ctx, "ann", "Ann", []byte("pw"))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "ann", []byte("pw"))
		assert.ErrorIs(t, err, client.ErrLicense)
		assert.Empty(t, api.Tokens().AccessToken)
	})

	t.Run("valid license", func(t *testing.T) {
		pub, raw := signedLicense(t, 5, nil)
		api := fakeapi.New()
		api.License = raw
		db := testdb.Open(t)
		svc := NewAuthService(api, db, pub, nil)
		_, err := svc.Register(ctx, "ann", "Ann", []byte("pw"))
		require.NoError(t, err)

		s, err := svc.Login(ctx, "ann", []byte("pw"))
		require.NoError(t, err)
		assert.Equal(t, "LIC-1", s.License.LicenseID)

		// Cached license also gates offline login.
		api.SetDown(true)
		s, err = svc.Login(ctx, "ann", []byte("pw"))
		require.NoError(t, err)
		assert.True(t, s.Offline)
		assert.True(t, s.License.IsValid)
	})

	t.Run("license signed by another key", func(t *testing.T) {
		pub, _ := signedLicense(t, 5, nil)
		_, raw := signedLicense(t, 5, nil)
		api := fakeapi.New()
		api.License = raw
		svc := NewAuthService(api, testdb.Open(t), pub, nil)
		_, err := svc.Register(ctx, "ann", "Ann", []byte("pw"))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "ann", []byte("pw"))
		require.ErrorIs(t, err, client.ErrLicense)
		assert.Contains(t, err.Error(), "signature")
	})

	t.Run("expired license", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).UTC()
		pub, raw := signedLicense(t, 5, &past)
		api := fakeapi.New()
		api.License = raw
		svc := NewAuthService(api, testdb.Open(t), pub, nil)
		_, err := svc.Register(ctx, "ann", "Ann", []byte("pw"))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "ann", []byte("pw"))
		assert.ErrorIs(t, err, client.ErrLicense)
	})

	t.Run("seat limit exceeded", func(t *testing.T) {
		pub, raw := signedLicense(t, 1, nil)
		api := fakeapi.New()
		api.License = raw
		db := testdb.Open(t)
		now := time.Now().UTC()
		require.NoError(t, reference.NewSQLiteRepository(db).UpsertWorkers(ctx, []syncapi.Worker{
			{ID: 1, Name: "Ann", Active: true, UpdatedAt: now},
			{ID: 2, Name: "Bob", Active: true, UpdatedAt: now},
		}))
		svc := NewAuthService(api, db, pub, nil)
		_, err := svc.Register(ctx, "ann", "Ann", []byte("pw"))
		require.NoError(t, err)

		_, err = svc.Login(ctx, "ann", []byte("pw"))
		require.ErrorIs(t, err, client.ErrLicense)
		assert.Contains(t, err.Error(), "seat limit")

		st, err := svc.LicenseStatus(ctx)
		assert.ErrorIs(t, err, client.ErrLicense)
		assert.False(t, st.IsValid)
	})
}

func TestEnsureDeviceID_Stable(t *testing.T) {
	ctx := context.Background()
	db := testdb.Open(t)
	a, err := EnsureDeviceID(ctx, db)
	require.NoError(t, err)
	b, err := EnsureDeviceID(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
