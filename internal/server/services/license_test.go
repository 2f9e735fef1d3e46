package services

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
)

func testKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := license.GenerateKey()
	require.NoError(t, err)
	return pub, priv
}

func signedDoc(t *testing.T, priv ed25519.PrivateKey, seats int, expires *time.Time) []byte {
	t.Helper()
	issued := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	if expires != nil && !expires.After(issued) {
		issued = expires.Add(-24 * time.Hour)
	}
	l, err := license.Sign(license.Data{
		LicenseID: "LIC-1",
		SeatsMax:  seats,
		ExpiresAt: expires,
		IssuedAt:  issued,
		Issuer:    "Crew Licensing",
	}, priv)
	require.NoError(t, err)
	raw, err := l.Marshal()
	require.NoError(t, err)
	return raw
}

func addWorkers(st *store, n int) {
	for i := 0; i < n; i++ {
		id := st.nextID()
		st.users[string(rune('a'+i))] = &models.User{ID: id, UserName: string(rune('a' + i)), Active: true}
	}
}

func TestLicenseService_Disabled(t *testing.T) {
	st := newStore()
	addWorkers(st, 3)
	svc := NewLicenseService(txDB(t), st, nil, logging.Nop())

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Check(context.Background(), 100))

	s, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsValid)
	assert.Equal(t, 3, s.SeatsUsed)

	_, err = svc.Upload(context.Background(), []byte("{}"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLicenseService_UploadAndSeats(t *testing.T) {
	ctx := context.Background()
	pub, priv := testKeys(t)
	st := newStore()
	addWorkers(st, 2)
	svc := NewLicenseService(txDB(t), st, pub, logging.Nop())

	err := svc.Check(ctx, 0)
	assert.ErrorIs(t, err, common.ErrNoLicense)

	s, err := svc.Upload(ctx, signedDoc(t, priv, 3, nil))
	require.NoError(t, err)
	assert.True(t, s.IsValid)
	assert.Equal(t, "LIC-1", s.LicenseID)
	assert.Equal(t, 2, s.SeatsUsed)
	require.NotNil(t, st.license)
	assert.Equal(t, "LIC-1", st.license.LicenseID)

	doc, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.True(t, license.VerifyBytes(doc, pub))

	require.NoError(t, svc.Check(ctx, 1))
	err = svc.Check(ctx, 2)
	assert.ErrorIs(t, err, common.ErrLicenseInvalid)
	assert.ErrorContains(t, err, "seat limit exceeded")
}

func TestLicenseService_IssuerWithMarkupCharacters(t *testing.T) {
	ctx := context.Background()
	pub, priv := testKeys(t)
	st := newStore()
	addWorkers(st, 1)
	svc := NewLicenseService(txDB(t), st, pub, logging.Nop())

	l, err := license.Sign(license.Data{
		LicenseID: "LIC-S&S",
		SeatsMax:  5,
		IssuedAt:  time.Now().Add(-time.Hour).UTC().Truncate(time.Second),
		Issuer:    "Smith & Sons <Licensing>",
	}, priv)
	require.NoError(t, err)
	raw, err := l.Marshal()
	require.NoError(t, err)

	s, err := svc.Upload(ctx, raw)
	require.NoError(t, err)
	assert.True(t, s.IsValid)
	assert.Equal(t, "LIC-S&S", s.LicenseID)
	require.NoError(t, svc.Check(ctx, 0))

	doc, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), `\u0026`)
	assert.True(t, license.VerifyBytes(doc, pub))
}

func TestLicenseService_UploadRejects(t *testing.T) {
	ctx := context.Background()
	pub, _ := testKeys(t)
	_, otherPriv := testKeys(t)
	svc := NewLicenseService(txDB(t), newStore(), pub, logging.Nop())

	tests := []struct {
		name string
		raw  []byte
	}{
		{"garbage", []byte("not json")},
		{"foreign signature", signedDoc(t, otherPriv, 5, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tt.raw)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestLicenseService_ExpiredLicenseStored(t *testing.T) {
	ctx := context.Background()
	pub, priv := testKeys(t)
	st := newStore()
	svc := NewLicenseService(txDB(t), st, pub, logging.Nop())

	past := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	s, err := svc.Upload(ctx, signedDoc(t, priv, 5, &past))
	require.NoError(t, err)
	assert.False(t, s.IsValid)

	err = svc.Check(ctx, 0)
	var le *LicenseError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, common.ErrLicenseInvalid)
	assert.NotEmpty(t, le.Status.Errors)
}
