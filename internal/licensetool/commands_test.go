package licensetool

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(func() time.Time { return testNow })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeygenSignVerifyStatus(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "issuer")

	_, err := run(t, "keygen", "--out", prefix)
	require.NoError(t, err)
	info, err := os.Stat(prefix + ".key")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	lic := filepath.Join(dir, "acme.license")
	_, err = run(t, "sign", "--key", prefix+".key", "--id", "LIC-7", "--seats", "5",
		"--issuer", "Acme", "--expires", "2025-12-31", "--out", lic)
	require.NoError(t, err)

	out, err := run(t, "verify", lic, "--pubkey", prefix+".pub")
	require.NoError(t, err)
	assert.Contains(t, out, "signature: OK")

	out, err = run(t, "status", lic, "--pubkey", prefix+".pub", "--seats-used", "3")
	require.NoError(t, err)
	var st license.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.IsValid)
	assert.Equal(t, "LIC-7", st.LicenseID)
	require.NotNil(t, st.ExpiresAt)
	assert.Equal(t, time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), st.ExpiresAt.UTC())

	out, err = run(t, "status", lic, "--pubkey", prefix+".pub", "--seats-used", "6")
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "seat limit exceeded")
}

func TestVerify_RejectsForeignKey(t *testing.T) {
	dir := t.TempDir()
	pub, _, err := license.GenerateKey()
	require.NoError(t, err)
	_, priv, err := license.GenerateKey()
	require.NoError(t, err)

	lic := filepath.Join(dir, "l.json")
	_, err = run(t, "sign", "--key", license.EncodeKey(priv), "--id", "X", "--seats", "1", "--issuer", "I", "--out", lic)
	require.NoError(t, err)

	out, err := run(t, "verify", lic, "--pubkey", license.EncodeKey(pub))
	assert.ErrorIs(t, err, errInvalid)
	assert.Contains(t, out, "INVALID")
}

func TestSign_Errors(t *testing.T) {
	_, priv, err := license.GenerateKey()
	require.NoError(t, err)
	key := license.EncodeKey(priv)

	_, err = run(t, "sign", "--key", key, "--id", "X", "--seats", "1")
	assert.Error(t, err, "issuer is required")

	_, err = run(t, "sign", "--key", key, "--id", "X", "--seats", "1", "--issuer", "I", "--expires", "31/12/2025")
	assert.ErrorContains(t, err, "YYYY-MM-DD")

	_, err = run(t, "sign", "--key", "not-base64!", "--id", "X", "--seats", "1", "--issuer", "I")
	assert.Error(t, err)

	_, err = run(t, "sign", "--key", key, "--id", "X", "--seats", "0", "--issuer", "I")
	assert.ErrorIs(t, err, license.ErrInvalid)
}

func TestKeygen_Stdout(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	_, err = license.ParsePublicKey(strings.TrimSpace(strings.TrimPrefix(lines[0], "public:")))
	assert.NoError(t, err)
	_, err = license.ParsePrivateKey(strings.TrimSpace(strings.TrimPrefix(lines[1], "private:")))
	assert.NoError(t, err)
}

func TestUpload(t *testing.T) {
	var gotToken, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/license", r.URL.Path)
		gotToken = r.Header.Get(common.AdminTokenHeader)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if gotToken != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"isValid":true,"errors":[],"warnings":["approaching seat limit: 9 of 10 seats in use"],"licenseId":"LIC","seatsMax":10,"seatsUsed":9}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := upload(context.Background(), srv.Client(), srv.URL+"/", "s3cret", []byte(`{"data":{}}`), &out)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, gotBody)
	assert.Contains(t, out.String(), "installed LIC (9 of 10 seats in use)")
	assert.Contains(t, out.String(), "warning: approaching seat limit")

	err = upload(context.Background(), srv.Client(), srv.URL, "wrong", []byte(`{}`), &out)
	assert.ErrorContains(t, err, "upload rejected (401): unauthorized")
}
