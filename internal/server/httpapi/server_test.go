package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/auth"
	"github.com/dmitrijs2005/crewclock/internal/server/services"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

const secret = "test-secret"

type harness struct {
	users    *fakeUsers
	sync     *fakeSync
	licenses *fakeLicenses
	photos   *fakePhotos
	admin    *fakeAdmin
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:    &fakeUsers{salt: []byte("salty")},
		sync:     &fakeSync{},
		licenses: &fakeLicenses{status: license.Status{IsValid: true, Errors: []string{}, Warnings: []string{}}},
		photos:   &fakePhotos{},
		admin:    &fakeAdmin{},
	}
	srv := NewServer("", logging.Nop(), Deps{
		Users: h.users, Sync: h.sync, Licenses: h.licenses, Photos: h.photos, Admin: h.admin,
	}, secret, "admin-secret")
	h.handler = srv.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, workerID int64, validity time.Duration) map[string]string {
	t.Helper()
	tok, err := auth.GenerateToken(workerID, []byte(secret), validity)
	require.NoError(t, err)
	return map[string]string{common.AuthorizationHeader: "Bearer " + tok}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) syncapi.ErrorResponse {
	t.Helper()
	var e syncapi.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSalt(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/auth/salt?username=ann", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp syncapi.SaltResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, b64("salty"), resp.Salt)

	rec = h.do(t, http.MethodGet, "/api/auth/salt", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/register", syncapi.RegisterRequest{
		Username: "ann", Name: "Ann", Salt: b64("s"), Verifier: b64("v"),
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"workerId":7}`, rec.Body.String())
	assert.Equal(t, []byte("v"), h.users.registered.Verifier)

	rec = h.do(t, http.MethodPost, "/api/auth/register", syncapi.RegisterRequest{Username: "ann", Salt: "%%", Verifier: b64("v")}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Error, "salt")

	rec = h.do(t, http.MethodPost, "/api/auth/register", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.users.err = fmt.Errorf("error creating user: %w", common.ErrAlreadyExists)
	rec = h.do(t, http.MethodPost, "/api/auth/register", syncapi.RegisterRequest{Username: "ann", Salt: b64("s"), Verifier: b64("v")}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/login",
		syncapi.LoginRequest{Username: "ann", Verifier: b64("v")},
		map[string]string{common.DeviceIDHeader: "dev-9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp syncapi.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.AccessToken)
	assert.Equal(t, int64(7), resp.WorkerID)
	assert.JSONEq(t, `{"data":{}}`, string(resp.License))
	assert.Equal(t, "dev-9", h.users.gotLogin.device, "device header is the fallback")
	assert.Equal(t, []byte("v"), h.users.gotLogin.verifier)

	h.users.err = common.ErrorUnauthorized
	rec = h.do(t, http.MethodPost, "/api/auth/login", syncapi.LoginRequest{Username: "ann", Verifier: b64("x")}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorBody(t, rec).Error)
}

func TestLogin_LicenseRejected(t *testing.T) {
	h := newHarness(t)
	h.users.err = &services.LicenseError{Status: license.Status{Errors: []string{"license expired on 2024-01-01"}}}

	rec := h.do(t, http.MethodPost, "/api/auth/login", syncapi.LoginRequest{Username: "ann", Verifier: b64("v")}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	e := errorBody(t, rec)
	assert.Equal(t, common.ErrLicenseInvalid.Error(), e.Error)
	assert.Equal(t, []string{"license expired on 2024-01-01"}, e.Details)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/refresh", syncapi.RefreshRequest{RefreshToken: "r1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accessToken":"a2","refreshToken":"r1-next"}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", syncapi.RefreshRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.users.err = common.ErrRefreshTokenExpired
	rec = h.do(t, http.MethodPost, "/api/auth/refresh", syncapi.RefreshRequest{RefreshToken: "old"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "refresh token expired", errorBody(t, rec).Error)
}

func TestPush(t *testing.T) {
	h := newHarness(t)
	hdr := bearer(t, 7, time.Hour)
	hdr[common.DeviceIDHeader] = "dev-1"

	req := syncapi.PushRequest{TimeEntries: []syncapi.TimeEntry{{GUID: "g"}}}
	rec := h.do(t, http.MethodPost, "/api/sync/push", req, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(7), h.sync.gotWorker)
	assert.Equal(t, "dev-1", h.sync.gotReq.DeviceID)

	var resp syncapi.PushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Processed)
	assert.Contains(t, rec.Body.String(), `"conflicts":[]`)
}

func TestSyncRoutes_Auth(t *testing.T) {
	tests := []struct {
		name   string
		hdr    func(t *testing.T) map[string]string
		status int
		body   string
	}{
		{"missing header", func(*testing.T) map[string]string { return nil }, http.StatusUnauthorized, "unauthorized"},
		{"not bearer", func(*testing.T) map[string]string {
			return map[string]string{common.AuthorizationHeader: "Basic abc"}
		}, http.StatusUnauthorized, "unauthorized"},
		{"garbage token", func(*testing.T) map[string]string {
			return map[string]string{common.AuthorizationHeader: "Bearer nope"}
		}, http.StatusUnauthorized, "invalid token"},
		{"expired token", func(t *testing.T) map[string]string { return bearer(t, 7, -time.Minute) }, http.StatusUnauthorized, "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, http.MethodGet, "/api/sync/pull", nil, tt.hdr(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, errorBody(t, rec).Error)
			assert.True(t, h.sync.gotSince.IsZero(), "handler must not run")
		})
	}
}

func TestSyncRoutes_LicenseGate(t *testing.T) {
	h := newHarness(t)
	h.licenses.checkErr = fmt.Errorf("gate: %w", common.ErrNoLicense)

	rec := h.do(t, http.MethodPost, "/api/sync/push", syncapi.PushRequest{}, bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, h.sync.gotReq)

	// License status stays reachable so devices can explain the block.
	rec = h.do(t, http.MethodGet, "/api/license/status", nil, bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPull(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/sync/pull?since=2024-03-04T10:00:00.5%2B02:00", nil, bearer(t, 7, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2024, 3, 4, 8, 0, 0, 500_000_000, time.UTC), h.sync.gotSince)

	rec = h.do(t, http.MethodGet, "/api/sync/pull", nil, bearer(t, 7, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.sync.gotSince.IsZero())

	rec = h.do(t, http.MethodGet, "/api/sync/pull?since=yesterday", nil, bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPull_LicenseStaysVerifiable(t *testing.T) {
	h := newHarness(t)
	pub, priv, err := license.GenerateKey()
	require.NoError(t, err)
	l, err := license.Sign(license.Data{
		LicenseID: "LIC-1", SeatsMax: 5, Issuer: "Smith & Sons <Licensing>",
		IssuedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, priv)
	require.NoError(t, err)
	h.sync.license, err = l.Compact()
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/sync/pull", nil, bearer(t, 7, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `\u0026`)

	var resp syncapi.PullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, license.VerifyBytes(resp.License, pub))
}

func TestPhotoURL(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/photos/abc/url", nil, bearer(t, 7, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://s3/abc")

	h.photos.err = common.ErrorNotFound
	rec = h.do(t, http.MethodGet, "/api/photos/abc/url", nil, bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t)
	admin := map[string]string{common.AdminTokenHeader: "admin-secret"}

	rec := h.do(t, http.MethodPost, "/api/admin/license", `{"data":{}}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/admin/license", `{"data":{}}`, map[string]string{common.AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, h.licenses.uploaded)

	rec = h.do(t, http.MethodPost, "/api/admin/license", `{"data":{}}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"data":{}}`, string(h.licenses.uploaded))

	h.licenses.uploadErr = fmt.Errorf("%w: license signature is invalid", common.ErrValidation)
	rec = h.do(t, http.MethodPost, "/api/admin/license", `{}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec).Error, "signature")

	rec = h.do(t, http.MethodPost, "/api/admin/jobs", syncapi.Job{Code: "J-1", Name: "Roof"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":42`)

	rec = h.do(t, http.MethodPut, "/api/admin/settings/overtime_threshold_hours", syncapi.SettingRequest{Value: "7.5"}, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "7.5", h.admin.settings["overtime_threshold_hours"])
}

func TestAdminRoutes_DisabledWithoutToken(t *testing.T) {
	srv := NewServer("", logging.Nop(), Deps{Licenses: &fakeLicenses{}}, secret, "")
	req := httptest.NewRequest(http.MethodPost, "/api/admin/license", strings.NewReader("{}"))
	req.Header.Set(common.AdminTokenHeader, "")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/nope", nil, nil).Code)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := newHarness(t)
	h.sync.err = errors.New("pq: connection reset")

	rec := h.do(t, http.MethodGet, "/api/sync/pull", nil, bearer(t, 7, time.Hour))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", errorBody(t, rec).Error)
}

func TestRecoverer(t *testing.T) {
	srv := NewServer("", logging.Nop(), Deps{}, secret, "")
	h := srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer("", logging.Nop(), Deps{}, secret, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
