package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// HTTPClient implements Client over the JSON API.
type HTTPClient struct {
	baseURL   string
	http      *http.Client
	deviceID  string
	onRefresh func(syncapi.TokenPair)

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = h }
}

// WithDeviceID sends id in the device header of every request.
func WithDeviceID(id string) HTTPOption {
	return func(c *HTTPClient) { c.deviceID = id }
}

// WithTokenListener registers fn to receive tokens obtained by a refresh.
func WithTokenListener(fn func(syncapi.TokenPair)) HTTPOption {
	return func(c *HTTPClient) { c.onRefresh = fn }
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *HTTPClient) SetTokens(t syncapi.TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = t.AccessToken
	c.refreshToken = t.RefreshToken
}

func (c *HTTPClient) Tokens() syncapi.TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return syncapi.TokenPair{AccessToken: c.accessToken, RefreshToken: c.refreshToken}
}

func (c *HTTPClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var resp syncapi.SaltResponse
	path := "/api/auth/salt?username=" + url.QueryEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return nil, err
	}
	salt, err := base64.StdEncoding.DecodeString(resp.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return salt, nil
}

func (c *HTTPClient) Register(ctx context.Context, username, name string, salt, verifier []byte) (int64, error) {
	req := syncapi.RegisterRequest{
		Username: username,
		Name:     name,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Verifier: base64.StdEncoding.EncodeToString(verifier),
	}
	var resp syncapi.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp, false); err != nil {
		return 0, err
	}
	return resp.WorkerID, nil
}

func (c *HTTPClient) Login(ctx context.Context, username string, verifier []byte, deviceID string) (*syncapi.LoginResponse, error) {
	req := syncapi.LoginRequest{
		Username: username,
		Verifier: base64.StdEncoding.EncodeToString(verifier),
		DeviceID: deviceID,
	}
	var resp syncapi.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &resp, false); err != nil {
		return nil, err
	}
	c.SetTokens(syncapi.TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken})
	return &resp, nil
}

func (c *HTTPClient) Push(ctx context.Context, req *syncapi.PushRequest) (*syncapi.PushResponse, error) {
	var resp syncapi.PushResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/push", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Pull(ctx context.Context, since *time.Time) (*syncapi.PullResponse, error) {
	path := "/api/sync/pull"
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var resp syncapi.PullResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) LicenseStatus(ctx context.Context) (*license.Status, error) {
	var resp license.Status
	if err := c.do(ctx, http.MethodGet, "/api/license/status", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) PhotoURL(ctx context.Context, guid string) (*syncapi.PhotoURLResponse, error) {
	var resp syncapi.PhotoURLResponse
	if err := c.do(ctx, http.MethodGet, "/api/photos/"+url.PathEscape(guid)+"/url", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one request. With auth set it attaches the access token and, if
// the server reports an expired token, refreshes once and retries.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	status, respBody, err := c.send(ctx, method, path, body, auth)
	if err != nil {
		return err
	}

	if auth && status == http.StatusUnauthorized && isTokenExpired(respBody) {
		if rerr := c.refresh(ctx); rerr != nil {
			return rerr
		}
		status, respBody, err = c.send(ctx, method, path, body, auth)
		if err != nil {
			return err
		}
	}

	if status >= 200 && status < 300 {
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return mapStatus(status, respBody)
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body []byte, auth bool) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.deviceID != "" {
		req.Header.Set(common.DeviceIDHeader, c.deviceID)
	}
	if auth {
		if tok := c.Tokens().AccessToken; tok != "" {
			req.Header.Set(common.AuthorizationHeader, "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, b, nil
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	rt := c.Tokens().RefreshToken
	if rt == "" {
		return ErrUnauthorized
	}

	var pair syncapi.TokenPair
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", syncapi.RefreshRequest{RefreshToken: rt}, &pair, false); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: refresh failed: %v", ErrUnauthorized, err)
	}

	c.SetTokens(pair)
	if c.onRefresh != nil {
		c.onRefresh(pair)
	}
	return nil
}

func decodeError(body []byte) syncapi.ErrorResponse {
	var e syncapi.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(body))
	}
	return e
}

func isTokenExpired(body []byte) bool {
	return decodeError(body).Error == common.ErrTokenExpired.Error()
}

func mapStatus(status int, body []byte) error {
	e := decodeError(body)
	msg := e.Error
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrLicense, msg)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, msg)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, msg)
	}
}
