package syncapi

import (
	"encoding/json"
	"time"
)

type SaltResponse struct {
	Salt string `json:"salt"`
}

// RegisterRequest creates a worker account. Salt and Verifier are base64;
// the password itself never leaves the device.
type RegisterRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
}

type RegisterResponse struct {
	WorkerID int64 `json:"workerId"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier string `json:"verifier"`
	DeviceID string `json:"deviceId"`
}

type LoginResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	WorkerID     int64           `json:"workerId"`
	License      json.RawMessage `json:"license,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type PhotoURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
