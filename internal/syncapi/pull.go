package syncapi

import (
	"encoding/json"
	"time"
)

type Worker struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Job struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type BreakType struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Paid           bool      `json:"paid"`
	DefaultMinutes int       `json:"defaultMinutes"`
	Active         bool      `json:"active"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PullResponse carries reference data changed since the requested instant.
// License is the active signed license document, if any.
type PullResponse struct {
	Workers          []Worker          `json:"workers"`
	Jobs             []Job             `json:"jobs"`
	BreakTypes       []BreakType       `json:"breakTypes"`
	SystemSettings   map[string]string `json:"systemSettings"`
	License          json.RawMessage   `json:"license,omitempty"`
	LastServerUpdate time.Time         `json:"lastServerUpdate"`
}

// Known system setting keys.
const (
	SettingOvertimeThresholdHours = "overtime_threshold_hours"
	SettingConflictStrategy       = "conflict_strategy"
)

// SettingRequest is the body of an admin settings update.
type SettingRequest struct {
	Value string `json:"value"`
}
