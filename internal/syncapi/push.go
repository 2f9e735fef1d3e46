package syncapi

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/conflict"
)

// ErrorCode classifies a per-item push failure.
type ErrorCode string

const (
	// CodeValidation marks an item the server will never accept as sent.
	CodeValidation ErrorCode = "validation"
	// CodeMissingReference marks a child whose parent has not reached the
	// server yet. Retrying after the parent syncs succeeds.
	CodeMissingReference ErrorCode = "missing_reference"
	// CodeInternal marks a server-side failure.
	CodeInternal ErrorCode = "internal"
)

// Permanent reports whether retrying the same payload cannot succeed.
func (c ErrorCode) Permanent() bool {
	return c == CodeValidation
}

type PushRequest struct {
	TimeEntries  []TimeEntry  `json:"timeEntries"`
	BreakEntries []BreakEntry `json:"breakEntries"`
	Photos       []Photo      `json:"photos"`
	DeviceID     string       `json:"deviceId"`
	LastSyncAt   *time.Time   `json:"lastSyncAt,omitempty"`
}

// Len is the number of records in the request.
func (r PushRequest) Len() int {
	return len(r.TimeEntries) + len(r.BreakEntries) + len(r.Photos)
}

// Conflict reports that an item was not applied because the server holds
// divergent data. ServerRecord is the server's copy of the conflicting
// record: the same GUID for an update race, the overlapping entry for an
// overlap.
type Conflict struct {
	EntityType   EntityType      `json:"entityType"`
	EntityGUID   string          `json:"entityGuid"`
	Kind         conflict.Kind   `json:"kind"`
	Reason       string          `json:"reason"`
	ServerRecord json.RawMessage `json:"serverRecord,omitempty"`
	ServerHash   string          `json:"serverHash,omitempty"`
}

type ItemError struct {
	EntityType EntityType `json:"entityType"`
	EntityGUID string     `json:"entityGuid"`
	Error      string     `json:"error"`
	Code       ErrorCode  `json:"code"`
}

// Ack confirms that the server holds exactly the pushed content.
type Ack struct {
	EntityType EntityType `json:"entityType"`
	EntityGUID string     `json:"entityGuid"`
	ServerID   int64      `json:"serverId"`
	Hash       string     `json:"hash"`
}

type PushResponse struct {
	Conflicts    []Conflict  `json:"conflicts"`
	Processed    int         `json:"processed"`
	Succeeded    int         `json:"succeeded"`
	Failed       int         `json:"failed"`
	Errors       []ItemError `json:"errors"`
	Acknowledged []Ack       `json:"acknowledged"`
}

// NewPushResponse returns a response with non-nil slices so they encode as
// empty arrays.
func NewPushResponse() *PushResponse {
	return &PushResponse{
		Conflicts:    []Conflict{},
		Errors:       []ItemError{},
		Acknowledged: []Ack{},
	}
}
