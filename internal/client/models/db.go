// Package models defines the records the CrewClock device client keeps in
// its local store.
package models

import (
	"time"

	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// SyncState is the per-record bookkeeping of the sync engine.
type SyncState struct {
	// IsSynced is true once the server acknowledged the current content.
	IsSynced bool
	// HasConflict marks a record waiting for manual resolution.
	HasConflict    bool
	ConflictReason string
	// SyncedHash is the content hash of the last acknowledged version. It is
	// sent as baseHash so the server can detect concurrent edits.
	SyncedHash string
}

// TimeEntry is a locally stored time entry.
type TimeEntry struct {
	syncapi.TimeEntry
	SyncState
	CreatedAt time.Time
}

// BreakEntry is a locally stored break.
type BreakEntry struct {
	syncapi.BreakEntry
	SyncState
}

// Photo is a locally stored photo. URI points at the image file; the binary
// is read only when the photo is pushed.
type Photo struct {
	syncapi.Photo
	SyncState
	URI string
}

// Conflict is an item waiting for a person to pick a side.
type Conflict struct {
	GUID          string
	EntityType    syncapi.EntityType
	EntityGUID    string
	Kind          conflict.Kind
	LocalPayload  []byte
	ServerPayload []byte
	Reason        string
	DetectedAt    time.Time
}
