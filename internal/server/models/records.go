package models

import "github.com/dmitrijs2005/crewclock/internal/syncapi"

// TimeEntry is a stored time entry together with the hash of its content
// at the time it was written.
type TimeEntry struct {
	syncapi.TimeEntry
	Hash     string
	DeviceID string
}

type BreakEntry struct {
	syncapi.BreakEntry
	Hash string
}

// Photo is stored photo metadata. The binary lives in object storage under
// StorageKey.
type Photo struct {
	syncapi.Photo
	WorkerID   int64
	StorageKey string
	Hash       string
}
