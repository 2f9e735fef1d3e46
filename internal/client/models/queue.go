package models

import (
	"time"

	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueFailed  QueueStatus = "failed"
	// QueueDismissed rows are never sent again. They stay behind so the
	// record is not picked up as unqueued.
	QueueDismissed QueueStatus = "dismissed"
)

// QueueItem is one pending transmission. Payload is the JSON snapshot of the
// record taken when it was enqueued.
type QueueItem struct {
	ID         int64
	Type       syncapi.EntityType
	EntityGUID string
	Payload    []byte
	RetryCount int
	LastError  string
	Status     QueueStatus
	// Revision grows every time the payload is replaced by a newer edit.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueStats summarises the queue for status displays.
type QueueStats struct {
	Pending   int
	Failed    int
	LastError string
}
