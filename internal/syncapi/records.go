package syncapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/timex"
)

// EntityType names a kind of synced record.
type EntityType string

const (
	TimeEntryType  EntityType = "time_entry"
	BreakEntryType EntityType = "break_entry"
	PhotoType      EntityType = "photo"
)

// ParseEntityType validates a stored entity type.
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case TimeEntryType, BreakEntryType, PhotoType:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", common.ErrValidation, s)
	}
}

// GeoPoint is a location fix.
type GeoPoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *GeoPoint) normalized() *GeoPoint {
	if g == nil {
		return nil
	}
	c := *g
	c.Timestamp = timex.Normalize(c.Timestamp)
	return &c
}

// TimeEntry is one worker's time on a job.
type TimeEntry struct {
	GUID          string     `json:"guid"`
	ServerID      *int64     `json:"serverId,omitempty"`
	WorkerID      int64      `json:"workerId"`
	JobID         int64      `json:"jobId"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	StartLocation *GeoPoint  `json:"startLocation,omitempty"`
	EndLocation   *GeoPoint  `json:"endLocation,omitempty"`
	Notes         string     `json:"notes"`
	RegularHours  float64    `json:"regularHours"`
	OvertimeHours float64    `json:"overtimeHours"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	// BaseHash is the content hash of the last version the device saw
	// acknowledged by the server. Empty for records never synced.
	BaseHash string `json:"baseHash,omitempty"`
	// Force asks the server to overwrite its copy regardless of BaseHash.
	Force bool `json:"force,omitempty"`
}

func (e TimeEntry) LastModified() time.Time { return e.UpdatedAt }

// Active reports whether the entry has not ended.
func (e TimeEntry) Active() bool { return e.EndTime == nil }

// Overlaps reports whether the windows of e and o intersect. An open end is
// treated as extending indefinitely.
func (e TimeEntry) Overlaps(o TimeEntry) bool {
	return windowsOverlap(e.StartTime, e.EndTime, o.StartTime, o.EndTime)
}

func windowsOverlap(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	aBeforeB := aEnd != nil && !aEnd.After(bStart)
	bBeforeA := bEnd != nil && !bEnd.After(aStart)
	return !aBeforeB && !bBeforeA
}

func (e TimeEntry) Validate() error {
	var problems []string
	if _, err := uuid.Parse(e.GUID); err != nil {
		problems = append(problems, "guid must be a UUID")
	}
	if e.WorkerID <= 0 {
		problems = append(problems, "workerId is required")
	}
	if e.JobID <= 0 {
		problems = append(problems, "jobId is required")
	}
	if e.StartTime.IsZero() {
		problems = append(problems, "startTime is required")
	}
	if e.EndTime != nil && !e.EndTime.After(e.StartTime) {
		problems = append(problems, "endTime must be after startTime")
	}
	if e.RegularHours < 0 || e.OvertimeHours < 0 {
		problems = append(problems, "hours must not be negative")
	}
	return validationError(problems)
}

// Normalized returns a copy with every instant in UTC at millisecond
// precision.
func (e TimeEntry) Normalized() TimeEntry {
	e.StartTime = timex.Normalize(e.StartTime)
	e.EndTime = timex.NormalizePtr(e.EndTime)
	e.StartLocation = e.StartLocation.normalized()
	e.EndLocation = e.EndLocation.normalized()
	e.UpdatedAt = timex.Normalize(e.UpdatedAt)
	return e
}

// ContentHash identifies the entry's content. Server id, update time and
// protocol fields do not take part.
func (e TimeEntry) ContentHash() string {
	c := e.Normalized()
	c.ServerID = nil
	c.UpdatedAt = time.Time{}
	c.BaseHash = ""
	c.Force = false
	return hashJSON(c)
}

// BreakEntry is a pause inside a time entry.
type BreakEntry struct {
	GUID            string     `json:"guid"`
	ServerID        *int64     `json:"serverId,omitempty"`
	TimeEntryGUID   string     `json:"timeEntryGuid"`
	BreakTypeID     int64      `json:"breakTypeId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	BaseHash string `json:"baseHash,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

func (b BreakEntry) LastModified() time.Time { return b.UpdatedAt }

func (b BreakEntry) Active() bool { return b.EndTime == nil }

// Within reports whether the break lies inside the parent's window.
func (b BreakEntry) Within(parent TimeEntry) bool {
	if b.StartTime.Before(parent.StartTime) {
		return false
	}
	if parent.EndTime == nil {
		return true
	}
	if b.EndTime == nil {
		return false
	}
	return !b.StartTime.After(*parent.EndTime) && !b.EndTime.After(*parent.EndTime)
}

func (b BreakEntry) Validate() error {
	var problems []string
	if _, err := uuid.Parse(b.GUID); err != nil {
		problems = append(problems, "guid must be a UUID")
	}
	if _, err := uuid.Parse(b.TimeEntryGUID); err != nil {
		problems = append(problems, "timeEntryGuid must be a UUID")
	}
	if b.BreakTypeID <= 0 {
		problems = append(problems, "breakTypeId is required")
	}
	if b.StartTime.IsZero() {
		problems = append(problems, "startTime is required")
	}
	if b.EndTime != nil && !b.EndTime.After(b.StartTime) {
		problems = append(problems, "endTime must be after startTime")
	}
	if b.DurationMinutes < 0 {
		problems = append(problems, "durationMinutes must not be negative")
	}
	return validationError(problems)
}

func (b BreakEntry) Normalized() BreakEntry {
	b.StartTime = timex.Normalize(b.StartTime)
	b.EndTime = timex.NormalizePtr(b.EndTime)
	b.UpdatedAt = timex.Normalize(b.UpdatedAt)
	return b
}

func (b BreakEntry) ContentHash() string {
	c := b.Normalized()
	c.ServerID = nil
	c.UpdatedAt = time.Time{}
	c.BaseHash = ""
	c.Force = false
	return hashJSON(c)
}

// Photo describes a captured image. Data carries the base64 encoded binary
// and is only populated inside a push request.
type Photo struct {
	GUID                string    `json:"guid"`
	ServerID            *int64    `json:"serverId,omitempty"`
	TimeEntryGUID       *string   `json:"timeEntryGuid,omitempty"`
	FileName            string    `json:"fileName"`
	MimeType            string    `json:"mimeType"`
	SizeBytes           int64     `json:"sizeBytes"`
	CompressedSizeBytes *int64    `json:"compressedSizeBytes,omitempty"`
	Width               int       `json:"width"`
	Height              int       `json:"height"`
	CapturedAt          time.Time `json:"capturedAt"`
	Location            *GeoPoint `json:"location,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
	Data                string    `json:"data,omitempty"`

	BaseHash string `json:"baseHash,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

func (p Photo) LastModified() time.Time { return p.UpdatedAt }

func (p Photo) Validate() error {
	var problems []string
	if _, err := uuid.Parse(p.GUID); err != nil {
		problems = append(problems, "guid must be a UUID")
	}
	if p.TimeEntryGUID != nil {
		if _, err := uuid.Parse(*p.TimeEntryGUID); err != nil {
			problems = append(problems, "timeEntryGuid must be a UUID")
		}
	}
	if strings.TrimSpace(p.FileName) == "" {
		problems = append(problems, "fileName is required")
	}
	if !strings.HasPrefix(p.MimeType, "image/") {
		problems = append(problems, "mimeType must be an image type")
	}
	if p.SizeBytes < 0 || p.Width < 0 || p.Height < 0 {
		problems = append(problems, "size and dimensions must not be negative")
	}
	if p.CapturedAt.IsZero() {
		problems = append(problems, "capturedAt is required")
	}
	return validationError(problems)
}

func (p Photo) Normalized() Photo {
	p.CapturedAt = timex.Normalize(p.CapturedAt)
	p.Location = p.Location.normalized()
	p.UpdatedAt = timex.Normalize(p.UpdatedAt)
	return p
}

// ContentHash covers the photo metadata; the binary is not part of it.
func (p Photo) ContentHash() string {
	c := p.Normalized()
	c.ServerID = nil
	c.UpdatedAt = time.Time{}
	c.Data = ""
	c.BaseHash = ""
	c.Force = false
	return hashJSON(c)
}

func validationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(problems, "; "))
}
