package syncapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/common"
)

var t0 = time.Date(2025, 4, 1, 7, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func entry() TimeEntry {
	return TimeEntry{
		GUID:      uuid.NewString(),
		WorkerID:  1,
		JobID:     2,
		StartTime: t0,
		EndTime:   tp(t0.Add(8 * time.Hour)),
		StartLocation: &GeoPoint{
			Lat: 56.95, Lon: 24.1, Accuracy: 5, Timestamp: t0,
		},
		Notes:        "site A",
		RegularHours: 8,
		UpdatedAt:    t0.Add(8 * time.Hour),
	}
}

func TestTimeEntry_ContentHashIgnoresProtocolFields(t *testing.T) {
	e := entry()
	h := e.ContentHash()

	c := e
	id := int64(42)
	c.ServerID = &id
	c.UpdatedAt = c.UpdatedAt.Add(time.Minute)
	c.BaseHash = "abc"
	c.Force = true
	assert.Equal(t, h, c.ContentHash())

	c.Notes = "site B"
	assert.NotEqual(t, h, c.ContentHash())
}

func TestTimeEntry_ContentHashStableAcrossZonesAndJSON(t *testing.T) {
	e := entry()
	riga := time.FixedZone("EEST", 3*3600)
	z := e
	z.StartTime = e.StartTime.In(riga).Add(300 * time.Microsecond)
	assert.Equal(t, e.ContentHash(), z.ContentHash())

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	var back TimeEntry
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, e.ContentHash(), back.ContentHash())
}

func TestTimeEntry_Validate(t *testing.T) {
	require.NoError(t, entry().Validate())

	bad := entry()
	bad.GUID = "nope"
	bad.EndTime = tp(bad.StartTime)
	err := bad.Validate()
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "guid")
	assert.Contains(t, err.Error(), "endTime")
}

func TestTimeEntry_Overlaps(t *testing.T) {
	a := entry()
	b := entry()
	b.StartTime = t0.Add(8 * time.Hour)
	b.EndTime = tp(t0.Add(9 * time.Hour))
	assert.False(t, a.Overlaps(b), "touching windows do not overlap")

	b.StartTime = t0.Add(7 * time.Hour)
	assert.True(t, a.Overlaps(b))

	open := entry()
	open.StartTime = t0.Add(10 * time.Hour)
	open.EndTime = nil
	assert.False(t, a.Overlaps(open))
	a.EndTime = nil
	assert.True(t, a.Overlaps(open))
}

func TestBreakEntry_Within(t *testing.T) {
	parent := entry()
	br := BreakEntry{
		GUID:          uuid.NewString(),
		TimeEntryGUID: parent.GUID,
		BreakTypeID:   1,
		StartTime:     t0.Add(time.Hour),
		EndTime:       tp(t0.Add(90 * time.Minute)),
	}
	require.NoError(t, br.Validate())
	assert.True(t, br.Within(parent))

	br.StartTime = t0.Add(-time.Minute)
	assert.False(t, br.Within(parent))

	br.StartTime = t0.Add(time.Hour)
	br.EndTime = nil
	assert.False(t, br.Within(parent), "open break in closed parent")

	parent.EndTime = nil
	assert.True(t, br.Within(parent))
}

func TestPhoto_HashIgnoresData(t *testing.T) {
	p := Photo{
		GUID:       uuid.NewString(),
		FileName:   "a.jpg",
		MimeType:   "image/jpeg",
		SizeBytes:  10,
		CapturedAt: t0,
	}
	require.NoError(t, p.Validate())
	h := p.ContentHash()
	p.Data = "AAAA"
	assert.Equal(t, h, p.ContentHash())

	p.MimeType = "text/plain"
	require.ErrorIs(t, p.Validate(), common.ErrValidation)
}

func TestParseEntityType(t *testing.T) {
	et, err := ParseEntityType("photo")
	require.NoError(t, err)
	assert.Equal(t, PhotoType, et)
	_, err = ParseEntityType("invoice")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPushResponse_EncodesEmptyArrays(t *testing.T) {
	raw, err := json.Marshal(NewPushResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"conflicts":[],"processed":0,"succeeded":0,"failed":0,"errors":[],"acknowledged":[]}`, string(raw))
}
