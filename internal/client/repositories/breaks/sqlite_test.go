package breaks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/testdb"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

var t0 = time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC)

func newBreak(entry string, start time.Time) *models.BreakEntry {
	return &models.BreakEntry{BreakEntry: syncapi.BreakEntry{
		GUID:          uuid.NewString(),
		TimeEntryGUID: entry,
		BreakTypeID:   1,
		StartTime:     start,
		UpdatedAt:     start,
	}}
}

func TestBreaks_Lifecycle(t *testing.T) {
	r := NewSQLiteRepository(testdb.Open(t))
	ctx := context.Background()
	entry := uuid.NewString()

	b := newBreak(entry, t0)
	require.NoError(t, r.Insert(ctx, b))
	require.Error(t, r.Insert(ctx, newBreak(entry, t0.Add(time.Minute))), "one active break per entry")

	active, err := r.GetActive(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, b.GUID, active.GUID)

	end := t0.Add(15 * time.Minute)
	b.EndTime = &end
	b.DurationMinutes = 15
	b.UpdatedAt = end
	require.NoError(t, r.Update(ctx, b))

	_, err = r.GetActive(ctx, entry)
	require.ErrorIs(t, err, common.ErrorNotFound)

	second := newBreak(entry, t0.Add(time.Hour))
	require.NoError(t, r.Insert(ctx, second))

	list, err := r.ListByEntry(ctx, entry)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.GUID, list[0].GUID)
	assert.Equal(t, 15, list[0].DurationMinutes)

	require.NoError(t, r.Delete(ctx, second.GUID))
	_, err = r.Get(ctx, second.GUID)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestBreaks_ApplyServer(t *testing.T) {
	r := NewSQLiteRepository(testdb.Open(t))
	ctx := context.Background()

	b := newBreak(uuid.NewString(), t0)
	require.NoError(t, r.Insert(ctx, b))

	id := int64(4)
	server := b.BreakEntry
	server.ServerID = &id
	server.BreakTypeID = 2
	require.NoError(t, r.ApplyServer(ctx, server, "hash"))

	got, err := r.Get(ctx, b.GUID)
	require.NoError(t, err)
	assert.True(t, got.IsSynced)
	assert.EqualValues(t, 2, got.BreakTypeID)
	assert.Equal(t, "hash", got.SyncedHash)
	require.NotNil(t, got.ServerID)
	assert.EqualValues(t, 4, *got.ServerID)
}
