package conflicts

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
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

func TestConflicts_UpsertListDelete(t *testing.T) {
	r := NewSQLiteRepository(testdb.Open(t))
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	c := &models.Conflict{
		GUID:          uuid.NewString(),
		EntityType:    syncapi.TimeEntryType,
		EntityGUID:    "e1",
		Kind:          conflict.UpdateRace,
		LocalPayload:  []byte(`{"a":1}`),
		ServerPayload: []byte(`{"a":2}`),
		Reason:        "both copies modified at the same instant",
		DetectedAt:    now,
	}
	require.NoError(t, r.Upsert(ctx, c))

	again := *c
	again.GUID = uuid.NewString()
	again.Kind = conflict.Overlap
	again.ServerPayload = nil
	require.NoError(t, r.Upsert(ctx, &again))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "one open conflict per entity")
	assert.Equal(t, conflict.Overlap, list[0].Kind)
	assert.Equal(t, c.GUID, list[0].GUID)
	assert.Nil(t, list[0].ServerPayload)

	got, err := r.GetByEntity(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, now.Equal(got.DetectedAt))

	require.NoError(t, r.DeleteByEntity(ctx, "e1"))
	_, err = r.GetByEntity(ctx, "e1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
