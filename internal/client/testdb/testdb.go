// Package testdb opens migrated in-memory device databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
)

// Open returns a fresh, fully migrated in-memory database closed at the end
// of the test.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
