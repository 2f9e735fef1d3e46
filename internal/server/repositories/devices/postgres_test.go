package devices

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTouch(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)
	now := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	q := `(?s)INSERT\s+INTO\s+devices.*ON\s+CONFLICT\s*\(device_id\).*COALESCE`
	mock.ExpectExec(q).
		WithArgs("dev-1", int64(7), now, sql.NullTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("dev-1", int64(7), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnError(errors.New("down"))

	require.NoError(t, repo.Touch(context.Background(), "dev-1", 7, now, false))
	require.NoError(t, repo.Touch(context.Background(), "dev-1", 7, now, true))
	assert.ErrorContains(t, repo.Touch(context.Background(), "dev-1", 7, now, true), "db error: down")
	require.NoError(t, mock.ExpectationsWereMet())
}
