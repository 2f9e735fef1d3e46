package reference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestJobsSince(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM\s+jobs\s+WHERE\s+updated_at\s*>\s*\$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "active", "updated_at"}).
			AddRow(int64(100), "J-100", "Roof", true, since.Add(time.Hour)))

	jobs, err := repo.JobsSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "J-100", jobs[0].Code)
}

func TestBreakTypesSince_Empty(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+break_types`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "paid", "default_minutes", "active", "updated_at"}))

	got, err := repo.BreakTypesSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSettings(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT\s+key,\s*value\s+FROM\s+system_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow(syncapi.SettingOvertimeThresholdHours, "8").
			AddRow(syncapi.SettingConflictStrategy, "manual"))

	got, err := repo.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		syncapi.SettingOvertimeThresholdHours: "8",
		syncapi.SettingConflictStrategy:       "manual",
	}, got)
}

func TestLastUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT\s+GREATEST`).WillReturnRows(sqlmock.NewRows([]string{"greatest"}).AddRow(at))
	got, err := repo.LastUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	mock.ExpectQuery(`SELECT\s+GREATEST`).WillReturnRows(sqlmock.NewRows([]string{"greatest"}).AddRow(nil))
	got, err = repo.LastUpdate(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestExists(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+jobs\s+WHERE\s+id\s*=\s*\$1`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.JobExists(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(`FROM\s+break_types\s+WHERE\s+id\s*=\s*\$1`).WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	ok, err = repo.BreakTypeExists(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(`FROM\s+jobs`).WillReturnError(errors.New("down"))
	_, err = repo.JobExists(context.Background(), 1)
	assert.ErrorContains(t, err, "db error: down")
}

func TestUpsertJobAndSetting(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+jobs.*ON\s+CONFLICT\s*\(code\)`).
		WithArgs("J-1", "Roof", true).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	id, err := repo.UpsertJob(context.Background(), syncapi.Job{Code: "J-1", Name: "Roof", Active: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+system_settings.*ON\s+CONFLICT\s*\(key\)`).
		WithArgs("overtime_threshold_hours", "7.5").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetSetting(context.Background(), "overtime_threshold_hours", "7.5"))
	require.NoError(t, mock.ExpectationsWereMet())
}
