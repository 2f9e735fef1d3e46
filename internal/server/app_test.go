package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"

	gs "github.com/dmitrijs2005/crewclock/internal/server/grpc"
)

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var buf bytes.Buffer
	logger := logging.NewJSON(&buf, slog.LevelDebug)
	return &App{
		logger:      logger,
		db:          db,
		repomanager: repomanager.NewPostgresRepositoryManager(),
		grpcServer:  gs.NewGRPCServer("", logger),
	}, mock, &buf
}

func TestCleanupTokens(t *testing.T) {
	app, mock, buf := newTestApp(t)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	app.cleanupTokens(context.Background(), now)

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, buf.String(), "expired refresh tokens removed")
}

func TestCleanupTokens_ErrorIsLogged(t *testing.T) {
	app, mock, buf := newTestApp(t)

	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnError(errors.New("conn reset"))

	app.cleanupTokens(context.Background(), time.Now())

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, buf.String(), "refresh token cleanup")
}

func TestCheckHealth_LogsUnreachableDatabase(t *testing.T) {
	app, mock, buf := newTestApp(t)

	mock.ExpectPing()
	app.checkHealth(context.Background())
	assert.NotContains(t, buf.String(), "database unreachable")

	mock.ExpectPing().WillReturnError(errors.New("down"))
	app.checkHealth(context.Background())
	assert.Contains(t, buf.String(), "database unreachable")

	require.NoError(t, mock.ExpectationsWereMet())
}
