package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/breaks"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/devices"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/licenses"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/timeentries"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/users"
)

// RepositoryManager builds repositories bound to a handle, which is either
// the pool or a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	TimeEntries(db dbx.DBTX) timeentries.Repository
	Breaks(db dbx.DBTX) breaks.Repository
	Photos(db dbx.DBTX) photos.Repository
	Reference(db dbx.DBTX) reference.Repository
	Licenses(db dbx.DBTX) licenses.Repository
	Devices(db dbx.DBTX) devices.Repository
}
