package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/client/repositories/breaks"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/timeentries"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// LoadRecord returns the current wire form of a stored entity: a
// syncapi.TimeEntry, syncapi.BreakEntry or syncapi.Photo.
func LoadRecord(ctx context.Context, db dbx.DBTX, t syncapi.EntityType, guid string) (any, error) {
	switch t {
	case syncapi.TimeEntryType:
		e, err := timeentries.NewSQLiteRepository(db).Get(ctx, guid)
		if err != nil {
			return nil, err
		}
		return e.TimeEntry, nil
	case syncapi.BreakEntryType:
		b, err := breaks.NewSQLiteRepository(db).Get(ctx, guid)
		if err != nil {
			return nil, err
		}
		return b.BreakEntry, nil
	case syncapi.PhotoType:
		p, err := photos.NewSQLiteRepository(db).Get(ctx, guid)
		if err != nil {
			return nil, err
		}
		return p.Photo, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
}

// EncodePayload serialises a record for the queue. Protocol fields are
// cleared; they are stamped at push time. force survives so a resolution
// in favour of the device is kept across retries.
func EncodePayload(rec any, force bool) ([]byte, error) {
	switch r := rec.(type) {
	case syncapi.TimeEntry:
		r.BaseHash, r.Force = "", force
		return json.Marshal(r)
	case syncapi.BreakEntry:
		r.BaseHash, r.Force = "", force
		return json.Marshal(r)
	case syncapi.Photo:
		r.BaseHash, r.Force, r.Data = "", force, ""
		return json.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported record %T", rec)
	}
}

func decodePayload(t syncapi.EntityType, payload []byte) (any, error) {
	switch t {
	case syncapi.TimeEntryType:
		var r syncapi.TimeEntry
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		return r, nil
	case syncapi.BreakEntryType:
		var r syncapi.BreakEntry
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		return r, nil
	case syncapi.PhotoType:
		var r syncapi.Photo
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
}

// applyServer stores the server's copy of a record as the synced state.
func applyServer(ctx context.Context, tx dbx.DBTX, rec any, hash string) error {
	switch r := rec.(type) {
	case syncapi.TimeEntry:
		if hash == "" {
			hash = r.ContentHash()
		}
		return timeentries.NewSQLiteRepository(tx).ApplyServer(ctx, r, hash)
	case syncapi.BreakEntry:
		if hash == "" {
			hash = r.ContentHash()
		}
		return breaks.NewSQLiteRepository(tx).ApplyServer(ctx, r, hash)
	case syncapi.Photo:
		if hash == "" {
			hash = r.ContentHash()
		}
		return photos.NewSQLiteRepository(tx).ApplyServer(ctx, r, hash)
	default:
		return fmt.Errorf("unsupported record %T", rec)
	}
}
