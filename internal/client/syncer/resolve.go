package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/breaks"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/timeentries"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Choice is a person's decision on a conflict.
type Choice string

const (
	ChooseLocal  Choice = "keep_local"
	ChooseServer Choice = "keep_server"
)

func ParseChoice(s string) (Choice, error) {
	switch c := Choice(s); c {
	case ChooseLocal, ChooseServer:
		return c, nil
	case "local":
		return ChooseLocal, nil
	case "server":
		return ChooseServer, nil
	default:
		return "", fmt.Errorf("%w: unknown choice %q", common.ErrValidation, s)
	}
}

// Conflicts lists the items waiting for review.
func (e *Engine) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	return conflicts.NewSQLiteRepository(e.db).List(ctx)
}

// ResolveConflict applies a manual decision.
//
// Keeping the local copy queues it with force set, so the server overwrites
// its version. Keeping the server copy of an update race stores the server
// version locally. For an overlap the server holds a different entry, so
// keeping the server side discards the local entry: its breaks are deleted
// and its photos are detached and resent.
func (e *Engine) ResolveConflict(ctx context.Context, entityGUID string, choice Choice) error {
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		crepo := conflicts.NewSQLiteRepository(tx)
		c, err := crepo.GetByEntity(ctx, entityGUID)
		if err != nil {
			return err
		}
		table, err := syncstate.ForType(tx, c.EntityType)
		if err != nil {
			return err
		}

		switch {
		case choice == ChooseLocal:
			rec, err := LoadRecord(ctx, tx, c.EntityType, entityGUID)
			if err != nil {
				return err
			}
			payload, err := EncodePayload(rec, true)
			if err != nil {
				return err
			}
			if err := table.ClearConflict(ctx, entityGUID); err != nil {
				return err
			}
			if _, err := e.queue.Enqueue(ctx, tx, c.EntityType, entityGUID, payload); err != nil {
				return err
			}
		case c.Kind == conflict.Overlap:
			if err := e.discardTimeEntry(ctx, tx, entityGUID); err != nil {
				return err
			}
		default:
			server, err := decodePayload(c.EntityType, c.ServerPayload)
			if err != nil || len(c.ServerPayload) == 0 {
				return fmt.Errorf("%w: no usable server copy", common.ErrValidation)
			}
			if err := applyServer(ctx, tx, server, ""); err != nil {
				return err
			}
			if err := e.queue.DropEntity(ctx, tx, c.EntityType, entityGUID); err != nil {
				return err
			}
		}
		return crepo.DeleteByEntity(ctx, entityGUID)
	})
	if err != nil {
		return err
	}
	e.log.Info(ctx, "conflict resolved", "guid", entityGUID, "choice", choice)
	return e.RefreshStatus(ctx)
}

func (e *Engine) discardTimeEntry(ctx context.Context, tx dbx.DBTX, guid string) error {
	br := breaks.NewSQLiteRepository(tx)
	bs, err := br.ListByEntry(ctx, guid)
	if err != nil {
		return err
	}
	for _, b := range bs {
		if err := e.queue.DropEntity(ctx, tx, syncapi.BreakEntryType, b.GUID); err != nil {
			return err
		}
		if err := br.Delete(ctx, b.GUID); err != nil {
			return err
		}
	}

	pr := photos.NewSQLiteRepository(tx)
	ps, err := pr.ListByEntry(ctx, guid)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if err := pr.Unlink(ctx, p.GUID, e.now()); err != nil {
			return err
		}
		if err := e.requeue(ctx, tx, syncapi.PhotoType, p.GUID); err != nil {
			return err
		}
	}

	if err := e.queue.DropEntity(ctx, tx, syncapi.TimeEntryType, guid); err != nil {
		return err
	}
	return timeentries.NewSQLiteRepository(tx).Delete(ctx, guid)
}

func (e *Engine) requeue(ctx context.Context, tx dbx.DBTX, t syncapi.EntityType, guid string) error {
	rec, err := LoadRecord(ctx, tx, t, guid)
	if err != nil {
		return err
	}
	payload, err := EncodePayload(rec, false)
	if err != nil {
		return err
	}
	_, err = e.queue.Enqueue(ctx, tx, t, guid, payload)
	return err
}

// Reconcile queues records that are unsynced but have no queue row, which
// happens when a write reached the record store but not the queue. It
// returns the number of records queued.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	total := 0
	for _, t := range []syncapi.EntityType{syncapi.TimeEntryType, syncapi.BreakEntryType, syncapi.PhotoType} {
		table, err := syncstate.ForType(e.db, t)
		if err != nil {
			return total, err
		}
		guids, err := table.Orphans(ctx)
		if err != nil {
			return total, err
		}
		for _, g := range guids {
			err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
				return e.requeue(ctx, tx, t, g)
			})
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			if err != nil {
				return total, err
			}
			total++
		}
	}
	if total > 0 {
		e.log.Warn(ctx, "reconciled unqueued records", "count", total)
		if err := e.RefreshStatus(ctx); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ConflictDetail decodes both sides of a conflict for display.
func ConflictDetail(c *models.Conflict) (local, server map[string]any) {
	_ = json.Unmarshal(c.LocalPayload, &local)
	if len(c.ServerPayload) > 0 {
		_ = json.Unmarshal(c.ServerPayload, &server)
	}
	return local, server
}
