package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/crewclock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
)

func (e *Engine) pullDue(ctx context.Context) bool {
	last, err := metadata.NewSQLiteRepository(e.db).GetTime(ctx, metadata.KeyLastPullAttempt)
	if err != nil || last == nil {
		return true
	}
	return e.now().Sub(*last) >= e.cfg.PullInterval
}

// pull fetches reference data changed since the last pull and overwrites
// the cached copies.
func (e *Engine) pull(ctx context.Context) error {
	meta := metadata.NewSQLiteRepository(e.db)
	since, err := meta.GetTime(ctx, metadata.KeyLastPull)
	if err != nil {
		return err
	}

	resp, err := e.api.Pull(ctx, since)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	err = dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ref := reference.NewSQLiteRepository(tx)
		if err := ref.UpsertWorkers(ctx, resp.Workers); err != nil {
			return err
		}
		if err := ref.UpsertJobs(ctx, resp.Jobs); err != nil {
			return err
		}
		if err := ref.UpsertBreakTypes(ctx, resp.BreakTypes); err != nil {
			return err
		}
		if err := ref.SetSettings(ctx, resp.SystemSettings); err != nil {
			return err
		}

		m := metadata.NewSQLiteRepository(tx)
		if len(resp.License) > 0 {
			if err := m.Set(ctx, metadata.KeyLicense, resp.License); err != nil {
				return err
			}
		}
		if !resp.LastServerUpdate.IsZero() {
			if err := m.SetTime(ctx, metadata.KeyLastPull, resp.LastServerUpdate); err != nil {
				return err
			}
		}
		return m.SetTime(ctx, metadata.KeyLastPullAttempt, e.now())
	})
	if err != nil {
		return err
	}

	e.log.Info(ctx, "pulled reference data", "workers", len(resp.Workers), "jobs", len(resp.Jobs),
		"breakTypes", len(resp.BreakTypes))
	return nil
}
