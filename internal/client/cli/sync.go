package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/dmitrijs2005/crewclock/internal/client/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/client/syncer"
	"github.com/dmitrijs2005/crewclock/internal/filex"
	"github.com/dmitrijs2005/crewclock/internal/netx"
)

// DownloadDir is where downloaded photos are written, relative to the
// working directory.
const DownloadDir = "downloads"

func (a *App) Sync(ctx context.Context, _ []string) error {
	res, err := a.engine.Sync(ctx)
	if errors.Is(err, syncer.ErrAlreadySyncing) {
		a.printf("A sync is already running\n")
		return nil
	}
	if res != nil {
		a.printResult(res)
	}
	return err
}

func (a *App) printResult(r *syncer.Result) {
	if r.Processed == 0 {
		a.printf("Nothing to send")
	} else {
		a.printf("Sent %d of %d", r.Succeeded, r.Processed)
	}
	if r.Conflicts > 0 {
		a.printf(", %d conflicts", r.Conflicts)
	}
	if r.Failed > 0 {
		a.printf(", %d failed", r.Failed)
	}
	if r.Pulled {
		a.printf(", reference data refreshed")
	}
	a.printf("\n")
	for _, e := range r.Errors {
		a.printf("  %s %s: %s\n", e.EntityType, e.EntityGUID, e.Error)
	}
}

func (a *App) Pull(ctx context.Context, _ []string) error {
	if err := a.engine.Pull(ctx); err != nil {
		return err
	}
	a.printf("Reference data refreshed\n")
	return nil
}

// Failed lists queue items that ran out of attempts.
func (a *App) Failed(ctx context.Context, _ []string) error {
	items, err := a.queue.Failed(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.printf("No failed items\n")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tRECORD\tATTEMPTS\tERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", it.ID, it.Type, it.EntityGUID, it.RetryCount, it.LastError)
	}
	return tw.Flush()
}

func (a *App) Retry(ctx context.Context, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.queue.Requeue(ctx, id); err != nil {
		return err
	}
	a.printf("Item %d queued again\n", id)
	a.localChange(ctx)
	return nil
}

func (a *App) Dismiss(ctx context.Context, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.queue.Dismiss(ctx, id); err != nil {
		return err
	}
	a.printf("Item %d dismissed\n", id)
	return a.engine.RefreshStatus(ctx)
}

func (a *App) Conflicts(ctx context.Context, _ []string) error {
	list, err := a.engine.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No conflicts\n")
		return nil
	}
	for _, c := range list {
		a.printf("%s %s (%s) detected %s\n", c.EntityType, c.EntityGUID, c.Kind,
			c.DetectedAt.Local().Format("2006-01-02 15:04"))
		if c.Reason != "" {
			a.printf("  reason: %s\n", c.Reason)
		}
		local, server := syncer.ConflictDetail(c)
		a.printDiff(local, server)
	}
	a.printf("Use 'resolve <guid> local' or 'resolve <guid> server'\n")
	return nil
}

// printDiff prints the fields that differ between both sides, or the local
// side alone when the server sent no copy.
func (a *App) printDiff(local, server map[string]any) {
	keys := make([]string, 0, len(local))
	for k := range local {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l := fmt.Sprint(local[k])
		if server == nil {
			a.printf("  %-14s %s\n", k, l)
			continue
		}
		if s := fmt.Sprint(server[k]); s != l {
			a.printf("  %-14s local=%s server=%s\n", k, l, s)
		}
	}
}

func (a *App) Resolve(ctx context.Context, args []string) error {
	choice, err := syncer.ParseChoice(args[1])
	if err != nil {
		return err
	}
	if err := a.engine.ResolveConflict(ctx, args[0], choice); err != nil {
		return err
	}
	a.printf("Conflict on %s resolved\n", args[0])
	a.monitor.SyncNow()
	return nil
}

// Reconcile queues records that are unsynced but missing from the queue.
func (a *App) Reconcile(ctx context.Context, _ []string) error {
	n, err := a.engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	a.printf("Queued %d records\n", n)
	return nil
}

// DownloadPhoto fetches a synced photo through a short-lived URL issued by
// the server.
func (a *App) DownloadPhoto(ctx context.Context, args []string) error {
	guid := args[0]
	link, err := a.api.PhotoURL(ctx, guid)
	if err != nil {
		return err
	}

	name := guid
	if p, err := photos.NewSQLiteRepository(a.db).Get(ctx, guid); err == nil && p.FileName != "" {
		name = guid + "-" + filepath.Base(p.FileName)
	}
	dir, err := filex.EnsureSubDir(DownloadDir)
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, name)

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	n, err := netx.Download(ctx, a.http, link.URL, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	a.printf("Saved %d bytes to %s\n", n, dst)
	return nil
}
