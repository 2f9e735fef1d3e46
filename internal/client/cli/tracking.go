package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/providers"
)

const defaultHistory = 10

func (a *App) workerID() (int64, error) {
	s := a.currentSession()
	if s == nil {
		return 0, errors.New("not logged in")
	}
	return s.WorkerID, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func clockTime(t time.Time) string { return t.Local().Format("15:04") }

func (a *App) StartJob(ctx context.Context, args []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	jobID, err := parseID(args[0])
	if err != nil {
		return err
	}
	e, err := a.tracking.StartJob(ctx, worker, jobID, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	a.printf("Started job %d at %s\n", e.JobID, clockTime(e.StartTime))
	return nil
}

func (a *App) EndJob(ctx context.Context, args []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	e, err := a.tracking.EndJob(ctx, worker, strings.Join(args, " "))
	if err != nil {
		return err
	}
	a.printf("Ended job %d at %s: %.2fh regular, %.2fh overtime\n",
		e.JobID, clockTime(*e.EndTime), e.RegularHours, e.OvertimeHours)
	return nil
}

func (a *App) StartBreak(ctx context.Context, args []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	typeID, err := parseID(args[0])
	if err != nil {
		return err
	}
	b, err := a.tracking.StartBreak(ctx, worker, typeID)
	if err != nil {
		return err
	}
	a.printf("Break started at %s\n", clockTime(b.StartTime))
	return nil
}

func (a *App) EndBreak(ctx context.Context, _ []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	b, err := a.tracking.EndBreak(ctx, worker)
	if err != nil {
		return err
	}
	a.printf("Break ended after %d min\n", b.DurationMinutes)
	return nil
}

// Photo imports an image file and attaches it to the running job, if any.
func (a *App) Photo(ctx context.Context, args []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	capture, err := providers.NewFileCapture(strings.Join(args, " "))
	if err != nil {
		return err
	}
	p, err := a.tracking.CapturePhoto(ctx, worker, capture)
	if err != nil {
		return err
	}
	if p.TimeEntryGUID != nil {
		a.printf("Photo %s attached to the current job\n", p.GUID)
	} else {
		a.printf("Photo %s saved\n", p.GUID)
	}
	return nil
}

func (a *App) Status(ctx context.Context, _ []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	e, b, err := a.tracking.Active(ctx, worker)
	if err != nil {
		return err
	}
	switch {
	case e == nil:
		a.printf("No job in progress\n")
	default:
		a.printf("Job %d since %s (%s)\n", e.JobID, clockTime(e.StartTime),
			time.Since(e.StartTime).Truncate(time.Minute))
		if b != nil {
			a.printf("On break since %s\n", clockTime(b.StartTime))
		}
	}

	s := a.engine.Status()
	a.printf("Mode: %s, pending: %d, failed: %d, conflicts: %d\n", a.Mode(), s.Pending, s.Failed, s.Conflicts)
	if s.LastSyncAt != nil {
		a.printf("Last sync: %s\n", s.LastSyncAt.Local().Format(time.DateTime))
	}
	if s.LastError != "" {
		a.printf("Last error: %s\n", s.LastError)
	}
	return nil
}

func (a *App) History(ctx context.Context, args []string) error {
	worker, err := a.workerID()
	if err != nil {
		return err
	}
	limit := defaultHistory
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}
	entries, err := a.tracking.History(ctx, worker, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printf("No entries yet\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tJOB\tSTART\tEND\tREGULAR\tOVERTIME\tSYNC")
	for _, e := range entries {
		end := "-"
		if e.EndTime != nil {
			end = clockTime(*e.EndTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.2f\t%.2f\t%s\n",
			e.StartTime.Local().Format(time.DateOnly), e.JobID, clockTime(e.StartTime), end,
			e.RegularHours, e.OvertimeHours, syncLabel(e.SyncState))
	}
	return tw.Flush()
}

func syncLabel(s models.SyncState) string {
	switch {
	case s.HasConflict:
		return "conflict"
	case s.IsSynced:
		return "synced"
	default:
		return "pending"
	}
}

func (a *App) Jobs(ctx context.Context, _ []string) error {
	jobs, err := a.tracking.Jobs(ctx)
	if err != nil {
		return err
	}
	types, err := a.tracking.BreakTypes(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 && len(types) == 0 {
		a.printf("No reference data yet, run 'pull' while online\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tCODE\tNAME")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", j.ID, j.Code, j.Name)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "BREAK\tPAID\tNAME")
	for _, t := range types {
		paid := "no"
		if t.Paid {
			paid = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s (%d min)\n", t.ID, paid, t.Name, t.DefaultMinutes)
	}
	return tw.Flush()
}
