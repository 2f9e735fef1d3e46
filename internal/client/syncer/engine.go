// Package syncer drives synchronization between the device store and the
// server: pushing queued mutations, pulling reference data, applying
// conflict decisions and broadcasting progress.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/broadcast"
	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/client/queue"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// ErrAlreadySyncing is returned by Sync while another cycle runs.
var ErrAlreadySyncing = errors.New("sync already in progress")

type Phase string

const (
	Idle    Phase = "idle"
	Syncing Phase = "syncing"
)

// Status is what the UI shows about synchronization.
type Status struct {
	Phase      Phase
	Pending    int
	Failed     int
	Conflicts  int
	LastError  string
	LastSyncAt *time.Time
	LastResult *Result
}

// ItemError is one item that could not be delivered in a cycle.
type ItemError struct {
	EntityType syncapi.EntityType
	EntityGUID string
	Error      string
}

// Result summarises one sync cycle.
type Result struct {
	Processed int
	Succeeded int
	Failed    int
	Conflicts int
	// Evicted counts items moved to the failed list during the cycle.
	Evicted int
	Errors  []ItemError
	Pulled  bool
}

func (r *Result) fail(t syncapi.EntityType, guid string, err error, out queue.Outcome) {
	r.Failed++
	if out.Evicted {
		r.Evicted++
	}
	r.Errors = append(r.Errors, ItemError{EntityType: t, EntityGUID: guid, Error: err.Error()})
}

type Config struct {
	BatchSize  int
	MaxBatches int
	// PullInterval is the minimum time between pulls made as part of Sync.
	PullInterval time.Duration
	Strategy     conflict.Strategy
}

type Engine struct {
	db    *sql.DB
	api   client.Client
	queue *queue.Service
	blobs BlobReader
	cfg   Config
	log   logging.Logger
	now   func() time.Time

	syncing atomic.Bool
	hub     broadcast.Hub[Status]

	mu     sync.Mutex
	status Status
}

type Option func(*Engine)

func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.log = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithBlobReader(b BlobReader) Option { return func(e *Engine) { e.blobs = b } }

func New(db *sql.DB, api client.Client, q *queue.Service, cfg Config, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 10
	}
	if cfg.Strategy == "" {
		cfg.Strategy = conflict.LatestWins
	}
	e := &Engine{
		db:     db,
		api:    api,
		queue:  q,
		blobs:  FileBlobReader{},
		cfg:    cfg,
		log:    logging.Nop(),
		now:    time.Now,
		status: Status{Phase: Idle},
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With("module", "syncer")
	return e
}

// Sync runs one cycle: push every pending batch, then pull if the pull
// interval elapsed. Only one cycle runs at a time; a concurrent call
// returns ErrAlreadySyncing without waiting.
//
// Authorization and license failures end the cycle with the error. Other
// per-item failures are booked in the queue and reported in the Result.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, ErrAlreadySyncing
	}
	defer e.syncing.Store(false)

	e.update(func(s *Status) { s.Phase = Syncing })

	res := &Result{}
	err := e.push(ctx, res)
	if err == nil && e.pullDue(ctx) {
		if err = e.pull(ctx); err == nil {
			res.Pulled = true
		}
	}

	now := e.now()
	if err == nil {
		if serr := metadata.NewSQLiteRepository(e.db).SetTime(ctx, metadata.KeyLastSync, now); serr != nil {
			e.log.Warn(ctx, "store last sync time", "error", serr)
		}
	}
	e.log.Info(ctx, "sync finished", "processed", res.Processed, "succeeded", res.Succeeded,
		"failed", res.Failed, "conflicts", res.Conflicts, "evicted", res.Evicted, "error", err)

	e.finish(ctx, res, err, now)
	return res, err
}

// Pull fetches reference data now, independent of the pull interval.
func (e *Engine) Pull(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrAlreadySyncing
	}
	defer e.syncing.Store(false)
	return e.pull(ctx)
}

// Trigger runs Sync and only logs the outcome. It matches the callback
// expected by the network monitor.
func (e *Engine) Trigger(ctx context.Context) {
	if _, err := e.Sync(ctx); err != nil && !errors.Is(err, ErrAlreadySyncing) {
		e.log.Warn(ctx, "background sync failed", "error", err)
	}
}

func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// Status returns the last published status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Subscribe registers fn for status changes. Every change is delivered once
// to each subscriber registered at the time; unsubscribing from inside fn
// is allowed.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	return e.hub.Subscribe(fn)
}

// RefreshStatus recounts the queue and conflicts and publishes the result.
// Callers invoke it after local writes so pending counts stay current.
func (e *Engine) RefreshStatus(ctx context.Context) error {
	counts, err := e.counts(ctx)
	if err != nil {
		return err
	}
	e.update(func(s *Status) {
		s.Pending, s.Failed, s.Conflicts = counts.pending, counts.failed, counts.conflicts
		if counts.lastError != "" {
			s.LastError = counts.lastError
		}
	})
	return nil
}

type queueCounts struct {
	pending, failed, conflicts int
	lastError                  string
}

func (e *Engine) counts(ctx context.Context) (queueCounts, error) {
	st, err := e.queue.Stats(ctx)
	if err != nil {
		return queueCounts{}, err
	}
	list, err := conflicts.NewSQLiteRepository(e.db).List(ctx)
	if err != nil {
		return queueCounts{}, err
	}
	return queueCounts{pending: st.Pending, failed: st.Failed, conflicts: len(list), lastError: st.LastError}, nil
}

func (e *Engine) finish(ctx context.Context, res *Result, cycleErr error, at time.Time) {
	counts, err := e.counts(ctx)
	if err != nil {
		e.log.Warn(ctx, "count queue", "error", err)
	}
	e.update(func(s *Status) {
		s.Phase = Idle
		s.LastResult = res
		if err == nil {
			s.Pending, s.Failed, s.Conflicts = counts.pending, counts.failed, counts.conflicts
		}
		switch {
		case cycleErr != nil:
			s.LastError = cycleErr.Error()
		case len(res.Errors) > 0:
			s.LastError = res.Errors[len(res.Errors)-1].Error
		default:
			s.LastError = ""
			s.LastSyncAt = &at
		}
	})
}

func (e *Engine) update(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	snapshot := e.status
	e.mu.Unlock()
	e.hub.Publish(snapshot)
}
