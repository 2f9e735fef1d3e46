// Package netmon tracks whether the server is reachable and starts sync
// cycles: once on every offline to online transition and periodically while
// online.
package netmon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/broadcast"
	"github.com/dmitrijs2005/crewclock/internal/logging"
)

// Prober checks reachability of the server. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Trigger starts a sync attempt. It may be called from any goroutine and
// must cope with an attempt already in progress.
type Trigger func(ctx context.Context)

type Options struct {
	// CheckInterval is the pause between reachability probes.
	CheckInterval time.Duration
	// SyncInterval is the period of sync attempts while online.
	SyncInterval time.Duration
	// ProbeTimeout bounds one probe. Defaults to CheckInterval.
	ProbeTimeout time.Duration
	Logger       logging.Logger
}

const (
	DefaultCheckInterval = 3 * time.Second
	DefaultSyncInterval  = 30 * time.Second
)

var ErrAlreadyStarted = errors.New("monitor already started")

type Monitor struct {
	prober  Prober
	trigger Trigger
	opts    Options
	log     logging.Logger

	online atomic.Bool
	hub    broadcast.Hub[bool]
	notify chan bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.WaitGroup
}

func New(prober Prober, trigger Trigger, opts Options) *Monitor {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = opts.CheckInterval
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{
		prober:  prober,
		trigger: trigger,
		opts:    opts,
		log:     log.With("module", "netmon"),
		notify:  make(chan bool, 1),
	}
}

// Start probes once and then keeps watching until ctx is done or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.ctx, m.cancel = ctx, cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	return nil
}

// Stop ends the watch loop and waits for triggered syncs to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.ctx, m.cancel, m.done = nil, nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.running.Wait()
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe registers fn for online state changes.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	return m.hub.Subscribe(fn)
}

// Notify feeds a platform connectivity signal. Going offline is taken at
// face value; coming online is confirmed with a probe first, since an
// interface being up does not mean the server is reachable.
func (m *Monitor) Notify(online bool) {
	select {
	case m.notify <- online:
	default:
		// A signal is already waiting. Replace it with the newer one.
		select {
		case <-m.notify:
		default:
		}
		select {
		case m.notify <- online:
		default:
		}
	}
}

// SyncNow starts a sync if the monitor is running and online, for example
// after a local write. It reports whether a sync was started.
func (m *Monitor) SyncNow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil || m.trigger == nil || !m.Online() {
		return false
	}
	// Stop clears ctx under mu before it waits.
	m.running.Add(1)
	go func(ctx context.Context) {
		defer m.running.Done()
		m.trigger(ctx)
	}(m.ctx)
	return true
}

// Check probes now and applies the result. It returns the new state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.opts.ProbeTimeout)
	defer cancel()
	err := m.prober.Probe(pctx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.log.Debug(ctx, "probe failed", "error", err)
	}
	m.set(ctx, err == nil)
	return err == nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	check := time.NewTicker(m.opts.CheckInterval)
	defer check.Stop()
	periodic := time.NewTicker(m.opts.SyncInterval)
	defer periodic.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			m.Check(ctx)
		case online := <-m.notify:
			if online {
				m.Check(ctx)
			} else {
				m.set(ctx, false)
			}
		case <-periodic.C:
			if m.Online() {
				m.fire(ctx, "periodic")
			}
		}
	}
}

// set records the state. Only the caller that flips offline to online
// fires the reconnect sync.
func (m *Monitor) set(ctx context.Context, online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.log.Info(ctx, "connectivity changed", "online", online)
	m.hub.Publish(online)
	if online {
		m.fire(ctx, "reconnect")
	}
}

func (m *Monitor) fire(ctx context.Context, reason string) {
	if m.trigger == nil {
		return
	}
	m.log.Debug(ctx, "sync triggered", "reason", reason)
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		m.trigger(ctx)
	}()
}
