package cli

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/client/config"
	"github.com/dmitrijs2005/crewclock/internal/client/netmon"
	"github.com/dmitrijs2005/crewclock/internal/client/queue"
	"github.com/dmitrijs2005/crewclock/internal/client/services"
	"github.com/dmitrijs2005/crewclock/internal/client/syncer"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// monitor is the part of netmon.Monitor the App uses.
type monitor interface {
	Start(ctx context.Context) error
	Stop()
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
	SyncNow() bool
}

type App struct {
	config   *config.Config
	db       *sql.DB
	api      client.Client
	auth     services.AuthService
	tracking *services.TrackingService
	queue    *queue.Service
	engine   *syncer.Engine
	monitor  monitor
	log      logging.Logger
	http     *http.Client
	closers  []io.Closer

	mu      sync.Mutex
	session *services.Session
	mode    Mode

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database and wires the services, the sync engine
// and the network monitor.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}

	var key ed25519.PublicKey
	if c.LicensePublicKey != "" {
		k, err := license.ParsePublicKey(c.LicensePublicKey)
		if err != nil {
			return nil, fmt.Errorf("license public key: %w", err)
		}
		key = k
	}
	strategy, err := conflict.ParseStrategy(c.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	deviceID, err := services.EnsureDeviceID(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	api := client.NewHTTPClient(c.ServerURL, c.RequestTimeout,
		client.WithDeviceID(deviceID),
		client.WithTokenListener(func(t syncapi.TokenPair) {
			if err := services.SaveTokens(context.Background(), db, t); err != nil {
				log.Error(context.Background(), "store refreshed tokens", "error", err)
			}
		}),
	)

	prober, err := client.NewHealthProber(c.HealthAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	q := queue.NewService(db,
		queue.WithEvictionPolicy(queue.MaxAttempts(c.MaxAttempts)),
		queue.WithLogger(log.With("module", "queue")),
	)
	engine := syncer.New(db, api, q, syncer.Config{
		BatchSize:    c.BatchSize,
		MaxBatches:   c.MaxBatches,
		PullInterval: c.PullInterval,
		Strategy:     strategy,
	}, syncer.WithLogger(log))

	mon := netmon.New(prober, engine.Trigger, netmon.Options{
		CheckInterval: c.OnlineCheckInterval,
		SyncInterval:  c.SyncInterval,
		Logger:        log,
	})

	a := newApp(db, api, services.NewAuthService(api, db, key, log), q, engine, mon, log)
	a.config = c
	a.closers = append(a.closers, prober)
	return a, nil
}

func newApp(db *sql.DB, api client.Client, auth services.AuthService, q *queue.Service,
	engine *syncer.Engine, mon monitor, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	a := &App{
		db:      db,
		api:     api,
		auth:    auth,
		queue:   q,
		engine:  engine,
		monitor: mon,
		log:     log,
		http:    http.DefaultClient,
		mode:    ModeOffline,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
	a.tracking = services.NewTrackingService(db, q, services.WithTrackingLogger(log))
	a.tracking.OnChange = a.localChange
	return a
}

// localChange refreshes the pending counters and pushes right away when
// the server is reachable.
func (a *App) localChange(ctx context.Context) {
	if err := a.engine.RefreshStatus(ctx); err != nil {
		a.log.Warn(ctx, "refresh sync status", "error", err)
	}
	a.monitor.SyncNow()
}

func (a *App) setMode(online bool) {
	mode := ModeOffline
	if online {
		mode = ModeOnline
	}
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.printf("Switched to %s mode\n", mode)
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) currentSession() *services.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) setSession(s *services.Session) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

func (a *App) isLoggedIn() bool {
	return a.currentSession() != nil
}

// Run restores a saved session, starts the background watchers and runs the
// REPL until the user exits or input ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.printf("Welcome to CrewClock (type 'help' for commands)\n")

	if n, err := a.engine.Reconcile(ctx); err != nil {
		a.log.Warn(ctx, "reconcile queue", "error", err)
	} else if n > 0 {
		a.printf("Queued %d unsent records\n", n)
	}

	if s, err := a.auth.Restore(ctx); err == nil {
		a.setSession(s)
		a.printf("Welcome back, %s\n", s.Username)
	}

	unsubscribe := a.monitor.Subscribe(a.setMode)
	defer unsubscribe()
	if err := a.monitor.Start(ctx); err != nil {
		return err
	}
	defer a.monitor.Stop()

	if err := a.engine.RefreshStatus(ctx); err != nil {
		a.log.Warn(ctx, "refresh sync status", "error", err)
	}

	runREPL(ctx, a.commands(), a.isLoggedIn, a.prompt, bufio.NewScanner(a.reader), a.out)
	return nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) prompt() string {
	s := a.engine.Status()
	user := "-"
	if sess := a.currentSession(); sess != nil {
		user = sess.Username
	}
	p := fmt.Sprintf("crewclock (%s %s", user, a.Mode())
	if s.Pending > 0 {
		p += fmt.Sprintf(", %d pending", s.Pending)
	}
	if s.Conflicts > 0 {
		p += fmt.Sprintf(", %d conflicts", s.Conflicts)
	}
	if s.Phase == syncer.Syncing {
		p += ", syncing"
	}
	return p + ")> "
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
