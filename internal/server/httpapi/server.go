// Package httpapi exposes the sync, auth, license and admin endpoints over
// HTTP JSON. Routing is done with gorilla/mux; business logic lives in the
// services package behind the small interfaces below.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/server/services"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// DefaultMaxBodyBytes bounds request bodies. Pushes carry photos inline.
const DefaultMaxBodyBytes = 64 << 20

type UserAPI interface {
	GetSalt(ctx context.Context, userName string) ([]byte, error)
	Register(ctx context.Context, username, name string, salt, verifier []byte) (*models.User, error)
	Login(ctx context.Context, userName string, verifier []byte, deviceID string) (*services.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*syncapi.TokenPair, error)
}

type SyncAPI interface {
	Push(ctx context.Context, workerID int64, req *syncapi.PushRequest) (*syncapi.PushResponse, error)
	Pull(ctx context.Context, since time.Time) (*syncapi.PullResponse, error)
}

type LicenseAPI interface {
	Check(ctx context.Context, extraSeats int) error
	Status(ctx context.Context) (license.Status, error)
	Upload(ctx context.Context, raw []byte) (license.Status, error)
}

type PhotoAPI interface {
	DownloadURL(ctx context.Context, workerID int64, guid string) (*syncapi.PhotoURLResponse, error)
}

type AdminAPI interface {
	UpsertJob(ctx context.Context, j syncapi.Job) (*syncapi.Job, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Deps are the services the API dispatches to.
type Deps struct {
	Users    UserAPI
	Sync     SyncAPI
	Licenses LicenseAPI
	Photos   PhotoAPI
	Admin    AdminAPI
}

type Server struct {
	address      string
	logger       logging.Logger
	deps         Deps
	jwtSecret    []byte
	adminToken   string
	maxBodyBytes int64
	now          func() time.Time
}

// NewServer builds the API. An empty adminToken disables the admin routes.
func NewServer(address string, l logging.Logger, deps Deps, jwtSecret, adminToken string) *Server {
	return &Server{
		address:      address,
		logger:       l.With("module", "http_server"),
		deps:         deps,
		jwtSecret:    []byte(jwtSecret),
		adminToken:   adminToken,
		maxBodyBytes: DefaultMaxBodyBytes,
		now:          time.Now,
	}
}

// Router wires every route and middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverer, s.logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, syncapi.ErrorResponse{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, syncapi.ErrorResponse{Error: "method not allowed"})
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	authRouter := api.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/salt", s.salt).Methods(http.MethodGet)
	authRouter.HandleFunc("/register", s.register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", s.login).Methods(http.MethodPost)
	authRouter.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)

	syncRouter := api.PathPrefix("/sync").Subrouter()
	syncRouter.Use(s.requireWorker, s.requireLicense)
	syncRouter.HandleFunc("/push", s.push).Methods(http.MethodPost)
	syncRouter.HandleFunc("/pull", s.pull).Methods(http.MethodGet)

	workerRouter := api.NewRoute().Subrouter()
	workerRouter.Use(s.requireWorker)
	workerRouter.HandleFunc("/license/status", s.licenseStatus).Methods(http.MethodGet)
	workerRouter.HandleFunc("/photos/{guid}/url", s.photoURL).Methods(http.MethodGet)

	adminRouter := api.PathPrefix("/admin").Subrouter()
	adminRouter.Use(s.requireAdmin)
	adminRouter.HandleFunc("/license", s.uploadLicense).Methods(http.MethodPost)
	adminRouter.HandleFunc("/jobs", s.upsertJob).Methods(http.MethodPost)
	adminRouter.HandleFunc("/settings/{key}", s.setSetting).Methods(http.MethodPut)

	return r
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve handles requests on lis until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
