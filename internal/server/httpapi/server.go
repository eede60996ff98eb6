// Package httpapi is the HTTP transport of the vending machine: one thin
// handler per vending operation, health and metrics endpoints, and the
// JWT-guarded admin API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/obs"
	"github.com/dmitrijs2005/gophtvm/internal/server/admin"
	"github.com/go-chi/chi/v5"
)

// Vendor is the orchestrator behind the vending endpoints.
type Vendor interface {
	RequestDeviceToken(ctx context.Context, uid, signature, timestamp string) (string, error)
	Login(ctx context.Context, username, uid, signature, timestamp string) (string, error)
	RegisterUser(ctx context.Context, username, password, endpoint string) (string, error)
}

// AdminService is the operator API; *admin.Service implements it.
type AdminService interface {
	ListUsersPage(ctx context.Context, next string) ([]string, string, error)
	DescribeUser(ctx context.Context, username string) (*admin.UserView, error)
	DeleteUser(ctx context.Context, username string) error
	ListDevices(ctx context.Context) ([]string, error)
	DeleteDevice(ctx context.Context, uid string) error
	Stats(ctx context.Context) (*admin.Stats, error)
}

// Checker reports backend readiness for /healthz.
type Checker func(ctx context.Context) error

type Server struct {
	vendor      Vendor
	admin       AdminService
	adminSecret []byte
	metrics     *obs.Metrics
	health      Checker
	log         logging.Logger
}

// Options carries the optional collaborators. A nil Admin or an empty
// AdminSecret leaves /admin unmounted.
type Options struct {
	Admin       AdminService
	AdminSecret string
	Metrics     *obs.Metrics
	Health      Checker
}

func New(vendor Vendor, opts Options, log logging.Logger) *Server {
	if opts.Metrics == nil {
		opts.Metrics = obs.NewMetrics()
	}
	return &Server{
		vendor:      vendor,
		admin:       opts.Admin,
		adminSecret: []byte(opts.AdminSecret),
		metrics:     opts.Metrics,
		health:      opts.Health,
		log:         log.With("module", "httpapi"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(s.metrics.Instrument(routePattern))

	for _, m := range []string{http.MethodGet, http.MethodPost} {
		r.MethodFunc(m, "/gettoken", s.handleGetToken)
		r.MethodFunc(m, "/login", s.handleLogin)
		r.MethodFunc(m, "/registeruser", s.handleRegisterUser)
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	if s.admin != nil && len(s.adminSecret) > 0 {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/users", s.handleListUsers)
			r.Get("/users/{username}", s.handleDescribeUser)
			r.Delete("/users/{username}", s.handleDeleteUser)
			r.Get("/devices", s.handleListDevices)
			r.Delete("/devices/{uid}", s.handleDeleteDevice)
			r.Get("/stats", s.handleStats)
		})
	}

	return r
}

// NewHTTPServer wraps the handler with conservative timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Error(r.Context(), "health check failed", "error", err)
			writeText(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ok")
}
