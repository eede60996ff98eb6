// Package server wires configuration, the identity store, the vending
// orchestrator and the HTTP API, and runs them until a shutdown signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/dmitrijs2005/gophtvm/internal/logging"
	"github.com/dmitrijs2005/gophtvm/internal/obs"
	"github.com/dmitrijs2005/gophtvm/internal/server/admin"
	"github.com/dmitrijs2005/gophtvm/internal/server/awscfg"
	"github.com/dmitrijs2005/gophtvm/internal/server/config"
	"github.com/dmitrijs2005/gophtvm/internal/server/credentials"
	"github.com/dmitrijs2005/gophtvm/internal/server/devices"
	"github.com/dmitrijs2005/gophtvm/internal/server/httpapi"
	"github.com/dmitrijs2005/gophtvm/internal/server/store"
	"github.com/dmitrijs2005/gophtvm/internal/server/store/pgstore"
	"github.com/dmitrijs2005/gophtvm/internal/server/store/s3store"
	"github.com/dmitrijs2005/gophtvm/internal/server/tvm"
	"github.com/dmitrijs2005/gophtvm/internal/server/users"
)

const shutdownTimeout = 10 * time.Second

// seams for tests
var (
	logOutput     io.Writer = os.Stdout
	loadAWSConfig           = awscfg.Load
	newSTSAPI               = credentials.NewSTSClient
	openPostgres            = pgstore.New
	newS3Store              = s3store.NewFromConfig
)

// Backend bundles an opened identity store with its lifecycle hooks.
type Backend struct {
	Store store.Store
	Ping  func(ctx context.Context) error
	Close func() error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	backend *Backend
	api     *httpapi.Server
}

// NewApp validates cfg and builds every component. It fails fast: an
// unreachable store or an unresolvable account id aborts startup.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSON(logOutput, cfg.LogLevel)

	awsCfg, err := loadAWSConfig(ctx, awscfg.Options{
		Region:      cfg.StoreRegion,
		AccessKeyID: cfg.AWSAccessKeyID,
		SecretKey:   cfg.AWSSecretKey,
	})
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	app, err := build(ctx, cfg, awsCfg, backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, awsCfg aws.Config, backend *Backend, logger logging.Logger) (*App, error) {
	for _, d := range []string{cfg.UsersDomain(), cfg.DevicesDomain()} {
		if err := store.EnsureDomain(ctx, backend.Store, d); err != nil {
			return nil, fmt.Errorf("ensure domain %s: %w", d, err)
		}
	}

	stsAPI := newSTSAPI(awsCfg, cfg.StoreEndpoint)

	accountID := cfg.AccountID
	if accountID == "" {
		id, err := credentials.ResolveAccountID(ctx, stsAPI)
		if err != nil {
			return nil, fmt.Errorf("resolve account id: %w", err)
		}
		accountID = id
		logger.Info(ctx, "resolved account id", "account_id", accountID)
	}

	policy, err := credentials.LoadPolicyTemplate(cfg.PolicyFile, credentials.PolicyParams{
		AccountID:     accountID,
		Region:        cfg.StoreRegion,
		UsersDomain:   cfg.UsersDomain(),
		DevicesDomain: cfg.DevicesDomain(),
	})
	if err != nil {
		return nil, err
	}

	issuer := credentials.NewSTSIssuer(stsAPI, policy, cfg.SessionDuration, logger)
	ud := users.NewDirectory(backend.Store, cfg.UsersDomain(), cfg.AppName, logger)
	dd := devices.NewDirectory(backend.Store, cfg.DevicesDomain(), logger)
	vendor := tvm.NewService(ud, dd, issuer, logger)

	opts := httpapi.Options{
		Metrics: obs.NewMetrics(),
		Health:  backend.Ping,
	}
	if cfg.AdminEnabled() {
		opts.Admin = admin.NewService(ud, dd)
		opts.AdminSecret = cfg.AdminSecret
	}

	return &App{
		config:  cfg,
		logger:  logger,
		backend: backend,
		api:     httpapi.New(vendor, opts, logger),
	}, nil
}

// OpenBackend opens the store selected by cfg.StoreBackend.
func OpenBackend(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (*Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return &Backend{
			Store: store.NewMemory(),
			Ping:  func(context.Context) error { return nil },
			Close: func() error { return nil },
		}, nil

	case config.BackendPostgres:
		pg, err := openPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: pg, Ping: pg.Ping, Close: pg.Close}, nil

	case config.BackendS3:
		s := newS3Store(awsCfg, cfg.S3Bucket, cfg.StoreEndpoint)
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return &Backend{Store: s, Ping: s.Ping, Close: func() error { return nil }}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	srv := app.api.NewHTTPServer(app.config.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "listening", "addr", app.config.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancelFunc()
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Run serves until ctx is cancelled or a termination signal arrives,
// then drains in-flight requests and closes the store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"backend", app.config.StoreBackend,
		"users_domain", app.config.UsersDomain(),
		"devices_domain", app.config.DevicesDomain(),
		"admin", app.config.AdminEnabled(),
	)

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.startHTTPServer(ctx, cancelFunc)
	}()
	wg.Wait()

	if err := app.backend.Close(); err != nil {
		app.logger.Error(ctx, "store close failed", "error", err)
	}
	if runErr != nil {
		app.logger.Error(ctx, "server stopped with error", "error", runErr)
		return runErr
	}
	app.logger.Info(ctx, "stopped")
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (app *App) Handler() http.Handler {
	return app.api.Handler()
}
