// Package server wires configuration, stores, the engine and the HTTP API
// into a runnable mpauth-server.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/mpauth"
	"github.com/MrEthical07/mpauth/httpapi"
	"github.com/MrEthical07/mpauth/internal/logging"
	"github.com/MrEthical07/mpauth/internal/serverconfig"
	"github.com/MrEthical07/mpauth/internal/stores"
	"github.com/MrEthical07/mpauth/metrics/export/prometheus"
	"github.com/MrEthical07/mpauth/provider"
	"github.com/MrEthical07/mpauth/store/memstore"
	"github.com/MrEthical07/mpauth/store/mongostore"
	"github.com/MrEthical07/mpauth/store/postgres"
	"github.com/MrEthical07/mpauth/store/redisstore"
)

// App is a configured server ready to Run.
type App struct {
	config  *serverconfig.Server
	logger  *logging.SlogLogger
	engine  *mpauth.Engine
	handler http.Handler
	metrics http.Handler
	closers []func()
}

// NewApp connects every backend named by cfg and builds the engine. Logs go
// to w.
func NewApp(ctx context.Context, cfg *serverconfig.Server, w io.Writer) (*App, error) {
	logger := logging.New(w, cfg.LogLevel, cfg.LogFormat)
	app := &App{config: cfg, logger: logger}

	rdb, err := app.connectRedis(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	accounts, err := app.openAccountStore(ctx, rdb)
	if err != nil {
		app.Close()
		return nil, err
	}

	builder := mpauth.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithLogger(logger.Slog())
	if cfg.Engine.Provider.AppID != "" {
		builder = builder.WithIdentityProvider(provider.New(provider.Config{
			AppID:    cfg.Engine.Provider.AppID,
			Secret:   cfg.Engine.Provider.Secret,
			Endpoint: cfg.Engine.Provider.Endpoint,
			Timeout:  cfg.Engine.Provider.Timeout,
		}, nil))
	} else {
		logger.Warn(ctx, "no identity provider configured; external sign-in disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("engine build: %w", err)
	}
	app.engine = engine
	app.closers = append(app.closers, engine.Close)

	for _, lw := range cfg.Engine.Lint() {
		logger.Warn(ctx, "config lint", "code", lw.Code, "severity", lw.Severity.String(), "message", lw.Message)
	}

	var captcha httpapi.CaptchaStore
	if cfg.CaptchaEnabled {
		captcha = stores.NewCaptchaStore(rdb, "", cfg.CaptchaTTL)
	}
	app.handler = httpapi.New(engine, captcha, logger).Routes(httpapi.RouterOptions{TrustProxy: cfg.TrustProxy})
	if cfg.Engine.Metrics.Enabled {
		app.metrics = prometheus.New(engine)
	}
	if cfg.OTLPEndpoint != "" {
		stop, err := app.startMetricPush(ctx, engine)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := stop(flushCtx); err != nil {
				logger.Warn(flushCtx, "otlp flush failed", "err", err)
			}
		})
		logger.Info(ctx, "pushing metrics over otlp", "endpoint", cfg.OTLPEndpoint, "interval", cfg.OTLPInterval)
	}
	return app, nil
}

func (app *App) connectRedis(ctx context.Context) (redis.UniversalClient, error) {
	if app.config.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		app.closers = append(app.closers, mr.Close)
		app.logger.Warn(ctx, "MPAUTH_REDIS_ADDR not set; using in-process redis, revocations are not shared", "addr", mr.Addr())
		app.config.RedisAddr = mr.Addr()
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{app.config.RedisAddr},
		Password: app.config.RedisPassword,
		DB:       app.config.RedisDB,
	})
	app.closers = append(app.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (app *App) openAccountStore(ctx context.Context, rdb redis.UniversalClient) (mpauth.AccountStore, error) {
	switch app.config.StoreBackend {
	case serverconfig.StoreMemory:
		app.logger.Warn(ctx, "using in-memory account store; accounts are lost on restart")
		return memstore.New(), nil
	case serverconfig.StoreRedis:
		return redisstore.New(rdb, ""), nil
	case serverconfig.StorePostgres:
		db, err := postgres.Open(ctx, app.config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return postgres.New(db), nil
	case serverconfig.StoreMongo:
		client, err := mongostore.Connect(ctx, app.config.MongoURI)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = client.Disconnect(context.Background()) })
		store := mongostore.New(client.Database(app.config.MongoDatabase), "")
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", app.config.StoreBackend)
	}
}

// Handler returns the API with /metrics mounted when metrics share the API
// listener.
func (app *App) Handler() http.Handler {
	if app.metrics == nil || app.config.MetricsAddr != "" {
		return app.handler
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.metrics)
	mux.Handle("/", app.handler)
	return mux
}

// Bootstrap creates the configured super admin when it does not exist yet.
func (app *App) Bootstrap(ctx context.Context) error {
	if app.config.SuperAdminUsername == "" {
		return nil
	}
	created, err := app.engine.InitializeSuperAdmin(ctx, app.config.SuperAdminUsername, app.config.SuperAdminPassword)
	if err != nil {
		return fmt.Errorf("super admin: %w", err)
	}
	if created {
		app.logger.Info(ctx, "super admin created", "username", app.config.SuperAdminUsername)
	}
	return nil
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Bootstrap(ctx); err != nil {
		return err
	}

	servers := []*http.Server{newHTTPServer(app.config.ListenAddr, app.Handler())}
	if app.metrics != nil && app.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", app.metrics)
		servers = append(servers, newHTTPServer(app.config.MetricsAddr, mux))
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		app.logger.Info(ctx, "listening", "addr", srv.Addr)
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info(context.Background(), "shutting down")
	case runErr = <-errCh:
		app.logger.Error(context.Background(), "server failed", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn(shutdownCtx, "shutdown incomplete", "addr", srv.Addr, "err", err)
		}
	}
	return runErr
}

// Close releases every backend in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Main is the mpauth-server entry point. It returns the process exit code.
func Main(args []string) int {
	cfg, err := serverconfig.Load(args, os.Environ())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	ctx := context.Background()
	app, err := NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		return 1
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		return 1
	}
	return 0
}
