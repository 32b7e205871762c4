// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/linkside/gateway/adapters/clock"
	gwhttp "github.com/linkside/gateway/adapters/http"
	"github.com/linkside/gateway/adapters/idgen"
	"github.com/linkside/gateway/adapters/memory"
	"github.com/linkside/gateway/adapters/metrics"
	"github.com/linkside/gateway/adapters/mongo"
	"github.com/linkside/gateway/adapters/oauth"
	gwredis "github.com/linkside/gateway/adapters/redis"
	"github.com/linkside/gateway/adapters/remote"
	"github.com/linkside/gateway/adapters/sqlite"
	"github.com/linkside/gateway/app"
	"github.com/linkside/gateway/config"
	"github.com/linkside/gateway/domain/gateway"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/ports"
)

// App represents the running application.
type App struct {
	Logger  zerolog.Logger
	Metrics *metrics.Collector
	Holder  *config.Holder

	Registry    *app.EndpointRegistry
	Credentials *app.CredentialService
	RateLimits  *app.RateLimitService
	Usage       *app.UsageService
	Gateway     *app.GatewayService

	HTTPServer *http.Server

	closers []func() error
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload loads config from a file and watches it for
// changes. Reloads rewire the endpoint registry and the logging
// toggles; everything else requires a restart.
func NewWithHotReload(path string) (*App, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}

	a, err := build(holder.Get(), holder)
	if err != nil {
		holder.Stop()
		return nil, err
	}

	holder.SetMetrics(a.Metrics)
	holder.OnChange(func(cfg *config.Config) {
		a.applyReload(cfg)
	})
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Str("store", cfg.Store.Driver).Msg("initializing gateway")

	a := &App{
		Logger: logger,
		Holder: holder,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	store, err := a.buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	realClock := clock.Real{}

	var providers []ports.OAuthProvider
	if cfg.Auth.OAuth.Google {
		providers = append(providers, oauth.NewGoogleProvider())
	}
	if cfg.Auth.OAuth.GitHub {
		providers = append(providers, oauth.NewGitHubProvider())
	}

	a.Credentials = app.NewCredentialService(app.CredentialDeps{
		Store:     store,
		Clock:     realClock,
		Providers: providers,
		Logger:    logger,
		Metrics:   a.Metrics,
	}, app.CredentialConfig{
		CacheTTL:    cfg.Auth.CacheTTL,
		CacheSize:   cfg.Auth.CacheSize,
		TokenSecret: []byte(cfg.Auth.TokenSecret),
		UseMocks:    cfg.Services.UseMocks,
	})
	a.closers = append(a.closers, a.Credentials.Close)

	a.RateLimits = app.NewRateLimitService(app.RateLimitDeps{
		Clock:  realClock,
		Stats:  a.buildStats(cfg),
		Logger: logger,
	}, app.RateLimitConfig{
		NumShards:     cfg.RateLimit.NumShards,
		Window:        cfg.RateLimit.Window,
		PruneInterval: cfg.RateLimit.PruneEvery,
	})
	a.closers = append(a.closers, a.RateLimits.Close)

	a.Usage = app.NewUsageService(app.UsageDeps{
		Store:   store,
		Ledger:  buildLedger(cfg.Ledger),
		Billing: buildBilling(cfg.Billing),
		Clock:   realClock,
		IDGen:   idgen.UUID{},
		Logger:  logger,
		Metrics: a.Metrics,
	}, app.UsageConfig{
		BufferSize:      cfg.Usage.BufferSize,
		FlushInterval:   cfg.Usage.FlushInterval,
		SlowThresholdMs: cfg.Usage.SlowThresholdMs,
	})
	a.closers = append(a.closers, a.Usage.Close)

	a.Registry = app.NewEndpointRegistry()
	registerEndpoints(a.Registry, cfg.Endpoints)

	a.Gateway = app.NewGatewayService(app.GatewayDeps{
		Credentials: a.Credentials,
		RateLimits:  a.RateLimits,
		Usage:       a.Usage,
		Registry:    a.Registry,
		Clock:       realClock,
		Logger:      logger,
	})
	a.Gateway.SetDetailedLogging(cfg.Logging.Detailed)

	handler := gwhttp.NewGatewayHandler(a.Gateway, a.Usage, logger, a.Metrics)
	router := gwhttp.NewRouter(handler, logger, gwhttp.RouterConfig{
		Metrics: a.Metrics,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("gateway listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("server shutdown failed")
	}

	return a.Close()
}

// Close releases services and stores. Usage closes first so the final
// flush still has a live store underneath it.
func (a *App) Close() error {
	if a.Holder != nil {
		a.Holder.Stop()
	}
	var firstErr error
	for _, fn := range a.closers {
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// applyReload rewires what a reload can change; the holder itself
// counts reload successes and failures.
func (a *App) applyReload(cfg *config.Config) {
	a.Gateway.SetDetailedLogging(cfg.Logging.Detailed)
	registerEndpoints(a.Registry, cfg.Endpoints)
	a.Logger.Info().Int("endpoints", a.Registry.Len()).Msg("applied config reload")
}

func (a *App) buildStore(cfg *config.Config) (ports.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewDocStore(), nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return sqlite.NewDocStore(db), nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := mongo.Open(ctx, cfg.Store.DSN, cfg.Store.Database)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close(ctx)
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			return store.Close(closeCtx)
		})
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *App) buildStats(cfg *config.Config) ports.RateLimitStatsStore {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("rate limit stats mirrored to redis")
	return gwredis.NewStatsStore(client)
}

func buildLedger(cfg config.RemoteConfig) ports.RevenueLedger {
	if cfg.Mode != "remote" {
		return nil
	}
	return remote.NewLedger(remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.URL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Headers: cfg.Headers,
	}))
}

func buildBilling(cfg config.RemoteConfig) ports.BillingService {
	if cfg.Mode != "remote" {
		return nil
	}
	return remote.NewBilling(remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.URL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
		Headers: cfg.Headers,
	}))
}

// registerEndpoints rebuilds the registry from config. Config-declared
// endpoints get the built-in mock handler; embedding applications
// override them with real handlers via Registry.Register.
func registerEndpoints(registry *app.EndpointRegistry, endpoints []config.EndpointConfig) {
	for _, e := range endpoints {
		required := tier.Free
		if t, ok := tier.FromName(e.RequiredTier); ok {
			required = t
		}
		method := e.Method
		if method == "" {
			method = http.MethodGet
		}
		baseUnits := e.BaseUnits
		if baseUnits <= 0 {
			baseUnits = 1
		}
		costMult := e.CostMultiplier
		if costMult <= 0 {
			costMult = 1
		}
		premiumMult := e.PremiumMultiplier
		if premiumMult <= 0 {
			premiumMult = 1
		}

		endpoint := gateway.Endpoint{
			Path:              e.Path,
			Method:            method,
			Version:           e.Version,
			RequiredTier:      required,
			BaseUnits:         baseUnits,
			CostMultiplier:    costMult,
			PremiumMultiplier: premiumMult,
		}
		endpoint.Handler = mockHandler(endpoint)
		registry.Register(endpoint)
	}
}

// mockHandler answers with a canned payload describing the endpoint.
// It stands in until a real handler is registered for the path.
func mockHandler(e gateway.Endpoint) gateway.Handler {
	return func(ctx context.Context, req gateway.Request) (any, error) {
		return map[string]any{
			"endpoint": e.RegistryKey(),
			"method":   e.Method,
			"mock":     true,
		}, nil
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
