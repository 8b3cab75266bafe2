package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/auth"
	"github.com/vovakirdan/wirepresence/internal/config"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/metrics"
	"github.com/vovakirdan/wirepresence/internal/presence"
	"github.com/vovakirdan/wirepresence/internal/store"
	"github.com/vovakirdan/wirepresence/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirepresence/internal/transport/http"
)

// App wires together storage, presence and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	sweeper         *presence.Sweeper
	store           store.Store
	redis           redis.UniversalClient
	log             *zerolog.Logger
	closeOnce       sync.Once
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	presenceStore, err := a.newPresenceStore(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	recorder := metrics.NewPresence()
	deps := transporthttp.Dependencies{Auth: authService}
	if cfg.MetricsEnabled {
		deps.Metrics = metrics.Handler(metrics.NewRegistry(recorder))
	}

	switch cfg.Presence.Mode {
	case config.ModePoll:
		heartbeats := presence.NewHeartbeats(presenceStore, cfg.Presence.StaleThreshold, recorder, logger)
		a.sweeper = presence.NewSweeper(heartbeats, cfg.Presence.SweepInterval, logger)
		deps.Heartbeats = heartbeats
	default:
		a.hub = core.NewHub(presenceStore, recorder, logger)
		deps.Hub = a.hub
	}

	a.server = transporthttp.NewServer(cfg, deps, logger)

	logger.Info().
		Str("mode", cfg.Presence.Mode).
		Str("backend", cfg.Presence.Backend).
		Dur("heartbeat_interval", cfg.Presence.HeartbeatInterval).
		Dur("stale_threshold", cfg.Presence.StaleThreshold).
		Msg("presence configured")

	return a, nil
}

func (a *App) newPresenceStore(cfg *config.Config) (presence.Store, error) {
	if cfg.Presence.Backend != config.BackendRedis {
		return presence.NewMemoryStore(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rs := presence.NewRedisStore(a.redis, cfg.Redis.Key)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		// Presence is best-effort; keep serving and let operations retry.
		a.log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not reachable at startup")
	} else {
		a.log.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.Key).Msg("redis presence store connected")
	}
	return rs, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.hub != nil {
		go a.hub.Run(ctx)
	}
	if a.sweeper != nil {
		a.sweeper.Start(ctx)
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// cleanup stops background work and closes resources. Safe to call more than once.
func (a *App) cleanup() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
