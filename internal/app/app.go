package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chatgate/chatgate/internal/auth"
	"github.com/chatgate/chatgate/internal/backplane"
	"github.com/chatgate/chatgate/internal/config"
	"github.com/chatgate/chatgate/internal/core"
	"github.com/chatgate/chatgate/internal/store"
	"github.com/chatgate/chatgate/internal/store/sqlite"
	transporthttp "github.com/chatgate/chatgate/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	bp              backplane.Backplane
	redisBackplane  *backplane.Redis
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var (
		bp      backplane.Backplane
		redisBP *backplane.Redis
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisBP = backplane.NewRedis(redis.NewClient(opts), logger)
		bp = redisBP
		logger.Info().Msg("redis backplane enabled")
	} else {
		bp = backplane.NewLocal()
	}

	registry := core.NewRegistry()
	broadcaster := core.NewBroadcaster(registry, bp, logger)

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authz := auth.NewStoreAuthorizer(st)

	ws := transporthttp.NewWSHandler(registry, broadcaster, st, authz, jwtConfig, *cfg, logger)
	server := transporthttp.NewServer(ws, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		bp:              bp,
		redisBackplane:  redisBP,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if a.redisBackplane != nil {
		go a.redisBackplane.Run(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
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

// cleanup closes the backplane, database, and other resources.
func (a *App) cleanup() {
	if a.bp != nil {
		if err := a.bp.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close backplane")
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
