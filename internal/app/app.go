package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	transporthttp "github.com/vovakirdan/roomrelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	dir             *core.Directory
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}

	dir := core.NewDirectory(cfg.DefaultRoom)
	logger.Info().
		Str("default_room", dir.DefaultRoom()).
		Int("outbox_limit", cfg.OutboxLimit).
		Str("rename_policy", cfg.RenamePolicy).
		Msg("session directory initialized")

	return &App{
		server:          transporthttp.NewServer(dir, opts, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		dir:             dir,
		log:             logger,
	}, nil
}

// Directory exposes the session directory, mainly for tests.
func (a *App) Directory() *core.Directory {
	return a.dir
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Request contexts, websocket sessions included, end with the application.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
