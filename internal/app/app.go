// Package app provides the top-level application lifecycle management for the
// wagerbook settlement service. It wires together all dependencies (stores,
// custody, caches, blob storage, services, and notifications) and starts the
// appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/wagerbook/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.Log.Level),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}

	var runErr error
	switch strings.ToLower(a.cfg.Mode) {
	case "api":
		runErr = a.APIMode(ctx, deps)
	case "resolver":
		runErr = a.ResolverMode(ctx, deps)
	case "archiver":
		runErr = a.ArchiverMode(ctx, deps)
	case "all":
		runErr = a.AllMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		if nerr := deps.Notifier.Notify(context.WithoutCancel(ctx), "error",
			"wagerbook stopped", runErr.Error()); nerr != nil {
			a.logger.Warn("failed to send error notification", slog.String("error", nerr.Error()))
		}
	}
	return runErr
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
