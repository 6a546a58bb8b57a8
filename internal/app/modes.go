package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/wagerbook/internal/server"
	"github.com/alanyoungcy/wagerbook/internal/server/handler"
	"github.com/alanyoungcy/wagerbook/internal/server/ws"
	"github.com/alanyoungcy/wagerbook/internal/service"
)

// services are the settlement services shared by every mode.
type services struct {
	markets *service.MarketService
	feeds   *service.FeedService
}

func (a *App) buildServices(deps *Dependencies) services {
	msDeps := service.MarketServiceDeps{
		Markets:   deps.Markets,
		Positions: deps.Positions,
		Custody:   deps.Custody,
		Locks:     deps.Locks,
		Feeds:     deps.Feeds,
		Verifier:  deps.Verifier,
		Cache:     deps.Cache,
		Bus:       deps.Bus,
		Audit:     deps.Audit,
		Notifier:  deps.Notifier,
	}
	if deps.Metrics != nil {
		msDeps.Metrics = deps.Metrics
	}

	st := a.cfg.Settlement
	markets := service.NewMarketService(msDeps, service.MarketServiceConfig{
		EngineIdentity: a.cfg.Custody.EngineIdentity,
		DefaultAsset:   st.DefaultAsset,
		LockTTL:        st.LockTTL.Duration,
		LockWait:       st.LockWait.Duration,
		MaxReadingAge:  a.cfg.Oracle.MaxReadingAge.Duration,
		AssetDecimals:  st.AssetDecimals,
	}, a.logger.With(slog.String("component", "market_service")))

	feeds := service.NewFeedService(deps.Feeds, deps.Verifier, deps.Bus, nil,
		a.logger.With(slog.String("component", "feed_service")))

	return services{markets: markets, feeds: feeds}
}

// APIMode serves the HTTP and WebSocket API only.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// ResolverMode runs the auto resolver only.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startResolver(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// ArchiverMode runs the archiver only.
func (a *App) ArchiverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archiver mode")
	if deps.Archiver == nil {
		return errors.New("archiver mode requires s3")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// AllMode runs the API, the resolver and, when s3 is enabled, the archiver
// in one process.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting all mode")
	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svcs)
	a.startResolver(ctx, g, deps, svcs)
	if deps.Archiver != nil {
		a.startArchiver(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "s3 disabled; archiver not started")
	}
	return g.Wait()
}

func (a *App) startResolver(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs services) {
	r := service.NewResolver(deps.Markets, svcs.markets, nil,
		a.cfg.Settlement.ResolveInterval.Duration,
		a.logger.With(slog.String("component", "resolver")))
	g.Go(func() error {
		return r.Run(ctx)
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	arc := service.NewArchiver(deps.Markets, deps.Positions, deps.Audit, deps.Archiver, nil,
		a.cfg.Settlement.ArchiveInterval.Duration,
		a.logger.With(slog.String("component", "archiver")))
	g.Go(func() error {
		return arc.Run(ctx)
	})
}

// startHTTPServer adds the API server and the WebSocket hub to the errgroup.
// The server is shut down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs services) {
	decimals := a.cfg.Settlement.AssetDecimals

	hub := ws.NewHub(deps.Bus, a.logger.With(slog.String("component", "ws")), ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Markets:   handler.NewMarketHandler(svcs.markets, nil, decimals, a.logger),
		Wagers:    handler.NewWagerHandler(svcs.markets, nil, decimals, a.logger),
		Positions: handler.NewPositionHandler(svcs.markets, decimals, a.logger),
		Feeds:     handler.NewFeedHandler(svcs.feeds, a.logger),
	}
	srvDeps := server.Deps{Limiter: deps.Limiter}
	if deps.Metrics != nil {
		handlers.Metrics = deps.Metrics.Handler()
		srvDeps.Observer = deps.Metrics
	}

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		APIKey:         a.cfg.Server.APIKey,
		RateLimit:      a.cfg.Server.RateLimit,
		RateWindow:     a.cfg.Server.RateWindow.Duration,
		IdempotencyTTL: a.cfg.Server.IdempotencyTTL.Duration,
		MetricsPath:    a.cfg.Metrics.Path,
	}, handlers, hub, srvDeps, a.logger.With(slog.String("component", "server")))

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; the X-Caller header is trusted without authentication")
	}

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		grace := a.cfg.Server.ShutdownGrace.Duration
		if grace <= 0 {
			grace = 5 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
