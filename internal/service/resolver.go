package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Resolver periodically settles markets whose resolution time has passed
// using the latest reading of their oracle feed.
type Resolver struct {
	markets  domain.MarketStore
	svc      *MarketService
	clock    domain.Clock
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// NewResolver creates a Resolver that ticks every interval.
func NewResolver(markets domain.MarketStore, svc *MarketService, clock domain.Clock, interval time.Duration, logger *slog.Logger) *Resolver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Resolver{
		markets:  markets,
		svc:      svc,
		clock:    clock,
		interval: interval,
		batch:    100,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context) error {
	r.logger.Info("resolver started", slog.Duration("interval", r.interval))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("resolver: pass failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("resolver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce attempts every due market, a page at a time, and returns how many
// were resolved. Markets whose feed has no reading yet, or reports the match
// unfinished, are left for the next pass.
func (r *Resolver) RunOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()
	var cursor domain.DueCursor
	due, resolved := 0, 0
	for {
		page, err := r.markets.ListDue(ctx, now, cursor, r.batch)
		if err != nil {
			return resolved, err
		}
		for _, m := range page {
			if ctx.Err() != nil {
				return resolved, ctx.Err()
			}
			if r.attempt(ctx, m) {
				resolved++
			}
		}
		due += len(page)
		if r.batch <= 0 || len(page) < r.batch {
			break
		}
		cursor = cursor.After(page[len(page)-1])
	}
	if resolved > 0 {
		r.logger.Info("resolver: pass complete",
			slog.Int("due", due),
			slog.Int("resolved", resolved),
		)
	}
	return resolved, nil
}

func (r *Resolver) attempt(ctx context.Context, m domain.Market) bool {
	_, err := r.svc.ResolveFromFeed(ctx, m.ID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrMatchNotFinished), errors.Is(err, domain.ErrNotFound):
		r.logger.Debug("resolver: market not ready",
			slog.String("market_id", m.ID),
			slog.String("reason", err.Error()),
		)
	case errors.Is(err, domain.ErrMarketAlreadyResolved):
	default:
		r.logger.Warn("resolver: resolve failed",
			slog.String("market_id", m.ID),
			slog.String("game_key", m.GameKey),
			slog.String("error", err.Error()),
		)
	}
	return false
}
