package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Archiver moves resolved markets and the audit log into cold storage.
type Archiver struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	audit     domain.AuditStore
	blob      domain.Archiver
	clock     domain.Clock
	interval  time.Duration
	batch     int
	logger    *slog.Logger

	auditSince time.Time
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(markets domain.MarketStore, positions domain.PositionStore, audit domain.AuditStore, blob domain.Archiver, clock domain.Clock, interval time.Duration, logger *slog.Logger) *Archiver {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		markets:   markets,
		positions: positions,
		audit:     audit,
		blob:      blob,
		clock:     clock,
		interval:  interval,
		batch:     50,
		logger:    logger,
	}
}

// Run executes an archive pass every interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce archives one batch of resolved markets and the audit entries
// written since the previous pass. It returns the number of markets archived.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	markets, err := a.markets.ListUnarchived(ctx, a.batch)
	if err != nil {
		return 0, fmt.Errorf("listing unarchived markets: %w", err)
	}

	archived := 0
	for _, m := range markets {
		positions, err := a.positions.ListByMarket(ctx, m.ID, domain.ListOpts{})
		if err != nil {
			return archived, fmt.Errorf("listing positions for %s: %w", m.ID, err)
		}
		key, err := a.blob.ArchiveMarket(ctx, m, positions)
		if err != nil {
			return archived, fmt.Errorf("archiving market %s: %w", m.ID, err)
		}
		if err := a.markets.MarkArchived(ctx, m.ID); err != nil {
			return archived, fmt.Errorf("marking %s archived: %w", m.ID, err)
		}
		archived++
		a.logger.Info("market archived",
			slog.String("market_id", m.ID),
			slog.String("key", key),
			slog.Int("positions", len(positions)),
		)
	}

	if err := a.archiveAudit(ctx); err != nil {
		return archived, err
	}
	return archived, nil
}

func (a *Archiver) archiveAudit(ctx context.Context) error {
	if a.audit == nil {
		return nil
	}
	until := a.clock.Now()
	opts := domain.ListOpts{Until: &until}
	if !a.auditSince.IsZero() {
		since := a.auditSince
		opts.Since = &since
	}
	entries, err := a.audit.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("listing audit entries: %w", err)
	}
	if len(entries) > 0 {
		key, err := a.blob.ArchiveAudit(ctx, entries, until)
		if err != nil {
			return fmt.Errorf("archiving audit log: %w", err)
		}
		a.logger.Info("audit log archived", slog.String("key", key), slog.Int("entries", len(entries)))
	}
	a.auditSince = until
	return nil
}
