package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/settlement"
	"github.com/alanyoungcy/wagerbook/internal/units"
)

// MarketServiceConfig tunes locking and oracle acceptance.
type MarketServiceConfig struct {
	// EngineIdentity owns every market vault and is the only identity that
	// may authorise a vault debit.
	EngineIdentity string
	DefaultAsset   string
	LockTTL        time.Duration
	LockWait       time.Duration
	// MaxReadingAge rejects oracle readings older than this. Zero disables.
	MaxReadingAge time.Duration
	// AssetDecimals scales base units for human-readable notifications.
	AssetDecimals int32
}

// MarketServiceDeps are the collaborators of MarketService. Bus, Audit,
// Cache, Feeds, Verifier, Notifier and Metrics are optional.
type MarketServiceDeps struct {
	Markets   domain.MarketStore
	Positions domain.PositionStore
	Custody   domain.Custody
	Locks     domain.LockManager
	Clock     domain.Clock
	Feeds     domain.FeedSource
	Verifier  domain.ReadingVerifier
	Cache     domain.MarketCache
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Notifier  EventNotifier
	Metrics   Recorder
}

// MarketService runs the six settlement operations. Each state change holds
// the market lock for its whole read-modify-write and commits the market,
// the position and the custody transfer together.
type MarketService struct {
	deps   MarketServiceDeps
	cfg    MarketServiceConfig
	logger *slog.Logger
}

// NewMarketService creates a MarketService. Missing optional dependencies are
// replaced with no-ops.
func NewMarketService(deps MarketServiceDeps, cfg MarketServiceConfig, logger *slog.Logger) *MarketService {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &MarketService{deps: deps, cfg: cfg, logger: logger}
}

// CreateMarket opens a new market administered by caller.
func (s *MarketService) CreateMarket(ctx context.Context, caller string, params domain.CreateMarketParams) (m domain.Market, err error) {
	defer s.observe("create_market", time.Now(), &err)

	if params.Asset == "" {
		params.Asset = s.cfg.DefaultAsset
	}
	m, err = settlement.NewMarket(caller, params, s.deps.Clock.Now())
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	unlock, err := s.lockMarket(ctx, m.ID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	// The vault opens first so no stored market is ever without one. Its id
	// derives from the game key and OpenAccount is idempotent, so a vault
	// left by a failed create is reused when the create is retried.
	if _, err := s.deps.Custody.OpenAccount(ctx, m.VaultRef, s.cfg.EngineIdentity, m.Asset); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: open vault for %s: %w", m.GameKey, err)
	}
	if err := s.deps.Markets.Create(ctx, m); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			s.logger.WarnContext(ctx, "market_service: market not stored, vault kept for retry",
				slog.String("market_id", m.ID),
				slog.String("vault", m.VaultRef),
				slog.String("error", err.Error()),
			)
		}
		return domain.Market{}, fmt.Errorf("market_service: create market %s: %w", m.GameKey, err)
	}

	s.afterCommit(ctx, m, domain.Event{
		Type:     domain.EventMarketCreated,
		MarketID: m.ID,
		User:     caller,
		Data: map[string]any{
			"game_key":        m.GameKey,
			"question":        m.Question,
			"start_time":      m.StartTime,
			"resolution_time": m.ResolutionTime,
			"oracle_ref":      m.OracleRef,
		},
	})
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("game_key", m.GameKey),
		slog.String("authority", caller),
	)
	return m, nil
}

// PlaceWager stakes amount on side for caller. The caller is charged
// amount plus the fee.
func (s *MarketService) PlaceWager(ctx context.Context, marketID, caller string, side domain.Side, amount uint64) (rcpt domain.WagerReceipt, err error) {
	defer s.observe("place_wager", time.Now(), &err)
	if caller == "" {
		return domain.WagerReceipt{}, domain.ErrUnauthorized
	}

	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.WagerReceipt{}, err
	}
	defer unlock()

	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.WagerReceipt{}, err
	}
	pos, err := s.loadPosition(ctx, m.ID, caller)
	if err != nil {
		return domain.WagerReceipt{}, err
	}

	w, err := settlement.PlaceWager(m, pos, side, amount, s.deps.Clock.Now())
	if err != nil {
		return domain.WagerReceipt{}, fmt.Errorf("market_service: place wager on %s: %w", marketID, err)
	}

	req := domain.TransferRequest{
		ID:            wagerTransferID(m.ID, pos, side, amount),
		Kind:          domain.TransferWager,
		MarketID:      m.ID,
		From:          caller,
		To:            m.VaultRef,
		Amount:        w.Charge,
		Asset:         m.Asset,
		Authority:     caller,
		ExpectedOwner: s.cfg.EngineIdentity,
	}
	transfer, err := s.commit(ctx, w.Market, []domain.Position{w.Position}, req)
	if err != nil {
		return domain.WagerReceipt{}, fmt.Errorf("market_service: place wager on %s: %w", marketID, err)
	}

	s.deps.Metrics.WagerPlaced(side.String(), amount, w.Fee)
	s.afterCommit(ctx, w.Market, domain.Event{
		Type:     domain.EventWagerPlaced,
		MarketID: m.ID,
		User:     caller,
		Data: map[string]any{
			"side":   side.String(),
			"amount": amount,
			"fee":    w.Fee,
			"pools":  w.Market.Pools,
		},
	})
	s.logger.InfoContext(ctx, "market_service: wager placed",
		slog.String("market_id", m.ID),
		slog.String("user", caller),
		slog.String("side", side.String()),
		slog.Uint64("amount", amount),
		slog.Uint64("fee", w.Fee),
	)
	return domain.WagerReceipt{
		Market:   w.Market,
		Position: w.Position,
		Side:     side,
		Amount:   amount,
		Fee:      w.Fee,
		Transfer: transfer,
	}, nil
}

// ResolveMarket settles the market from reading. Anyone may submit a
// reading; it must verify against a trusted oracle key when a verifier is
// configured.
func (s *MarketService) ResolveMarket(ctx context.Context, marketID string, reading domain.OracleReading) (m domain.Market, err error) {
	defer s.observe("resolve_market", time.Now(), &err)

	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	m, err = s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	now := s.deps.Clock.Now()
	if err := settlement.CheckResolvable(m, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", marketID, err)
	}
	if err := s.checkReading(reading, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", marketID, err)
	}

	resolved, err := settlement.Resolve(m, reading, now)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", marketID, err)
	}
	if _, err := s.commit(ctx, resolved, nil, domain.TransferRequest{}); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", marketID, err)
	}

	s.deps.Metrics.MarketResolved(resolved.Outcome.String())
	s.afterCommit(ctx, resolved, domain.Event{
		Type:     domain.EventMarketResolved,
		MarketID: resolved.ID,
		Data: map[string]any{
			"outcome":            resolved.Outcome.String(),
			"final_result_value": resolved.FinalResultValue,
			"feed_id":            reading.FeedID,
			"signer":             reading.Signer,
		},
	})
	s.notify(ctx, "market_resolved",
		"Market resolved",
		fmt.Sprintf("%s vs %s (%s) resolved %s", resolved.HomeTeam, resolved.AwayTeam, resolved.GameKey, resolved.Outcome))
	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", resolved.ID),
		slog.String("outcome", resolved.Outcome.String()),
		slog.Int64("final_result_value", resolved.FinalResultValue),
	)
	return resolved, nil
}

// ResolveFromFeed pulls the latest reading of the market's trusted feed and
// resolves with it.
func (s *MarketService) ResolveFromFeed(ctx context.Context, marketID string) (domain.Market, error) {
	if s.deps.Feeds == nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: no feed source configured", marketID)
	}
	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if err := settlement.CheckResolvable(m, s.deps.Clock.Now()); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: resolve %s: %w", marketID, err)
	}
	reading, err := s.deps.Feeds.Latest(ctx, m.OracleRef)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: latest reading for %s: %w", m.OracleRef, err)
	}
	return s.ResolveMarket(ctx, marketID, reading)
}

// ClaimWinnings pays caller's share of a resolved market into destination,
// which defaults to the caller's own account and must be owned by the
// caller.
func (s *MarketService) ClaimWinnings(ctx context.Context, marketID, caller, destination string) (rcpt domain.ClaimReceipt, err error) {
	defer s.observe("claim_winnings", time.Now(), &err)
	if caller == "" {
		return domain.ClaimReceipt{}, domain.ErrUnauthorized
	}
	if destination == "" {
		destination = caller
	}

	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.ClaimReceipt{}, err
	}
	defer unlock()

	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.ClaimReceipt{}, err
	}
	pos, err := s.loadPosition(ctx, m.ID, caller)
	if err != nil {
		return domain.ClaimReceipt{}, err
	}

	payout, err := settlement.Claim(m, pos, s.deps.Clock.Now())
	if err != nil {
		return domain.ClaimReceipt{}, fmt.Errorf("market_service: claim on %s: %w", marketID, err)
	}

	req := domain.TransferRequest{
		ID:            crypto.TransferID(string(domain.TransferClaim), m.ID, caller),
		Kind:          domain.TransferClaim,
		MarketID:      m.ID,
		From:          m.VaultRef,
		To:            destination,
		Amount:        payout.Winnings,
		Asset:         m.Asset,
		Authority:     s.cfg.EngineIdentity,
		ExpectedOwner: caller,
	}
	transfer, err := s.commit(ctx, payout.Market, []domain.Position{payout.Position}, req)
	if err != nil {
		return domain.ClaimReceipt{}, fmt.Errorf("market_service: claim on %s: %w", marketID, err)
	}

	s.deps.Metrics.WinningsClaimed(payout.Winnings)
	s.afterCommit(ctx, payout.Market, domain.Event{
		Type:     domain.EventWinningsClaimed,
		MarketID: m.ID,
		User:     caller,
		Data:     map[string]any{"winnings": payout.Winnings, "transfer_id": transfer.ID},
	})
	s.logger.InfoContext(ctx, "market_service: winnings claimed",
		slog.String("market_id", m.ID),
		slog.String("user", caller),
		slog.Uint64("winnings", payout.Winnings),
	)
	return domain.ClaimReceipt{
		Market:   payout.Market,
		Position: payout.Position,
		Winnings: payout.Winnings,
		Transfer: transfer,
	}, nil
}

// CollectFees withdraws the accrued fees to destination, which defaults to
// the authority's account and must be owned by the authority.
func (s *MarketService) CollectFees(ctx context.Context, marketID, caller, destination string) (rcpt domain.FeeReceipt, err error) {
	defer s.observe("collect_fees", time.Now(), &err)
	if destination == "" {
		destination = caller
	}

	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.FeeReceipt{}, err
	}
	defer unlock()

	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.FeeReceipt{}, err
	}
	now := s.deps.Clock.Now()
	updated, amount, err := settlement.CollectFees(m, caller, now)
	if err != nil {
		return domain.FeeReceipt{}, fmt.Errorf("market_service: collect fees on %s: %w", marketID, err)
	}

	req := domain.TransferRequest{
		ID:            crypto.TransferID(string(domain.TransferFees), m.ID, strconv.FormatUint(m.FeesWithdrawn, 10)),
		Kind:          domain.TransferFees,
		MarketID:      m.ID,
		From:          m.VaultRef,
		To:            destination,
		Amount:        amount,
		Asset:         m.Asset,
		Authority:     s.cfg.EngineIdentity,
		ExpectedOwner: caller,
	}
	transfer, err := s.commit(ctx, updated, nil, req)
	var replayed *replayedTransferError
	if errors.As(err, &replayed) {
		// An earlier collection went through but was never recorded. Record
		// what it paid and leave the fees accrued since then collectable.
		s.logger.WarnContext(ctx, "market_service: fee withdrawal replayed",
			slog.String("market_id", m.ID),
			slog.String("transfer_id", req.ID),
			slog.Uint64("requested", amount),
			slog.Uint64("paid", replayed.receipt.Amount),
		)
		amount, transfer = replayed.receipt.Amount, replayed.receipt
		updated, err = settlement.RecordFeeWithdrawal(m, amount, now)
		if err == nil {
			_, err = s.commit(ctx, updated, nil, domain.TransferRequest{})
		}
	}
	if err != nil {
		return domain.FeeReceipt{}, fmt.Errorf("market_service: collect fees on %s: %w", marketID, err)
	}

	s.deps.Metrics.FeesCollected(amount)
	s.afterCommit(ctx, updated, domain.Event{
		Type:     domain.EventFeesCollected,
		MarketID: m.ID,
		User:     caller,
		Data:     map[string]any{"amount": amount, "transfer_id": transfer.ID},
	})
	s.notify(ctx, "fees_collected",
		"Fees collected",
		fmt.Sprintf("%s collected %s %s in fees on %s", caller, units.Format(amount, s.cfg.AssetDecimals), m.Asset, m.GameKey))
	s.logger.InfoContext(ctx, "market_service: fees collected",
		slog.String("market_id", m.ID),
		slog.String("authority", caller),
		slog.Uint64("amount", amount),
	)
	return domain.FeeReceipt{Market: updated, Amount: amount, Transfer: transfer}, nil
}

// UpdateOracleFeed replaces the market's trusted feed before it starts.
func (s *MarketService) UpdateOracleFeed(ctx context.Context, marketID, caller, newRef string) (m domain.Market, err error) {
	defer s.observe("update_oracle_feed", time.Now(), &err)

	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	m, err = s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	previous := m.OracleRef
	updated, err := settlement.UpdateOracleRef(m, caller, newRef, s.deps.Clock.Now())
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: update oracle on %s: %w", marketID, err)
	}
	if _, err := s.commit(ctx, updated, nil, domain.TransferRequest{}); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: update oracle on %s: %w", marketID, err)
	}

	s.afterCommit(ctx, updated, domain.Event{
		Type:     domain.EventOracleUpdated,
		MarketID: updated.ID,
		User:     caller,
		Data:     map[string]any{"previous": previous, "oracle_ref": updated.OracleRef},
	})
	s.logger.InfoContext(ctx, "market_service: oracle feed updated",
		slog.String("market_id", updated.ID),
		slog.String("previous", previous),
		slog.String("oracle_ref", updated.OracleRef),
	)
	return updated, nil
}

// GetMarket returns a market, served from the cache when possible.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	if s.deps.Cache != nil {
		if m, err := s.deps.Cache.Get(ctx, marketID); err == nil {
			return m, nil
		}
	}
	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

// ListMarkets lists markets matching filter.
func (s *MarketService) ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.deps.Markets.List(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// GetPosition returns user's position on marketID.
func (s *MarketService) GetPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	pos, err := s.deps.Positions.GetByID(ctx, crypto.PositionID(marketID, user))
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: get position %s/%s: %w", marketID, user, err)
	}
	return pos, nil
}

// ListPositions lists every position on marketID.
func (s *MarketService) ListPositions(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.deps.Positions.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list positions for %s: %w", marketID, err)
	}
	return positions, nil
}

// Quote returns what user would receive from a claim right now without
// claiming.
func (s *MarketService) Quote(ctx context.Context, marketID, user string) (uint64, error) {
	m, err := s.loadMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	pos, err := s.loadPosition(ctx, m.ID, user)
	if err != nil {
		return 0, err
	}
	winnings, err := settlement.Winnings(m, pos)
	if err != nil {
		return 0, fmt.Errorf("market_service: quote %s/%s: %w", marketID, user, err)
	}
	return winnings, nil
}

// lockMarket takes the per-market lock, retrying while another operation
// holds it until LockWait elapses.
func (s *MarketService) lockMarket(ctx context.Context, marketID string) (func(), error) {
	deadline := time.Now().Add(s.cfg.LockWait)
	backoff := 5 * time.Millisecond
	for {
		unlock, err := s.deps.Locks.Acquire(ctx, "market:"+marketID, s.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || time.Now().After(deadline) {
			return nil, fmt.Errorf("market_service: lock market %s: %w", marketID, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

func (s *MarketService) loadMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.deps.Markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", marketID, err)
	}
	return m, nil
}

// loadPosition is the get-or-create accessor: a user with no position gets
// a zero-valued one that is persisted by the first commit touching it.
func (s *MarketService) loadPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	id := crypto.PositionID(marketID, user)
	pos, err := s.deps.Positions.GetByID(ctx, id)
	switch {
	case err == nil:
		return pos, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewPosition(id, marketID, user), nil
	default:
		return domain.Position{}, fmt.Errorf("market_service: get position %s: %w", id, err)
	}
}

// commit persists the market and positions. A non-empty transfer request is
// executed inside the commit so a failed transfer leaves nothing written.
func (s *MarketService) commit(ctx context.Context, m domain.Market, positions []domain.Position, req domain.TransferRequest) (domain.TransferReceipt, error) {
	var receipt domain.TransferReceipt
	var effect func(context.Context) error
	if req.ID != "" {
		effect = func(ctx context.Context) error {
			r, err := s.deps.Custody.Transfer(ctx, req)
			if err != nil {
				return fmt.Errorf("transfer %s: %w", req.Kind, err)
			}
			if r.Amount != req.Amount {
				return &replayedTransferError{receipt: r, requested: req.Amount}
			}
			receipt = r
			return nil
		}
	}
	if err := s.deps.Markets.Commit(ctx, m, positions, effect); err != nil {
		if s.deps.Cache != nil {
			_ = s.deps.Cache.Invalidate(ctx, m.ID)
		}
		return domain.TransferReceipt{}, err
	}
	return receipt, nil
}

// wagerTransferID keys a wager transfer on the position it extends. A
// successful wager changes the stakes, so only a retry of the same wager
// maps to the same id.
func wagerTransferID(marketID string, pos domain.Position, side domain.Side, amount uint64) string {
	return crypto.TransferID(string(domain.TransferWager), marketID, pos.User,
		strconv.FormatUint(pos.Stakes[domain.SideHome], 10),
		strconv.FormatUint(pos.Stakes[domain.SideAway], 10),
		strconv.FormatUint(pos.Stakes[domain.SideDraw], 10),
		side.String(),
		strconv.FormatUint(amount, 10),
	)
}

// replayedTransferError reports that custody answered a transfer id with an
// earlier transfer for a different amount.
type replayedTransferError struct {
	receipt   domain.TransferReceipt
	requested uint64
}

func (e *replayedTransferError) Error() string {
	return fmt.Sprintf("transfer %s replayed for %d, requested %d", e.receipt.ID, e.receipt.Amount, e.requested)
}

func (e *replayedTransferError) Unwrap() error { return domain.ErrConflict }

func (s *MarketService) checkReading(reading domain.OracleReading, now time.Time) error {
	if s.cfg.MaxReadingAge > 0 && !reading.Timestamp.IsZero() && now.Sub(reading.Timestamp) > s.cfg.MaxReadingAge {
		return domain.ErrInvalidFeed
	}
	if s.deps.Verifier == nil {
		return nil
	}
	return s.deps.Verifier.Verify(reading)
}

// afterCommit runs the best-effort side effects of a committed change.
func (s *MarketService) afterCommit(ctx context.Context, m domain.Market, evt domain.Event) {
	s.cacheMarket(ctx, m)
	evt.At = s.deps.Clock.Now()

	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if s.deps.Bus != nil {
		for _, ch := range []string{domain.MarketChannel(m.ID), domain.ChannelMarkets} {
			if pubErr := s.deps.Bus.Publish(ctx, ch, payload); pubErr != nil {
				s.logger.WarnContext(ctx, "market_service: publish event failed",
					slog.String("market_id", m.ID),
					slog.String("channel", ch),
					slog.String("error", pubErr.Error()),
				)
			}
		}
		if err := s.deps.Bus.StreamAppend(ctx, domain.StreamSettlement, payload); err != nil {
			s.logger.WarnContext(ctx, "market_service: stream append failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.deps.Audit != nil {
		detail := map[string]any{"market_id": m.ID, "version": m.Version}
		if evt.User != "" {
			detail["user"] = evt.User
		}
		for k, v := range evt.Data {
			detail[k] = v
		}
		if err := s.deps.Audit.Log(ctx, string(evt.Type), detail); err != nil {
			s.logger.WarnContext(ctx, "market_service: audit log failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *MarketService) cacheMarket(ctx context.Context, m domain.Market) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) notify(ctx context.Context, event, title, message string) {
	if err := s.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "market_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) observe(op string, started time.Time, errp *error) {
	s.deps.Metrics.ObserveOperation(op, time.Since(started))
	if *errp != nil {
		s.deps.Metrics.OperationFailed(op, domain.Code(*errp))
	}
}
