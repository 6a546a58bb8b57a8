package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/cache/memory"
	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/custody"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/oracle"
	memstore "github.com/alanyoungcy/wagerbook/internal/store/memory"
)

const engine = "engine"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// failingCustody wraps a ledger and fails transfers of one kind.
type failingCustody struct {
	*custody.Ledger
	failKind domain.TransferKind
}

func (f *failingCustody) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	if req.Kind == f.failKind {
		return domain.TransferReceipt{}, errors.New("custody offline")
	}
	return f.Ledger.Transfer(ctx, req)
}

// lostReplyCustody executes the first transfer of one kind and then reports
// a timeout, as a remote custody call whose reply never arrives.
type lostReplyCustody struct {
	*custody.Ledger
	kind domain.TransferKind

	mu      sync.Mutex
	dropped bool
}

func (f *lostReplyCustody) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	r, err := f.Ledger.Transfer(ctx, req)
	if err != nil || req.Kind != f.kind {
		return r, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dropped {
		f.dropped = true
		return domain.TransferReceipt{}, context.DeadlineExceeded
	}
	return r, nil
}

type harness struct {
	svc    *MarketService
	store  *memstore.Store
	ledger *custody.Ledger
	bus    *memory.Bus
	feeds  *memory.FeedStore
	clock  *fakeClock
	signer *crypto.Signer
	start  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	signer, err := crypto.GenerateSigner(1)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	h := &harness{
		store:  memstore.NewStore(),
		ledger: custody.NewLedger(),
		bus:    memory.NewBus(),
		feeds:  memory.NewFeedStore(),
		clock:  &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		signer: signer,
	}
	h.start = h.clock.Now().Add(time.Hour)
	h.svc = h.build(h.ledger)

	ctx := context.Background()
	for _, user := range []string{"alice", "bob", "carol", "authority"} {
		if _, err := h.ledger.OpenAccount(ctx, user, user, "USDC"); err != nil {
			t.Fatalf("OpenAccount: %v", err)
		}
		if err := h.ledger.Deposit(ctx, user, 1_000_000); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	return h
}

func (h *harness) build(c domain.Custody) *MarketService {
	return NewMarketService(MarketServiceDeps{
		Markets:   h.store,
		Positions: h.store.Positions(),
		Custody:   c,
		Locks:     memory.NewLockManager(),
		Clock:     h.clock,
		Feeds:     h.feeds,
		Verifier:  oracle.NewVerifier(1, []string{h.signer.Address().Hex()}),
		Cache:     memory.NewMarketCache(),
		Bus:       h.bus,
		Audit:     h.store.Audit(),
	}, MarketServiceConfig{EngineIdentity: engine, DefaultAsset: "USDC"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (h *harness) createMarket(t *testing.T, gameKey string) domain.Market {
	t.Helper()
	m, err := h.svc.CreateMarket(context.Background(), "authority", domain.CreateMarketParams{
		Question:       "Who wins?",
		HomeTeam:       "Home FC",
		AwayTeam:       "Away United",
		GameKey:        gameKey,
		StartTime:      h.start,
		EndTime:        h.start.Add(2 * time.Hour),
		ResolutionTime: h.start.Add(3 * time.Hour),
		OracleRef:      "feed-" + gameKey,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func (h *harness) wager(t *testing.T, marketID, user string, side domain.Side, amount uint64) {
	t.Helper()
	if _, err := h.svc.PlaceWager(context.Background(), marketID, user, side, amount); err != nil {
		t.Fatalf("PlaceWager %s %s %d: %v", user, side, amount, err)
	}
}

func (h *harness) reading(t *testing.T, m domain.Market, value string) domain.OracleReading {
	t.Helper()
	r, err := oracle.Sign(h.signer, domain.OracleReading{FeedID: m.OracleRef, Value: value, Timestamp: h.clock.Now()})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return r
}

func (h *harness) resolve(t *testing.T, m domain.Market, value string) domain.Market {
	t.Helper()
	h.clock.Set(m.ResolutionTime.Add(time.Minute))
	out, err := h.svc.ResolveMarket(context.Background(), m.ID, h.reading(t, m, value))
	if err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	return out
}

func (h *harness) balance(t *testing.T, id string) uint64 {
	t.Helper()
	a, err := h.ledger.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("Account %s: %v", id, err)
	}
	return a.Balance
}

func TestCreateMarketRejectsDuplicateGameKey(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_DUP")
	if m.VaultRef != crypto.VaultID(m.ID) {
		t.Fatalf("vault ref = %s", m.VaultRef)
	}
	vault, err := h.ledger.Account(context.Background(), m.VaultRef)
	if err != nil || vault.Owner != engine {
		t.Fatalf("vault not opened for engine: %+v, %v", vault, err)
	}

	_, err = h.svc.CreateMarket(context.Background(), "authority", domain.CreateMarketParams{
		GameKey:        "GAME_DUP",
		StartTime:      h.start,
		ResolutionTime: h.start.Add(time.Hour),
		OracleRef:      "feed",
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate game key: got %v, want ErrAlreadyExists", err)
	}
}

// failCreateOnce fails the first market insert.
type failCreateOnce struct {
	*memstore.Store
	failed bool
}

func (f *failCreateOnce) Create(ctx context.Context, m domain.Market) error {
	if !f.failed {
		f.failed = true
		return errors.New("connection reset")
	}
	return f.Store.Create(ctx, m)
}

func TestCreateMarketRetryReusesVault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.svc.deps.Markets = &failCreateOnce{Store: h.store}

	params := domain.CreateMarketParams{
		GameKey:        "GAME_RETRY_CREATE",
		StartTime:      h.start,
		ResolutionTime: h.start.Add(time.Hour),
		OracleRef:      "feed-retry",
	}
	if _, err := h.svc.CreateMarket(ctx, "authority", params); err == nil {
		t.Fatal("expected the first create to fail")
	}
	m, err := h.svc.CreateMarket(ctx, "authority", params)
	if err != nil {
		t.Fatalf("retry CreateMarket: %v", err)
	}
	vault, err := h.ledger.Account(ctx, m.VaultRef)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.Owner != engine || vault.Balance != 0 {
		t.Fatalf("vault = %+v", vault)
	}
	h.wager(t, m.ID, "alice", domain.SideHome, 100)
}

func TestHomeWinEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_HOME")

	h.wager(t, m.ID, "alice", domain.SideHome, 30)
	h.wager(t, m.ID, "carol", domain.SideHome, 270)
	h.wager(t, m.ID, "bob", domain.SideAway, 100)

	// 270 carries a fee of 1; the others round down to zero.
	if got := h.balance(t, m.VaultRef); got != 401 {
		t.Fatalf("vault holds %d, want 401", got)
	}

	h.resolve(t, m, "1")

	before := h.balance(t, "alice")
	rcpt, err := h.svc.ClaimWinnings(ctx, m.ID, "alice", "")
	if err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if rcpt.Winnings != 40 {
		t.Fatalf("winnings = %d, want 40", rcpt.Winnings)
	}
	if got := h.balance(t, "alice"); got != before+40 {
		t.Fatalf("alice balance = %d, want %d", got, before+40)
	}

	_, err = h.svc.ClaimWinnings(ctx, m.ID, "alice", "")
	if !errors.Is(err, domain.ErrNoWinningsToClaim) {
		t.Fatalf("second claim: got %v, want ErrNoWinningsToClaim", err)
	}
	pos, err := h.svc.GetPosition(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if !pos.IsEmpty() {
		t.Fatalf("position not zeroed: %v", pos.Stakes)
	}

	if _, err := h.svc.ClaimWinnings(ctx, m.ID, "bob", ""); !errors.Is(err, domain.ErrNoWinningsToClaim) {
		t.Fatalf("losing claim: got %v, want ErrNoWinningsToClaim", err)
	}
}

func TestDrawPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_DRAW")

	h.wager(t, m.ID, "alice", domain.SideHome, 100)
	h.wager(t, m.ID, "bob", domain.SideAway, 100)
	h.wager(t, m.ID, "carol", domain.SideDraw, 50)

	resolved := h.resolve(t, m, "2")
	if resolved.Outcome != domain.OutcomeDraw || !resolved.IsDraw() {
		t.Fatalf("outcome = %s", resolved.Outcome)
	}

	q, err := h.svc.Quote(ctx, m.ID, "carol")
	if err != nil || q != 250 {
		t.Fatalf("Quote = %d, %v; want 250", q, err)
	}
	rcpt, err := h.svc.ClaimWinnings(ctx, m.ID, "carol", "")
	if err != nil {
		t.Fatalf("ClaimWinnings: %v", err)
	}
	if rcpt.Winnings != 250 {
		t.Fatalf("winnings = %d, want 250", rcpt.Winnings)
	}
	if _, err := h.svc.ClaimWinnings(ctx, m.ID, "alice", ""); !errors.Is(err, domain.ErrNoWinningsToClaim) {
		t.Fatalf("home-only claim on draw: got %v, want ErrNoWinningsToClaim", err)
	}
}

func TestPlaceWagerAfterStart(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_LATE")
	h.clock.Set(h.start)
	before := h.balance(t, "alice")

	_, err := h.svc.PlaceWager(context.Background(), m.ID, "alice", domain.SideHome, 100)
	if !errors.Is(err, domain.ErrMarketAlreadyStarted) {
		t.Fatalf("got %v, want ErrMarketAlreadyStarted", err)
	}
	if h.balance(t, "alice") != before {
		t.Fatal("rejected wager moved funds")
	}
}

func TestPlaceWagerChargesFeeOnTop(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_FEE")
	before := h.balance(t, "alice")

	rcpt, err := h.svc.PlaceWager(context.Background(), m.ID, "alice", domain.SideAway, 20_000)
	if err != nil {
		t.Fatalf("PlaceWager: %v", err)
	}
	if rcpt.Fee != 100 || rcpt.Transfer.Amount != 20_100 {
		t.Fatalf("fee/transfer = %d/%d, want 100/20100", rcpt.Fee, rcpt.Transfer.Amount)
	}
	if got := h.balance(t, "alice"); got != before-20_100 {
		t.Fatalf("alice balance = %d, want %d", got, before-20_100)
	}
	if rcpt.Market.FeesCollected != 100 || rcpt.Market.Pool(domain.SideAway) != 20_000 {
		t.Fatalf("market = %+v", rcpt.Market)
	}
}

func TestWagerRolledBackWhenTransferFails(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_ROLLBACK")
	svc := h.build(&failingCustody{Ledger: h.ledger, failKind: domain.TransferWager})

	if _, err := svc.PlaceWager(context.Background(), m.ID, "alice", domain.SideHome, 500); err == nil {
		t.Fatal("expected transfer failure")
	}
	got, err := h.store.GetByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Pools != m.Pools || got.FeesCollected != 0 || got.Version != m.Version {
		t.Fatalf("market changed after failed transfer: %+v", got)
	}
	if _, err := h.store.Positions().GetByID(context.Background(), crypto.PositionID(m.ID, "alice")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("position persisted after failed transfer: %v", err)
	}
}

func TestWagerWithoutFundsFails(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_BROKE")
	_, err := h.svc.PlaceWager(context.Background(), m.ID, "alice", domain.SideHome, 2_000_000)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestResolveMarketRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_RESOLVE")

	if _, err := h.svc.ResolveMarket(ctx, m.ID, h.reading(t, m, "1")); !errors.Is(err, domain.ErrTooEarlyToResolve) {
		t.Fatalf("early: got %v", err)
	}

	h.clock.Set(m.ResolutionTime.Add(time.Minute))
	for _, tt := range []struct {
		value string
		want  error
	}{
		{"-1", domain.ErrMatchNotFinished},
		{"5", domain.ErrInvalidOracleValue},
	} {
		_, err := h.svc.ResolveMarket(ctx, m.ID, h.reading(t, m, tt.value))
		if !errors.Is(err, tt.want) {
			t.Fatalf("value %s: got %v, want %v", tt.value, err, tt.want)
		}
		got, _ := h.store.GetByID(ctx, m.ID)
		if got.Resolved {
			t.Fatalf("value %s resolved the market", tt.value)
		}
	}

	wrongFeed := h.reading(t, m, "1")
	wrongFeed.FeedID = "other-feed"
	if _, err := h.svc.ResolveMarket(ctx, m.ID, wrongFeed); !errors.Is(err, domain.ErrInvalidFeed) {
		t.Fatalf("wrong feed: got %v, want ErrInvalidFeed", err)
	}

	stranger, _ := crypto.GenerateSigner(1)
	untrusted, _ := oracle.Sign(stranger, domain.OracleReading{FeedID: m.OracleRef, Value: "1", Timestamp: h.clock.Now()})
	if _, err := h.svc.ResolveMarket(ctx, m.ID, untrusted); !errors.Is(err, domain.ErrUnauthorizedResolver) {
		t.Fatalf("untrusted signer: got %v, want ErrUnauthorizedResolver", err)
	}

	resolved, err := h.svc.ResolveMarket(ctx, m.ID, h.reading(t, m, "0"))
	if err != nil {
		t.Fatalf("ResolveMarket: %v", err)
	}
	if resolved.Outcome != domain.OutcomeAway || resolved.FinalResultValue != 0 {
		t.Fatalf("resolved = %+v", resolved)
	}

	_, err = h.svc.ResolveMarket(ctx, m.ID, h.reading(t, m, "1"))
	if !errors.Is(err, domain.ErrMarketAlreadyResolved) {
		t.Fatalf("second resolve: got %v", err)
	}
	got, _ := h.store.GetByID(ctx, m.ID)
	if got.Outcome != domain.OutcomeAway {
		t.Fatalf("outcome changed to %s", got.Outcome)
	}
}

func TestResolveFromFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_FEED")
	h.clock.Set(m.ResolutionTime.Add(time.Minute))

	if _, err := h.svc.ResolveFromFeed(ctx, m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no reading: got %v, want ErrNotFound", err)
	}
	if err := h.feeds.Publish(ctx, h.reading(t, m, "1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	out, err := h.svc.ResolveFromFeed(ctx, m.ID)
	if err != nil {
		t.Fatalf("ResolveFromFeed: %v", err)
	}
	if out.Outcome != domain.OutcomeHome {
		t.Fatalf("outcome = %s", out.Outcome)
	}
}

func TestCollectFees(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_FEES")
	h.wager(t, m.ID, "alice", domain.SideHome, 10_000)
	h.wager(t, m.ID, "bob", domain.SideAway, 10_000)

	if _, err := h.svc.CollectFees(ctx, m.ID, "bob", ""); !errors.Is(err, domain.ErrUnauthorizedFeeCollector) {
		t.Fatalf("non-authority: got %v", err)
	}
	cur, _ := h.store.GetByID(ctx, m.ID)
	if cur.FeesCollected != 100 {
		t.Fatalf("fees = %d after rejected collection, want 100", cur.FeesCollected)
	}

	if _, err := h.svc.CollectFees(ctx, m.ID, "authority", "bob"); !errors.Is(err, domain.ErrInvalidVault) {
		t.Fatalf("foreign receiver: got %v, want ErrInvalidVault", err)
	}

	before := h.balance(t, "authority")
	rcpt, err := h.svc.CollectFees(ctx, m.ID, "authority", "")
	if err != nil {
		t.Fatalf("CollectFees: %v", err)
	}
	if rcpt.Amount != 100 || rcpt.Market.FeesCollected != 0 {
		t.Fatalf("receipt = %+v", rcpt)
	}
	if got := h.balance(t, "authority"); got != before+100 {
		t.Fatalf("authority balance = %d, want %d", got, before+100)
	}
	if _, err := h.svc.CollectFees(ctx, m.ID, "authority", ""); !errors.Is(err, domain.ErrNoFeesToCollect) {
		t.Fatalf("empty fees: got %v", err)
	}
}

func TestClaimRolledBackWhenTransferFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_CLAIM_FAIL")
	h.wager(t, m.ID, "alice", domain.SideHome, 100)
	h.resolve(t, m, "1")

	svc := h.build(&failingCustody{Ledger: h.ledger, failKind: domain.TransferClaim})
	if _, err := svc.ClaimWinnings(ctx, m.ID, "alice", ""); err == nil {
		t.Fatal("expected transfer failure")
	}
	pos, err := h.svc.GetPosition(ctx, m.ID, "alice")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.Stake(domain.SideHome) != 100 {
		t.Fatalf("stake lost after failed claim: %v", pos.Stakes)
	}

	if _, err := h.svc.ClaimWinnings(ctx, m.ID, "alice", "bob"); !errors.Is(err, domain.ErrInvalidVault) {
		t.Fatalf("claim into foreign account: got %v, want ErrInvalidVault", err)
	}
	rcpt, err := h.svc.ClaimWinnings(ctx, m.ID, "alice", "")
	if err != nil || rcpt.Winnings != 100 {
		t.Fatalf("retry claim = %+v, %v", rcpt, err)
	}
}

func TestClaimRetryAfterLostReplyPaysOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_CLAIM_LOST")
	h.wager(t, m.ID, "alice", domain.SideHome, 100)
	h.wager(t, m.ID, "carol", domain.SideHome, 100)
	h.wager(t, m.ID, "bob", domain.SideAway, 100)
	h.resolve(t, m, "1")

	svc := h.build(&lostReplyCustody{Ledger: h.ledger, kind: domain.TransferClaim})
	before := h.balance(t, "alice")
	if _, err := svc.ClaimWinnings(ctx, m.ID, "alice", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first claim: got %v, want deadline exceeded", err)
	}
	rcpt, err := svc.ClaimWinnings(ctx, m.ID, "alice", "")
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if rcpt.Winnings != 150 {
		t.Fatalf("winnings = %d, want 150", rcpt.Winnings)
	}
	if got := h.balance(t, "alice"); got != before+150 {
		t.Fatalf("alice received %d, want 150", got-before)
	}

	if _, err := svc.ClaimWinnings(ctx, m.ID, "carol", ""); err != nil {
		t.Fatalf("carol claim: %v", err)
	}
	if got := h.balance(t, m.VaultRef); got != 0 {
		t.Fatalf("vault left = %d, want 0", got)
	}
}

func TestWagerRetryAfterLostReplyChargesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_WAGER_LOST")

	svc := h.build(&lostReplyCustody{Ledger: h.ledger, kind: domain.TransferWager})
	before := h.balance(t, "alice")
	if _, err := svc.PlaceWager(ctx, m.ID, "alice", domain.SideHome, 10_000); err == nil {
		t.Fatal("expected the first wager to fail")
	}
	if _, err := svc.PlaceWager(ctx, m.ID, "alice", domain.SideHome, 10_000); err != nil {
		t.Fatalf("retry wager: %v", err)
	}
	if got := h.balance(t, "alice"); got != before-10_050 {
		t.Fatalf("alice charged %d, want 10050", before-got)
	}

	// A second wager of the same size is a new wager.
	if _, err := svc.PlaceWager(ctx, m.ID, "alice", domain.SideHome, 10_000); err != nil {
		t.Fatalf("second wager: %v", err)
	}
	if got := h.balance(t, "alice"); got != before-20_100 {
		t.Fatalf("alice charged %d, want 20100", before-got)
	}
	cur, _ := h.store.GetByID(ctx, m.ID)
	if cur.Pool(domain.SideHome) != 20_000 || cur.FeesCollected != 100 {
		t.Fatalf("pool=%d fees=%d", cur.Pool(domain.SideHome), cur.FeesCollected)
	}
	if got := h.balance(t, m.VaultRef); got != 20_100 {
		t.Fatalf("vault = %d, want 20100", got)
	}
}

func TestFeeCollectionReplayedAfterLostReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_FEES_LOST")
	h.wager(t, m.ID, "alice", domain.SideHome, 10_000)

	svc := h.build(&lostReplyCustody{Ledger: h.ledger, kind: domain.TransferFees})
	before := h.balance(t, "authority")
	if _, err := svc.CollectFees(ctx, m.ID, "authority", ""); err == nil {
		t.Fatal("expected the first collection to fail")
	}

	// More fees accrue before the retry.
	h.wager(t, m.ID, "bob", domain.SideAway, 10_000)

	rcpt, err := svc.CollectFees(ctx, m.ID, "authority", "")
	if err != nil {
		t.Fatalf("retry collection: %v", err)
	}
	if rcpt.Amount != 50 || rcpt.Market.FeesCollected != 50 || rcpt.Market.FeesWithdrawn != 50 {
		t.Fatalf("receipt amount=%d fees=%d withdrawn=%d", rcpt.Amount, rcpt.Market.FeesCollected, rcpt.Market.FeesWithdrawn)
	}
	if got := h.balance(t, "authority"); got != before+50 {
		t.Fatalf("authority received %d, want 50", got-before)
	}

	rcpt, err = svc.CollectFees(ctx, m.ID, "authority", "")
	if err != nil {
		t.Fatalf("second collection: %v", err)
	}
	if rcpt.Amount != 50 || rcpt.Market.FeesWithdrawn != 100 {
		t.Fatalf("receipt amount=%d withdrawn=%d", rcpt.Amount, rcpt.Market.FeesWithdrawn)
	}
	if got := h.balance(t, "authority"); got != before+100 {
		t.Fatalf("authority received %d, want 100", got-before)
	}
	if got := h.balance(t, m.VaultRef); got != 20_000 {
		t.Fatalf("vault = %d, want the 20000 staked", got)
	}
}

func TestClaimBeforeResolution(t *testing.T) {
	h := newHarness(t)
	m := h.createMarket(t, "GAME_EARLY_CLAIM")
	h.wager(t, m.ID, "alice", domain.SideHome, 100)
	if _, err := h.svc.ClaimWinnings(context.Background(), m.ID, "alice", ""); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("got %v, want ErrMarketNotResolved", err)
	}
}

func TestUpdateOracleFeed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_UPDATE")

	if _, err := h.svc.UpdateOracleFeed(ctx, m.ID, "alice", "feed-x"); !errors.Is(err, domain.ErrUnauthorizedUpdater) {
		t.Fatalf("non-authority: got %v", err)
	}
	out, err := h.svc.UpdateOracleFeed(ctx, m.ID, "authority", "feed-x")
	if err != nil {
		t.Fatalf("UpdateOracleFeed: %v", err)
	}
	if out.OracleRef != "feed-x" {
		t.Fatalf("oracle ref = %s", out.OracleRef)
	}

	h.clock.Set(h.start.Add(time.Second))
	if _, err := h.svc.UpdateOracleFeed(ctx, m.ID, "authority", "feed-y"); !errors.Is(err, domain.ErrMarketAlreadyStarted) {
		t.Fatalf("after start: got %v", err)
	}
}

func TestConcurrentWagersConserve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_CONCURRENT")

	users := []string{"alice", "bob", "carol"}
	var wg sync.WaitGroup
	errs := make(chan error, 60)
	for i := 0; i < 20; i++ {
		for j, u := range users {
			wg.Add(1)
			go func(u string, side domain.Side) {
				defer wg.Done()
				if _, err := h.svc.PlaceWager(ctx, m.ID, u, side, 10); err != nil {
					errs <- err
				}
			}(u, domain.Sides[j])
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent wager: %v", err)
	}

	got, _ := h.store.GetByID(ctx, m.ID)
	positions, _ := h.svc.ListPositions(ctx, m.ID, domain.ListOpts{})
	for _, side := range domain.Sides {
		var sum uint64
		for _, p := range positions {
			sum += p.Stake(side)
		}
		if sum != got.Pool(side) || sum != 200 {
			t.Errorf("side %s: stakes %d, pool %d, want 200", side, sum, got.Pool(side))
		}
	}
}

func TestEventsPublished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.createMarket(t, "GAME_EVENTS")
	h.wager(t, m.ID, "alice", domain.SideHome, 10)

	msgs, err := h.bus.StreamRead(ctx, domain.StreamSettlement, "0", 10)
	if err != nil {
		t.Fatalf("StreamRead: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stream has %d events, want 2", len(msgs))
	}
	entries, _ := h.store.Audit().List(ctx, domain.ListOpts{})
	if len(entries) != 2 || entries[0].Event != string(domain.EventWagerPlaced) {
		t.Fatalf("audit = %+v", entries)
	}
}
