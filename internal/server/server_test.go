package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/wagerbook/internal/cache/memory"
	"github.com/alanyoungcy/wagerbook/internal/crypto"
	"github.com/alanyoungcy/wagerbook/internal/custody"
	"github.com/alanyoungcy/wagerbook/internal/domain"
	"github.com/alanyoungcy/wagerbook/internal/oracle"
	"github.com/alanyoungcy/wagerbook/internal/server/handler"
	"github.com/alanyoungcy/wagerbook/internal/server/middleware"
	"github.com/alanyoungcy/wagerbook/internal/service"
	memstore "github.com/alanyoungcy/wagerbook/internal/store/memory"
)

const apiKey = "test-key"

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

type testAPI struct {
	handler http.Handler
	ledger  *custody.Ledger
	clock   *fakeClock
	signer  *crypto.Signer
	start   time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := crypto.GenerateSigner(1)
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memstore.NewStore()
	ledger := custody.NewLedger()
	ctx := context.Background()
	for _, user := range []string{"alice", "bob", "authority"} {
		if _, err := ledger.OpenAccount(ctx, user, user, "USDC"); err != nil {
			t.Fatalf("OpenAccount: %v", err)
		}
		if err := ledger.Deposit(ctx, user, 1_000_000); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}

	feeds := memory.NewFeedStore()
	bus := memory.NewBus()
	verifier := oracle.NewVerifier(1, []string{signer.Address().Hex()})
	svc := service.NewMarketService(service.MarketServiceDeps{
		Markets:   store,
		Positions: store.Positions(),
		Custody:   ledger,
		Locks:     memory.NewLockManager(),
		Clock:     clock,
		Feeds:     feeds,
		Verifier:  verifier,
		Bus:       bus,
		Audit:     store.Audit(),
	}, service.MarketServiceConfig{EngineIdentity: "engine", DefaultAsset: "USDC", AssetDecimals: 6}, logger)
	feedSvc := service.NewFeedService(feeds, verifier, bus, clock, logger)

	handlers := Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Check{
			"store": func(context.Context) error { return nil },
		}, logger),
		Markets:   handler.NewMarketHandler(svc, clock, 6, logger),
		Wagers:    handler.NewWagerHandler(svc, clock, 6, logger),
		Positions: handler.NewPositionHandler(svc, 6, logger),
		Feeds:     handler.NewFeedHandler(feedSvc, logger),
	}
	return &testAPI{
		handler: NewHandler(Config{APIKey: apiKey}, handlers, nil, Deps{}, logger),
		ledger:  ledger,
		clock:   clock,
		signer:  signer,
		start:   clock.Now().Add(time.Hour),
	}
}

type call struct {
	method  string
	path    string
	caller  string
	body    any
	headers map[string]string
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("X-API-Key", apiKey)
	if c.caller != "" {
		req.Header.Set(middleware.CallerHeader, c.caller)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, out any) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type amount struct {
	Base    string `json:"base"`
	Display string `json:"display"`
}

type marketBody struct {
	ID      string `json:"id"`
	Phase   string `json:"phase"`
	Outcome string `json:"outcome"`
	Pools   struct {
		Home  amount `json:"home"`
		Away  amount `json:"away"`
		Total amount `json:"total"`
	} `json:"pools"`
	FeesCollected amount `json:"fees_collected"`
}

func (a *testAPI) balance(t *testing.T, id string) uint64 {
	t.Helper()
	acct, err := a.ledger.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	return acct.Balance
}

func (a *testAPI) createMarket(t *testing.T, gameKey string) marketBody {
	t.Helper()
	var m marketBody
	expect(t, a.do(t, call{method: http.MethodPost, path: "/api/markets", caller: "authority", body: map[string]any{
		"question":        "Who wins?",
		"home_team":       "Home FC",
		"away_team":       "Away United",
		"game_key":        gameKey,
		"start_time":      a.start.Format(time.RFC3339),
		"resolution_time": a.start.Add(3 * time.Hour).Format(time.RFC3339),
		"oracle_ref":      "feed-" + gameKey,
	}}), http.StatusCreated, &m)
	return m
}

func (a *testAPI) signedReading(t *testing.T, feedID, value string) map[string]any {
	t.Helper()
	r, err := oracle.Sign(a.signer, domain.OracleReading{FeedID: feedID, Value: value, Timestamp: a.clock.Now()})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return map[string]any{
		"feed_id":   r.FeedID,
		"value":     r.Value,
		"timestamp": r.Timestamp.Unix(),
		"signer":    r.Signer,
		"signature": hexutil.Encode(r.Signature),
	}
}

func TestSettlementOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	m := a.createMarket(t, "GAME_HTTP")
	if m.Phase != "open" {
		t.Fatalf("phase = %s, want open", m.Phase)
	}
	base := "/api/markets/" + m.ID

	// Idempotent retry of the same wager is applied once.
	wager := call{
		method: http.MethodPost, path: base + "/wagers", caller: "alice",
		body:    map[string]string{"side": "home", "amount": "1000"},
		headers: map[string]string{middleware.IdempotencyHeader: "w-1"},
	}
	var first, replay struct {
		Fee    amount `json:"fee"`
		Amount amount `json:"amount"`
	}
	expect(t, a.do(t, wager), http.StatusCreated, &first)
	rec := a.do(t, wager)
	expect(t, rec, http.StatusCreated, &replay)
	if rec.Header().Get(middleware.ReplayHeader) != "true" || replay != first {
		t.Fatalf("retry not replayed: %+v vs %+v", replay, first)
	}
	if first.Fee.Base != "5" || a.balance(t, "alice") != 1_000_000-1005 {
		t.Fatalf("fee %s, alice balance %d", first.Fee.Base, a.balance(t, "alice"))
	}

	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/wagers", caller: "bob",
		body: map[string]string{"side": "away", "display_amount": "0.0005"}}), http.StatusCreated, nil)
	if a.balance(t, "bob") != 1_000_000-502 {
		t.Fatalf("bob balance %d", a.balance(t, "bob"))
	}

	var got marketBody
	expect(t, a.do(t, call{method: http.MethodGet, path: base}), http.StatusOK, &got)
	if got.Pools.Total.Base != "1500" || got.Pools.Total.Display != "0.001500" {
		t.Fatalf("total pool = %+v", got.Pools.Total)
	}

	// A reading from the feed, then a permissionless resolve with no body.
	a.clock.Set(a.start.Add(3*time.Hour + time.Minute))
	expect(t, a.do(t, call{method: http.MethodPost, path: "/api/feeds/feed-GAME_HTTP/readings",
		body: a.signedReading(t, "feed-GAME_HTTP", "1")}), http.StatusAccepted, nil)
	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/resolve"}), http.StatusOK, &got)
	if got.Outcome != "home" || got.Phase != "resolved" {
		t.Fatalf("resolved market = %+v", got)
	}

	var pos struct {
		Claimable *amount `json:"claimable"`
	}
	expect(t, a.do(t, call{method: http.MethodGet, path: base + "/positions/alice"}), http.StatusOK, &pos)
	if pos.Claimable == nil || pos.Claimable.Base != "1500" {
		t.Fatalf("alice claimable = %+v", pos.Claimable)
	}

	var claim struct {
		Winnings amount `json:"winnings"`
	}
	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/claim", caller: "alice"}), http.StatusOK, &claim)
	if claim.Winnings.Base != "1500" || a.balance(t, "alice") != 1_000_000-1005+1500 {
		t.Fatalf("winnings %s, alice balance %d", claim.Winnings.Base, a.balance(t, "alice"))
	}

	var e errBody
	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/claim", caller: "bob"}), http.StatusUnprocessableEntity, &e)
	if e.Code != "no_winnings_to_claim" {
		t.Fatalf("loser claim code = %s", e.Code)
	}

	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/fees/collect", caller: "alice"}), http.StatusForbidden, &e)
	if e.Code != "unauthorized_fee_collector" {
		t.Fatalf("non-authority collect code = %s", e.Code)
	}
	expect(t, a.do(t, call{method: http.MethodPost, path: base + "/fees/collect", caller: "authority"}), http.StatusOK, nil)
	if a.balance(t, "authority") != 1_000_007 {
		t.Fatalf("authority balance %d", a.balance(t, "authority"))
	}
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)
	m := a.createMarket(t, "GAME_ERR")
	base := "/api/markets/" + m.ID

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{"unknown market", call{method: http.MethodGet, path: "/api/markets/nope"}, http.StatusNotFound, "not_found"},
		{"missing caller", call{method: http.MethodPost, path: base + "/wagers",
			body: map[string]string{"side": "home", "amount": "10"}}, http.StatusUnauthorized, "unauthorized"},
		{"bad side", call{method: http.MethodPost, path: base + "/wagers", caller: "alice",
			body: map[string]string{"side": "sideways", "amount": "10"}}, http.StatusBadRequest, "invalid_side"},
		{"zero amount", call{method: http.MethodPost, path: base + "/wagers", caller: "alice",
			body: map[string]string{"side": "home", "amount": "0"}}, http.StatusBadRequest, "invalid_amount"},
		{"too early", call{method: http.MethodPost, path: base + "/resolve"}, http.StatusConflict, "too_early_to_resolve"},
		{"claim before resolution", call{method: http.MethodPost, path: base + "/claim", caller: "alice"},
			http.StatusConflict, "market_not_resolved"},
		{"oracle update by stranger", call{method: http.MethodPut, path: base + "/oracle", caller: "bob",
			body: map[string]string{"oracle_ref": "other"}}, http.StatusForbidden, "unauthorized_updater"},
		{"duplicate game key", call{method: http.MethodPost, path: "/api/markets", caller: "authority", body: map[string]any{
			"game_key":        "GAME_ERR",
			"start_time":      a.start.Format(time.RFC3339),
			"resolution_time": a.start.Add(time.Hour).Format(time.RFC3339),
			"oracle_ref":      "feed",
		}}, http.StatusConflict, "already_exists"},
		{"unknown feed", call{method: http.MethodGet, path: "/api/feeds/none"}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var e errBody
			expect(t, a.do(t, tc.call), tc.status, &e)
			if e.Code != tc.code {
				t.Fatalf("code = %q, want %q (%s)", e.Code, tc.code, e.Error)
			}
		})
	}
}

func TestResolveRejectsTamperedReading(t *testing.T) {
	a := newTestAPI(t)
	m := a.createMarket(t, "GAME_TAMPER")
	a.clock.Set(a.start.Add(4 * time.Hour))

	body := a.signedReading(t, "feed-GAME_TAMPER", "1")
	body["value"] = "0"
	var e errBody
	expect(t, a.do(t, call{method: http.MethodPost, path: "/api/markets/" + m.ID + "/resolve", body: body}),
		http.StatusBadRequest, &e)
	if e.Code != "invalid_feed" {
		t.Fatalf("code = %s", e.Code)
	}

	expect(t, a.do(t, call{method: http.MethodPost, path: "/api/markets/" + m.ID + "/resolve",
		body: a.signedReading(t, "feed-GAME_TAMPER", "2")}), http.StatusOK, nil)
}

func TestAuthAndHealth(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	expect(t, rec, http.StatusOK, &health)
	if health.Status != "ok" || health.Checks["store"] != "ok" {
		t.Fatalf("health = %+v", health)
	}
}

func TestListMarkets(t *testing.T) {
	a := newTestAPI(t)
	a.createMarket(t, "GAME_A")
	a.createMarket(t, "GAME_B")

	var out struct {
		Markets []marketBody `json:"markets"`
	}
	expect(t, a.do(t, call{method: http.MethodGet, path: "/api/markets?resolved=false&limit=10"}), http.StatusOK, &out)
	if len(out.Markets) != 2 {
		t.Fatalf("listed %d markets, want 2", len(out.Markets))
	}
	expect(t, a.do(t, call{method: http.MethodGet, path: "/api/markets?resolved=maybe"}), http.StatusBadRequest, nil)
}
