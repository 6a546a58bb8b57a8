package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// MarketService defines the methods that the settlement handlers require
// from the service layer. It is declared locally so the handler package
// does not depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, caller string, params domain.CreateMarketParams) (domain.Market, error)
	PlaceWager(ctx context.Context, marketID, caller string, side domain.Side, amount uint64) (domain.WagerReceipt, error)
	ResolveMarket(ctx context.Context, marketID string, reading domain.OracleReading) (domain.Market, error)
	ResolveFromFeed(ctx context.Context, marketID string) (domain.Market, error)
	ClaimWinnings(ctx context.Context, marketID, caller, destination string) (domain.ClaimReceipt, error)
	CollectFees(ctx context.Context, marketID, caller, destination string) (domain.FeeReceipt, error)
	UpdateOracleFeed(ctx context.Context, marketID, caller, newRef string) (domain.Market, error)
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
	ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error)
	GetPosition(ctx context.Context, marketID, user string) (domain.Position, error)
	ListPositions(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error)
	Quote(ctx context.Context, marketID, user string) (uint64, error)
}

// MarketHandler serves market lifecycle endpoints: creation, reads, oracle
// feed changes and resolution.
type MarketHandler struct {
	markets  MarketService
	clock    domain.Clock
	decimals int32
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler. decimals is the precision of
// the settlement asset, used for display amounts.
func NewMarketHandler(markets MarketService, clock domain.Clock, decimals int32, logger *slog.Logger) *MarketHandler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &MarketHandler{
		markets:  markets,
		clock:    clock,
		decimals: decimals,
		logger:   logger,
	}
}

type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?authority=...&resolved=true&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := domain.MarketFilter{Authority: r.URL.Query().Get("authority")}
	if v := r.URL.Query().Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolved must be true or false")
			return
		}
		filter.Resolved = &b
	}

	markets, err := h.markets.ListMarkets(r.Context(), filter, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	now := h.clock.Now()
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, newMarketView(m, now, h.decimals))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: views, Limit: opts.Limit, Offset: opts.Offset})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(m, h.clock.Now(), h.decimals))
}

type createMarketRequest struct {
	Question       string     `json:"question"`
	HomeTeam       string     `json:"home_team"`
	AwayTeam       string     `json:"away_team"`
	GameKey        string     `json:"game_key"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	ResolutionTime time.Time  `json:"resolution_time"`
	OracleRef      string     `json:"oracle_ref"`
	Asset          string     `json:"asset,omitempty"`
}

// CreateMarket opens a market administered by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if empty, err := decodeJSON(r, &req); err != nil || empty {
		writeError(w, http.StatusBadRequest, "request body with market parameters required")
		return
	}
	params := domain.CreateMarketParams{
		Question:       req.Question,
		HomeTeam:       req.HomeTeam,
		AwayTeam:       req.AwayTeam,
		GameKey:        req.GameKey,
		StartTime:      req.StartTime,
		ResolutionTime: req.ResolutionTime,
		OracleRef:      req.OracleRef,
		Asset:          req.Asset,
	}
	if req.EndTime != nil {
		params.EndTime = *req.EndTime
	}

	m, err := h.markets.CreateMarket(r.Context(), caller, params)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, newMarketView(m, h.clock.Now(), h.decimals))
}

type updateOracleRequest struct {
	OracleRef string `json:"oracle_ref"`
}

// UpdateOracleFeed replaces the trusted feed of a market that has not
// started. Only the market authority may call it.
// PUT /api/markets/{id}/oracle
func (h *MarketHandler) UpdateOracleFeed(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req updateOracleRequest
	if empty, err := decodeJSON(r, &req); err != nil || empty || req.OracleRef == "" {
		writeError(w, http.StatusBadRequest, "oracle_ref is required")
		return
	}
	m, err := h.markets.UpdateOracleFeed(r.Context(), pathParam(r, "id"), caller, req.OracleRef)
	if err != nil {
		writeServiceError(w, r, h.logger, "update oracle feed", err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(m, h.clock.Now(), h.decimals))
}

// ResolveMarket settles a market. With a signed reading in the body that
// reading is used; with an empty body the latest reading of the market's
// feed is pulled. Anyone may call it; the reading signature is what is
// trusted.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var req readingRequest
	empty, err := decodeJSON(r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var m domain.Market
	if empty {
		m, err = h.markets.ResolveFromFeed(r.Context(), id)
	} else {
		reading, convErr := req.toDomain()
		if convErr != nil {
			writeError(w, http.StatusBadRequest, convErr.Error())
			return
		}
		m, err = h.markets.ResolveMarket(r.Context(), id, reading)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(m, h.clock.Now(), h.decimals))
}
