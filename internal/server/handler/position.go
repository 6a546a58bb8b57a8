package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// PositionHandler serves position reads.
type PositionHandler struct {
	markets  MarketService
	decimals int32
	logger   *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(markets MarketService, decimals int32, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{markets: markets, decimals: decimals, logger: logger}
}

type listPositionsResponse struct {
	Positions []positionView `json:"positions"`
	Limit     int            `json:"limit"`
	Offset    int            `json:"offset"`
}

// ListPositions returns every position on a market.
// GET /api/markets/{id}/positions?limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	positions, err := h.markets.ListPositions(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p, h.decimals))
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: views, Limit: opts.Limit, Offset: opts.Offset})
}

// GetPosition returns one user's position. Once the market is resolved the
// response also carries what a claim would pay right now.
// GET /api/markets/{id}/positions/{user}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	marketID, user := pathParam(r, "id"), pathParam(r, "user")
	pos, err := h.markets.GetPosition(r.Context(), marketID, user)
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	view := newPositionView(pos, h.decimals)

	quote, err := h.markets.Quote(r.Context(), marketID, user)
	switch {
	case err == nil:
		a := newAmount(quote, h.decimals)
		view.Claimable = &a
	case errors.Is(err, domain.ErrNoWinningsToClaim), errors.Is(err, domain.ErrMathOverflow):
		a := newAmount(0, h.decimals)
		view.Claimable = &a
	case errors.Is(err, domain.ErrMarketNotResolved):
	default:
		writeServiceError(w, r, h.logger, "quote position", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
