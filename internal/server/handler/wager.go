package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// WagerHandler serves the value-moving endpoints: wagers, claims and fee
// withdrawals.
type WagerHandler struct {
	markets  MarketService
	clock    domain.Clock
	decimals int32
	logger   *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(markets MarketService, clock domain.Clock, decimals int32, logger *slog.Logger) *WagerHandler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &WagerHandler{markets: markets, clock: clock, decimals: decimals, logger: logger}
}

type placeWagerRequest struct {
	Side          string `json:"side"`
	Amount        string `json:"amount,omitempty"`
	DisplayAmount string `json:"display_amount,omitempty"`
}

type wagerResponse struct {
	Market   marketView   `json:"market"`
	Position positionView `json:"position"`
	Side     string       `json:"side"`
	Amount   amountView   `json:"amount"`
	Fee      amountView   `json:"fee"`
	Transfer transferView `json:"transfer"`
}

// PlaceWager stakes on one side of a market for the caller. The fee is
// charged on top of the staked amount.
// POST /api/markets/{id}/wagers
func (h *WagerHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req placeWagerRequest
	if empty, err := decodeJSON(r, &req); err != nil || empty {
		writeError(w, http.StatusBadRequest, "request body with side and amount required")
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeServiceError(w, r, h.logger, "place wager", err)
		return
	}
	amount, err := parseAmount(req.Amount, req.DisplayAmount, h.decimals)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			writeServiceError(w, r, h.logger, "place wager", err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt, err := h.markets.PlaceWager(r.Context(), pathParam(r, "id"), caller, side, amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "place wager", err)
		return
	}
	writeJSON(w, http.StatusCreated, wagerResponse{
		Market:   newMarketView(rcpt.Market, h.clock.Now(), h.decimals),
		Position: newPositionView(rcpt.Position, h.decimals),
		Side:     rcpt.Side.String(),
		Amount:   newAmount(rcpt.Amount, h.decimals),
		Fee:      newAmount(rcpt.Fee, h.decimals),
		Transfer: newTransferView(rcpt.Transfer, h.decimals),
	})
}

// payoutRequest names the account that receives a claim or fee payout.
// When empty the caller's own account is used.
type payoutRequest struct {
	Destination string `json:"destination,omitempty"`
}

type claimResponse struct {
	Market   marketView   `json:"market"`
	Position positionView `json:"position"`
	Winnings amountView   `json:"winnings"`
	Transfer transferView `json:"transfer"`
}

// ClaimWinnings pays the caller's share of a resolved market.
// POST /api/markets/{id}/claim
func (h *WagerHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req payoutRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt, err := h.markets.ClaimWinnings(r.Context(), pathParam(r, "id"), caller, req.Destination)
	if err != nil {
		writeServiceError(w, r, h.logger, "claim winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Market:   newMarketView(rcpt.Market, h.clock.Now(), h.decimals),
		Position: newPositionView(rcpt.Position, h.decimals),
		Winnings: newAmount(rcpt.Winnings, h.decimals),
		Transfer: newTransferView(rcpt.Transfer, h.decimals),
	})
}

type feeResponse struct {
	Market   marketView   `json:"market"`
	Amount   amountView   `json:"amount"`
	Transfer transferView `json:"transfer"`
}

// CollectFees withdraws accrued fees to the market authority.
// POST /api/markets/{id}/fees/collect
func (h *WagerHandler) CollectFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req payoutRequest
	if _, err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rcpt, err := h.markets.CollectFees(r.Context(), pathParam(r, "id"), caller, req.Destination)
	if err != nil {
		writeServiceError(w, r, h.logger, "collect fees", err)
		return
	}
	writeJSON(w, http.StatusOK, feeResponse{
		Market:   newMarketView(rcpt.Market, h.clock.Now(), h.decimals),
		Amount:   newAmount(rcpt.Amount, h.decimals),
		Transfer: newTransferView(rcpt.Transfer, h.decimals),
	})
}
