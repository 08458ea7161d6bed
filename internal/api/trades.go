package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/polylabs/league-engine/internal/ledger"
	"github.com/polylabs/league-engine/internal/model"
)

// SubmitTrade handles POST /trades.
func (h *Handler) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req ledger.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.Trades.Process(r.Context(), req)
	if err != nil {
		fail(w, r, err, "failed to process trade")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"trade_id":    res.TradeID,
		"new_balance": res.NewBalance,
		"pnl":         res.PnL,
	})
}

// GetMemberPositions handles GET /members/{memberID}/positions.
func (h *Handler) GetMemberPositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := chi.URLParam(r, "memberID")

	if _, err := h.Store.GetMember(ctx, memberID); err != nil {
		fail(w, r, err, "failed to load member")
		return
	}
	positions, err := h.Store.ListPositionsByMember(ctx, memberID)
	if err != nil {
		fail(w, r, err, "failed to load positions")
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": memberID,
		"positions": positions,
	})
}

// GetMemberTrades handles GET /members/{memberID}/trades.
func (h *Handler) GetMemberTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberID := chi.URLParam(r, "memberID")

	if _, err := h.Store.GetMember(ctx, memberID); err != nil {
		fail(w, r, err, "failed to load member")
		return
	}
	trades, err := h.Store.ListTradesByMember(ctx, memberID)
	if err != nil {
		fail(w, r, err, "failed to load trades")
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": memberID,
		"trades":    trades,
	})
}
