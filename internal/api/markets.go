package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/category"
	"github.com/polylabs/league-engine/internal/gamma"
	"github.com/polylabs/league-engine/internal/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500

	browseFetchLimit   = 500
	categoryFetchLimit = 1000
)

// ListMarkets handles GET /markets. q searches by slug, id or text; without
// q the active markets are browsed. category filters either result before
// pagination, and count is the total before pagination.
func (h *Handler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		writeError(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}
	cat := strings.ToLower(strings.TrimSpace(query.Get("category")))
	q := strings.TrimSpace(query.Get("q"))

	var markets []model.MarketSnapshot
	if q != "" {
		markets, err = h.Markets.Search(r.Context(), q)
	} else {
		markets, err = h.Markets.FetchMarkets(r.Context(), gamma.ListFilter{
			Limit:  fetchLimit(cat, limit, offset),
			Active: true,
		})
	}
	if err != nil {
		fail(w, r, err, "failed to load markets")
		return
	}

	markets = category.Filter(markets, cat)
	total := len(markets)
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": page(markets, offset, limit),
		"count":   total,
	})
}

// fetchLimit sizes the upstream browse request so category filtering and
// deep pages still have enough candidates.
func fetchLimit(cat string, limit, offset int) int {
	n := browseFetchLimit
	if cat != "" {
		n = categoryFetchLimit
	}
	if limit+offset+100 > n {
		n = limit + offset + 100
	}
	return n
}

func page(markets []model.MarketSnapshot, offset, limit int) []model.MarketSnapshot {
	if offset >= len(markets) {
		return []model.MarketSnapshot{}
	}
	end := min(offset+limit, len(markets))
	return markets[offset:end]
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// GetMarket handles GET /markets/{marketID}.
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.Markets.FetchMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		fail(w, r, err, "failed to load market")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// PriceResponse is the normalized price view of a market.
type PriceResponse struct {
	MarketID  string          `json:"market_id"`
	YesPrice  decimal.Decimal `json:"yes_price"`
	NoPrice   decimal.Decimal `json:"no_price"`
	Volume    decimal.Decimal `json:"volume"`
	Liquidity decimal.Decimal `json:"liquidity"`
}

// GetPrice handles GET /markets/{marketID}/price.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	m, err := h.Markets.FetchMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		fail(w, r, err, "failed to load market")
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{
		MarketID:  m.ID,
		YesPrice:  m.YesPrice,
		NoPrice:   m.NoPrice,
		Volume:    m.Volume,
		Liquidity: m.Liquidity,
	})
}

// GetMarketHistory handles GET /markets/{marketID}/history?interval=.
func (h *Handler) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = gamma.DefaultInterval
	}

	points, err := h.Markets.FetchPriceHistory(r.Context(), marketID, interval)
	if err != nil {
		fail(w, r, err, "failed to get market history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"interval":  interval,
		"history":   points,
	})
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": append([]string{category.All}, category.Names()...),
	})
}
