// Package api exposes the league engine over HTTP with chi handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/polylabs/league-engine/internal/achievement"
	"github.com/polylabs/league-engine/internal/gamma"
	"github.com/polylabs/league-engine/internal/jobs"
	"github.com/polylabs/league-engine/internal/league"
	"github.com/polylabs/league-engine/internal/ledger"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/ranking"
	"github.com/polylabs/league-engine/internal/settlement"
	"github.com/polylabs/league-engine/internal/store"
)

// MarketData is the read side of the market-data gateway. Satisfied by
// *gamma.Client.
type MarketData interface {
	FetchMarket(ctx context.Context, id string) (*model.MarketSnapshot, error)
	FetchMarkets(ctx context.Context, f gamma.ListFilter) ([]model.MarketSnapshot, error)
	Search(ctx context.Context, query string) ([]model.MarketSnapshot, error)
	FetchPriceHistory(ctx context.Context, marketID, interval string) ([]model.PricePoint, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Store        store.Store
	Markets      MarketData
	Leagues      *league.Service
	Trades       *ledger.Processor
	Settlement   *settlement.Engine
	Rankings     *ranking.Engine
	Achievements *achievement.Checker
	Runner       *jobs.Runner
}

// Handler serves the /api/v1 routes.
type Handler struct {
	Deps
}

// New creates a Handler.
func New(d Deps) *Handler {
	return &Handler{Deps: d}
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tasks/status", h.TasksStatus)
	r.Get("/categories", h.ListCategories)

	r.Post("/leagues", h.CreateLeague)
	r.Post("/leagues/join", h.JoinLeague)
	r.Post("/leagues/update-all-rankings", h.UpdateAllRankings)
	r.Get("/leagues/{leagueID}", h.GetLeague)
	r.Get("/leagues/{leagueID}/standings", h.GetStandings)
	r.Post("/leagues/{leagueID}/update-rankings", h.UpdateLeagueRankings)

	r.Get("/markets", h.ListMarkets)
	r.Get("/markets/{marketID}", h.GetMarket)
	r.Get("/markets/{marketID}/price", h.GetPrice)
	r.Get("/markets/{marketID}/history", h.GetMarketHistory)

	r.Post("/trades", h.SubmitTrade)
	r.Get("/members/{memberID}/positions", h.GetMemberPositions)
	r.Get("/members/{memberID}/trades", h.GetMemberTrades)

	r.Post("/positions/update-prices", h.UpdatePrices)
	r.Post("/positions/settle", h.SettlePositions)

	r.Post("/achievements/check/{userID}", h.CheckAchievements)
	r.Get("/users/{userID}/achievements", h.GetUserAchievements)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidTrade),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrPositionLimit),
		errors.Is(err, league.ErrInvalidLeague),
		errors.Is(err, league.ErrLeagueClosed),
		errors.Is(err, league.ErrNotJoinable),
		errors.Is(err, gamma.ErrInvalidInterval):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrMemberNotFound),
		errors.Is(err, ledger.ErrPositionNotFound),
		errors.Is(err, gamma.ErrMarketNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, league.ErrAlreadyMember),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, gamma.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// replaced by fallback.
func fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(fallback, "path", r.URL.Path, "err", err)
		writeError(w, fallback, status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func started(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "message": message})
}
