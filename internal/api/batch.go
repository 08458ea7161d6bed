package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/polylabs/league-engine/internal/jobs"
	"github.com/polylabs/league-engine/internal/model"
)

// UpdatePrices handles POST /positions/update-prices. The refresh runs in
// the background.
func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	h.Runner.Dispatch(jobs.UpdatePrices, func(ctx context.Context) error {
		_, err := h.Settlement.RefreshPrices(ctx)
		return err
	})
	started(w, "Position price update started")
}

// SettlePositions handles POST /positions/settle.
func (h *Handler) SettlePositions(w http.ResponseWriter, r *http.Request) {
	h.Runner.Dispatch(jobs.SettlePositions, func(ctx context.Context) error {
		_, err := h.Settlement.Settle(ctx)
		return err
	})
	started(w, "Settlement process started")
}

// UpdateAllRankings handles POST /leagues/update-all-rankings.
func (h *Handler) UpdateAllRankings(w http.ResponseWriter, r *http.Request) {
	h.Runner.Dispatch(jobs.UpdateRankings, func(ctx context.Context) error {
		_, err := h.Rankings.RankAll(ctx)
		return err
	})
	started(w, "Ranking updates started")
}

// CheckAchievements handles POST /achievements/check/{userID}?league_id=.
func (h *Handler) CheckAchievements(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	leagueID := r.URL.Query().Get("league_id")

	awarded, err := h.Achievements.Check(r.Context(), userID, leagueID)
	if err != nil {
		fail(w, r, err, "failed to check achievements")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements_awarded": awarded,
	})
}

// GetUserAchievements handles GET /users/{userID}/achievements.
func (h *Handler) GetUserAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListAchievementsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err, "failed to load achievements")
		return
	}
	if list == nil {
		list = []model.Achievement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements": list,
	})
}

// TasksStatus handles GET /tasks/status.
func (h *Handler) TasksStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": jobs.Tasks(),
		"note":  "These endpoints can be triggered by an external scheduler or by the built-in one (scheduler.enabled)",
	})
}
