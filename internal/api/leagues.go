package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/polylabs/league-engine/internal/league"
	"github.com/polylabs/league-engine/internal/model"
)

// CreateLeague handles POST /leagues.
func (h *Handler) CreateLeague(w http.ResponseWriter, r *http.Request) {
	var req league.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	l, m, err := h.Leagues.Create(r.Context(), req)
	if err != nil {
		fail(w, r, err, "failed to create league")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success",
		"league": l,
		"member": m,
	})
}

// JoinLeague handles POST /leagues/join.
func (h *Handler) JoinLeague(w http.ResponseWriter, r *http.Request) {
	var req league.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	l, m, err := h.Leagues.Join(r.Context(), req)
	if err != nil {
		fail(w, r, err, "failed to join league")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success",
		"league": l,
		"member": m,
	})
}

// GetLeague handles GET /leagues/{leagueID}. The invite code is never
// served here; it reaches players only through the commissioner.
func (h *Handler) GetLeague(w http.ResponseWriter, r *http.Request) {
	l, err := h.Store.GetLeague(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		fail(w, r, err, "failed to load league")
		return
	}
	l.InviteCode = ""
	writeJSON(w, http.StatusOK, l)
}

// GetStandings handles GET /leagues/{leagueID}/standings. Unranked members
// (rank 0) sort last in join order.
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	leagueID := chi.URLParam(r, "leagueID")

	if _, err := h.Store.GetLeague(ctx, leagueID); err != nil {
		fail(w, r, err, "failed to load league")
		return
	}
	members, err := h.Store.ListMembersByLeague(ctx, leagueID)
	if err != nil {
		fail(w, r, err, "failed to load members")
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].Rank, members[j].Rank
		if a == 0 || b == 0 {
			return b == 0 && a != 0
		}
		return a < b
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"league_id": leagueID,
		"members":   members,
	})
}

// UpdateLeagueRankings handles POST /leagues/{leagueID}/update-rankings.
func (h *Handler) UpdateLeagueRankings(w http.ResponseWriter, r *http.Request) {
	n, err := h.Rankings.RankLeague(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		fail(w, r, err, "failed to update rankings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"members_updated": n,
	})
}
