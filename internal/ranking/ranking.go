// Package ranking orders league members by total profit and persists their
// rank.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
	"github.com/polylabs/league-engine/internal/stream"
)

// Engine ranks leagues.
type Engine struct {
	store  store.Store
	events stream.Publisher
}

// NewEngine creates an Engine. events may be nil.
func NewEngine(st store.Store, events stream.Publisher) *Engine {
	return &Engine{store: st, events: events}
}

// Report summarizes a ranking pass over all active leagues.
type Report struct {
	LeaguesRanked  int `json:"leagues_ranked"`
	MembersUpdated int `json:"members_updated"`
	Failures       int `json:"failures"`
}

// RankLeague assigns ranks 1..N by total pnl descending. Ties keep join
// order. Returns the number of members updated.
func (e *Engine) RankLeague(ctx context.Context, leagueID string) (int, error) {
	if _, err := e.store.GetLeague(ctx, leagueID); err != nil {
		return 0, fmt.Errorf("load league %s: %w", leagueID, err)
	}
	members, err := e.store.ListMembersByLeague(ctx, leagueID)
	if err != nil {
		return 0, fmt.Errorf("list members: %w", err)
	}

	Order(members)
	for i, m := range members {
		if err := e.store.UpdateMemberRank(ctx, m.ID, i+1); err != nil {
			return i, fmt.Errorf("update rank for member %s: %w", m.ID, err)
		}
	}

	slog.Debug("league ranked", "league_id", leagueID, "members", len(members))
	stream.Publish(e.events, stream.Event{
		Type:     stream.RankingsUpdated,
		LeagueID: leagueID,
	})
	return len(members), nil
}

// RankAll ranks every active league. A failing league is logged and counted.
func (e *Engine) RankAll(ctx context.Context) (Report, error) {
	var rep Report

	leagues, err := e.store.ListLeaguesByStatus(ctx, model.LeagueActive)
	if err != nil {
		return rep, fmt.Errorf("list active leagues: %w", err)
	}

	for _, l := range leagues {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		n, err := e.RankLeague(ctx, l.ID)
		rep.MembersUpdated += n
		if err != nil {
			rep.Failures++
			slog.Error("ranking: league failed", "league_id", l.ID, "err", err)
			continue
		}
		rep.LeaguesRanked++
	}

	slog.Info("ranking pass complete",
		"leagues_ranked", rep.LeaguesRanked,
		"members_updated", rep.MembersUpdated,
		"failures", rep.Failures,
	)
	return rep, nil
}

// Order sorts members in place by total pnl descending, stable on ties.
func Order(members []model.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].TotalPnL.GreaterThan(members[j].TotalPnL)
	})
}
