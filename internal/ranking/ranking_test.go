package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
)

func addLeague(t *testing.T, ms *store.MemoryStore, id, status string, pnls ...float64) {
	t.Helper()
	ctx := context.Background()
	if err := ms.CreateLeague(ctx, &model.League{ID: id, Name: id, Status: status, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create league: %v", err)
	}
	for i, pnl := range pnls {
		err := ms.CreateMember(ctx, &model.Member{
			ID:       fmt.Sprintf("%s-m%d", id, i),
			LeagueID: id,
			UserID:   fmt.Sprintf("u%d", i),
			TotalPnL: decimal.NewFromFloat(pnl),
		})
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
	}
}

func ranks(t *testing.T, ms *store.MemoryStore, leagueID string) map[string]int {
	t.Helper()
	members, err := ms.ListMembersByLeague(context.Background(), leagueID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	out := make(map[string]int, len(members))
	for _, m := range members {
		out[m.ID] = m.Rank
	}
	return out
}

func TestRankLeague(t *testing.T) {
	ms := store.NewMemoryStore()
	addLeague(t, ms, "L", model.LeagueActive, -20, 150, 10, 150)

	n, err := NewEngine(ms, nil).RankLeague(context.Background(), "L")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 members updated, got %d", n)
	}

	got := ranks(t, ms, "L")
	want := map[string]int{"L-m1": 1, "L-m3": 2, "L-m2": 3, "L-m0": 4}
	for id, r := range want {
		if got[id] != r {
			t.Errorf("%s: expected rank %d, got %d", id, r, got[id])
		}
	}
}

func TestRankLeague_UnknownLeague(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := NewEngine(ms, nil).RankLeague(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRankLeague_Empty(t *testing.T) {
	ms := store.NewMemoryStore()
	addLeague(t, ms, "L", model.LeagueActive)
	n, err := NewEngine(ms, nil).RankLeague(context.Background(), "L")
	if err != nil || n != 0 {
		t.Errorf("expected 0 members and no error, got %d, %v", n, err)
	}
}

func TestRankAll_SkipsCompletedLeagues(t *testing.T) {
	ms := store.NewMemoryStore()
	addLeague(t, ms, "A", model.LeagueActive, 1, 2)
	addLeague(t, ms, "B", model.LeagueCompleted, 1, 2)
	addLeague(t, ms, "C", model.LeagueActive, 5)

	rep, err := NewEngine(ms, nil).RankAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.LeaguesRanked != 2 || rep.MembersUpdated != 3 || rep.Failures != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if r := ranks(t, ms, "B"); r["B-m0"] != 0 || r["B-m1"] != 0 {
		t.Errorf("completed league should be untouched, got %v", r)
	}
	if r := ranks(t, ms, "A"); r["A-m1"] != 1 || r["A-m0"] != 2 {
		t.Errorf("unexpected ranks for A: %v", r)
	}
}

func TestOrder_StableOnTies(t *testing.T) {
	members := []model.Member{
		{ID: "first", TotalPnL: decimal.Zero},
		{ID: "second", TotalPnL: decimal.Zero},
		{ID: "top", TotalPnL: decimal.NewFromInt(1)},
	}
	Order(members)
	if members[0].ID != "top" || members[1].ID != "first" || members[2].ID != "second" {
		t.Errorf("unexpected order: %s, %s, %s", members[0].ID, members[1].ID, members[2].ID)
	}
}
