package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/ledger"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/settlement"
	"github.com/polylabs/league-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeMarkets serves snapshots from a map; missing IDs fail.
type fakeMarkets struct {
	markets map[string]model.MarketSnapshot
	calls   int
}

func (f *fakeMarkets) FetchMarket(_ context.Context, id string) (*model.MarketSnapshot, error) {
	f.calls++
	m, ok := f.markets[id]
	if !ok {
		return nil, errors.New("upstream unavailable")
	}
	return &m, nil
}

func resolved(id, winner string) model.MarketSnapshot {
	return model.MarketSnapshot{
		ID:     id,
		Closed: true,
		Tokens: []model.OutcomeToken{
			{Outcome: "Yes", Winner: winner == "Yes"},
			{Outcome: "No", Winner: winner == "No"},
		},
	}
}

func seed(t *testing.T, ms *store.MemoryStore, memberID string, balance float64) {
	t.Helper()
	err := ms.CreateMember(context.Background(), &model.Member{
		ID:             memberID,
		LeagueID:       "league-1",
		UserID:         "user-" + memberID,
		CurrentBalance: d(balance),
		JoinedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}
}

func openPosition(t *testing.T, ms *store.MemoryStore, id, memberID, marketID, outcome string, shares, entry float64) {
	t.Helper()
	err := ms.CreatePosition(context.Background(), &model.Position{
		ID:           id,
		MemberID:     memberID,
		MarketID:     marketID,
		Outcome:      outcome,
		Shares:       d(shares),
		EntryPrice:   d(entry),
		CurrentPrice: d(entry),
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
}

func TestSettle_LosingPosition(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 985)
	openPosition(t, ms, "p1", "m1", "mkt", "yes", 50, 0.3)

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{"mkt": resolved("mkt", "No")}}
	eng := settlement.NewEngine(ms, src, nil)
	ctx := context.Background()

	rep, err := eng.Settle(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PositionsSettled != 1 || rep.MarketsResolved != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}

	trades, _ := ms.ListTradesByMember(ctx, "m1")
	if len(trades) != 1 {
		t.Fatalf("expected 1 settle trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.TradeType != model.TradeSettle || !tr.Price.IsZero() || !tr.TotalValue.IsZero() {
		t.Errorf("unexpected settle trade: %+v", tr)
	}
	if tr.PnL == nil || !tr.PnL.Equal(d(-15)) {
		t.Errorf("expected pnl -15, got %v", tr.PnL)
	}

	m, _ := ms.GetMember(ctx, "m1")
	if !m.CurrentBalance.Equal(d(985)) {
		t.Errorf("balance should be unchanged on a loss, got %s", m.CurrentBalance)
	}
	if !m.TotalPnL.Equal(d(-15)) || m.TotalTrades != 1 {
		t.Errorf("unexpected member stats: %+v", m)
	}

	positions, _ := ms.ListOpenPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("settled position should be removed")
	}
}

func TestSettle_WinningPosition(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 100)
	openPosition(t, ms, "p1", "m1", "mkt", "no", 100, 0.25)

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{"mkt": resolved("mkt", "No")}}
	eng := settlement.NewEngine(ms, src, nil)
	ctx := context.Background()

	if _, err := eng.Settle(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, _ := ms.GetMember(ctx, "m1")
	// 100 + 100 shares * 1
	if !m.CurrentBalance.Equal(d(200)) {
		t.Errorf("expected balance 200, got %s", m.CurrentBalance)
	}
	if !m.TotalPnL.Equal(d(75)) {
		t.Errorf("expected pnl 75, got %s", m.TotalPnL)
	}
	if !m.WinRate.Equal(d(100)) {
		t.Errorf("expected win_rate 100, got %s", m.WinRate)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 0)
	openPosition(t, ms, "p1", "m1", "mkt", "yes", 10, 0.5)

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{"mkt": resolved("mkt", "Yes")}}
	eng := settlement.NewEngine(ms, src, nil)
	ctx := context.Background()

	eng.Settle(ctx)
	rep, err := eng.Settle(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PositionsSettled != 0 {
		t.Errorf("second pass should settle nothing, got %d", rep.PositionsSettled)
	}

	m, _ := ms.GetMember(ctx, "m1")
	if !m.CurrentBalance.Equal(d(10)) || m.TotalTrades != 1 {
		t.Errorf("payout must happen once: %+v", m)
	}
}

func TestSettle_SkipsUnresolvedAndAmbiguous(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 0)
	openPosition(t, ms, "p1", "m1", "open", "yes", 10, 0.5)
	openPosition(t, ms, "p2", "m1", "nowinner", "yes", 10, 0.5)
	openPosition(t, ms, "p3", "m1", "twowinners", "yes", 10, 0.5)

	two := resolved("twowinners", "Yes")
	two.Tokens[1].Winner = true

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{
		"open":       {ID: "open", Closed: false, Tokens: []model.OutcomeToken{{Outcome: "Yes", Winner: true}}},
		"nowinner":   {ID: "nowinner", Closed: true, Tokens: []model.OutcomeToken{{Outcome: "Yes"}, {Outcome: "No"}}},
		"twowinners": two,
	}}
	eng := settlement.NewEngine(ms, src, nil)

	rep, err := eng.Settle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.MarketsChecked != 3 || rep.MarketsResolved != 0 || rep.PositionsSettled != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
	positions, _ := ms.ListOpenPositions(context.Background())
	if len(positions) != 3 {
		t.Errorf("no position should be touched, got %d open", len(positions))
	}
}

func TestSettle_FetchFailureIsIsolated(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 0)
	openPosition(t, ms, "p1", "m1", "broken", "yes", 10, 0.5)
	openPosition(t, ms, "p2", "m1", "good", "yes", 10, 0.5)
	openPosition(t, ms, "p3", "m1", "good", "no", 4, 0.5)

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{"good": resolved("good", "Yes")}}
	eng := settlement.NewEngine(ms, src, nil)

	rep, err := eng.Settle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Failures != 1 || rep.PositionsSettled != 2 {
		t.Errorf("unexpected report: %+v", rep)
	}
	// one fetch per market, not per position
	if src.calls != 2 {
		t.Errorf("expected 2 market fetches, got %d", src.calls)
	}
}

func TestRefreshPrices(t *testing.T) {
	ms := store.NewMemoryStore()
	seed(t, ms, "m1", 0)
	openPosition(t, ms, "p1", "m1", "mkt", "yes", 100, 0.40)
	openPosition(t, ms, "p2", "m1", "mkt", "no", 10, 0.50)
	openPosition(t, ms, "p3", "m1", "gone", "yes", 10, 0.50)

	src := &fakeMarkets{markets: map[string]model.MarketSnapshot{
		"mkt": {ID: "mkt", YesPrice: d(0.55), NoPrice: d(0.45)},
	}}
	eng := settlement.NewEngine(ms, src, nil)
	ctx := context.Background()

	rep, err := eng.RefreshPrices(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PositionsUpdated != 2 || rep.Failures != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}

	positions, _ := ms.ListPositionsByMember(ctx, "m1")
	byID := map[string]model.Position{}
	for _, p := range positions {
		byID[p.ID] = p
	}
	if p := byID["p1"]; !p.CurrentPrice.Equal(d(0.55)) || !p.UnrealizedPnL.Equal(d(15)) {
		t.Errorf("unexpected yes position: price=%s pnl=%s", p.CurrentPrice, p.UnrealizedPnL)
	}
	if p := byID["p2"]; !p.CurrentPrice.Equal(d(0.45)) || !p.UnrealizedPnL.Equal(d(-0.5)) {
		t.Errorf("unexpected no position: price=%s pnl=%s", p.CurrentPrice, p.UnrealizedPnL)
	}
	if p := byID["p3"]; !p.CurrentPrice.Equal(d(0.50)) {
		t.Errorf("failed market should be left alone, got %s", p.CurrentPrice)
	}
}

// sellingMarkets runs a trade while the engine waits on the market fetch,
// the way a member's sell can land in the middle of a batch pass.
type sellingMarkets struct {
	snap  model.MarketSnapshot
	trade func()
}

func (s *sellingMarkets) FetchMarket(_ context.Context, _ string) (*model.MarketSnapshot, error) {
	if s.trade != nil {
		s.trade()
		s.trade = nil
	}
	snap := s.snap
	return &snap, nil
}

// seedTrader creates a league and member that can trade through the ledger.
func seedTrader(t *testing.T, ms *store.MemoryStore, balance float64) *ledger.Processor {
	t.Helper()
	err := ms.CreateLeague(context.Background(), &model.League{
		ID:              "league-1",
		Name:            "Test League",
		CommissionerID:  "user-m1",
		IsPublic:        true,
		StartingCapital: d(balance),
		ScoringType:     model.ScoringStandard,
		Status:          model.LeagueActive,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed league: %v", err)
	}
	seed(t, ms, "m1", balance)
	return ledger.NewProcessor(ms, nil)
}

func trade(t *testing.T, p *ledger.Processor, tradeType string, shares, price float64) {
	t.Helper()
	_, err := p.Process(context.Background(), ledger.Request{
		MemberID:  "m1",
		MarketID:  "mkt",
		TradeType: tradeType,
		Outcome:   "yes",
		Shares:    d(shares),
		Price:     d(price),
	})
	if err != nil {
		t.Fatalf("%s failed: %v", tradeType, err)
	}
}

func TestRefreshPrices_KeepsSharesSoldDuringPass(t *testing.T) {
	ms := store.NewMemoryStore()
	p := seedTrader(t, ms, 1000)
	trade(t, p, "buy", 100, 0.40)

	src := &sellingMarkets{
		snap:  model.MarketSnapshot{ID: "mkt", YesPrice: d(0.60), NoPrice: d(0.40)},
		trade: func() { trade(t, p, "sell", 60, 0.50) },
	}
	ctx := context.Background()
	if _, err := settlement.NewEngine(ms, src, nil).RefreshPrices(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions, _ := ms.ListPositionsByMember(ctx, "m1")
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	pos := positions[0]
	if !pos.Shares.Equal(d(40)) {
		t.Errorf("expected 40 shares after selling 60 of 100, got %s", pos.Shares)
	}
	if !pos.CurrentPrice.Equal(d(0.60)) || !pos.UnrealizedPnL.Equal(d(8)) {
		t.Errorf("expected price 0.60 and pnl 8, got price=%s pnl=%s", pos.CurrentPrice, pos.UnrealizedPnL)
	}
}

func TestRefreshPrices_PositionClosedDuringPass(t *testing.T) {
	ms := store.NewMemoryStore()
	p := seedTrader(t, ms, 1000)
	trade(t, p, "buy", 100, 0.40)

	src := &sellingMarkets{
		snap:  model.MarketSnapshot{ID: "mkt", YesPrice: d(0.60), NoPrice: d(0.40)},
		trade: func() { trade(t, p, "sell", 100, 0.50) },
	}
	rep, err := settlement.NewEngine(ms, src, nil).RefreshPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Failures != 0 || rep.PositionsUpdated != 0 {
		t.Errorf("a closed position is neither a failure nor an update: %+v", rep)
	}
	positions, _ := ms.ListOpenPositions(context.Background())
	if len(positions) != 0 {
		t.Errorf("closed position must not reappear, got %d", len(positions))
	}
}

func TestSettle_PaysClaimedSharesAfterPartialSell(t *testing.T) {
	ms := store.NewMemoryStore()
	p := seedTrader(t, ms, 1000)
	trade(t, p, "buy", 100, 0.40) // balance 960

	src := &sellingMarkets{
		snap:  resolved("mkt", "Yes"),
		trade: func() { trade(t, p, "sell", 60, 0.50) }, // balance 990, 40 left
	}
	ctx := context.Background()
	rep, err := settlement.NewEngine(ms, src, nil).Settle(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PositionsSettled != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	m, _ := ms.GetMember(ctx, "m1")
	if !m.CurrentBalance.Equal(d(1030)) {
		t.Errorf("expected balance 1030 (40 winning shares), got %s", m.CurrentBalance)
	}

	trades, _ := ms.ListTradesByMember(ctx, "m1")
	last := trades[len(trades)-1]
	if last.TradeType != model.TradeSettle || !last.Shares.Equal(d(40)) {
		t.Errorf("expected settle trade for 40 shares, got %+v", last)
	}
	if last.PnL == nil || !last.PnL.Equal(d(24)) {
		t.Errorf("expected settle pnl 24, got %v", last.PnL)
	}
}
