// Package settlement pays out open positions on resolved markets and keeps
// open positions marked to the latest market prices.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/ledger"
	"github.com/polylabs/league-engine/internal/metrics"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
	"github.com/polylabs/league-engine/internal/stream"
)

// MarketSource fetches a market snapshot. Satisfied by *gamma.Client.
type MarketSource interface {
	FetchMarket(ctx context.Context, id string) (*model.MarketSnapshot, error)
}

// Engine runs settlement and price refresh passes. It holds no state
// between runs.
type Engine struct {
	store   store.Store
	markets MarketSource
	events  stream.Publisher
	now     func() time.Time
}

// NewEngine creates an Engine. events may be nil.
func NewEngine(st store.Store, markets MarketSource, events stream.Publisher) *Engine {
	return &Engine{
		store:   st,
		markets: markets,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Report summarizes a settlement pass.
type Report struct {
	MarketsChecked   int `json:"markets_checked"`
	MarketsResolved  int `json:"markets_resolved"`
	PositionsSettled int `json:"positions_settled"`
	Skipped          int `json:"skipped"`
	Failures         int `json:"failures"`
}

// Settle pays out every open position on a market that has closed with
// exactly one winning outcome. Failures on one market or position are
// logged and never stop the pass. A position already claimed by a
// concurrent run is skipped, so running Settle twice pays out once.
func (e *Engine) Settle(ctx context.Context) (Report, error) {
	var rep Report

	positions, err := e.store.ListOpenPositions(ctx)
	if err != nil {
		return rep, fmt.Errorf("list open positions: %w", err)
	}

	for _, group := range groupByMarket(positions) {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.MarketsChecked++

		snap, err := e.markets.FetchMarket(ctx, group.marketID)
		if err != nil {
			rep.Failures++
			slog.Warn("settlement: market fetch failed", "market_id", group.marketID, "err", err)
			continue
		}
		winner, ok := snap.WinningOutcome()
		if !ok {
			continue
		}
		rep.MarketsResolved++

		for _, pos := range group.positions {
			settled, err := e.settlePosition(ctx, pos, winner)
			switch {
			case err != nil:
				rep.Failures++
				slog.Error("settlement: position failed",
					"position_id", pos.ID, "member_id", pos.MemberID, "market_id", pos.MarketID, "err", err)
			case settled:
				rep.PositionsSettled++
			default:
				rep.Skipped++
			}
		}
	}

	slog.Info("settlement pass complete",
		"markets_checked", rep.MarketsChecked,
		"markets_resolved", rep.MarketsResolved,
		"positions_settled", rep.PositionsSettled,
		"skipped", rep.Skipped,
		"failures", rep.Failures,
	)
	return rep, nil
}

// settlePosition claims the position by deleting it, then records the
// payout on the claimed row, which may hold fewer shares than the listing
// if the member sold in between. Returns false without error when the
// claim was lost.
func (e *Engine) settlePosition(ctx context.Context, listed model.Position, winner string) (bool, error) {
	pos, err := e.store.DeletePosition(ctx, listed.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("claim position: %w", err)
	}

	payout := decimal.Zero
	result := "lost"
	if strings.EqualFold(pos.Outcome, winner) {
		payout = decimal.NewFromInt(1)
		result = "won"
	}
	totalPayout := pos.Shares.Mul(payout)
	finalPnL := totalPayout.Sub(pos.CostBasis())

	trade := &model.Trade{
		ID:             uuid.New().String(),
		MemberID:       pos.MemberID,
		MarketID:       pos.MarketID,
		MarketSlug:     pos.MarketSlug,
		MarketQuestion: pos.MarketQuestion,
		TradeType:      model.TradeSettle,
		Outcome:        pos.Outcome,
		Shares:         pos.Shares,
		Price:          payout,
		TotalValue:     totalPayout,
		PnL:            &finalPnL,
		CreatedAt:      e.now(),
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return false, fmt.Errorf("record settlement (position %s already removed): %w", pos.ID, err)
	}

	member, err := e.store.GetMember(ctx, pos.MemberID)
	if err != nil {
		return false, fmt.Errorf("load member: %w", err)
	}
	history, err := e.store.ListTradesByMember(ctx, pos.MemberID)
	if err != nil {
		return false, fmt.Errorf("load trade history: %w", err)
	}

	stats := store.MemberStats{
		CurrentBalance: member.CurrentBalance.Add(totalPayout),
		TotalPnL:       member.TotalPnL.Add(finalPnL),
		TotalTrades:    member.TotalTrades + 1,
		WinRate:        ledger.WinRate(history),
	}
	if err := e.store.UpdateMemberStats(ctx, member.ID, stats); err != nil {
		return false, fmt.Errorf("update member: %w", err)
	}

	metrics.Settlements.WithLabelValues(result).Inc()
	metrics.TradesTotal.WithLabelValues(model.TradeSettle).Inc()

	slog.Info("position settled",
		"position_id", pos.ID,
		"member_id", member.ID,
		"market_id", pos.MarketID,
		"outcome", pos.Outcome,
		"winner", winner,
		"payout", totalPayout.String(),
		"pnl", finalPnL.String(),
	)
	stream.Publish(e.events, stream.Event{
		Type:     stream.PositionSettled,
		LeagueID: member.LeagueID,
		MemberID: member.ID,
		UserID:   member.UserID,
		MarketID: pos.MarketID,
		Outcome:  pos.Outcome,
		Shares:   pos.Shares.String(),
		Price:    payout.String(),
		PnL:      finalPnL.String(),
		Balance:  stats.CurrentBalance.String(),
	})
	return true, nil
}

type marketGroup struct {
	marketID  string
	positions []model.Position
}

// groupByMarket groups positions by market in first-seen order.
func groupByMarket(positions []model.Position) []marketGroup {
	index := make(map[string]int)
	var groups []marketGroup
	for _, p := range positions {
		i, ok := index[p.MarketID]
		if !ok {
			i = len(groups)
			index[p.MarketID] = i
			groups = append(groups, marketGroup{marketID: p.MarketID})
		}
		groups[i].positions = append(groups[i].positions, p)
	}
	return groups
}
