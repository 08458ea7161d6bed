// Package ledger validates and applies a single buy or sell for a league
// member: balance checks, position open/reduce/close, trade history and the
// member's running stats.
//
// All monetary values use shopspring/decimal, never float64 for money.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/metrics"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
	"github.com/polylabs/league-engine/internal/stream"
)

var (
	ErrInvalidTrade        = errors.New("ledger: invalid trade")
	ErrMemberNotFound      = errors.New("ledger: member not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrPositionNotFound    = errors.New("ledger: no open position to sell")
)

var hundred = decimal.NewFromInt(100)

// Request is one trade submission.
type Request struct {
	MemberID       string          `json:"league_member_id"`
	MarketID       string          `json:"market_id"`
	MarketSlug     string          `json:"market_slug"`
	MarketQuestion string          `json:"market_question"`
	TradeType      string          `json:"trade_type"` // buy | sell
	Outcome        string          `json:"outcome"`    // yes | no
	Shares         decimal.Decimal `json:"shares"`
	Price          decimal.Decimal `json:"price"`
}

// Result is returned for an accepted trade.
type Result struct {
	TradeID    string           `json:"trade_id"`
	NewBalance decimal.Decimal  `json:"new_balance"`
	PnL        *decimal.Decimal `json:"pnl"`
}

// Processor applies trades. Trades are serialized (single-instance); for
// horizontal scaling this needs row-level locking in the store.
type Processor struct {
	store  store.Store
	events stream.Publisher
	mu     sync.Mutex
	now    func() time.Time
}

// NewProcessor creates a Processor. events may be nil.
func NewProcessor(st store.Store, events stream.Publisher) *Processor {
	return &Processor{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Validate normalizes and checks a request without touching the store.
func Validate(req *Request) error {
	req.TradeType = strings.ToLower(strings.TrimSpace(req.TradeType))
	req.Outcome = strings.ToLower(strings.TrimSpace(req.Outcome))

	switch {
	case req.MemberID == "":
		return fmt.Errorf("%w: league_member_id is required", ErrInvalidTrade)
	case req.MarketID == "":
		return fmt.Errorf("%w: market_id is required", ErrInvalidTrade)
	case req.TradeType != model.TradeBuy && req.TradeType != model.TradeSell:
		return fmt.Errorf("%w: trade_type must be buy or sell", ErrInvalidTrade)
	case req.Outcome != model.OutcomeYes && req.Outcome != model.OutcomeNo:
		return fmt.Errorf("%w: outcome must be yes or no", ErrInvalidTrade)
	case !req.Shares.IsPositive():
		return fmt.Errorf("%w: shares must be positive", ErrInvalidTrade)
	case !req.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", ErrInvalidTrade)
	}
	return nil
}

// Process applies one trade. Rejections happen before any write. When a
// later write fails, the position change and member stats already written
// are reversed before the error is returned.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(&req); err != nil {
		metrics.TradeRejections.WithLabelValues("invalid").Inc()
		return nil, err
	}

	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	member, err := p.store.GetMember(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, req.MemberID)
		}
		return nil, fmt.Errorf("load member: %w", err)
	}

	history, err := p.store.ListTradesByMember(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("load trade history: %w", err)
	}

	var (
		totalValue = req.Shares.Mul(req.Price)
		balance    = member.CurrentBalance
		pnl        *decimal.Decimal
		undo       undoFunc
	)

	switch req.TradeType {
	case model.TradeBuy:
		if err := p.checkBuy(ctx, member, req, totalValue); err != nil {
			return nil, err
		}
		if undo, err = p.openPosition(ctx, req); err != nil {
			return nil, err
		}
		balance = balance.Sub(totalValue)

	case model.TradeSell:
		var realized decimal.Decimal
		if realized, undo, err = p.closePosition(ctx, req); err != nil {
			return nil, err
		}
		pnl = &realized
		balance = balance.Add(totalValue)
	}

	trade := &model.Trade{
		ID:             uuid.New().String(),
		MemberID:       member.ID,
		MarketID:       req.MarketID,
		MarketSlug:     req.MarketSlug,
		MarketQuestion: req.MarketQuestion,
		TradeType:      req.TradeType,
		Outcome:        req.Outcome,
		Shares:         req.Shares,
		Price:          req.Price,
		TotalValue:     totalValue,
		PnL:            pnl,
		CreatedAt:      p.now(),
	}

	totalPnL := member.TotalPnL
	if pnl != nil {
		totalPnL = totalPnL.Add(*pnl)
	}
	stats := store.MemberStats{
		CurrentBalance: balance,
		TotalPnL:       totalPnL,
		TotalTrades:    member.TotalTrades + 1,
		WinRate:        WinRate(append(history, *trade)),
	}
	if err := p.store.UpdateMemberStats(ctx, member.ID, stats); err != nil {
		p.compensate(ctx, trade.ID, undo)
		return nil, fmt.Errorf("update member: %w", err)
	}
	if err := p.store.InsertTrade(ctx, trade); err != nil {
		p.compensate(ctx, trade.ID, p.restoreStats(member), undo)
		return nil, fmt.Errorf("record trade: %w", err)
	}

	metrics.TradesTotal.WithLabelValues(req.TradeType).Inc()
	metrics.TradeLatency.WithLabelValues(req.TradeType).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", trade.ID,
		"member_id", member.ID,
		"market_id", req.MarketID,
		"type", req.TradeType,
		"outcome", req.Outcome,
		"shares", req.Shares.String(),
		"price", req.Price.String(),
		"new_balance", balance.String(),
	)

	ev := stream.Event{
		Type:      stream.TradeExecuted,
		LeagueID:  member.LeagueID,
		MemberID:  member.ID,
		UserID:    member.UserID,
		MarketID:  req.MarketID,
		TradeType: req.TradeType,
		Outcome:   req.Outcome,
		Shares:    req.Shares.String(),
		Price:     req.Price.String(),
		Balance:   balance.String(),
	}
	if pnl != nil {
		ev.PnL = pnl.String()
	}
	stream.Publish(p.events, ev)

	return &Result{TradeID: trade.ID, NewBalance: balance, PnL: pnl}, nil
}

func (p *Processor) checkBuy(ctx context.Context, member *model.Member, req Request, totalValue decimal.Decimal) error {
	if totalValue.GreaterThan(member.CurrentBalance) {
		metrics.TradeRejections.WithLabelValues("insufficient_balance").Inc()
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientBalance, totalValue, member.CurrentBalance)
	}

	league, err := p.store.GetLeague(ctx, member.LeagueID)
	if err != nil {
		return fmt.Errorf("load league: %w", err)
	}
	limit := NewPositionLimit(league)
	if limit.Max.IsPositive() {
		open, err := p.store.ListPositionsByMember(ctx, member.ID)
		if err != nil {
			return fmt.Errorf("load positions: %w", err)
		}
		if err := limit.Check(req.MarketID, totalValue, open); err != nil {
			metrics.TradeRejections.WithLabelValues("position_limit").Inc()
			return fmt.Errorf("%w: max %s", err, limit.Max)
		}
	}
	return nil
}

// undoFunc reverses a position write made earlier in a failed trade.
type undoFunc func(ctx context.Context) error

// compensate runs undo steps in order after a later write failed. Errors
// are logged; the caller reports the original failure.
func (p *Processor) compensate(ctx context.Context, tradeID string, steps ...undoFunc) {
	ctx = context.WithoutCancel(ctx)
	for _, step := range steps {
		if step == nil {
			continue
		}
		if err := step(ctx); err != nil {
			slog.Error("trade compensation failed", "trade_id", tradeID, "err", err)
		}
	}
}

func (p *Processor) restoreStats(member *model.Member) undoFunc {
	prev := store.MemberStats{
		CurrentBalance: member.CurrentBalance,
		TotalPnL:       member.TotalPnL,
		TotalTrades:    member.TotalTrades,
		WinRate:        member.WinRate,
	}
	return func(ctx context.Context) error {
		return p.store.UpdateMemberStats(ctx, member.ID, prev)
	}
}

// openPosition always inserts a new row; buys never merge into an
// existing position.
func (p *Processor) openPosition(ctx context.Context, req Request) (undoFunc, error) {
	now := p.now()
	pos := &model.Position{
		ID:             uuid.New().String(),
		MemberID:       req.MemberID,
		MarketID:       req.MarketID,
		MarketSlug:     req.MarketSlug,
		MarketQuestion: req.MarketQuestion,
		Outcome:        req.Outcome,
		Shares:         req.Shares,
		EntryPrice:     req.Price,
		CurrentPrice:   req.Price,
		UnrealizedPnL:  decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.CreatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	return func(ctx context.Context) error {
		_, err := p.store.DeletePosition(ctx, pos.ID)
		return err
	}, nil
}

// closePosition reduces or deletes the oldest matching position and
// returns the realized pnl. Selling more than is held closes the position
// and still realizes pnl on the full requested quantity.
func (p *Processor) closePosition(ctx context.Context, req Request) (decimal.Decimal, undoFunc, error) {
	pos, err := p.store.FindPosition(ctx, req.MemberID, req.MarketID, req.Outcome)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.TradeRejections.WithLabelValues("no_position").Inc()
			return decimal.Zero, nil, fmt.Errorf("%w: %s %s", ErrPositionNotFound, req.MarketID, req.Outcome)
		}
		return decimal.Zero, nil, fmt.Errorf("load position: %w", err)
	}

	realized := req.Price.Sub(pos.EntryPrice).Mul(req.Shares)

	if req.Shares.GreaterThanOrEqual(pos.Shares) {
		removed, err := p.store.DeletePosition(ctx, pos.ID)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("close position: %w", err)
		}
		return realized, func(ctx context.Context) error {
			return p.store.CreatePosition(ctx, removed)
		}, nil
	}

	before := *pos
	remaining := pos.Shares.Sub(req.Shares)
	pos.Shares = remaining
	pos.UnrealizedPnL = pos.CurrentPrice.Sub(pos.EntryPrice).Mul(remaining)
	pos.UpdatedAt = p.now()
	if err := p.store.UpdatePosition(ctx, pos); err != nil {
		return decimal.Zero, nil, fmt.Errorf("reduce position: %w", err)
	}
	return realized, func(ctx context.Context) error {
		return p.store.UpdatePosition(ctx, &before)
	}, nil
}

// WinRate is the percentage of completed trades (sells and settlements)
// with positive pnl, rounded to 2 decimals. Zero when nothing is completed.
func WinRate(trades []model.Trade) decimal.Decimal {
	completed, profitable := 0, 0
	for _, t := range trades {
		if !t.Completed() {
			continue
		}
		completed++
		if t.PnL != nil && t.PnL.IsPositive() {
			profitable++
		}
	}
	if completed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(profitable)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(completed))).
		Round(2)
}
