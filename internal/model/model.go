// Package model defines the core domain types shared across the league engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// League statuses.
const (
	LeagueActive    = "active"
	LeagueCompleted = "completed"
)

// Scoring types. Only standard is scored differently today; the others are
// stored for display.
const (
	ScoringStandard        = "standard"
	ScoringEarlyConviction = "early_conviction"
	ScoringRiskAdjusted    = "risk_adjusted"
)

// Trade types.
const (
	TradeBuy    = "buy"
	TradeSell   = "sell"
	TradeSettle = "settle"
)

// Outcomes.
const (
	OutcomeYes = "yes"
	OutcomeNo  = "no"
)

// League is a competition container with its own rules.
// Immutable after creation except Status.
type League struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description,omitempty" db:"description"`
	CommissionerID  string          `json:"commissioner_id" db:"commissioner_id"`
	IsPublic        bool            `json:"is_public" db:"is_public"`
	InviteCode      string          `json:"invite_code,omitempty" db:"invite_code"` // private leagues only
	StartingCapital decimal.Decimal `json:"starting_capital" db:"starting_capital"`
	MaxPositionSize decimal.Decimal `json:"max_position_size" db:"max_position_size"` // 0 = unlimited
	ScoringType     string          `json:"scoring_type" db:"scoring_type"`
	Status          string          `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Member is a user's participation record in one league.
type Member struct {
	ID             string          `json:"id" db:"id"`
	LeagueID       string          `json:"league_id" db:"league_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	TotalPnL       decimal.Decimal `json:"total_pnl" db:"total_pnl"`
	TotalTrades    int             `json:"total_trades" db:"total_trades"`
	WinRate        decimal.Decimal `json:"win_rate" db:"win_rate"` // percentage 0..100
	Rank           int             `json:"rank" db:"rank"`
	JoinedAt       time.Time       `json:"joined_at" db:"joined_at"`
}

// Position is an open holding of shares in one outcome of one market.
// Deleted when fully sold or settled.
type Position struct {
	ID             string          `json:"id" db:"id"`
	MemberID       string          `json:"member_id" db:"member_id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	MarketSlug     string          `json:"market_slug" db:"market_slug"`
	MarketQuestion string          `json:"market_question" db:"market_question"`
	Outcome        string          `json:"outcome" db:"outcome"`
	Shares         decimal.Decimal `json:"shares" db:"shares"`
	EntryPrice     decimal.Decimal `json:"entry_price" db:"entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price" db:"current_price"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CostBasis is shares * entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.Shares.Mul(p.EntryPrice)
}

// Trade is an immutable record of a buy, sell or settlement.
type Trade struct {
	ID             string           `json:"id" db:"id"`
	MemberID       string           `json:"member_id" db:"member_id"`
	MarketID       string           `json:"market_id" db:"market_id"`
	MarketSlug     string           `json:"market_slug" db:"market_slug"`
	MarketQuestion string           `json:"market_question" db:"market_question"`
	TradeType      string           `json:"trade_type" db:"trade_type"`
	Outcome        string           `json:"outcome" db:"outcome"`
	Shares         decimal.Decimal  `json:"shares" db:"shares"`
	Price          decimal.Decimal  `json:"price" db:"price"`
	TotalValue     decimal.Decimal  `json:"total_value" db:"total_value"`
	PnL            *decimal.Decimal `json:"pnl" db:"pnl"` // nil for buys
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// Completed reports whether the trade closed shares (sell or settle).
func (t Trade) Completed() bool {
	return t.TradeType == TradeSell || t.TradeType == TradeSettle
}

// Achievement is a badge awarded to a user, optionally scoped to a league.
type Achievement struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	LeagueID        *string   `json:"league_id" db:"league_id"`
	AchievementType string    `json:"achievement_type" db:"achievement_type"`
	Title           string    `json:"title" db:"title"`
	Description     string    `json:"description" db:"description"`
	EarnedAt        time.Time `json:"earned_at" db:"earned_at"`
}

// OutcomeToken is one tradable outcome of a market as reported by the
// market-data provider.
type OutcomeToken struct {
	TokenID string `json:"token_id,omitempty"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// MarketSnapshot is a transient, normalized view of an external market.
// Never persisted.
type MarketSnapshot struct {
	ID           string          `json:"id"`
	Question     string          `json:"question"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Active       bool            `json:"active"`
	Closed       bool            `json:"closed"`
	YesPrice     decimal.Decimal `json:"yes_price"`
	NoPrice      decimal.Decimal `json:"no_price"`
	Volume       decimal.Decimal `json:"volume"`
	Liquidity    decimal.Decimal `json:"liquidity"`
	Outcomes     []string        `json:"outcomes,omitempty"`
	Tokens       []OutcomeToken  `json:"tokens,omitempty"`
	ClobTokenIDs []string        `json:"clob_token_ids,omitempty"`
	EndDate      string          `json:"end_date,omitempty"`
}

// PriceFor returns the current price of the given outcome.
func (m MarketSnapshot) PriceFor(outcome string) decimal.Decimal {
	if strings.EqualFold(outcome, OutcomeNo) {
		return m.NoPrice
	}
	return m.YesPrice
}

// WinningOutcome returns the lowercased winning outcome. ok is false unless
// the market is closed and exactly one token is flagged as the winner.
func (m MarketSnapshot) WinningOutcome() (string, bool) {
	if !m.Closed {
		return "", false
	}
	winner := ""
	count := 0
	for _, t := range m.Tokens {
		if t.Winner {
			winner = strings.ToLower(t.Outcome)
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	return winner, true
}

// PricePoint is one sample of a market's YES price history.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}
