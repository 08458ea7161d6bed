package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
)

// ErrPositionLimit is returned when a buy would push a member's cost basis
// in one market beyond the league's max_position_size.
var ErrPositionLimit = errors.New("ledger: position size limit exceeded")

// PositionLimit enforces a league's per-market exposure cap. Exposure is
// the open cost basis (shares * entry price) across both outcomes of the
// market, so hedging YES against NO still counts toward the cap.
type PositionLimit struct {
	// Max is the largest allowed cost basis per market. Zero or negative
	// disables the check.
	Max decimal.Decimal
}

// NewPositionLimit builds the limit for a league.
func NewPositionLimit(league *model.League) PositionLimit {
	if league == nil {
		return PositionLimit{}
	}
	return PositionLimit{Max: league.MaxPositionSize}
}

// Exposure sums the open cost basis of positions in marketID.
func Exposure(marketID string, open []model.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range open {
		if p.MarketID == marketID {
			total = total.Add(p.CostBasis())
		}
	}
	return total
}

// Check validates that adding cost to marketID stays within the cap.
func (l PositionLimit) Check(marketID string, cost decimal.Decimal, open []model.Position) error {
	if l.Max.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if Exposure(marketID, open).Add(cost).GreaterThan(l.Max) {
		return ErrPositionLimit
	}
	return nil
}
