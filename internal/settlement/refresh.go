package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polylabs/league-engine/internal/store"
)

// RefreshReport summarizes a price refresh pass.
type RefreshReport struct {
	MarketsChecked   int `json:"markets_checked"`
	PositionsUpdated int `json:"positions_updated"`
	Failures         int `json:"failures"`
}

// RefreshPrices marks every open position to its market's current price
// for the held outcome. Only the price fields are written, so trades that
// land during the pass keep their share counts. Markets that fail to load
// are skipped.
func (e *Engine) RefreshPrices(ctx context.Context) (RefreshReport, error) {
	var rep RefreshReport

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
			slog.Warn("price refresh: market fetch failed", "market_id", group.marketID, "err", err)
			continue
		}

		for _, pos := range group.positions {
			err := e.store.MarkPosition(ctx, pos.ID, snap.PriceFor(pos.Outcome), e.now())
			switch {
			case errors.Is(err, store.ErrNotFound):
				// sold or settled since the listing
				slog.Debug("price refresh: position gone", "position_id", pos.ID)
			case err != nil:
				rep.Failures++
				slog.Warn("price refresh: update failed", "position_id", pos.ID, "err", err)
			default:
				rep.PositionsUpdated++
			}
		}
	}

	slog.Info("price refresh complete",
		"markets_checked", rep.MarketsChecked,
		"positions_updated", rep.PositionsUpdated,
		"failures", rep.Failures,
	)
	return rep, nil
}
