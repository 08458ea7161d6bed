// Package achievement awards badges to league members from their running
// stats.
package achievement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/metrics"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
	"github.com/polylabs/league-engine/internal/stream"
)

// Achievement types.
const (
	FirstTrade         = "first_trade"
	BestROI            = "best_roi"
	ConsistentTrader   = "consistent_trader"
	SharpestPrediction = "sharpest_prediction"
)

// Rule is one badge and the member condition that earns it.
type Rule struct {
	Type        string
	Title       string
	Description string
	Earned      func(m model.Member) bool
}

var seventy = decimal.NewFromInt(70)

var rules = []Rule{
	{
		Type:        FirstTrade,
		Title:       "First Steps",
		Description: "Made your first trade",
		Earned:      func(m model.Member) bool { return m.TotalTrades >= 1 },
	},
	{
		Type:        BestROI,
		Title:       "Top Performer",
		Description: "Ranked #1 in the league",
		Earned:      func(m model.Member) bool { return m.Rank == 1 && m.TotalPnL.IsPositive() },
	},
	{
		Type:        ConsistentTrader,
		Title:       "Consistent Trader",
		Description: "Completed 10 trades",
		Earned:      func(m model.Member) bool { return m.TotalTrades >= 10 },
	},
	{
		Type:        SharpestPrediction,
		Title:       "Sharp Shooter",
		Description: "Achieved 70%+ win rate",
		Earned: func(m model.Member) bool {
			return m.WinRate.GreaterThanOrEqual(seventy) && m.TotalTrades >= 10
		},
	},
}

// Rules returns a copy of the rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Checker evaluates rules and records new badges.
type Checker struct {
	store  store.Store
	events stream.Publisher
	now    func() time.Time
}

// NewChecker creates a Checker. events may be nil.
func NewChecker(st store.Store, events stream.Publisher) *Checker {
	return &Checker{
		store:  st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates every membership of userID, or only the one in leagueID
// when it is non-empty, and returns the badge types newly awarded. Running it
// again with unchanged stats awards nothing.
func (c *Checker) Check(ctx context.Context, userID, leagueID string) ([]string, error) {
	awarded := []string{}

	members, err := c.store.ListMembersByUser(ctx, userID)
	if err != nil {
		return awarded, fmt.Errorf("list memberships: %w", err)
	}

	for _, m := range members {
		if leagueID != "" && m.LeagueID != leagueID {
			continue
		}
		for _, r := range rules {
			if !r.Earned(m) {
				continue
			}
			ok, err := c.award(ctx, m, r)
			if err != nil {
				return awarded, err
			}
			if ok {
				awarded = append(awarded, r.Type)
			}
		}
	}
	return awarded, nil
}

func (c *Checker) award(ctx context.Context, m model.Member, r Rule) (bool, error) {
	league := m.LeagueID
	has, err := c.store.HasAchievement(ctx, m.UserID, &league, r.Type)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", r.Type, err)
	}
	if has {
		return false, nil
	}

	a := &model.Achievement{
		ID:              uuid.New().String(),
		UserID:          m.UserID,
		LeagueID:        &league,
		AchievementType: r.Type,
		Title:           r.Title,
		Description:     r.Description,
		EarnedAt:        c.now(),
	}
	if err := c.store.InsertAchievement(ctx, a); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("insert %s: %w", r.Type, err)
	}

	metrics.AchievementsAwarded.WithLabelValues(r.Type).Inc()
	slog.Info("achievement awarded", "user_id", m.UserID, "league_id", league, "type", r.Type)
	stream.Publish(c.events, stream.Event{
		Type:        stream.AchievementAwarded,
		LeagueID:    league,
		MemberID:    m.ID,
		UserID:      m.UserID,
		Achievement: r.Type,
	})
	return true, nil
}
