// Package store defines the persistence interface for the league engine.
// Implementations include PostgreSQL and SQLite (sources of truth), Redis
// (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
)

var (
	// ErrNotFound is returned when a lookup, update or delete matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert violates a uniqueness rule
	// (one membership per user and league, one achievement per type).
	ErrConflict = errors.New("store: conflict")
)

// MemberStats is the set of member counters rewritten after a trade or
// settlement.
type MemberStats struct {
	CurrentBalance decimal.Decimal
	TotalPnL       decimal.Decimal
	TotalTrades    int
	WinRate        decimal.Decimal
}

// Store is the persistence interface. Listing methods return rows in
// insertion order unless stated otherwise.
type Store interface {
	// --- League operations ---

	// CreateLeague persists a new league.
	CreateLeague(ctx context.Context, league *model.League) error

	// GetLeague retrieves a league by its ID.
	GetLeague(ctx context.Context, id string) (*model.League, error)

	// GetLeagueByInviteCode retrieves a private league by its invite code.
	GetLeagueByInviteCode(ctx context.Context, code string) (*model.League, error)

	// ListLeaguesByStatus returns all leagues with the given status.
	ListLeaguesByStatus(ctx context.Context, status string) ([]model.League, error)

	// DeleteLeague removes a league. Used to compensate a failed creation.
	DeleteLeague(ctx context.Context, id string) error

	// --- Membership ---

	// CreateMember persists a membership. Returns ErrConflict when the user
	// already belongs to the league.
	CreateMember(ctx context.Context, member *model.Member) error

	// GetMember retrieves a membership by its ID.
	GetMember(ctx context.Context, id string) (*model.Member, error)

	// ListMembersByLeague returns a league's members in join order.
	ListMembersByLeague(ctx context.Context, leagueID string) ([]model.Member, error)

	// ListMembersByUser returns every membership of a user.
	ListMembersByUser(ctx context.Context, userID string) ([]model.Member, error)

	// UpdateMemberStats rewrites balance, pnl, trade count and win rate.
	UpdateMemberStats(ctx context.Context, id string, stats MemberStats) error

	// UpdateMemberRank sets a member's rank.
	UpdateMemberRank(ctx context.Context, id string, rank int) error

	// --- Positions ---

	// CreatePosition persists a new open position.
	CreatePosition(ctx context.Context, pos *model.Position) error

	// FindPosition returns the oldest open position for a member, market
	// and outcome.
	FindPosition(ctx context.Context, memberID, marketID, outcome string) (*model.Position, error)

	// ListPositionsByMember returns a member's open positions.
	ListPositionsByMember(ctx context.Context, memberID string) ([]model.Position, error)

	// ListOpenPositions returns every open position across all leagues.
	ListOpenPositions(ctx context.Context) ([]model.Position, error)

	// UpdatePosition rewrites shares, current price and unrealized pnl.
	UpdatePosition(ctx context.Context, pos *model.Position) error

	// MarkPosition sets the current price and recomputes unrealized pnl
	// from the shares the row holds at write time. Shares are untouched.
	MarkPosition(ctx context.Context, id string, price decimal.Decimal, at time.Time) error

	// DeletePosition removes a position and returns the row as it was when
	// removed. Returns ErrNotFound when it is already gone, which callers
	// use as a settlement claim.
	DeletePosition(ctx context.Context, id string) (*model.Position, error)

	// --- Immutable trade history ---

	// InsertTrade appends a trade record.
	InsertTrade(ctx context.Context, trade *model.Trade) error

	// ListTradesByMember returns a member's trades, oldest first.
	ListTradesByMember(ctx context.Context, memberID string) ([]model.Trade, error)

	// --- Achievements ---

	// HasAchievement reports whether the user already holds the badge for
	// the league (nil league = global).
	HasAchievement(ctx context.Context, userID string, leagueID *string, achievementType string) (bool, error)

	// InsertAchievement persists a badge. Returns ErrConflict on duplicates.
	InsertAchievement(ctx context.Context, a *model.Achievement) error

	// ListAchievementsByUser returns a user's badges, oldest first.
	ListAchievementsByUser(ctx context.Context, userID string) ([]model.Achievement, error)
}
