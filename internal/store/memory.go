package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	leagues      []model.League
	members      []model.Member
	positions    []model.Position
	trades       []model.Trade
	achievements []model.Achievement
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// --- Leagues ---

func (s *MemoryStore) CreateLeague(_ context.Context, l *model.League) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.leagues {
		if existing.ID == l.ID {
			return fmt.Errorf("league %s: %w", l.ID, ErrConflict)
		}
		if l.InviteCode != "" && existing.InviteCode == l.InviteCode {
			return fmt.Errorf("invite code %s: %w", l.InviteCode, ErrConflict)
		}
	}
	s.leagues = append(s.leagues, *l)
	return nil
}

func (s *MemoryStore) GetLeague(_ context.Context, id string) (*model.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.leagues {
		if l.ID == id {
			out := l
			return &out, nil
		}
	}
	return nil, fmt.Errorf("league %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) GetLeagueByInviteCode(_ context.Context, code string) (*model.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.leagues {
		if l.InviteCode != "" && strings.EqualFold(l.InviteCode, code) {
			out := l
			return &out, nil
		}
	}
	return nil, fmt.Errorf("invite code %s: %w", code, ErrNotFound)
}

func (s *MemoryStore) ListLeaguesByStatus(_ context.Context, status string) ([]model.League, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.League
	for _, l := range s.leagues {
		if l.Status == status {
			result = append(result, l)
		}
	}
	return result, nil
}

func (s *MemoryStore) DeleteLeague(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.leagues {
		if l.ID == id {
			s.leagues = append(s.leagues[:i], s.leagues[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("league %s: %w", id, ErrNotFound)
}

// --- Members ---

func (s *MemoryStore) CreateMember(_ context.Context, m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.members {
		if existing.ID == m.ID || (existing.LeagueID == m.LeagueID && existing.UserID == m.UserID) {
			return fmt.Errorf("member %s in league %s: %w", m.UserID, m.LeagueID, ErrConflict)
		}
	}
	s.members = append(s.members, *m)
	return nil
}

func (s *MemoryStore) GetMember(_ context.Context, id string) (*model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.memberIndex(id); i >= 0 {
		out := s.members[i]
		return &out, nil
	}
	return nil, fmt.Errorf("member %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListMembersByLeague(_ context.Context, leagueID string) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Member
	for _, m := range s.members {
		if m.LeagueID == leagueID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListMembersByUser(_ context.Context, userID string) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Member
	for _, m := range s.members {
		if m.UserID == userID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateMemberStats(_ context.Context, id string, stats MemberStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.memberIndex(id)
	if i < 0 {
		return fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	s.members[i].CurrentBalance = stats.CurrentBalance
	s.members[i].TotalPnL = stats.TotalPnL
	s.members[i].TotalTrades = stats.TotalTrades
	s.members[i].WinRate = stats.WinRate
	return nil
}

func (s *MemoryStore) UpdateMemberRank(_ context.Context, id string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.memberIndex(id)
	if i < 0 {
		return fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	s.members[i].Rank = rank
	return nil
}

// memberIndex must be called with mu held.
func (s *MemoryStore) memberIndex(id string) int {
	for i, m := range s.members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// --- Positions ---

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = append(s.positions, *p)
	return nil
}

func (s *MemoryStore) FindPosition(_ context.Context, memberID, marketID, outcome string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.MemberID == memberID && p.MarketID == marketID && p.Outcome == outcome {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("position %s/%s/%s: %w", memberID, marketID, outcome, ErrNotFound)
}

func (s *MemoryStore) ListPositionsByMember(_ context.Context, memberID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.MemberID == memberID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListOpenPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Position, len(s.positions))
	copy(result, s.positions)
	return result, nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.positions {
		if s.positions[i].ID == p.ID {
			s.positions[i].Shares = p.Shares
			s.positions[i].CurrentPrice = p.CurrentPrice
			s.positions[i].UnrealizedPnL = p.UnrealizedPnL
			s.positions[i].UpdatedAt = p.UpdatedAt
			return nil
		}
	}
	return fmt.Errorf("position %s: %w", p.ID, ErrNotFound)
}

func (s *MemoryStore) MarkPosition(_ context.Context, id string, price decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.positions {
		p := &s.positions[i]
		if p.ID == id {
			p.CurrentPrice = price
			p.UnrealizedPnL = price.Sub(p.EntryPrice).Mul(p.Shares)
			p.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("position %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) DeletePosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.positions {
		if p.ID == id {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return &p, nil
		}
	}
	return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
}

// --- Trades ---

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *t)
	return nil
}

func (s *MemoryStore) ListTradesByMember(_ context.Context, memberID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.MemberID == memberID {
			result = append(result, t)
		}
	}
	return result, nil
}

// --- Achievements ---

func (s *MemoryStore) HasAchievement(_ context.Context, userID string, leagueID *string, achievementType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hasAchievement(userID, leagueID, achievementType), nil
}

func (s *MemoryStore) InsertAchievement(_ context.Context, a *model.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasAchievement(a.UserID, a.LeagueID, a.AchievementType) {
		return fmt.Errorf("achievement %s for %s: %w", a.AchievementType, a.UserID, ErrConflict)
	}
	s.achievements = append(s.achievements, *a)
	return nil
}

func (s *MemoryStore) ListAchievementsByUser(_ context.Context, userID string) ([]model.Achievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Achievement
	for _, a := range s.achievements {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *MemoryStore) hasAchievement(userID string, leagueID *string, achievementType string) bool {
	for _, a := range s.achievements {
		if a.UserID == userID && a.AchievementType == achievementType && sameLeague(a.LeagueID, leagueID) {
			return true
		}
	}
	return false
}

func sameLeague(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
