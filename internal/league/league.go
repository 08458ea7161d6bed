// Package league creates leagues and admits members.
package league

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
)

var (
	ErrInvalidLeague = errors.New("league: invalid league")
	ErrLeagueClosed  = errors.New("league: league is completed")
	ErrNotJoinable   = errors.New("league: private league requires an invite code")
	ErrAlreadyMember = errors.New("league: user is already a member")
)

// DefaultStartingCapital is used when a create request omits it.
var DefaultStartingCapital = decimal.NewFromInt(10000)

// CreateRequest describes a new league.
type CreateRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	CommissionerID  string          `json:"commissioner_id"`
	IsPublic        bool            `json:"is_public"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	MaxPositionSize decimal.Decimal `json:"max_position_size"`
	ScoringType     string          `json:"scoring_type"`
}

// JoinRequest admits UserID by InviteCode, or by LeagueID for public leagues.
type JoinRequest struct {
	UserID     string `json:"user_id"`
	InviteCode string `json:"invite_code"`
	LeagueID   string `json:"league_id"`
}

// Service manages leagues and memberships.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a Service.
func NewService(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts the league and the commissioner's membership. If the
// membership cannot be written the league is deleted again.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.League, *model.Member, error) {
	if err := normalizeCreate(&req); err != nil {
		return nil, nil, err
	}

	l := &model.League{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		CommissionerID:  req.CommissionerID,
		IsPublic:        req.IsPublic,
		StartingCapital: req.StartingCapital,
		MaxPositionSize: req.MaxPositionSize,
		ScoringType:     req.ScoringType,
		Status:          model.LeagueActive,
		CreatedAt:       s.now(),
	}
	if !l.IsPublic {
		code, err := InviteCode()
		if err != nil {
			return nil, nil, fmt.Errorf("generate invite code: %w", err)
		}
		l.InviteCode = code
	}

	if err := s.store.CreateLeague(ctx, l); err != nil {
		return nil, nil, fmt.Errorf("create league: %w", err)
	}

	m := &model.Member{
		ID:             uuid.New().String(),
		LeagueID:       l.ID,
		UserID:         l.CommissionerID,
		CurrentBalance: l.StartingCapital,
		Rank:           1,
		JoinedAt:       l.CreatedAt,
	}
	if err := s.store.CreateMember(ctx, m); err != nil {
		if derr := s.store.DeleteLeague(ctx, l.ID); derr != nil {
			slog.Error("league rollback failed", "league_id", l.ID, "err", derr)
		}
		return nil, nil, fmt.Errorf("add commissioner: %w", err)
	}

	slog.Info("league created", "league_id", l.ID, "commissioner_id", l.CommissionerID, "public", l.IsPublic)
	return l, m, nil
}

// Join admits a user to a league.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*model.League, *model.Member, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.InviteCode = strings.TrimSpace(req.InviteCode)
	if req.UserID == "" {
		return nil, nil, fmt.Errorf("%w: user_id is required", ErrInvalidLeague)
	}

	var (
		l   *model.League
		err error
	)
	switch {
	case req.InviteCode != "":
		l, err = s.store.GetLeagueByInviteCode(ctx, strings.ToUpper(req.InviteCode))
	case req.LeagueID != "":
		l, err = s.store.GetLeague(ctx, req.LeagueID)
		if err == nil && !l.IsPublic {
			return nil, nil, ErrNotJoinable
		}
	default:
		return nil, nil, fmt.Errorf("%w: invite_code or league_id is required", ErrInvalidLeague)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find league: %w", err)
	}
	if l.Status == model.LeagueCompleted {
		return nil, nil, ErrLeagueClosed
	}

	members, err := s.store.ListMembersByLeague(ctx, l.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.UserID == req.UserID {
			return nil, nil, ErrAlreadyMember
		}
	}

	m := &model.Member{
		ID:             uuid.New().String(),
		LeagueID:       l.ID,
		UserID:         req.UserID,
		CurrentBalance: l.StartingCapital,
		Rank:           len(members) + 1,
		JoinedAt:       s.now(),
	}
	if err := s.store.CreateMember(ctx, m); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil, ErrAlreadyMember
		}
		return nil, nil, fmt.Errorf("add member: %w", err)
	}

	slog.Info("member joined", "league_id", l.ID, "user_id", m.UserID, "rank", m.Rank)
	return l, m, nil
}

// InviteCode returns 8 random uppercase hex characters.
func InviteCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func normalizeCreate(req *CreateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.CommissionerID = strings.TrimSpace(req.CommissionerID)
	req.ScoringType = strings.ToLower(strings.TrimSpace(req.ScoringType))

	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLeague)
	}
	if req.CommissionerID == "" {
		return fmt.Errorf("%w: commissioner_id is required", ErrInvalidLeague)
	}
	if req.StartingCapital.IsZero() {
		req.StartingCapital = DefaultStartingCapital
	}
	if !req.StartingCapital.IsPositive() {
		return fmt.Errorf("%w: starting_capital must be positive", ErrInvalidLeague)
	}
	if req.MaxPositionSize.IsNegative() {
		return fmt.Errorf("%w: max_position_size must not be negative", ErrInvalidLeague)
	}
	switch req.ScoringType {
	case "":
		req.ScoringType = model.ScoringStandard
	case model.ScoringStandard, model.ScoringEarlyConviction, model.ScoringRiskAdjusted:
	default:
		return fmt.Errorf("%w: unknown scoring_type %q", ErrInvalidLeague, req.ScoringType)
	}
	return nil
}
