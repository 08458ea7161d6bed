package league

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/store"
)

func TestCreate_PrivateLeague(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(ms)

	l, m, err := svc.Create(context.Background(), CreateRequest{
		Name:            "  Office Pool ",
		CommissionerID:  "alice",
		StartingCapital: decimal.NewFromInt(5000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Name != "Office Pool" || l.Status != model.LeagueActive || l.ScoringType != model.ScoringStandard {
		t.Errorf("unexpected league: %+v", l)
	}
	if len(l.InviteCode) != 8 || l.InviteCode != strings.ToUpper(l.InviteCode) {
		t.Errorf("expected 8 uppercase hex chars, got %q", l.InviteCode)
	}
	if m.UserID != "alice" || m.Rank != 1 || !m.CurrentBalance.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("unexpected commissioner membership: %+v", m)
	}
}

func TestCreate_PublicLeagueHasNoInviteCode(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	l, _, err := svc.Create(context.Background(), CreateRequest{Name: "Open", CommissionerID: "a", IsPublic: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.InviteCode != "" {
		t.Errorf("public league should have no invite code, got %q", l.InviteCode)
	}
	if !l.StartingCapital.Equal(DefaultStartingCapital) {
		t.Errorf("expected default capital, got %s", l.StartingCapital)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"no name", CreateRequest{CommissionerID: "a"}},
		{"no commissioner", CreateRequest{Name: "x"}},
		{"negative capital", CreateRequest{Name: "x", CommissionerID: "a", StartingCapital: decimal.NewFromInt(-1)}},
		{"negative max position", CreateRequest{Name: "x", CommissionerID: "a", MaxPositionSize: decimal.NewFromInt(-5)}},
		{"unknown scoring", CreateRequest{Name: "x", CommissionerID: "a", ScoringType: "vibes"}},
	}
	svc := NewService(store.NewMemoryStore())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Create(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidLeague) {
				t.Errorf("expected ErrInvalidLeague, got %v", err)
			}
		})
	}
}

// failingMembers rejects every membership insert.
type failingMembers struct {
	*store.MemoryStore
}

func (failingMembers) CreateMember(context.Context, *model.Member) error {
	return errors.New("disk full")
}

func TestCreate_RollsBackLeagueWhenMemberFails(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(failingMembers{ms})

	_, _, err := svc.Create(context.Background(), CreateRequest{Name: "x", CommissionerID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	leagues, _ := ms.ListLeaguesByStatus(context.Background(), model.LeagueActive)
	if len(leagues) != 0 {
		t.Errorf("league row should have been removed, found %d", len(leagues))
	}
}

func TestJoin_ByInviteCode(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(ms)
	ctx := context.Background()
	l, _, _ := svc.Create(ctx, CreateRequest{Name: "x", CommissionerID: "alice"})

	_, m, err := svc.Join(ctx, JoinRequest{UserID: "bob", InviteCode: strings.ToLower(l.InviteCode)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.LeagueID != l.ID || m.Rank != 2 || !m.CurrentBalance.Equal(l.StartingCapital) {
		t.Errorf("unexpected member: %+v", m)
	}

	_, _, err = svc.Join(ctx, JoinRequest{UserID: "bob", InviteCode: l.InviteCode})
	if !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestJoin_PublicByID(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(ms)
	ctx := context.Background()
	pub, _, _ := svc.Create(ctx, CreateRequest{Name: "pub", CommissionerID: "alice", IsPublic: true})
	priv, _, _ := svc.Create(ctx, CreateRequest{Name: "priv", CommissionerID: "alice"})

	if _, _, err := svc.Join(ctx, JoinRequest{UserID: "bob", LeagueID: pub.ID}); err != nil {
		t.Errorf("public join failed: %v", err)
	}
	if _, _, err := svc.Join(ctx, JoinRequest{UserID: "bob", LeagueID: priv.ID}); !errors.Is(err, ErrNotJoinable) {
		t.Errorf("expected ErrNotJoinable, got %v", err)
	}
}

func TestJoin_Errors(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(ms)
	ctx := context.Background()

	ms.CreateLeague(ctx, &model.League{ID: "done", Name: "done", IsPublic: true, Status: model.LeagueCompleted})

	if _, _, err := svc.Join(ctx, JoinRequest{UserID: "bob", LeagueID: "done"}); !errors.Is(err, ErrLeagueClosed) {
		t.Errorf("expected ErrLeagueClosed, got %v", err)
	}
	if _, _, err := svc.Join(ctx, JoinRequest{UserID: "bob", InviteCode: "NOPE1234"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.Join(ctx, JoinRequest{UserID: "bob"}); !errors.Is(err, ErrInvalidLeague) {
		t.Errorf("expected ErrInvalidLeague, got %v", err)
	}
}
