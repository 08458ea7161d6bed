package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polylabs/league-engine/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// runContract exercises the behaviour every Store implementation shares.
func runContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("leagues", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		priv := &model.League{
			ID: "l1", Name: "Private", CommissionerID: "alice", InviteCode: "ABCD1234",
			StartingCapital: dec("10000"), MaxPositionSize: dec("250.50"),
			ScoringType: model.ScoringStandard, Status: model.LeagueActive, CreatedAt: now(),
		}
		pub := &model.League{
			ID: "l2", Name: "Public", CommissionerID: "bob", IsPublic: true,
			StartingCapital: dec("500"), ScoringType: model.ScoringRiskAdjusted,
			Status: model.LeagueCompleted, CreatedAt: now(),
		}
		require.NoError(t, st.CreateLeague(ctx, priv))
		require.NoError(t, st.CreateLeague(ctx, pub))

		got, err := st.GetLeague(ctx, "l1")
		require.NoError(t, err)
		assert.Equal(t, "Private", got.Name)
		assert.True(t, got.MaxPositionSize.Equal(dec("250.50")))
		assert.False(t, got.IsPublic)

		byCode, err := st.GetLeagueByInviteCode(ctx, "abcd1234")
		require.NoError(t, err)
		assert.Equal(t, "l1", byCode.ID)

		active, err := st.ListLeaguesByStatus(ctx, model.LeagueActive)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "l1", active[0].ID)

		require.NoError(t, st.DeleteLeague(ctx, "l1"))
		_, err = st.GetLeague(ctx, "l1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, st.DeleteLeague(ctx, "l1"), ErrNotFound)
	})

	t.Run("members", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		for i, user := range []string{"alice", "bob", "carol"} {
			require.NoError(t, st.CreateMember(ctx, &model.Member{
				ID: "m" + user, LeagueID: "l1", UserID: user,
				CurrentBalance: dec("1000"), Rank: i + 1, JoinedAt: now(),
			}))
		}
		err := st.CreateMember(ctx, &model.Member{
			ID: "dup", LeagueID: "l1", UserID: "bob", CurrentBalance: dec("1000"), JoinedAt: now(),
		})
		assert.ErrorIs(t, err, ErrConflict)

		members, err := st.ListMembersByLeague(ctx, "l1")
		require.NoError(t, err)
		require.Len(t, members, 3)
		assert.Equal(t, "alice", members[0].UserID)
		assert.Equal(t, "carol", members[2].UserID)

		require.NoError(t, st.UpdateMemberStats(ctx, "mbob", MemberStats{
			CurrentBalance: dec("1040.25"), TotalPnL: dec("40.25"), TotalTrades: 3, WinRate: dec("66.67"),
		}))
		require.NoError(t, st.UpdateMemberRank(ctx, "mbob", 1))

		bob, err := st.GetMember(ctx, "mbob")
		require.NoError(t, err)
		assert.True(t, bob.CurrentBalance.Equal(dec("1040.25")))
		assert.True(t, bob.TotalPnL.Equal(dec("40.25")))
		assert.Equal(t, 3, bob.TotalTrades)
		assert.True(t, bob.WinRate.Equal(dec("66.67")))
		assert.Equal(t, 1, bob.Rank)

		assert.ErrorIs(t, st.UpdateMemberRank(ctx, "ghost", 1), ErrNotFound)
		_, err = st.GetMember(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)

		byUser, err := st.ListMembersByUser(ctx, "carol")
		require.NoError(t, err)
		assert.Len(t, byUser, 1)
	})

	t.Run("positions", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		for _, id := range []string{"p1", "p2"} {
			require.NoError(t, st.CreatePosition(ctx, &model.Position{
				ID: id, MemberID: "m1", MarketID: "mkt", Outcome: "yes",
				Shares: dec("10"), EntryPrice: dec("0.4"), CurrentPrice: dec("0.4"),
				CreatedAt: now(), UpdatedAt: now(),
			}))
		}
		require.NoError(t, st.CreatePosition(ctx, &model.Position{
			ID: "p3", MemberID: "m2", MarketID: "mkt", Outcome: "no",
			Shares: dec("5"), EntryPrice: dec("0.6"), CurrentPrice: dec("0.6"),
			CreatedAt: now(), UpdatedAt: now(),
		}))

		oldest, err := st.FindPosition(ctx, "m1", "mkt", "yes")
		require.NoError(t, err)
		assert.Equal(t, "p1", oldest.ID)

		_, err = st.FindPosition(ctx, "m1", "mkt", "no")
		assert.ErrorIs(t, err, ErrNotFound)

		oldest.Shares = dec("4")
		oldest.CurrentPrice = dec("0.55")
		oldest.UnrealizedPnL = dec("0.6")
		require.NoError(t, st.UpdatePosition(ctx, oldest))

		mine, err := st.ListPositionsByMember(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.True(t, mine[0].Shares.Equal(dec("4")))
		assert.True(t, mine[0].UnrealizedPnL.Equal(dec("0.6")))

		require.NoError(t, st.MarkPosition(ctx, "p1", dec("0.7"), now()))
		marked, err := st.FindPosition(ctx, "m1", "mkt", "yes")
		require.NoError(t, err)
		assert.True(t, marked.Shares.Equal(dec("4")), "marking must not touch shares")
		assert.True(t, marked.CurrentPrice.Equal(dec("0.7")))
		assert.True(t, marked.UnrealizedPnL.Equal(dec("1.2")))
		assert.ErrorIs(t, st.MarkPosition(ctx, "ghost", dec("0.7"), now()), ErrNotFound)

		removed, err := st.DeletePosition(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", removed.ID)
		assert.True(t, removed.Shares.Equal(dec("4")))
		assert.True(t, removed.EntryPrice.Equal(dec("0.4")))
		_, err = st.DeletePosition(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := st.ListOpenPositions(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "p2", all[0].ID)
		assert.Equal(t, "p3", all[1].ID)
	})

	t.Run("trades", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		pnl := dec("-15")
		require.NoError(t, st.InsertTrade(ctx, &model.Trade{
			ID: "t1", MemberID: "m1", MarketID: "mkt", TradeType: model.TradeBuy, Outcome: "yes",
			Shares: dec("50"), Price: dec("0.3"), TotalValue: dec("15"), CreatedAt: now(),
		}))
		require.NoError(t, st.InsertTrade(ctx, &model.Trade{
			ID: "t2", MemberID: "m1", MarketID: "mkt", TradeType: model.TradeSettle, Outcome: "yes",
			Shares: dec("50"), Price: dec("0"), TotalValue: dec("0"), PnL: &pnl, CreatedAt: now(),
		}))

		trades, err := st.ListTradesByMember(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Nil(t, trades[0].PnL)
		require.NotNil(t, trades[1].PnL)
		assert.True(t, trades[1].PnL.Equal(pnl))
		assert.True(t, trades[0].TotalValue.Equal(dec("15")))
	})

	t.Run("achievements", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		league := "l1"

		has, err := st.HasAchievement(ctx, "alice", &league, "first_trade")
		require.NoError(t, err)
		assert.False(t, has)

		require.NoError(t, st.InsertAchievement(ctx, &model.Achievement{
			ID: "a1", UserID: "alice", LeagueID: &league, AchievementType: "first_trade",
			Title: "First Steps", Description: "Made your first trade", EarnedAt: now(),
		}))
		err = st.InsertAchievement(ctx, &model.Achievement{
			ID: "a2", UserID: "alice", LeagueID: &league, AchievementType: "first_trade",
			Title: "First Steps", Description: "Made your first trade", EarnedAt: now(),
		})
		assert.ErrorIs(t, err, ErrConflict)

		has, err = st.HasAchievement(ctx, "alice", &league, "first_trade")
		require.NoError(t, err)
		assert.True(t, has)

		// a global badge is distinct from the league-scoped one
		has, err = st.HasAchievement(ctx, "alice", nil, "first_trade")
		require.NoError(t, err)
		assert.False(t, has)

		list, err := st.ListAchievementsByUser(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].LeagueID)
		assert.Equal(t, "l1", *list[0].LeagueID)
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		st, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := t.TempDir() + "/league.db"
	ctx := context.Background()

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.CreateLeague(ctx, &model.League{
		ID: "l1", Name: "Persisted", CommissionerID: "a", IsPublic: true,
		StartingCapital: dec("1000"), ScoringType: model.ScoringStandard,
		Status: model.LeagueActive, CreatedAt: now(),
	}))
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()

	l, err := st.GetLeague(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", l.Name)
	assert.True(t, l.StartingCapital.Equal(dec("1000")))
}

func TestOpen_Memory(t *testing.T) {
	st, closeFn, err := Open(context.Background(), OpenConfig{Driver: "memory"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryStore{}, st)

	_, _, err = Open(context.Background(), OpenConfig{Driver: "cassandra"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	st, closeFn, err := Open(context.Background(), OpenConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &SQLiteStore{}, st)
}
