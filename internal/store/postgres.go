package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polylabs/league-engine/internal/model"
)

//go:embed schema.sql
var postgresSchema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the schema. Safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const leagueColumns = `id, name, description, commissioner_id, is_public,
	COALESCE(invite_code, ''), starting_capital::TEXT, max_position_size::TEXT,
	scoring_type, status, created_at`

const memberColumns = `id, league_id, user_id, current_balance::TEXT, total_pnl::TEXT,
	total_trades, win_rate::TEXT, rank, joined_at`

const positionColumns = `id, member_id, market_id, market_slug, market_question, outcome,
	shares::TEXT, entry_price::TEXT, current_price::TEXT, unrealized_pnl::TEXT,
	created_at, updated_at`

const tradeColumns = `id, member_id, market_id, market_slug, market_question, trade_type,
	outcome, shares::TEXT, price::TEXT, total_value::TEXT, pnl::TEXT, created_at`

// --- Leagues ---

func (s *PostgresStore) CreateLeague(ctx context.Context, l *model.League) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leagues (id, name, description, commissioner_id, is_public, invite_code,
		                      starting_capital, max_position_size, scoring_type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		l.ID, l.Name, l.Description, l.CommissionerID, l.IsPublic, l.InviteCode,
		l.StartingCapital.String(), l.MaxPositionSize.String(),
		l.ScoringType, l.Status, l.CreatedAt,
	)
	return mapPgError(err, "create league "+l.ID)
}

func (s *PostgresStore) GetLeague(ctx context.Context, id string) (*model.League, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leagueColumns+` FROM leagues WHERE id = $1`, id)
	l, err := scanLeague(row)
	if err != nil {
		return nil, mapPgError(err, "get league "+id)
	}
	return l, nil
}

func (s *PostgresStore) GetLeagueByInviteCode(ctx context.Context, code string) (*model.League, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leagueColumns+` FROM leagues WHERE UPPER(invite_code) = UPPER($1)`, code)
	l, err := scanLeague(row)
	if err != nil {
		return nil, mapPgError(err, "get league by invite code")
	}
	return l, nil
}

func (s *PostgresStore) ListLeaguesByStatus(ctx context.Context, status string) ([]model.League, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leagueColumns+` FROM leagues WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leagues []model.League
	for rows.Next() {
		l, err := scanLeague(rows)
		if err != nil {
			return nil, err
		}
		leagues = append(leagues, *l)
	}
	return leagues, rows.Err()
}

func (s *PostgresStore) DeleteLeague(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leagues WHERE id = $1`, id)
	return affected(tag, err, "delete league "+id)
}

// --- Members ---

func (s *PostgresStore) CreateMember(ctx context.Context, m *model.Member) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO league_members (id, league_id, user_id, current_balance, total_pnl,
		                             total_trades, win_rate, rank, joined_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7::NUMERIC, $8, $9)`,
		m.ID, m.LeagueID, m.UserID, m.CurrentBalance.String(), m.TotalPnL.String(),
		m.TotalTrades, m.WinRate.String(), m.Rank, m.JoinedAt,
	)
	return mapPgError(err, "create member "+m.ID)
}

func (s *PostgresStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM league_members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		return nil, mapPgError(err, "get member "+id)
	}
	return m, nil
}

func (s *PostgresStore) ListMembersByLeague(ctx context.Context, leagueID string) ([]model.Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM league_members WHERE league_id = $1 ORDER BY seq`, leagueID)
}

func (s *PostgresStore) ListMembersByUser(ctx context.Context, userID string) ([]model.Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM league_members WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *PostgresStore) queryMembers(ctx context.Context, sql string, arg string) ([]model.Member, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) UpdateMemberStats(ctx context.Context, id string, st MemberStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE league_members
		 SET current_balance = $2::NUMERIC, total_pnl = $3::NUMERIC,
		     total_trades = $4, win_rate = $5::NUMERIC
		 WHERE id = $1`,
		id, st.CurrentBalance.String(), st.TotalPnL.String(), st.TotalTrades, st.WinRate.String(),
	)
	return affected(tag, err, "update member "+id)
}

func (s *PostgresStore) UpdateMemberRank(ctx context.Context, id string, rank int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE league_members SET rank = $2 WHERE id = $1`, id, rank)
	return affected(tag, err, "update rank "+id)
}

// --- Positions ---

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, member_id, market_id, market_slug, market_question, outcome,
		                        shares, entry_price, current_price, unrealized_pnl, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)`,
		p.ID, p.MemberID, p.MarketID, p.MarketSlug, p.MarketQuestion, p.Outcome,
		p.Shares.String(), p.EntryPrice.String(), p.CurrentPrice.String(), p.UnrealizedPnL.String(),
		p.CreatedAt, p.UpdatedAt,
	)
	return mapPgError(err, "create position "+p.ID)
}

func (s *PostgresStore) FindPosition(ctx context.Context, memberID, marketID, outcome string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions
		 WHERE member_id = $1 AND market_id = $2 AND outcome = $3
		 ORDER BY seq LIMIT 1`, memberID, marketID, outcome)
	p, err := scanPosition(row)
	if err != nil {
		return nil, mapPgError(err, "find position")
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByMember(ctx context.Context, memberID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE member_id = $1 ORDER BY seq`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET shares = $2::NUMERIC, current_price = $3::NUMERIC,
		     unrealized_pnl = $4::NUMERIC, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.Shares.String(), p.CurrentPrice.String(), p.UnrealizedPnL.String(), p.UpdatedAt,
	)
	return affected(tag, err, "update position "+p.ID)
}

func (s *PostgresStore) MarkPosition(ctx context.Context, id string, price decimal.Decimal, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET current_price = $2::NUMERIC,
		     unrealized_pnl = ($2::NUMERIC - entry_price) * shares,
		     updated_at = $3
		 WHERE id = $1`,
		id, price.String(), at,
	)
	return affected(tag, err, "mark position "+id)
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM positions WHERE id = $1 RETURNING `+positionColumns, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, mapPgError(err, "delete position "+id)
	}
	return p, nil
}

// --- Trades ---

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	var pnl *string
	if t.PnL != nil {
		v := t.PnL.String()
		pnl = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, member_id, market_id, market_slug, market_question, trade_type,
		                     outcome, shares, price, total_value, pnl, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		t.ID, t.MemberID, t.MarketID, t.MarketSlug, t.MarketQuestion, t.TradeType,
		t.Outcome, t.Shares.String(), t.Price.String(), t.TotalValue.String(), pnl, t.CreatedAt,
	)
	return mapPgError(err, "insert trade "+t.ID)
}

func (s *PostgresStore) ListTradesByMember(ctx context.Context, memberID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE member_id = $1 ORDER BY seq`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var sharesS, priceS, totalS string
		var pnlS *string
		if err := rows.Scan(&t.ID, &t.MemberID, &t.MarketID, &t.MarketSlug, &t.MarketQuestion,
			&t.TradeType, &t.Outcome, &sharesS, &priceS, &totalS, &pnlS, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(sharesS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.TotalValue, _ = decimal.NewFromString(totalS)
		if pnlS != nil {
			pnl, _ := decimal.NewFromString(*pnlS)
			t.PnL = &pnl
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Achievements ---

func (s *PostgresStore) HasAchievement(ctx context.Context, userID string, leagueID *string, achievementType string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM achievements
		   WHERE user_id = $1 AND COALESCE(league_id, '') = COALESCE($2, '') AND achievement_type = $3
		 )`, userID, leagueID, achievementType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has achievement: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertAchievement(ctx context.Context, a *model.Achievement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO achievements (id, user_id, league_id, achievement_type, title, description, earned_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.LeagueID, a.AchievementType, a.Title, a.Description, a.EarnedAt,
	)
	return mapPgError(err, "insert achievement "+a.AchievementType)
}

func (s *PostgresStore) ListAchievementsByUser(ctx context.Context, userID string) ([]model.Achievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, league_id, achievement_type, title, description, earned_at
		 FROM achievements WHERE user_id = $1 ORDER BY earned_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(&a.ID, &a.UserID, &a.LeagueID, &a.AchievementType,
			&a.Title, &a.Description, &a.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Scan helpers ---

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeague(row rowScanner) (*model.League, error) {
	var l model.League
	var capitalS, maxPosS string
	if err := row.Scan(&l.ID, &l.Name, &l.Description, &l.CommissionerID, &l.IsPublic,
		&l.InviteCode, &capitalS, &maxPosS, &l.ScoringType, &l.Status, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.StartingCapital, _ = decimal.NewFromString(capitalS)
	l.MaxPositionSize, _ = decimal.NewFromString(maxPosS)
	return &l, nil
}

func scanMember(row rowScanner) (*model.Member, error) {
	var m model.Member
	var balanceS, pnlS, winRateS string
	if err := row.Scan(&m.ID, &m.LeagueID, &m.UserID, &balanceS, &pnlS,
		&m.TotalTrades, &winRateS, &m.Rank, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.CurrentBalance, _ = decimal.NewFromString(balanceS)
	m.TotalPnL, _ = decimal.NewFromString(pnlS)
	m.WinRate, _ = decimal.NewFromString(winRateS)
	return &m, nil
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	var sharesS, entryS, currentS, unrealizedS string
	if err := row.Scan(&p.ID, &p.MemberID, &p.MarketID, &p.MarketSlug, &p.MarketQuestion,
		&p.Outcome, &sharesS, &entryS, &currentS, &unrealizedS, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Shares, _ = decimal.NewFromString(sharesS)
	p.EntryPrice, _ = decimal.NewFromString(entryS)
	p.CurrentPrice, _ = decimal.NewFromString(currentS)
	p.UnrealizedPnL, _ = decimal.NewFromString(unrealizedS)
	return &p, nil
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// mapPgError translates driver errors into the store sentinels.
func mapPgError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(tag pgconn.CommandTag, err error, op string) error {
	if err != nil {
		return mapPgError(err, op)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
