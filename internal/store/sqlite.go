package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/polylabs/league-engine/internal/model"
)

// Decimals are stored as TEXT so no precision is lost to REAL.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leagues (
    id                TEXT PRIMARY KEY,
    name              TEXT     NOT NULL,
    description       TEXT     NOT NULL DEFAULT '',
    commissioner_id   TEXT     NOT NULL,
    is_public         INTEGER  NOT NULL DEFAULT 1,
    invite_code       TEXT,
    starting_capital  TEXT     NOT NULL,
    max_position_size TEXT     NOT NULL DEFAULT '0',
    scoring_type      TEXT     NOT NULL DEFAULT 'standard',
    status            TEXT     NOT NULL DEFAULT 'active',
    created_at        DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_leagues_invite ON leagues(invite_code) WHERE invite_code IS NOT NULL;

CREATE TABLE IF NOT EXISTS league_members (
    id              TEXT PRIMARY KEY,
    league_id       TEXT     NOT NULL,
    user_id         TEXT     NOT NULL,
    current_balance TEXT     NOT NULL,
    total_pnl       TEXT     NOT NULL DEFAULT '0',
    total_trades    INTEGER  NOT NULL DEFAULT 0,
    win_rate        TEXT     NOT NULL DEFAULT '0',
    rank            INTEGER  NOT NULL DEFAULT 0,
    joined_at       DATETIME NOT NULL,
    UNIQUE (league_id, user_id)
);

CREATE TABLE IF NOT EXISTS positions (
    id              TEXT PRIMARY KEY,
    member_id       TEXT     NOT NULL,
    market_id       TEXT     NOT NULL,
    market_slug     TEXT     NOT NULL DEFAULT '',
    market_question TEXT     NOT NULL DEFAULT '',
    outcome         TEXT     NOT NULL,
    shares          TEXT     NOT NULL,
    entry_price     TEXT     NOT NULL,
    current_price   TEXT     NOT NULL,
    unrealized_pnl  TEXT     NOT NULL DEFAULT '0',
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_lookup ON positions(member_id, market_id, outcome);

CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    member_id       TEXT     NOT NULL,
    market_id       TEXT     NOT NULL,
    market_slug     TEXT     NOT NULL DEFAULT '',
    market_question TEXT     NOT NULL DEFAULT '',
    trade_type      TEXT     NOT NULL,
    outcome         TEXT     NOT NULL,
    shares          TEXT     NOT NULL,
    price           TEXT     NOT NULL,
    total_value     TEXT     NOT NULL,
    pnl             TEXT,
    created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_member ON trades(member_id);

CREATE TABLE IF NOT EXISTS achievements (
    id               TEXT PRIMARY KEY,
    user_id          TEXT     NOT NULL,
    league_id        TEXT,
    achievement_type TEXT     NOT NULL,
    title            TEXT     NOT NULL,
    description      TEXT     NOT NULL,
    earned_at        DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_achievements_unique
    ON achievements(user_id, COALESCE(league_id, ''), achievement_type);
`

// SQLiteStore implements Store on an embedded SQLite database (pure Go,
// no cgo). Suited to single-instance deployments and local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Leagues ---

func (s *SQLiteStore) CreateLeague(ctx context.Context, l *model.League) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leagues (id, name, description, commissioner_id, is_public, invite_code,
		                      starting_capital, max_position_size, scoring_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Description, l.CommissionerID, l.IsPublic, l.InviteCode,
		l.StartingCapital.String(), l.MaxPositionSize.String(),
		l.ScoringType, l.Status, l.CreatedAt.UTC(),
	)
	return mapSQLiteError(err, "create league "+l.ID)
}

const sqliteLeagueColumns = `id, name, description, commissioner_id, is_public,
	COALESCE(invite_code, ''), starting_capital, max_position_size, scoring_type, status, created_at`

func (s *SQLiteStore) GetLeague(ctx context.Context, id string) (*model.League, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLeagueColumns+` FROM leagues WHERE id = ?`, id)
	l, err := scanLeague(row)
	if err != nil {
		return nil, mapSQLiteError(err, "get league "+id)
	}
	return l, nil
}

func (s *SQLiteStore) GetLeagueByInviteCode(ctx context.Context, code string) (*model.League, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeagueColumns+` FROM leagues WHERE UPPER(invite_code) = UPPER(?)`, code)
	l, err := scanLeague(row)
	if err != nil {
		return nil, mapSQLiteError(err, "get league by invite code")
	}
	return l, nil
}

func (s *SQLiteStore) ListLeaguesByStatus(ctx context.Context, status string) ([]model.League, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeagueColumns+` FROM leagues WHERE status = ? ORDER BY rowid`, status)
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

func (s *SQLiteStore) DeleteLeague(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leagues WHERE id = ?`, id)
	return sqliteAffected(res, err, "delete league "+id)
}

// --- Members ---

const sqliteMemberColumns = `id, league_id, user_id, current_balance, total_pnl,
	total_trades, win_rate, rank, joined_at`

func (s *SQLiteStore) CreateMember(ctx context.Context, m *model.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO league_members (`+sqliteMemberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.LeagueID, m.UserID, m.CurrentBalance.String(), m.TotalPnL.String(),
		m.TotalTrades, m.WinRate.String(), m.Rank, m.JoinedAt.UTC(),
	)
	return mapSQLiteError(err, "create member "+m.ID)
}

func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMemberColumns+` FROM league_members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err != nil {
		return nil, mapSQLiteError(err, "get member "+id)
	}
	return m, nil
}

func (s *SQLiteStore) ListMembersByLeague(ctx context.Context, leagueID string) ([]model.Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+sqliteMemberColumns+` FROM league_members WHERE league_id = ? ORDER BY rowid`, leagueID)
}

func (s *SQLiteStore) ListMembersByUser(ctx context.Context, userID string) ([]model.Member, error) {
	return s.queryMembers(ctx,
		`SELECT `+sqliteMemberColumns+` FROM league_members WHERE user_id = ? ORDER BY rowid`, userID)
}

func (s *SQLiteStore) queryMembers(ctx context.Context, query, arg string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
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

func (s *SQLiteStore) UpdateMemberStats(ctx context.Context, id string, st MemberStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE league_members SET current_balance = ?, total_pnl = ?, total_trades = ?, win_rate = ?
		 WHERE id = ?`,
		st.CurrentBalance.String(), st.TotalPnL.String(), st.TotalTrades, st.WinRate.String(), id,
	)
	return sqliteAffected(res, err, "update member "+id)
}

func (s *SQLiteStore) UpdateMemberRank(ctx context.Context, id string, rank int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE league_members SET rank = ? WHERE id = ?`, rank, id)
	return sqliteAffected(res, err, "update rank "+id)
}

// --- Positions ---

const sqlitePositionColumns = `id, member_id, market_id, market_slug, market_question, outcome,
	shares, entry_price, current_price, unrealized_pnl, created_at, updated_at`

func (s *SQLiteStore) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (`+sqlitePositionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.MarketID, p.MarketSlug, p.MarketQuestion, p.Outcome,
		p.Shares.String(), p.EntryPrice.String(), p.CurrentPrice.String(), p.UnrealizedPnL.String(),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return mapSQLiteError(err, "create position "+p.ID)
}

func (s *SQLiteStore) FindPosition(ctx context.Context, memberID, marketID, outcome string) (*model.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePositionColumns+` FROM positions
		 WHERE member_id = ? AND market_id = ? AND outcome = ?
		 ORDER BY rowid LIMIT 1`, memberID, marketID, outcome)
	p, err := scanPosition(row)
	if err != nil {
		return nil, mapSQLiteError(err, "find position")
	}
	return p, nil
}

func (s *SQLiteStore) ListPositionsByMember(ctx context.Context, memberID string) ([]model.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+sqlitePositionColumns+` FROM positions WHERE member_id = ? ORDER BY rowid`, memberID)
}

func (s *SQLiteStore) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.queryPositions(ctx, `SELECT `+sqlitePositionColumns+` FROM positions ORDER BY rowid`)
}

func (s *SQLiteStore) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *SQLiteStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET shares = ?, current_price = ?, unrealized_pnl = ?, updated_at = ?
		 WHERE id = ?`,
		p.Shares.String(), p.CurrentPrice.String(), p.UnrealizedPnL.String(), p.UpdatedAt.UTC(), p.ID,
	)
	return sqliteAffected(res, err, "update position "+p.ID)
}

// MarkPosition reads and rewrites the row in one transaction; decimals
// are stored as TEXT so the pnl is computed here rather than in SQL.
func (s *SQLiteStore) MarkPosition(ctx context.Context, id string, price decimal.Decimal, at time.Time) error {
	op := "mark position " + id
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	var sharesS, entryS string
	err = tx.QueryRowContext(ctx,
		`SELECT shares, entry_price FROM positions WHERE id = ?`, id).Scan(&sharesS, &entryS)
	if err != nil {
		return mapSQLiteError(err, op)
	}
	shares, err := decimal.NewFromString(sharesS)
	if err != nil {
		return fmt.Errorf("%s: shares: %w", op, err)
	}
	entry, err := decimal.NewFromString(entryS)
	if err != nil {
		return fmt.Errorf("%s: entry price: %w", op, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE positions SET current_price = ?, unrealized_pnl = ?, updated_at = ? WHERE id = ?`,
		price.String(), price.Sub(entry).Mul(shares).String(), at.UTC(), id,
	)
	if err := sqliteAffected(res, err, op); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeletePosition(ctx context.Context, id string) (*model.Position, error) {
	op := "delete position " + id
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	p, err := scanPosition(tx.QueryRowContext(ctx,
		`SELECT `+sqlitePositionColumns+` FROM positions WHERE id = ?`, id))
	if err != nil {
		return nil, mapSQLiteError(err, op)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err := sqliteAffected(res, err, op); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// --- Trades ---

func (s *SQLiteStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	var pnl sql.NullString
	if t.PnL != nil {
		pnl = sql.NullString{String: t.PnL.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, member_id, market_id, market_slug, market_question, trade_type,
		                     outcome, shares, price, total_value, pnl, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MemberID, t.MarketID, t.MarketSlug, t.MarketQuestion, t.TradeType,
		t.Outcome, t.Shares.String(), t.Price.String(), t.TotalValue.String(), pnl, t.CreatedAt.UTC(),
	)
	return mapSQLiteError(err, "insert trade "+t.ID)
}

func (s *SQLiteStore) ListTradesByMember(ctx context.Context, memberID string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, market_id, market_slug, market_question, trade_type,
		        outcome, shares, price, total_value, pnl, created_at
		 FROM trades WHERE member_id = ? ORDER BY rowid`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var sharesS, priceS, totalS string
		var pnlS sql.NullString
		if err := rows.Scan(&t.ID, &t.MemberID, &t.MarketID, &t.MarketSlug, &t.MarketQuestion,
			&t.TradeType, &t.Outcome, &sharesS, &priceS, &totalS, &pnlS, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Shares, _ = decimal.NewFromString(sharesS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.TotalValue, _ = decimal.NewFromString(totalS)
		if pnlS.Valid {
			pnl, _ := decimal.NewFromString(pnlS.String)
			t.PnL = &pnl
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// --- Achievements ---

func (s *SQLiteStore) HasAchievement(ctx context.Context, userID string, leagueID *string, achievementType string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM achievements
		 WHERE user_id = ? AND COALESCE(league_id, '') = ? AND achievement_type = ?`,
		userID, derefLeague(leagueID), achievementType).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has achievement: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) InsertAchievement(ctx context.Context, a *model.Achievement) error {
	var league sql.NullString
	if a.LeagueID != nil {
		league = sql.NullString{String: *a.LeagueID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO achievements (id, user_id, league_id, achievement_type, title, description, earned_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, league, a.AchievementType, a.Title, a.Description, a.EarnedAt.UTC(),
	)
	return mapSQLiteError(err, "insert achievement "+a.AchievementType)
}

func (s *SQLiteStore) ListAchievementsByUser(ctx context.Context, userID string) ([]model.Achievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, league_id, achievement_type, title, description, earned_at
		 FROM achievements WHERE user_id = ? ORDER BY rowid`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Achievement
	for rows.Next() {
		var a model.Achievement
		var league sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &league, &a.AchievementType,
			&a.Title, &a.Description, &a.EarnedAt); err != nil {
			return nil, err
		}
		if league.Valid {
			v := league.String
			a.LeagueID = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func derefLeague(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func mapSQLiteError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sqliteAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return mapSQLiteError(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
