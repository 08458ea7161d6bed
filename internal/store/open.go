package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// OpenConfig selects and configures a Store.
type OpenConfig struct {
	Driver   string // memory | postgres | sqlite
	DSN      string
	RedisURL string // optional read-through cache
	CacheTTL time.Duration
}

// Open builds the configured Store. The returned func releases every
// connection it opened and is safe to call when Open fails.
func Open(ctx context.Context, cfg OpenConfig) (Store, func(), error) {
	var (
		st      Store
		cleanup []func()
	)
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, closeAll, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("migrate: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case "sqlite":
		lite, err := NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, closeAll, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("opened SQLite store", "path", cfg.DSN)

	case "memory", "":
		slog.Warn("using in-memory store (data will not persist)")
		st = NewMemoryStore()

	default:
		return nil, closeAll, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = NewCachedStore(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
	}

	return st, closeAll, nil
}
