package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/polylabs/league-engine/internal/achievement"
	"github.com/polylabs/league-engine/internal/api"
	"github.com/polylabs/league-engine/internal/config"
	"github.com/polylabs/league-engine/internal/gamma"
	"github.com/polylabs/league-engine/internal/jobs"
	"github.com/polylabs/league-engine/internal/league"
	"github.com/polylabs/league-engine/internal/ledger"
	"github.com/polylabs/league-engine/internal/metrics"
	"github.com/polylabs/league-engine/internal/ranking"
	"github.com/polylabs/league-engine/internal/settlement"
	"github.com/polylabs/league-engine/internal/store"
	"github.com/polylabs/league-engine/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, closeStore, err := store.Open(ctx, store.OpenConfig{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		RedisURL: cfg.Redis.URL,
		CacheTTL: cfg.Redis.TTL(),
	})
	if err != nil {
		slog.Error("store init failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Market data gateway ---
	markets := gamma.NewClient(gamma.Config{
		GammaBase:     cfg.Gamma.GammaBase,
		CLOBBase:      cfg.Gamma.CLOBBase,
		Timeout:       cfg.Gamma.Timeout(),
		RatePerSecond: cfg.Gamma.RatePerSecond,
		Burst:         cfg.Gamma.Burst,
	})

	// --- WebSocket hub ---
	hub := stream.NewHub()

	g, gctx := errgroup.WithContext(ctx)

	// --- Engines ---
	settler := settlement.NewEngine(st, markets, hub)
	ranker := ranking.NewEngine(st, hub)
	runner := jobs.NewRunner(gctx)

	h := api.New(api.Deps{
		Store:        st,
		Markets:      markets,
		Leagues:      league.NewService(st),
		Trades:       ledger.NewProcessor(st, hub),
		Settlement:   settler,
		Rankings:     ranker,
		Achievements: achievement.NewChecker(st, hub),
		Runner:       runner,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","service":"league-engine","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket route is long-lived and stays outside the timeout.
		r.Get("/ws", hub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout()))
			h.Register(r)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("league-engine listening", "port", cfg.Server.Port, "store", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched := jobs.NewScheduler(runner,
			jobs.Schedule{Name: jobs.UpdatePrices, Interval: cfg.Scheduler.PriceInterval(), Fn: func(ctx context.Context) error {
				_, err := settler.RefreshPrices(ctx)
				return err
			}},
			jobs.Schedule{Name: jobs.UpdateRankings, Interval: cfg.Scheduler.RankingInterval(), Fn: func(ctx context.Context) error {
				_, err := ranker.RankAll(ctx)
				return err
			}},
			jobs.Schedule{Name: jobs.SettlePositions, Interval: cfg.Scheduler.SettleInterval(), Fn: func(ctx context.Context) error {
				_, err := settler.Settle(ctx)
				return err
			}},
		)
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down league-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("league-engine exited with error", "err", err)
	}
	runner.Wait()
	slog.Info("league-engine stopped")
}

// cors allows cross-origin requests from the web frontend.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
