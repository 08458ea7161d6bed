// Command leaguectl runs batch passes and prints league reports from the
// command line, against the same store the server uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"

	"github.com/polylabs/league-engine/internal/achievement"
	"github.com/polylabs/league-engine/internal/config"
	"github.com/polylabs/league-engine/internal/gamma"
	"github.com/polylabs/league-engine/internal/jobs"
	"github.com/polylabs/league-engine/internal/model"
	"github.com/polylabs/league-engine/internal/ranking"
	"github.com/polylabs/league-engine/internal/settlement"
	"github.com/polylabs/league-engine/internal/store"
)

const usage = `usage: leaguectl [-config path] <command> [args]

commands:
  rank [league-id]        re-rank one league, or every active league
  refresh                 mark open positions to current prices
  settle                  pay out positions on resolved markets
  standings <league-id>   print a league's members by rank
  achievements <user-id>  award earned badges and list them
  tasks                   list the batch operations
`

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	cfg.Log.Format = "text"
	slog.SetDefault(config.NewLogger(cfg.Log, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flag.Args(), os.Stdout); err != nil {
		slog.Error("leaguectl failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	if cmd == "tasks" {
		printTasks(out)
		return nil
	}

	st, closeStore, err := store.Open(ctx, store.OpenConfig{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		RedisURL: cfg.Redis.URL,
		CacheTTL: cfg.Redis.TTL(),
	})
	if err != nil {
		return err
	}
	defer closeStore()

	markets := gamma.NewClient(gamma.Config{
		GammaBase:     cfg.Gamma.GammaBase,
		CLOBBase:      cfg.Gamma.CLOBBase,
		Timeout:       cfg.Gamma.Timeout(),
		RatePerSecond: cfg.Gamma.RatePerSecond,
		Burst:         cfg.Gamma.Burst,
	})
	runner := jobs.NewRunner(ctx)

	switch cmd {
	case "rank":
		ranker := ranking.NewEngine(st, nil)
		if len(rest) > 0 {
			n, err := ranker.RankLeague(ctx, rest[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ranked %d members\n", n)
			return printStandings(ctx, st, rest[0], out)
		}
		return runner.Run(jobs.UpdateRankings, func(ctx context.Context) error {
			rep, err := ranker.RankAll(ctx)
			if err == nil {
				printReport(out, [][2]string{
					{"leagues ranked", fmt.Sprint(rep.LeaguesRanked)},
					{"members updated", fmt.Sprint(rep.MembersUpdated)},
					{"failures", fmt.Sprint(rep.Failures)},
				})
			}
			return err
		})

	case "refresh":
		eng := settlement.NewEngine(st, markets, nil)
		return runner.Run(jobs.UpdatePrices, func(ctx context.Context) error {
			rep, err := eng.RefreshPrices(ctx)
			if err == nil {
				printReport(out, [][2]string{
					{"markets checked", fmt.Sprint(rep.MarketsChecked)},
					{"positions updated", fmt.Sprint(rep.PositionsUpdated)},
					{"failures", fmt.Sprint(rep.Failures)},
				})
			}
			return err
		})

	case "settle":
		eng := settlement.NewEngine(st, markets, nil)
		return runner.Run(jobs.SettlePositions, func(ctx context.Context) error {
			rep, err := eng.Settle(ctx)
			if err == nil {
				printReport(out, [][2]string{
					{"markets checked", fmt.Sprint(rep.MarketsChecked)},
					{"markets resolved", fmt.Sprint(rep.MarketsResolved)},
					{"positions settled", fmt.Sprint(rep.PositionsSettled)},
					{"skipped", fmt.Sprint(rep.Skipped)},
					{"failures", fmt.Sprint(rep.Failures)},
				})
			}
			return err
		})

	case "standings":
		if len(rest) == 0 {
			return fmt.Errorf("standings: league id required")
		}
		return printStandings(ctx, st, rest[0], out)

	case "achievements":
		if len(rest) == 0 {
			return fmt.Errorf("achievements: user id required")
		}
		awarded, err := achievement.NewChecker(st, nil).Check(ctx, rest[0], "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "newly awarded: %d\n", len(awarded))
		list, err := st.ListAchievementsByUser(ctx, rest[0])
		if err != nil {
			return err
		}
		printAchievements(out, list)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func printStandings(ctx context.Context, st store.Store, leagueID string, out io.Writer) error {
	l, err := st.GetLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	members, err := st.ListMembersByLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	ranking.Order(members)

	fmt.Fprintf(out, "%s (%s, %s scoring)\n", l.Name, l.Status, l.ScoringType)
	table := tablewriter.NewWriter(out)
	table.Header("Rank", "User", "Balance", "PnL", "Trades", "Win %")
	for _, m := range members {
		table.Append(
			fmt.Sprintf("%d", m.Rank),
			m.UserID,
			m.CurrentBalance.StringFixed(2),
			m.TotalPnL.StringFixed(2),
			fmt.Sprintf("%d", m.TotalTrades),
			m.WinRate.StringFixed(2),
		)
	}
	table.Render()
	return nil
}

func printAchievements(out io.Writer, list []model.Achievement) {
	table := tablewriter.NewWriter(out)
	table.Header("Type", "Title", "League", "Earned")
	for _, a := range list {
		league := "-"
		if a.LeagueID != nil {
			league = *a.LeagueID
		}
		table.Append(a.AchievementType, a.Title, league, a.EarnedAt.Format("2006-01-02 15:04"))
	}
	table.Render()
}

func printReport(out io.Writer, rows [][2]string) {
	table := tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	for _, r := range rows {
		table.Append(r[0], r[1])
	}
	table.Render()
}

func printTasks(out io.Writer) {
	table := tablewriter.NewWriter(out)
	table.Header("Task", "Endpoint", "Schedule")
	for _, t := range jobs.Tasks() {
		table.Append(t.Name, t.Endpoint, t.Schedule)
	}
	table.Render()
}
