package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/application/service"
	"polyagent/internal/domain/model"
	"polyagent/internal/infrastructure/config"
	"polyagent/internal/infrastructure/logger"
	"polyagent/internal/infrastructure/metrics"
	"polyagent/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "verbose logging")
	liveOK := flag.Bool("live", false, "confirm live trading with real funds")
	flag.Usage = usage
	flag.Parse()

	logger.Setup(*debug)
	_ = godotenv.Load()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "run"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	if cfg.App.Mode == "live" && !liveConfirmed(cmd, *liveOK) {
		log.Fatal().Msg("live mode places real orders; re-run with -live to confirm")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run", "tick", "status", "report":
		sc, err := svc.New(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("initialization failed")
		}
		defer func() {
			if err := sc.Close(); err != nil {
				log.Warn().Err(err).Msg("shutdown cleanup failed")
			}
		}()

		switch cmd {
		case "run":
			runLoop(ctx, sc, *configPath)
		case "tick":
			runTick(ctx, sc)
		case "status":
			printStatus(ctx, sc)
		case "report":
			printReport(ctx, sc)
		}
	case "news":
		runNews(ctx, cfg, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
}

// liveConfirmed: read-only subcommands never need the confirmation flag.
func liveConfirmed(cmd string, flagged bool) bool {
	switch cmd {
	case "status", "report", "news":
		return true
	}
	return flagged
}

// runLoop ticks on the poll interval until interrupted, hot-reloading the
// config file whenever its mtime changes. Mode changes are refused by the
// engine and require a restart.
func runLoop(ctx context.Context, sc *svc.ServiceContext, configPath string) {
	interval := time.Duration(sc.Config.App.PollIntervalSec) * time.Second
	lastMtime, _ := config.Mtime(configPath)
	current := sc.Config

	log.Info().
		Str("mode", current.App.Mode).
		Dur("interval", interval).
		Msg("engine started")

	if sc.Feed != nil {
		go streamQuotes(ctx, sc.Feed, sc.Executor, interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runTick(ctx, sc)

		select {
		case <-ctx.Done():
			log.Info().Msg("engine stopped")
			return
		case <-ticker.C:
		}

		if mtime, err := config.Mtime(configPath); err == nil && mtime.After(lastMtime) {
			lastMtime = mtime
			current = reload(sc, configPath, current)
		}
	}
}

// reload applies a changed config file. A bad file or a refused change
// keeps the previous config running.
func reload(sc *svc.ServiceContext, configPath string, current *config.Config) *config.Config {
	next, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("config changed but failed to load, keeping previous")
		return current
	}

	diff := config.Diff(current, next)
	if diff == "" {
		return current
	}

	strategies := service.BuildStrategies(svc.StrategySetFrom(next))
	if len(strategies) == 0 {
		log.Error().Msg("reloaded config enables no strategies, keeping previous")
		return current
	}

	if err := sc.Orchestrator.Reload(svc.EngineConfigFrom(next), strategies, diff); err != nil {
		log.Error().Err(err).Msg("reload refused, keeping previous")
		return current
	}
	log.Info().Str("diff", diff).Msg("config reloaded")
	return next
}

func runTick(ctx context.Context, sc *svc.ServiceContext) {
	res, err := sc.Orchestrator.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tick aborted")
		return
	}
	metrics.TicksTotal.Inc()
	log.Info().
		Int("markets", res.MarketsFetched).
		Int("signals", res.SignalsGenerated).
		Int("orders_triggered", res.OrdersTriggered).
		Int("exits", res.ExitsExecuted).
		Int("trades", res.TradesExecuted).
		Msg("tick complete")
}

// streamQuotes keeps the websocket feed subscribed to the tokens currently
// held, re-checking the position set every interval and resubscribing when
// it changes. Trading decisions stay on the REST poll cadence; the stream
// is an observability layer.
func streamQuotes(ctx context.Context, feed port.PriceFeed, exec port.Executor, interval time.Duration) {
	var (
		cancel     context.CancelFunc
		subscribed string
	)
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tokens := heldTokens(ctx, exec)
		if key := strings.Join(tokens, ","); key != subscribed {
			if cancel != nil {
				cancel()
				cancel = nil
			}
			subscribed = key

			if len(tokens) > 0 {
				var subCtx context.Context
				subCtx, cancel = context.WithCancel(ctx)
				quotes, err := feed.Subscribe(subCtx, tokens)
				if err != nil {
					log.Warn().Err(err).Msg("websocket subscribe failed")
					cancel()
					cancel = nil
					subscribed = ""
				} else {
					log.Debug().Int("tokens", len(tokens)).Msg("quote stream subscribed")
					go drainQuotes(quotes)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// heldTokens returns the sorted token ids of open positions; sorted so the
// set compares stably across cycles.
func heldTokens(ctx context.Context, exec port.Executor) []string {
	pf, err := exec.Portfolio(ctx)
	if err != nil {
		return nil
	}
	tokens := make([]string, 0, len(pf.Positions))
	for tokenID := range pf.Positions {
		tokens = append(tokens, tokenID)
	}
	sort.Strings(tokens)
	return tokens
}

func drainQuotes(quotes <-chan model.PriceQuote) {
	for q := range quotes {
		log.Debug().
			Str("token", q.TokenID).
			Float64("bid", q.Bid).
			Float64("ask", q.Ask).
			Msg("quote update")
	}
}

func printStatus(ctx context.Context, sc *svc.ServiceContext) {
	pf, err := sc.Executor.Portfolio(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("portfolio unavailable")
	}

	fmt.Printf("Mode:       %s\n", sc.Orchestrator.Mode())
	fmt.Printf("Balance:    $%.2f\n", pf.Balance)
	fmt.Printf("Total:      $%.2f\n", pf.TotalValue())
	fmt.Printf("Positions:  %d\n", len(pf.Positions))

	tokens := make([]string, 0, len(pf.Positions))
	for tokenID := range pf.Positions {
		tokens = append(tokens, tokenID)
	}
	sort.Strings(tokens)
	for _, tokenID := range tokens {
		pos := pf.Positions[tokenID]
		fmt.Printf("  %-20s %8.2f sh @ %.4f  (%s, opened %s)\n",
			tokenID, pos.Shares, pos.AvgPrice, pos.EntryStrategy,
			pos.OpenedAt.Format("2006-01-02 15:04"))
	}

	if loss, err := sc.Orchestrator.DailyLoss(ctx); err == nil {
		fmt.Printf("Daily loss: $%.2f\n", loss)
	}
}

func printReport(ctx context.Context, sc *svc.ServiceContext) {
	r, err := service.BuildReport(ctx, sc.Repo, sc.Config.App.StartingBalance)
	if err != nil {
		log.Fatal().Err(err).Msg("report failed")
	}

	fmt.Printf("Total return:   %+.2f%%\n", r.TotalReturn*100)
	fmt.Printf("Sharpe ratio:   %.2f\n", r.SharpeRatio)
	fmt.Printf("Max drawdown:   %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("Win rate:       %.1f%%\n", r.WinRate*100)
	fmt.Printf("Profit factor:  %.2f\n", r.ProfitFactor)
	fmt.Printf("Trades:         %d (%d round trips)\n", r.TotalTrades, r.RoundTrips)

	strategies := make([]string, 0, len(r.NetByStrategy))
	for s := range r.NetByStrategy {
		strategies = append(strategies, s)
	}
	sort.Strings(strategies)
	for _, s := range strategies {
		fmt.Printf("  %-15s net %+.2f\n", s, r.NetByStrategy[s])
	}
}

func runNews(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) == 0 {
		log.Fatal().Msg("usage: polyagent news <query>")
	}
	query := strings.Join(args, " ")

	sc := svc.NewsOnly(cfg)
	items, err := sc.Search(ctx, query, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("news search failed")
	}
	for _, it := range items {
		when := "unknown date"
		if !it.Published.IsZero() {
			when = it.Published.Format("2006-01-02 15:04")
		}
		fmt.Printf("[%s] %s\n    %s\n", when, it.Title, it.URL)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: polyagent [flags] <command> [args]

Commands:
  run      poll markets and trade on the configured interval (default)
  tick     run exactly one trading cycle and exit
  status   print current portfolio and positions
  report   print P&L summary from the trade log
  news     search recent headlines: polyagent news <query>

Flags:
`)
	flag.PrintDefaults()
}
