package svc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/application/service"
	"polyagent/internal/application/strategy"
	domain "polyagent/internal/domain/service"
	"polyagent/internal/infrastructure/clobws"
	"polyagent/internal/infrastructure/config"
	"polyagent/internal/infrastructure/executor"
	"polyagent/internal/infrastructure/gamma"
	"polyagent/internal/infrastructure/metrics"
	"polyagent/internal/infrastructure/news"
	"polyagent/internal/infrastructure/notify"
	"polyagent/internal/infrastructure/storage/composite"
	postgresrepo "polyagent/internal/infrastructure/storage/postgres"
	redisrepo "polyagent/internal/infrastructure/storage/redis"
	sqliterepo "polyagent/internal/infrastructure/storage/sqlite"
)

// Redis key layout; fixed so external consumers can subscribe blind.
const (
	redisPrefix        = "polyagent"
	redisSignalStream  = "polyagent:signals"
	redisSignalChannel = "polyagent:signals:pub"
	redisTTL           = 24 * time.Hour
)

// ServiceContext owns every wired dependency of the engine. It is the
// single place that reads config and builds infrastructure; construction
// order follows the dependency chain (storage, data, executor, notifier,
// orchestrator) and Close unwinds it in reverse.
type ServiceContext struct {
	Config *config.Config

	Repo         *sqliterepo.Repo
	Data         port.DataProvider
	News         port.NewsProvider
	Feed         port.PriceFeed
	Notifier     port.Notifier
	Executor     port.Executor
	Orchestrator *service.Orchestrator

	metricsSrv  *http.Server
	closerChain []func() error
}

// New builds a fully wired ServiceContext from config. A partially built
// context is torn down before the error returns.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{Config: cfg}

	if err := sc.init(ctx); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) init(ctx context.Context) error {
	cfg := sc.Config

	repo, err := sqliterepo.New(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite init: %w", err)
	}
	sc.Repo = repo
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})
	log.Info().Str("path", cfg.Storage.SQLitePath).Msg("sqlite initialized")

	archive, err := sc.initArchive(ctx)
	if err != nil {
		return err
	}

	sc.Data = gamma.NewClient(
		cfg.Data.GammaURL,
		cfg.Data.ClobURL,
		time.Duration(cfg.Data.CacheTTLSec)*time.Second,
		time.Duration(cfg.Data.TimeoutSec)*time.Second,
	)

	if cfg.News.Enabled {
		sc.News = news.NewGoogleRSS(time.Duration(cfg.Data.TimeoutSec) * time.Second)
	} else {
		sc.News = news.Disabled{}
	}

	if cfg.WebSocket.Enabled {
		sc.Feed = clobws.NewFeed(cfg.WebSocket.URL)
	}

	sc.Notifier = sc.buildNotifier()

	mode := service.Mode(cfg.App.Mode)
	exec, err := executor.New(ctx, mode, cfg.App.StartingBalance, cfg.Data.ClobURL,
		time.Duration(cfg.Data.TimeoutSec)*time.Second, repo)
	if err != nil {
		return fmt.Errorf("executor init: %w", err)
	}
	sc.Executor = exec

	strategies := service.BuildStrategies(StrategySetFrom(cfg))
	if len(strategies) == 0 {
		return ErrNoStrategiesEnabled
	}

	orch, err := service.NewOrchestrator(EngineConfigFrom(cfg), service.Deps{
		Data:       sc.Data,
		Repo:       repo,
		Archive:    archive,
		Executor:   exec,
		Notifier:   sc.Notifier,
		Strategies: strategies,
	})
	if err != nil {
		return err
	}
	sc.Orchestrator = orch

	if cfg.Metrics.Enabled {
		sc.metricsSrv = metrics.Serve(cfg.Metrics.Listen)
		sc.closerChain = append(sc.closerChain, func() error {
			return sc.metricsSrv.Close()
		})
		log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint up")
	}

	log.Info().
		Str("mode", cfg.App.Mode).
		Int("strategies", len(strategies)).
		Msg("all components initialized")
	return nil
}

// initArchive assembles the best-effort secondary stores. Any combination
// of postgres, redis and the metrics counter may be active; nil means no
// archive at all.
func (sc *ServiceContext) initArchive(ctx context.Context) (port.Archiver, error) {
	cfg := sc.Config
	var stores []port.Archiver

	if cfg.Storage.Postgres.Enabled {
		pg, err := postgresrepo.New(cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		stores = append(stores, pg)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return pg.Close()
		})
		log.Info().Msg("postgres archive initialized")
	}

	if cfg.Storage.Redis.Enabled {
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr: cfg.Storage.Redis.Addr,
			DB:   cfg.Storage.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		stores = append(stores, redisrepo.New(rdb, redisPrefix, redisTTL, redisSignalStream, redisSignalChannel))
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing redis connection")
			return rdb.Close()
		})
		log.Info().Str("addr", cfg.Storage.Redis.Addr).Int("db", cfg.Storage.Redis.DB).Msg("redis archive initialized")
	}

	if cfg.Metrics.Enabled {
		stores = append(stores, metrics.Archiver{})
	}

	fanout := composite.New(stores...)
	if fanout.Empty() {
		return nil, nil
	}
	return fanout, nil
}

func (sc *ServiceContext) buildNotifier() port.Notifier {
	cfg := sc.Config
	var sinks []notify.Sink

	if cfg.Notify.Console {
		sinks = append(sinks, notify.NewConsole())
	}
	if cfg.Notify.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhook(cfg.Notify.Webhook.URL, 10*time.Second))
	}
	if cfg.Notify.Telegram.Enabled {
		token := os.Getenv("TELEGRAM_BOT_TOKEN")
		if token == "" {
			log.Warn().Msg("telegram enabled but TELEGRAM_BOT_TOKEN not set, skipping sink")
		} else if tg, err := notify.NewTelegram(token, cfg.Notify.Telegram.ChatID); err != nil {
			log.Warn().Err(err).Msg("telegram sink init failed, skipping")
		} else {
			sinks = append(sinks, tg)
		}
	}

	if len(sinks) == 0 {
		return nil
	}
	return notify.NewManager(sinks...)
}

// NewsOnly builds just the news provider, for the CLI headline search.
// The full context (storage, executor) is not needed to query headlines.
func NewsOnly(cfg *config.Config) port.NewsProvider {
	if !cfg.News.Enabled {
		return news.Disabled{}
	}
	return news.NewGoogleRSS(time.Duration(cfg.Data.TimeoutSec) * time.Second)
}

// Close tears the context down in reverse construction order.
func (sc *ServiceContext) Close() error {
	var firstErr error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EngineConfigFrom maps file config onto the engine's immutable snapshot.
// Reload reuses the same mapping so file and engine views never drift.
func EngineConfigFrom(cfg *config.Config) service.EngineConfig {
	return service.EngineConfig{
		Mode:        service.Mode(cfg.App.Mode),
		MarketLimit: cfg.App.MarketLimit,
		Aggregation: domain.AggregationParams{
			MinConfidence: cfg.Aggregation.MinConfidence,
			MinStrategies: cfg.Aggregation.MinStrategies,
		},
		Sizing: service.SizingConfig{
			Method:        domain.SizingMethod(cfg.PositionSizing.Method),
			KellyFraction: cfg.PositionSizing.KellyFraction,
			MaxBetPct:     cfg.PositionSizing.MaxBetPct,
		},
		Risk: domain.RiskLimits{
			MaxPositionSize: cfg.Risk.MaxPositionSize,
			MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
			MaxOpenOrders:   cfg.Risk.MaxOpenOrders,
		},
		Exit: domain.ExitRules{
			Enabled:           cfg.ExitManager.Enabled,
			ProfitTargetPct:   cfg.ExitManager.ProfitTargetPct,
			StopLossPct:       cfg.ExitManager.StopLossPct,
			SignalReversal:    cfg.ExitManager.SignalReversal,
			MaxHoldHours:      cfg.ExitManager.MaxHoldHours,
			ArbCloseTolerance: cfg.ExitManager.ArbCloseTolerance,
		},
		Orders: service.ConditionalOrderConfig{
			Enabled:              cfg.ConditionalOrders.Enabled,
			DefaultStopLossPct:   cfg.ConditionalOrders.DefaultStopLossPct,
			DefaultTakeProfitPct: cfg.ConditionalOrders.DefaultTakeProfitPct,
			TrailingStopEnabled:  cfg.ConditionalOrders.TrailingStopEnabled,
			TrailingStopPct:      cfg.ConditionalOrders.TrailingStopPct,
		},
	}
}

// StrategySetFrom maps the per-strategy config tables onto the closed
// strategy enumeration. Disabled strategies stay nil.
func StrategySetFrom(cfg *config.Config) service.StrategySet {
	var set service.StrategySet
	if c := cfg.Strategies.SignalTrader; c.Enabled {
		set.SignalTrader = &strategy.SignalTraderParams{
			VolumeThreshold:    c.VolumeThreshold,
			PriceMoveThreshold: c.PriceMoveThreshold,
		}
	}
	if c := cfg.Strategies.Arbitrageur; c.Enabled {
		set.Arbitrageur = &strategy.ArbitrageurParams{
			PriceSumTolerance: c.PriceSumTolerance,
			OrderSize:         c.OrderSize,
		}
	}
	if c := cfg.Strategies.MarketMaker; c.Enabled {
		set.MarketMaker = &strategy.MarketMakerParams{
			Spread:       c.Spread,
			MinLiquidity: c.MinLiquidity,
			OrderSize:    c.OrderSize,
		}
	}
	return set
}
