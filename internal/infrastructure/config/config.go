package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		Mode            string  `toml:"mode"` // monitor | paper | live
		PollIntervalSec int     `toml:"poll_interval_sec"`
		StartingBalance float64 `toml:"starting_balance"`
		MarketLimit     int     `toml:"market_limit"`
	} `toml:"app"`

	Risk struct {
		MaxPositionSize float64 `toml:"max_position_size"`
		MaxDailyLoss    float64 `toml:"max_daily_loss"`
		MaxOpenOrders   int     `toml:"max_open_orders"`
	} `toml:"risk"`

	PositionSizing struct {
		Method        string  `toml:"method"` // fixed | kelly | fractional_kelly
		KellyFraction float64 `toml:"kelly_fraction"`
		MaxBetPct     float64 `toml:"max_bet_pct"`
	} `toml:"position_sizing"`

	Aggregation struct {
		MinConfidence float64 `toml:"min_confidence"`
		MinStrategies int     `toml:"min_strategies"`
	} `toml:"aggregation"`

	ConditionalOrders struct {
		Enabled              bool    `toml:"enabled"`
		DefaultStopLossPct   float64 `toml:"default_stop_loss_pct"`
		DefaultTakeProfitPct float64 `toml:"default_take_profit_pct"`
		TrailingStopEnabled  bool    `toml:"trailing_stop_enabled"`
		TrailingStopPct      float64 `toml:"trailing_stop_pct"`
	} `toml:"conditional_orders"`

	ExitManager struct {
		Enabled           bool    `toml:"enabled"`
		ProfitTargetPct   float64 `toml:"profit_target_pct"`
		StopLossPct       float64 `toml:"stop_loss_pct"`
		SignalReversal    bool    `toml:"signal_reversal"`
		MaxHoldHours      float64 `toml:"max_hold_hours"`
		ArbCloseTolerance float64 `toml:"arb_close_tolerance"`
	} `toml:"exit_manager"`

	Strategies struct {
		SignalTrader struct {
			Enabled            bool    `toml:"enabled"`
			VolumeThreshold    float64 `toml:"volume_threshold"`
			PriceMoveThreshold float64 `toml:"price_move_threshold"`
		} `toml:"signal_trader"`

		Arbitrageur struct {
			Enabled           bool    `toml:"enabled"`
			PriceSumTolerance float64 `toml:"price_sum_tolerance"`
			OrderSize         float64 `toml:"order_size"`
		} `toml:"arbitrageur"`

		MarketMaker struct {
			Enabled      bool    `toml:"enabled"`
			Spread       float64 `toml:"spread"`
			MinLiquidity float64 `toml:"min_liquidity"`
			OrderSize    float64 `toml:"order_size"`
		} `toml:"market_maker"`
	} `toml:"strategies"`

	Data struct {
		GammaURL    string `toml:"gamma_url"`
		ClobURL     string `toml:"clob_url"`
		CacheTTLSec int    `toml:"cache_ttl_sec"`
		TimeoutSec  int    `toml:"timeout_sec"`
	} `toml:"data"`

	WebSocket struct {
		Enabled bool   `toml:"enabled"`
		URL     string `toml:"url"`
	} `toml:"websocket"`

	News struct {
		Enabled bool `toml:"enabled"`
	} `toml:"news"`

	Storage struct {
		SQLitePath string `toml:"sqlite_path"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled bool   `toml:"enabled"`
			Addr    string `toml:"addr"`
			DB      int    `toml:"db"`
		} `toml:"redis"`
	} `toml:"storage"`

	Notify struct {
		Console bool `toml:"console"`

		Webhook struct {
			Enabled bool   `toml:"enabled"`
			URL     string `toml:"url"`
		} `toml:"webhook"`

		Telegram struct {
			Enabled bool  `toml:"enabled"`
			ChatID  int64 `toml:"chat_id"`
			// Token comes from TELEGRAM_BOT_TOKEN, never the config file.
		} `toml:"telegram"`
	} `toml:"notify"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"metrics"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Mode == "" {
		cfg.App.Mode = "paper"
	}
	if cfg.App.PollIntervalSec <= 0 {
		cfg.App.PollIntervalSec = 60
	}
	if cfg.App.StartingBalance <= 0 {
		cfg.App.StartingBalance = 1000
	}
	if cfg.App.MarketLimit <= 0 {
		cfg.App.MarketLimit = 100
	}

	if cfg.Risk.MaxPositionSize <= 0 {
		cfg.Risk.MaxPositionSize = 100
	}
	if cfg.Risk.MaxDailyLoss <= 0 {
		cfg.Risk.MaxDailyLoss = 50
	}
	if cfg.Risk.MaxOpenOrders <= 0 {
		cfg.Risk.MaxOpenOrders = 10
	}

	if cfg.PositionSizing.Method == "" {
		cfg.PositionSizing.Method = "fixed"
	}
	if cfg.PositionSizing.KellyFraction <= 0 {
		cfg.PositionSizing.KellyFraction = 0.25
	}
	if cfg.PositionSizing.MaxBetPct <= 0 {
		cfg.PositionSizing.MaxBetPct = 0.10
	}

	if cfg.Aggregation.MinConfidence <= 0 {
		cfg.Aggregation.MinConfidence = 0.5
	}
	if cfg.Aggregation.MinStrategies <= 0 {
		cfg.Aggregation.MinStrategies = 1
	}

	if cfg.ConditionalOrders.DefaultStopLossPct <= 0 {
		cfg.ConditionalOrders.DefaultStopLossPct = 0.10
	}
	if cfg.ConditionalOrders.DefaultTakeProfitPct <= 0 {
		cfg.ConditionalOrders.DefaultTakeProfitPct = 0.20
	}
	if cfg.ConditionalOrders.TrailingStopPct <= 0 {
		cfg.ConditionalOrders.TrailingStopPct = 0.10
	}

	if cfg.ExitManager.ProfitTargetPct <= 0 {
		cfg.ExitManager.ProfitTargetPct = 0.15
	}
	if cfg.ExitManager.StopLossPct <= 0 {
		cfg.ExitManager.StopLossPct = 0.10
	}
	if cfg.ExitManager.MaxHoldHours <= 0 {
		cfg.ExitManager.MaxHoldHours = 24
	}
	if cfg.ExitManager.ArbCloseTolerance <= 0 {
		cfg.ExitManager.ArbCloseTolerance = 0.02
	}

	if cfg.Data.GammaURL == "" {
		cfg.Data.GammaURL = "https://gamma-api.polymarket.com"
	}
	if cfg.Data.ClobURL == "" {
		cfg.Data.ClobURL = "https://clob.polymarket.com"
	}
	if cfg.Data.CacheTTLSec <= 0 {
		cfg.Data.CacheTTLSec = 60
	}
	if cfg.Data.TimeoutSec <= 0 {
		cfg.Data.TimeoutSec = 15
	}
	if cfg.WebSocket.URL == "" {
		cfg.WebSocket.URL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "polyagent.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
}

func validate(cfg *Config) error {
	switch cfg.App.Mode {
	case "monitor", "paper", "live":
	default:
		return fmt.Errorf("app.mode %q is not one of monitor|paper|live", cfg.App.Mode)
	}

	switch cfg.PositionSizing.Method {
	case "fixed", "kelly", "fractional_kelly":
	default:
		return fmt.Errorf("position_sizing.method %q is not one of fixed|kelly|fractional_kelly", cfg.PositionSizing.Method)
	}
	if f := cfg.PositionSizing.KellyFraction; f > 1 {
		return fmt.Errorf("position_sizing.kelly_fraction %.2f out of (0,1]", f)
	}
	if p := cfg.PositionSizing.MaxBetPct; p > 1 {
		return fmt.Errorf("position_sizing.max_bet_pct %.2f out of (0,1]", p)
	}

	if c := cfg.Aggregation.MinConfidence; c > 1 {
		return fmt.Errorf("aggregation.min_confidence %.2f out of [0,1]", c)
	}

	for name, pct := range map[string]float64{
		"conditional_orders.default_stop_loss_pct":   cfg.ConditionalOrders.DefaultStopLossPct,
		"conditional_orders.default_take_profit_pct": cfg.ConditionalOrders.DefaultTakeProfitPct,
		"conditional_orders.trailing_stop_pct":       cfg.ConditionalOrders.TrailingStopPct,
		"exit_manager.profit_target_pct":             cfg.ExitManager.ProfitTargetPct,
		"exit_manager.stop_loss_pct":                 cfg.ExitManager.StopLossPct,
	} {
		if pct >= 1 {
			return fmt.Errorf("%s %.2f out of (0,1)", name, pct)
		}
	}

	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Notify.Webhook.Enabled && strings.TrimSpace(cfg.Notify.Webhook.URL) == "" {
		return errors.New("notify.webhook.url empty but enabled")
	}
	if cfg.Notify.Telegram.Enabled && cfg.Notify.Telegram.ChatID == 0 {
		return errors.New("notify.telegram.chat_id empty but enabled")
	}
	return nil
}

// Mtime returns the config file's modification time, for reload polling.
func Mtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
