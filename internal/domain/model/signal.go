package model

import (
	"errors"
	"fmt"
)

// Side is the trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Strategy name tags. The set of strategy kinds is closed; every signal and
// position carries one of these (or "unknown" for recovered positions).
const (
	StrategySignalTrader = "signal_trader"
	StrategyArbitrageur  = "arbitrageur"
	StrategyMarketMaker  = "market_maker"
	StrategyExitManager  = "exit_manager"
	StrategyUnknown      = "unknown"
)

// Signal is a trade intent emitted by a strategy. Size is USD notional,
// never a share count; shares = Size / TargetPrice at execution time.
type Signal struct {
	Strategy    string  `json:"strategy"`
	MarketID    string  `json:"market_id"`
	TokenID     string  `json:"token_id"`
	Side        Side    `json:"side"`
	Confidence  float64 `json:"confidence"`
	TargetPrice float64 `json:"target_price"`
	Size        float64 `json:"size"`
	Reason      string  `json:"reason"`

	// Optional protective levels; zero means "use configured defaults".
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// Validate checks field ranges before a signal enters the pipeline.
func (s Signal) Validate() error {
	if s.Side != SideBuy && s.Side != SideSell {
		return fmt.Errorf("invalid side %q", s.Side)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %.4f out of [0,1]", s.Confidence)
	}
	if s.TargetPrice <= 0 || s.TargetPrice >= 1 {
		return fmt.Errorf("target price %.4f out of (0,1)", s.TargetPrice)
	}
	if s.Size < 0 {
		return errors.New("negative size")
	}
	if s.TokenID == "" {
		return errors.New("empty token id")
	}
	return nil
}

// SignalRecord is a signal-log entry: the signal plus its pipeline outcome.
type SignalRecord struct {
	TsMs   int64
	Signal Signal
	Status string // generated | executed | rejected | skipped
	Note   string // reason code for rejections, fill summary otherwise
}
