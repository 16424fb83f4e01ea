package service

import (
	"fmt"
	"math"
	"time"

	"polyagent/internal/domain/model"
)

const midpoint = 0.5

// ExitRules configures the fixed exit-rule set.
type ExitRules struct {
	Enabled           bool
	ProfitTargetPct   float64
	StopLossPct       float64
	SignalReversal    bool
	MaxHoldHours      float64
	ArbCloseTolerance float64 // relative distance to entry that counts as "mispricing closed"
}

// ExitManager evaluates held positions against four rules in fixed
// priority order (profit target, stop loss, signal reversal, stale
// position) and emits full-position sell signals. The first matching rule
// wins; a position is never flagged twice in one cycle.
type ExitManager struct {
	rules ExitRules
	now   func() time.Time
}

// NewExitManager builds an exit manager with the given rules.
func NewExitManager(rules ExitRules) *ExitManager {
	return &ExitManager{rules: rules, now: time.Now}
}

// Evaluate returns sell signals for every position that should be closed,
// given the latest price per token. Positions with no known price, or with
// malformed numeric fields, are skipped rather than aborting the cycle.
// Exit signals carry confidence 1.0 and bypass aggregation, sizing, and
// the risk gate downstream.
func (m *ExitManager) Evaluate(positions map[string]model.Position, prices map[string]float64) []model.Signal {
	if !m.rules.Enabled {
		return nil
	}

	var signals []model.Signal
	for tokenID, pos := range positions {
		price, ok := prices[tokenID]
		if !ok || price <= 0 {
			continue
		}
		if !validPosition(pos) {
			continue
		}

		reason := m.checkExit(pos, price)
		if reason == "" {
			continue
		}

		signals = append(signals, model.Signal{
			Strategy:    model.StrategyExitManager,
			MarketID:    pos.MarketID,
			TokenID:     tokenID,
			Side:        model.SideSell,
			Confidence:  1.0,
			TargetPrice: price,
			Size:        pos.Shares * price,
			Reason:      reason,
		})
	}
	return signals
}

// checkExit applies the rules in priority order; "" means hold.
func (m *ExitManager) checkExit(pos model.Position, price float64) string {
	entry := pos.AvgPrice

	if price >= entry*(1.0+m.rules.ProfitTargetPct) {
		pct := (price - entry) / entry * 100
		return fmt.Sprintf("profit_target: +%.1f%% (entry=%.4f, current=%.4f)", pct, entry, price)
	}

	if price <= entry*(1.0-m.rules.StopLossPct) {
		pct := (entry - price) / entry * 100
		return fmt.Sprintf("stop_loss: -%.1f%% (entry=%.4f, current=%.4f)", pct, entry, price)
	}

	if m.rules.SignalReversal {
		if reason := m.checkReversal(pos, price); reason != "" {
			return reason
		}
	}

	if !pos.OpenedAt.IsZero() {
		age := m.now().Sub(pos.OpenedAt)
		if age > time.Duration(m.rules.MaxHoldHours*float64(time.Hour)) {
			return fmt.Sprintf("stale: held %.1fh > max %.0fh", age.Hours(), m.rules.MaxHoldHours)
		}
	}

	return ""
}

// checkReversal asks whether the original entry condition has unwound.
// Positions opened by unknown strategies skip this rule.
func (m *ExitManager) checkReversal(pos model.Position, price float64) string {
	switch pos.EntryStrategy {
	case model.StrategySignalTrader:
		// Entry required price below the midpoint; a recross reverses it.
		if price >= midpoint {
			return fmt.Sprintf("signal_reversal: price %.4f crossed above midpoint (%.1f)", price, midpoint)
		}
	case model.StrategyArbitrageur:
		// The mispricing closed once price returned near entry.
		if math.Abs(price-pos.AvgPrice)/pos.AvgPrice < m.rules.ArbCloseTolerance {
			return fmt.Sprintf("signal_reversal: arb deviation closed (entry=%.4f, current=%.4f)", pos.AvgPrice, price)
		}
	}
	return ""
}

// validPosition rejects positions whose numeric fields cannot be trusted,
// e.g. recovered from a corrupt snapshot.
func validPosition(pos model.Position) bool {
	if pos.Shares <= 0 || pos.AvgPrice <= 0 {
		return false
	}
	if math.IsNaN(pos.Shares) || math.IsNaN(pos.AvgPrice) || math.IsInf(pos.Shares, 0) || math.IsInf(pos.AvgPrice, 0) {
		return false
	}
	return true
}
