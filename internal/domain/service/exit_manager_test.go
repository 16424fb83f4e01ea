package service

import (
	"math"
	"strings"
	"testing"
	"time"

	"polyagent/internal/domain/model"
)

func exitRules() ExitRules {
	return ExitRules{
		Enabled:           true,
		ProfitTargetPct:   0.15,
		StopLossPct:       0.10,
		SignalReversal:    true,
		MaxHoldHours:      24,
		ArbCloseTolerance: 0.02,
	}
}

func heldPosition(entry float64, age time.Duration, strategy string) model.Position {
	return model.Position{
		MarketID:      "100",
		TokenID:       "tokA",
		Shares:        50.0,
		AvgPrice:      entry,
		OpenedAt:      time.Now().Add(-age),
		EntryStrategy: strategy,
	}
}

func TestExitProfitTarget(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.50, time.Hour, model.StrategyUnknown)}

	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.60})
	if len(signals) != 1 {
		t.Fatalf("expected 1 exit signal, got %d", len(signals))
	}
	sig := signals[0]
	if !strings.HasPrefix(sig.Reason, "profit_target") {
		t.Errorf("expected profit_target reason, got %q", sig.Reason)
	}
	if sig.Side != model.SideSell || sig.Confidence != 1.0 {
		t.Errorf("exit signal must be a full-confidence sell, got %+v", sig)
	}
	if math.Abs(sig.Size-50.0*0.60) > 1e-9 {
		t.Errorf("expected full-position size 30.0, got %v", sig.Size)
	}
}

func TestExitStopLoss(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.50, time.Hour, model.StrategyUnknown)}

	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.44})
	if len(signals) != 1 {
		t.Fatalf("expected 1 exit signal, got %d", len(signals))
	}
	if !strings.HasPrefix(signals[0].Reason, "stop_loss") {
		t.Errorf("expected stop_loss reason, got %q", signals[0].Reason)
	}
}

func TestExitPriorityProfitBeatsStale(t *testing.T) {
	// +20% vs +15% target AND held 30h vs 24h max: exactly one signal,
	// reasoned profit_target, never stale.
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.50, 30*time.Hour, model.StrategyUnknown)}

	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.60})
	if len(signals) != 1 {
		t.Fatalf("expected exactly 1 signal, got %d", len(signals))
	}
	if !strings.HasPrefix(signals[0].Reason, "profit_target") {
		t.Errorf("profit target must win over stale, got %q", signals[0].Reason)
	}
}

func TestExitStalePosition(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.40, 30*time.Hour, model.StrategyUnknown)}

	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.41})
	if len(signals) != 1 {
		t.Fatalf("expected 1 exit signal, got %d", len(signals))
	}
	if !strings.HasPrefix(signals[0].Reason, "stale") {
		t.Errorf("expected stale reason, got %q", signals[0].Reason)
	}
}

func TestExitSignalReversalMidpointRecross(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.45, time.Hour, model.StrategySignalTrader)}

	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.51})
	if len(signals) != 1 {
		t.Fatalf("expected 1 exit signal, got %d", len(signals))
	}
	if !strings.HasPrefix(signals[0].Reason, "signal_reversal") {
		t.Errorf("expected signal_reversal reason, got %q", signals[0].Reason)
	}
}

func TestExitSignalReversalArbClosed(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.50, time.Hour, model.StrategyArbitrageur)}

	// within 2% of entry: the mispricing closed
	signals := m.Evaluate(positions, map[string]float64{"tokA": 0.505})
	if len(signals) != 1 {
		t.Fatalf("expected 1 exit signal, got %d", len(signals))
	}
	if !strings.HasPrefix(signals[0].Reason, "signal_reversal") {
		t.Errorf("expected signal_reversal reason, got %q", signals[0].Reason)
	}
}

func TestExitUnknownStrategySkipsReversal(t *testing.T) {
	m := NewExitManager(exitRules())
	// price back to entry would close an arb, but unknown entries skip the rule
	positions := map[string]model.Position{"tokA": heldPosition(0.505, time.Hour, model.StrategyUnknown)}

	if signals := m.Evaluate(positions, map[string]float64{"tokA": 0.51}); len(signals) != 0 {
		t.Fatalf("expected no signals for unknown entry strategy, got %d", len(signals))
	}
}

func TestExitSkipsMalformedPositions(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{
		"bad1": {TokenID: "bad1", Shares: 0, AvgPrice: 0.5},
		"bad2": {TokenID: "bad2", Shares: math.NaN(), AvgPrice: 0.5},
		"bad3": {TokenID: "bad3", Shares: 10, AvgPrice: 0},
	}
	prices := map[string]float64{"bad1": 0.9, "bad2": 0.9, "bad3": 0.9}

	if signals := m.Evaluate(positions, prices); len(signals) != 0 {
		t.Fatalf("malformed positions must be skipped, got %d signals", len(signals))
	}
}

func TestExitDisabled(t *testing.T) {
	rules := exitRules()
	rules.Enabled = false
	m := NewExitManager(rules)
	positions := map[string]model.Position{"tokA": heldPosition(0.50, time.Hour, model.StrategyUnknown)}

	if signals := m.Evaluate(positions, map[string]float64{"tokA": 0.90}); len(signals) != 0 {
		t.Fatalf("disabled exit manager must emit nothing, got %d", len(signals))
	}
}

func TestExitMissingPriceSkipsPosition(t *testing.T) {
	m := NewExitManager(exitRules())
	positions := map[string]model.Position{"tokA": heldPosition(0.50, 30*time.Hour, model.StrategyUnknown)}

	if signals := m.Evaluate(positions, map[string]float64{}); len(signals) != 0 {
		t.Fatalf("positions without a price must be skipped, got %d", len(signals))
	}
}
