package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Mode != "paper" {
		t.Errorf("mode = %s, want paper", cfg.App.Mode)
	}
	if cfg.App.StartingBalance != 1000 {
		t.Errorf("starting balance = %.2f, want 1000", cfg.App.StartingBalance)
	}
	if cfg.Risk.MaxPositionSize != 100 || cfg.Risk.MaxDailyLoss != 50 || cfg.Risk.MaxOpenOrders != 10 {
		t.Errorf("risk defaults wrong: %+v", cfg.Risk)
	}
	if cfg.PositionSizing.Method != "fixed" || cfg.PositionSizing.KellyFraction != 0.25 {
		t.Errorf("sizing defaults wrong: %+v", cfg.PositionSizing)
	}
	if cfg.ExitManager.ArbCloseTolerance != 0.02 {
		t.Errorf("arb_close_tolerance = %.4f, want 0.02", cfg.ExitManager.ArbCloseTolerance)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[app]
mode = "monitor"
starting_balance = 5000.0

[risk]
max_position_size = 250.0

[position_sizing]
method = "fractional_kelly"
kelly_fraction = 0.5
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Mode != "monitor" || cfg.App.StartingBalance != 5000 {
		t.Errorf("app section: %+v", cfg.App)
	}
	if cfg.Risk.MaxPositionSize != 250 {
		t.Errorf("max_position_size = %.2f, want 250", cfg.Risk.MaxPositionSize)
	}
	if cfg.PositionSizing.Method != "fractional_kelly" || cfg.PositionSizing.KellyFraction != 0.5 {
		t.Errorf("sizing section: %+v", cfg.PositionSizing)
	}
}

func TestLoadRejectsInvalidMode(t *testing.T) {
	if _, err := Load(writeConfig(t, "[app]\nmode = \"backtest\"\n")); err == nil {
		t.Fatal("expected invalid mode to fail validation")
	}
}

func TestLoadRejectsInvalidSizingMethod(t *testing.T) {
	if _, err := Load(writeConfig(t, "[position_sizing]\nmethod = \"martingale\"\n")); err == nil {
		t.Fatal("expected invalid sizing method to fail validation")
	}
}

func TestLoadRejectsOutOfRangePct(t *testing.T) {
	if _, err := Load(writeConfig(t, "[exit_manager]\nprofit_target_pct = 1.5\n")); err == nil {
		t.Fatal("expected out-of-range pct to fail validation")
	}
}

func TestLoadRejectsEnabledPostgresWithoutDSN(t *testing.T) {
	if _, err := Load(writeConfig(t, "[storage.postgres]\nenabled = true\n")); err == nil {
		t.Fatal("expected enabled postgres without dsn to fail validation")
	}
}

func TestDiffReportsChangedKeys(t *testing.T) {
	a, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := Load(writeConfig(t, "[risk]\nmax_position_size = 250.0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	diff := Diff(a, b)
	if !strings.Contains(diff, "max_position_size") {
		t.Errorf("diff missing changed key: %q", diff)
	}
	if strings.Contains(diff, "max_daily_loss") {
		t.Errorf("diff contains unchanged key: %q", diff)
	}
}

func TestDiffEmptyWhenEqual(t *testing.T) {
	a, _ := Load(writeConfig(t, ""))
	b, _ := Load(writeConfig(t, ""))
	if d := Diff(a, b); d != "" {
		t.Errorf("diff = %q, want empty", d)
	}
}
