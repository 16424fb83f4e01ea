package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"polyagent/internal/domain/model"
	"polyagent/internal/infrastructure/config"
	"polyagent/internal/infrastructure/svc"
)

const baseConfig = `
[app]
mode = "paper"

[risk]
max_position_size = 100.0

[strategies.signal_trader]
enabled = true

[storage]
sqlite_path = "%SQLITE%"
`

func writeTestConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestContext(t *testing.T) (*svc.ServiceContext, string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.ReplaceAll(baseConfig, "%SQLITE%", filepath.ToSlash(filepath.Join(dir, "engine.db")))
	writeTestConfig(t, path, body)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	sc, err := svc.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("svc.New: %v", err)
	}
	t.Cleanup(func() { _ = sc.Close() })
	return sc, path, cfg
}

func TestReloadAppliesChangedLimits(t *testing.T) {
	sc, path, current := newTestContext(t)

	updated := strings.ReplaceAll(baseConfig, "%SQLITE%", sc.Config.Storage.SQLitePath)
	updated = strings.ReplaceAll(updated, "max_position_size = 100.0", "max_position_size = 250.0")
	writeTestConfig(t, path, updated)

	next := reload(sc, path, current)
	if next == current {
		t.Fatal("reload should return the new config")
	}
	if next.Risk.MaxPositionSize != 250.0 {
		t.Errorf("max_position_size = %v, want 250", next.Risk.MaxPositionSize)
	}
}

func TestReloadRefusesModeChange(t *testing.T) {
	sc, path, current := newTestContext(t)

	updated := strings.ReplaceAll(baseConfig, "%SQLITE%", sc.Config.Storage.SQLitePath)
	updated = strings.ReplaceAll(updated, `mode = "paper"`, `mode = "monitor"`)
	writeTestConfig(t, path, updated)

	next := reload(sc, path, current)
	if next != current {
		t.Error("mode change should be refused, keeping the previous config")
	}
}

func TestReloadKeepsPreviousOnUnchangedFile(t *testing.T) {
	sc, path, current := newTestContext(t)

	next := reload(sc, path, current)
	if next != current {
		t.Error("identical config should leave the previous one running")
	}
}

func TestReloadKeepsPreviousOnBrokenFile(t *testing.T) {
	sc, path, current := newTestContext(t)

	writeTestConfig(t, path, `[app] mode = not valid toml`)
	next := reload(sc, path, current)
	if next != current {
		t.Error("unparseable config should leave the previous one running")
	}
}

type stubExecutor struct {
	mu        sync.Mutex
	positions map[string]model.Position
}

func (s *stubExecutor) hold(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions == nil {
		s.positions = map[string]model.Position{}
	}
	s.positions[tokenID] = model.Position{TokenID: tokenID, Shares: 10, AvgPrice: 0.5}
}

func (s *stubExecutor) PlaceOrder(context.Context, model.Signal) (*model.Fill, error) {
	return nil, nil
}

func (s *stubExecutor) Portfolio(context.Context) (model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make(map[string]model.Position, len(s.positions))
	for k, v := range s.positions {
		positions[k] = v
	}
	return model.Portfolio{Balance: 1000, Positions: positions}, nil
}

func (s *stubExecutor) OpenOrderCount(context.Context) (int, error) { return 0, nil }

type stubFeed struct {
	subs chan []string
}

func (f *stubFeed) Name() string { return "stub" }

func (f *stubFeed) Subscribe(ctx context.Context, tokenIDs []string) (<-chan model.PriceQuote, error) {
	f.subs <- tokenIDs
	out := make(chan model.PriceQuote)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func waitForSub(t *testing.T, feed *stubFeed) []string {
	t.Helper()
	select {
	case tokens := <-feed.subs:
		return tokens
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a subscription")
		return nil
	}
}

func TestStreamQuotesFollowsPositionSet(t *testing.T) {
	exec := &stubExecutor{}
	feed := &stubFeed{subs: make(chan []string, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go streamQuotes(ctx, feed, exec, 5*time.Millisecond)

	// Empty portfolio: no subscription yet.
	select {
	case tokens := <-feed.subs:
		t.Fatalf("subscribed to %v with no open positions", tokens)
	case <-time.After(50 * time.Millisecond):
	}

	exec.hold("tok-a")
	got := waitForSub(t, feed)
	if len(got) != 1 || got[0] != "tok-a" {
		t.Errorf("first subscription = %v, want [tok-a]", got)
	}

	// A position opened later must trigger a resubscribe with the new set.
	exec.hold("tok-b")
	got = waitForSub(t, feed)
	if len(got) != 2 || got[0] != "tok-a" || got[1] != "tok-b" {
		t.Errorf("resubscription = %v, want [tok-a tok-b]", got)
	}
}
