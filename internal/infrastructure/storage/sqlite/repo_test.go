package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"polyagent/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTradeLogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	trade := model.Trade{
		Timestamp: now,
		Strategy:  model.StrategySignalTrader,
		MarketID:  "m1",
		TokenID:   "tokA",
		Side:      model.SideBuy,
		Price:     0.40,
		Size:      50,
		Reason:    "test",
	}
	if err := repo.RecordTrade(ctx, trade); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	got, err := repo.Trades(ctx, "", 0)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("trades = %d, want 1", len(got))
	}
	if got[0].TokenID != "tokA" || got[0].Side != model.SideBuy || got[0].Size != 50 {
		t.Errorf("trade = %+v", got[0])
	}
}

func TestTradesSinceFiltersByTime(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	old := model.Trade{Timestamp: now.Add(-48 * time.Hour), Strategy: "s", MarketID: "m", TokenID: "a", Side: model.SideBuy, Price: 0.5, Size: 10}
	recent := model.Trade{Timestamp: now, Strategy: "s", MarketID: "m", TokenID: "b", Side: model.SideBuy, Price: 0.5, Size: 20}
	repo.RecordTrade(ctx, old)
	repo.RecordTrade(ctx, recent)

	got, err := repo.TradesSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("TradesSince: %v", err)
	}
	if len(got) != 1 || got[0].TokenID != "b" {
		t.Fatalf("got %+v, want only the recent trade", got)
	}
}

func TestTradesFilterByStrategy(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	repo.RecordTrade(ctx, model.Trade{Timestamp: now, Strategy: model.StrategySignalTrader, MarketID: "m", TokenID: "a", Side: model.SideBuy, Price: 0.5, Size: 10})
	repo.RecordTrade(ctx, model.Trade{Timestamp: now, Strategy: model.StrategyArbitrageur, MarketID: "m", TokenID: "b", Side: model.SideBuy, Price: 0.5, Size: 10})

	got, err := repo.Trades(ctx, model.StrategyArbitrageur, 0)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(got) != 1 || got[0].Strategy != model.StrategyArbitrageur {
		t.Fatalf("got %+v, want only arbitrageur trades", got)
	}
}

func TestSignalLogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := model.SignalRecord{
		TsMs: time.Now().UnixMilli(),
		Signal: model.Signal{
			Strategy: model.StrategySignalTrader, MarketID: "m1", TokenID: "tokA",
			Side: model.SideBuy, Confidence: 0.8, TargetPrice: 0.4, Size: 50,
		},
		Status: "rejected",
		Note:   "position_too_large",
	}
	if err := repo.RecordSignal(ctx, rec); err != nil {
		t.Fatalf("RecordSignal: %v", err)
	}

	got, err := repo.Signals(ctx, model.StrategySignalTrader, 10)
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("signals = %d, want 1", len(got))
	}
	if got[0].Status != "rejected" || got[0].Note != "position_too_large" {
		t.Errorf("record = %+v", got[0])
	}
	if got[0].Signal.TokenID != "tokA" || got[0].Signal.Confidence != 0.8 {
		t.Errorf("payload not restored: %+v", got[0].Signal)
	}
}

func TestSnapshotLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	none, err := repo.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil snapshot on empty table, got %+v", none)
	}

	repo.InsertSnapshot(ctx, model.PortfolioSnapshot{TsMs: 1000, Balance: 900, TotalValue: 1000, PositionsJSON: "{}"})
	repo.InsertSnapshot(ctx, model.PortfolioSnapshot{TsMs: 2000, Balance: 880, TotalValue: 1010, PositionsJSON: `{"tokA":{}}`})

	latest, err := repo.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest == nil || latest.TsMs != 2000 {
		t.Fatalf("latest = %+v, want ts 2000", latest)
	}
}

func TestConditionalOrderLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	order := &model.ConditionalOrder{
		TokenID: "tokA", MarketID: "m1", Type: model.OrderStopLoss,
		Status: model.OrderActive, TriggerPrice: 0.36, Size: 40,
		ParentStrategy: model.StrategySignalTrader, Reason: "auto stop",
		CreatedAt: time.Now(),
	}
	id, err := repo.CreateConditionalOrder(ctx, order)
	if err != nil {
		t.Fatalf("CreateConditionalOrder: %v", err)
	}
	if id == 0 || order.ID != id {
		t.Fatalf("id = %d, order.ID = %d", id, order.ID)
	}

	active, err := repo.ActiveConditionalOrders(ctx)
	if err != nil {
		t.Fatalf("ActiveConditionalOrders: %v", err)
	}
	if len(active) != 1 || active[0].Type != model.OrderStopLoss {
		t.Fatalf("active = %+v", active)
	}

	if err := repo.MarkOrderTriggered(ctx, id, 0.35, time.Now()); err != nil {
		t.Fatalf("MarkOrderTriggered: %v", err)
	}
	active, _ = repo.ActiveConditionalOrders(ctx)
	if len(active) != 0 {
		t.Fatalf("triggered order still listed active: %+v", active)
	}

	// Terminal states stay terminal.
	if err := repo.MarkOrderCancelled(ctx, id); err != nil {
		t.Fatalf("MarkOrderCancelled: %v", err)
	}
}

func TestHighWatermarkUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	order := &model.ConditionalOrder{
		TokenID: "tokA", MarketID: "m1", Type: model.OrderTrailingStop,
		Status: model.OrderActive, TriggerPrice: 0.36, Size: 40,
		HighWatermark: 0.40, TrailPercent: 0.10, CreatedAt: time.Now(),
	}
	id, err := repo.CreateConditionalOrder(ctx, order)
	if err != nil {
		t.Fatalf("CreateConditionalOrder: %v", err)
	}
	if err := repo.UpdateHighWatermark(ctx, id, 0.55); err != nil {
		t.Fatalf("UpdateHighWatermark: %v", err)
	}

	active, _ := repo.ActiveConditionalOrders(ctx)
	if len(active) != 1 || active[0].HighWatermark != 0.55 {
		t.Fatalf("active = %+v, want watermark 0.55", active)
	}
}

func TestRecordConfigChange(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.RecordConfigChange(context.Background(), time.Now(), "risk.max_position_size: 100 -> 250"); err != nil {
		t.Fatalf("RecordConfigChange: %v", err)
	}
}
