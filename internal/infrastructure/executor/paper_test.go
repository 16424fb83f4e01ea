package executor

import (
	"context"
	"path/filepath"
	"testing"

	"polyagent/internal/domain/model"
	"polyagent/internal/infrastructure/storage/sqlite"
)

func paperSignal(side model.Side, price, size float64) model.Signal {
	return model.Signal{
		Strategy:    model.StrategySignalTrader,
		MarketID:    "m1",
		TokenID:     "tokA",
		Side:        side,
		Confidence:  0.8,
		TargetPrice: price,
		Size:        size,
		Reason:      "test",
	}
}

func TestBuyRejectedOnInsufficientBalance(t *testing.T) {
	p := NewPaper(40)

	_, err := p.PlaceOrder(context.Background(), paperSignal(model.SideBuy, 0.50, 50))
	if err == nil {
		t.Fatal("expected insufficient balance rejection")
	}
	pf, _ := p.Portfolio(context.Background())
	if pf.Balance != 40 {
		t.Errorf("balance = %.2f, want unchanged 40", pf.Balance)
	}
	if len(pf.Positions) != 0 {
		t.Errorf("positions = %d, want none", len(pf.Positions))
	}
}

func TestBuyCreatesPosition(t *testing.T) {
	p := NewPaper(1000)

	fill, err := p.PlaceOrder(context.Background(), paperSignal(model.SideBuy, 0.50, 50))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if fill.Shares != 100 {
		t.Errorf("shares = %.2f, want 100", fill.Shares)
	}
	pf, _ := p.Portfolio(context.Background())
	if pf.Balance != 950 {
		t.Errorf("balance = %.2f, want 950", pf.Balance)
	}
	pos := pf.Positions["tokA"]
	if pos.Shares != 100 || pos.AvgPrice != 0.50 {
		t.Errorf("position = %+v", pos)
	}
	if pos.EntryStrategy != model.StrategySignalTrader {
		t.Errorf("entry strategy = %s", pos.EntryStrategy)
	}
	if pos.OpenedAt.IsZero() {
		t.Error("opened_at not set")
	}
}

func TestBuyMergesWeightedAverage(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.40, 40)) // 100 shares @ 0.40
	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.60, 60)) // 100 shares @ 0.60

	pf, _ := p.Portfolio(ctx)
	pos := pf.Positions["tokA"]
	if pos.Shares != 200 {
		t.Errorf("shares = %.2f, want 200", pos.Shares)
	}
	if pos.AvgPrice < 0.499 || pos.AvgPrice > 0.501 {
		t.Errorf("avg price = %.4f, want 0.50", pos.AvgPrice)
	}
}

func TestSellPartialFill(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.50, 50)) // 100 shares

	// Request 150 shares worth; only 100 held.
	fill, err := p.PlaceOrder(ctx, paperSignal(model.SideSell, 0.60, 90))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if fill.Shares != 100 {
		t.Errorf("filled shares = %.2f, want all 100 held", fill.Shares)
	}
	if fill.Size != 60 {
		t.Errorf("proceeds = %.2f, want 60", fill.Size)
	}
	pf, _ := p.Portfolio(ctx)
	if _, held := pf.Positions["tokA"]; held {
		t.Error("position should be removed after selling everything")
	}
	if pf.Balance != 1010 {
		t.Errorf("balance = %.2f, want 1010", pf.Balance)
	}
}

func TestSellReducesPosition(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.50, 50)) // 100 shares

	fill, err := p.PlaceOrder(ctx, paperSignal(model.SideSell, 0.50, 25)) // 50 shares
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if fill.Shares != 50 {
		t.Errorf("shares = %.2f, want 50", fill.Shares)
	}
	pf, _ := p.Portfolio(ctx)
	if pos := pf.Positions["tokA"]; pos.Shares != 50 {
		t.Errorf("remaining shares = %.2f, want 50", pos.Shares)
	}
}

func TestSellZeroPriceWritesOff(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.50, 50))

	fill, err := p.PlaceOrder(ctx, paperSignal(model.SideSell, 0, 0))
	if err != nil {
		t.Fatalf("zero-price sell must not error: %v", err)
	}
	if !fill.WriteOff {
		t.Error("fill not marked as write-off")
	}
	pf, _ := p.Portfolio(ctx)
	if _, held := pf.Positions["tokA"]; held {
		t.Error("written-off position still held")
	}
	if pf.Balance != 950 {
		t.Errorf("balance = %.2f, want 950 (no proceeds)", pf.Balance)
	}
}

func TestSellNegativePriceRejected(t *testing.T) {
	p := NewPaper(1000)
	ctx := context.Background()

	p.PlaceOrder(ctx, paperSignal(model.SideBuy, 0.50, 50))
	if _, err := p.PlaceOrder(ctx, paperSignal(model.SideSell, -0.10, 10)); err == nil {
		t.Fatal("expected negative price rejection")
	}
}

func TestSellWithoutPositionRejected(t *testing.T) {
	p := NewPaper(1000)
	if _, err := p.PlaceOrder(context.Background(), paperSignal(model.SideSell, 0.50, 50)); err == nil {
		t.Fatal("expected rejection with no position")
	}
}

func TestRecoverBackfillsMetadata(t *testing.T) {
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	// Snapshot written by an older build: no opened_at or entry_strategy,
	// one record with malformed shares.
	repo.InsertSnapshot(ctx, model.PortfolioSnapshot{
		TsMs:    1000,
		Balance: 800,
		PositionsJSON: `{
			"tokA": {"market_id": "m1", "shares": 100, "avg_price": 0.40},
			"tokB": {"market_id": "m2", "shares": "garbage", "avg_price": 0.50}
		}`,
	})

	p := NewPaper(1000)
	if err := p.Recover(ctx, repo); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	pf, _ := p.Portfolio(ctx)
	if pf.Balance != 800 {
		t.Errorf("balance = %.2f, want snapshot balance 800", pf.Balance)
	}
	if len(pf.Positions) != 1 {
		t.Fatalf("positions = %d, want 1 (malformed record skipped)", len(pf.Positions))
	}
	pos := pf.Positions["tokA"]
	if pos.EntryStrategy != model.StrategyUnknown {
		t.Errorf("entry strategy = %s, want unknown", pos.EntryStrategy)
	}
	if pos.OpenedAt.IsZero() {
		t.Error("opened_at not backfilled")
	}
}

func TestRecoverNoSnapshotKeepsStartingBalance(t *testing.T) {
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer repo.Close()

	p := NewPaper(1234)
	if err := p.Recover(context.Background(), repo); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	pf, _ := p.Portfolio(context.Background())
	if pf.Balance != 1234 {
		t.Errorf("balance = %.2f, want starting 1234", pf.Balance)
	}
}
