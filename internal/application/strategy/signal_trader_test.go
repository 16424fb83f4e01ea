package strategy

import (
	"context"
	"testing"

	"polyagent/internal/domain/model"
)

func activeMarket(id string, yes float64, vol24h float64) model.Market {
	return model.Market{
		ID:            id,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{yes, 1 - yes},
		ClobTokenIDs:  []string{id + "-yes", id + "-no"},
		Volume24h:     vol24h,
		Liquidity:     10000,
		Active:        true,
	}
}

func TestSignalTraderBuysBelowMidpoint(t *testing.T) {
	st := NewSignalTrader(SignalTraderParams{VolumeThreshold: 5000, PriceMoveThreshold: 0.05})

	sigs, err := st.Analyze(context.Background(), []model.Market{activeMarket("m1", 0.35, 8000)}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	sig := sigs[0]
	if sig.Side != model.SideBuy {
		t.Errorf("side = %s, want buy", sig.Side)
	}
	if sig.TokenID != "m1-yes" {
		t.Errorf("token = %s, want m1-yes", sig.TokenID)
	}
	// distance 0.15 over midpoint 0.5
	if sig.Confidence < 0.29 || sig.Confidence > 0.31 {
		t.Errorf("confidence = %.4f, want 0.30", sig.Confidence)
	}
	if sig.Size != 80 {
		t.Errorf("size = %.2f, want 80 (1%% of 24h volume)", sig.Size)
	}
}

func TestSignalTraderSellsNoTokenAboveMidpoint(t *testing.T) {
	st := NewSignalTrader(SignalTraderParams{})

	sigs, _ := st.Analyze(context.Background(), []model.Market{activeMarket("m1", 0.72, 8000)}, nil)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Side != model.SideSell {
		t.Errorf("side = %s, want sell", sigs[0].Side)
	}
	if sigs[0].TokenID != "m1-no" {
		t.Errorf("token = %s, want m1-no", sigs[0].TokenID)
	}
}

func TestSignalTraderFilters(t *testing.T) {
	st := NewSignalTrader(SignalTraderParams{VolumeThreshold: 5000, PriceMoveThreshold: 0.05})

	thin := activeMarket("thin", 0.3, 100)
	flat := activeMarket("flat", 0.52, 9000)
	closed := activeMarket("closed", 0.3, 9000)
	closed.Closed = true

	sigs, _ := st.Analyze(context.Background(), []model.Market{thin, flat, closed}, nil)
	if len(sigs) != 0 {
		t.Fatalf("expected no signals, got %d", len(sigs))
	}
}

func TestSignalTraderConfidenceCapped(t *testing.T) {
	st := NewSignalTrader(SignalTraderParams{})

	sigs, _ := st.Analyze(context.Background(), []model.Market{activeMarket("m1", 0.01, 9000)}, nil)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Confidence > 1.0 {
		t.Errorf("confidence = %.4f, must not exceed 1.0", sigs[0].Confidence)
	}
}
