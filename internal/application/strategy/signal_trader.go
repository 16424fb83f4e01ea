package strategy

import (
	"context"
	"fmt"
	"math"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

const midpoint = 0.5

// SignalTraderParams tunes the volume-filtered directional strategy.
// Zero values fall back to defaults in NewSignalTrader.
type SignalTraderParams struct {
	VolumeThreshold    float64 // min 24h volume, USD
	PriceMoveThreshold float64 // min |yes - 0.5| to act on
}

// SignalTrader emits a buy when the Yes price sits below the midpoint by
// more than the move threshold, and a sell (of the No token) when above.
// Only active markets over the volume threshold qualify.
type SignalTrader struct {
	volumeThreshold    float64
	priceMoveThreshold float64
}

var _ port.Strategy = (*SignalTrader)(nil)

func NewSignalTrader(p SignalTraderParams) *SignalTrader {
	if p.VolumeThreshold <= 0 {
		p.VolumeThreshold = 5000
	}
	if p.PriceMoveThreshold <= 0 {
		p.PriceMoveThreshold = 0.05
	}
	return &SignalTrader{
		volumeThreshold:    p.VolumeThreshold,
		priceMoveThreshold: p.PriceMoveThreshold,
	}
}

func (s *SignalTrader) Name() string { return model.StrategySignalTrader }

func (s *SignalTrader) Analyze(ctx context.Context, markets []model.Market, data port.DataProvider) ([]model.Signal, error) {
	var out []model.Signal
	for _, m := range markets {
		if sig, ok := s.evaluate(m); ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *SignalTrader) evaluate(m model.Market) (model.Signal, bool) {
	if !m.Tradable() || m.Volume24h < s.volumeThreshold {
		return model.Signal{}, false
	}

	yes := midpoint
	if len(m.OutcomePrices) > 0 {
		yes = m.OutcomePrices[0]
	}
	distance := math.Abs(yes - midpoint)
	if distance <= s.priceMoveThreshold {
		return model.Signal{}, false
	}

	var side model.Side
	var tokenID string
	if yes < midpoint {
		side = model.SideBuy
		if len(m.ClobTokenIDs) > 0 {
			tokenID = m.ClobTokenIDs[0]
		}
	} else {
		side = model.SideSell
		if len(m.ClobTokenIDs) > 1 {
			tokenID = m.ClobTokenIDs[1]
		}
	}

	return model.Signal{
		Strategy:    model.StrategySignalTrader,
		MarketID:    m.ID,
		TokenID:     tokenID,
		Side:        side,
		Confidence:  math.Min(distance/midpoint, 1.0),
		TargetPrice: yes,
		Size:        math.Round(m.Volume24h) * 0.01,
		Reason:      fmt.Sprintf("yes_price=%.4f, 24h_vol=%.0f", yes, m.Volume24h),
	}, true
}
