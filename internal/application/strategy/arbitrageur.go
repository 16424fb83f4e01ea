package strategy

import (
	"context"
	"fmt"
	"math"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// ArbitrageurParams tunes the price-sum consistency strategy.
type ArbitrageurParams struct {
	PriceSumTolerance float64 // ignore |sum - 1| below this
	OrderSize         float64 // USD notional per signal
}

// Arbitrageur trades pricing inconsistencies inside a single market:
// complementary outcome prices should sum to ~1.0. When the sum drifts
// past tolerance, buy the cheapest outcome (underpriced set) or sell the
// richest one (overpriced set).
type Arbitrageur struct {
	priceSumTolerance float64
	orderSize         float64
}

var _ port.Strategy = (*Arbitrageur)(nil)

func NewArbitrageur(p ArbitrageurParams) *Arbitrageur {
	if p.PriceSumTolerance <= 0 {
		p.PriceSumTolerance = 0.02
	}
	if p.OrderSize <= 0 {
		p.OrderSize = 25
	}
	return &Arbitrageur{
		priceSumTolerance: p.PriceSumTolerance,
		orderSize:         p.OrderSize,
	}
}

func (a *Arbitrageur) Name() string { return model.StrategyArbitrageur }

func (a *Arbitrageur) Analyze(ctx context.Context, markets []model.Market, data port.DataProvider) ([]model.Signal, error) {
	var out []model.Signal
	for _, m := range markets {
		if !m.Tradable() {
			continue
		}
		if sig, ok := a.checkPriceSum(m); ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (a *Arbitrageur) checkPriceSum(m model.Market) (model.Signal, bool) {
	if len(m.OutcomePrices) < 2 {
		return model.Signal{}, false
	}

	sum := 0.0
	for _, p := range m.OutcomePrices {
		sum += p
	}
	deviation := math.Abs(sum - 1.0)
	if deviation <= a.priceSumTolerance {
		return model.Signal{}, false
	}

	var side model.Side
	var idx int
	if sum < 1.0 {
		// Collectively underpriced: buy the cheapest outcome.
		side = model.SideBuy
		for i, p := range m.OutcomePrices {
			if p < m.OutcomePrices[idx] {
				idx = i
			}
		}
	} else {
		// Collectively overpriced: sell the richest outcome.
		side = model.SideSell
		for i, p := range m.OutcomePrices {
			if p > m.OutcomePrices[idx] {
				idx = i
			}
		}
	}

	var tokenID string
	if idx < len(m.ClobTokenIDs) {
		tokenID = m.ClobTokenIDs[idx]
	}

	return model.Signal{
		Strategy:    model.StrategyArbitrageur,
		MarketID:    m.ID,
		TokenID:     tokenID,
		Side:        side,
		Confidence:  math.Min(deviation/0.1, 1.0),
		TargetPrice: m.OutcomePrices[idx],
		Size:        a.orderSize,
		Reason:      fmt.Sprintf("price_sum=%.4f, deviation=%.4f", sum, deviation),
	}, true
}
