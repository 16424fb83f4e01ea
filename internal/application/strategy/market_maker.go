package strategy

import (
	"context"
	"fmt"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// MarketMakerParams tunes the midpoint quoting strategy.
type MarketMakerParams struct {
	Spread       float64 // full quoted spread around midpoint
	MinLiquidity float64 // skip thinner markets
	OrderSize    float64 // USD notional per quote
}

// MarketMaker quotes both sides of liquid markets: a buy on the Yes token
// below the book midpoint and a sell on the No token above it, half the
// configured spread away on each side. Quotes clamp to [0.01, 0.99].
type MarketMaker struct {
	spread       float64
	minLiquidity float64
	orderSize    float64
}

var _ port.Strategy = (*MarketMaker)(nil)

func NewMarketMaker(p MarketMakerParams) *MarketMaker {
	if p.Spread <= 0 {
		p.Spread = 0.05
	}
	if p.MinLiquidity <= 0 {
		p.MinLiquidity = 1000
	}
	if p.OrderSize <= 0 {
		p.OrderSize = 50
	}
	return &MarketMaker{
		spread:       p.Spread,
		minLiquidity: p.MinLiquidity,
		orderSize:    p.OrderSize,
	}
}

func (mm *MarketMaker) Name() string { return model.StrategyMarketMaker }

func (mm *MarketMaker) Analyze(ctx context.Context, markets []model.Market, data port.DataProvider) ([]model.Signal, error) {
	var out []model.Signal
	for _, m := range markets {
		if !m.Tradable() || m.Liquidity < mm.minLiquidity || len(m.ClobTokenIDs) == 0 {
			continue
		}

		book, err := data.GetOrderbook(ctx, m.ClobTokenIDs[0])
		if err != nil {
			continue
		}
		mid := book.Midpoint()
		if mid <= 0 {
			continue
		}

		bid := clampQuote(mid - mm.spread/2)
		ask := clampQuote(mid + mm.spread/2)

		yesToken := m.ClobTokenIDs[0]
		noToken := yesToken
		if len(m.ClobTokenIDs) > 1 {
			noToken = m.ClobTokenIDs[1]
		}

		out = append(out,
			model.Signal{
				Strategy:    model.StrategyMarketMaker,
				MarketID:    m.ID,
				TokenID:     yesToken,
				Side:        model.SideBuy,
				Confidence:  0.5,
				TargetPrice: bid,
				Size:        mm.orderSize,
				Reason:      fmt.Sprintf("mm bid @ %.4f (mid=%.4f, spread=%.2f)", bid, mid, mm.spread),
			},
			model.Signal{
				Strategy:    model.StrategyMarketMaker,
				MarketID:    m.ID,
				TokenID:     noToken,
				Side:        model.SideSell,
				Confidence:  0.5,
				TargetPrice: ask,
				Size:        mm.orderSize,
				Reason:      fmt.Sprintf("mm ask @ %.4f (mid=%.4f, spread=%.2f)", ask, mid, mm.spread),
			},
		)
	}
	return out, nil
}

func clampQuote(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
