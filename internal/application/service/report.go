package service

import (
	"context"
	"math"
	"sort"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Report summarizes realized performance from the trade log and the
// snapshot history.
type Report struct {
	TotalReturn  float64 `json:"total_return"` // fraction, 0.10 = +10%
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // positive fraction
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalTrades  int     `json:"total_trades"`
	RoundTrips   int     `json:"round_trips"`

	// Net realized flow per strategy: sells minus buys, USD.
	NetByStrategy map[string]float64 `json:"net_by_strategy"`
}

// BuildReport computes performance over the whole persisted history.
// Snapshots arrive most-recent-first from the store and are reordered.
func BuildReport(ctx context.Context, repo port.Repository, initialBalance float64) (Report, error) {
	trades, err := repo.Trades(ctx, "", 0)
	if err != nil {
		return Report{}, err
	}
	snapshots, err := repo.Snapshots(ctx, 0)
	if err != nil {
		return Report{}, err
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].TsMs < snapshots[j].TsMs })

	r := Report{
		TotalTrades:   len(trades),
		NetByStrategy: map[string]float64{},
	}
	r.TotalReturn = totalReturn(snapshots, initialBalance)
	r.SharpeRatio = sharpeRatio(snapshots)
	r.MaxDrawdown = maxDrawdown(snapshots)
	r.WinRate, r.ProfitFactor, r.RoundTrips = tradeStats(trades)

	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			r.NetByStrategy[t.Strategy] -= t.Size
		case model.SideSell:
			r.NetByStrategy[t.Strategy] += t.Size
		}
	}
	return r, nil
}

func totalReturn(snaps []model.PortfolioSnapshot, initial float64) float64 {
	if len(snaps) == 0 || initial <= 0 {
		return 0
	}
	return (snaps[len(snaps)-1].TotalValue - initial) / initial
}

// sharpeRatio annualizes over snapshot-to-snapshot returns, risk-free 0.
func sharpeRatio(snaps []model.PortfolioSnapshot) float64 {
	if len(snaps) < 3 {
		return 0
	}
	var returns []float64
	for i := 1; i < len(snaps); i++ {
		if prev := snaps[i-1].TotalValue; prev > 0 {
			returns = append(returns, (snaps[i].TotalValue-prev)/prev)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

func maxDrawdown(snaps []model.PortfolioSnapshot) float64 {
	if len(snaps) == 0 {
		return 0
	}
	peak := snaps[0].TotalValue
	maxDD := 0.0
	for _, s := range snaps {
		if s.TotalValue > peak {
			peak = s.TotalValue
		}
		if peak > 0 {
			if dd := (peak - s.TotalValue) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// tradeStats pairs sells with the last buy price per token to approximate
// per-round-trip P&L. Sells with no prior buy count as flat.
func tradeStats(trades []model.Trade) (winRate, profitFactor float64, roundTrips int) {
	lastBuy := map[string]float64{}
	wins := 0
	grossProfit, grossLoss := 0.0, 0.0

	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			lastBuy[t.TokenID] = t.Price
		case model.SideSell:
			entry, ok := lastBuy[t.TokenID]
			if !ok {
				entry = t.Price
			}
			pnl := t.Price - entry
			roundTrips++
			if pnl > 0 {
				wins++
				grossProfit += pnl
			} else {
				grossLoss += -pnl
			}
		}
	}

	if roundTrips > 0 {
		winRate = float64(wins) / float64(roundTrips)
	}
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = math.Inf(1)
	}
	return winRate, profitFactor, roundTrips
}
