package service

import "polyagent/internal/domain/model"

// AggregationParams controls signal deduplication and consensus.
type AggregationParams struct {
	MinConfidence float64
	MinStrategies int
}

type signalKey struct {
	marketID string
	tokenID  string
	side     model.Side
}

type signalGroup struct {
	best       model.Signal
	strategies map[string]struct{}
}

// AggregateSignals reduces the raw signal set from one cycle into a
// deduplicated, consensus-filtered set.
//
// Signals are grouped by (market, token, side); grouping by market or side
// alone would merge opposite-token signals on the same market. Within a
// group the highest-confidence signal wins, ties going to the one seen
// first (strategy run order, so the result is deterministic). A group
// survives only when the number of distinct strategy names in it reaches
// MinStrategies; duplicate signals from one strategy never count as
// consensus. Surviving signals below MinConfidence are dropped.
func AggregateSignals(signals []model.Signal, p AggregationParams) []model.Signal {
	if len(signals) == 0 {
		return nil
	}

	groups := make(map[signalKey]*signalGroup)
	order := make([]signalKey, 0, len(signals))

	for _, s := range signals {
		key := signalKey{marketID: s.MarketID, tokenID: s.TokenID, side: s.Side}
		g, ok := groups[key]
		if !ok {
			g = &signalGroup{best: s, strategies: make(map[string]struct{})}
			groups[key] = g
			order = append(order, key)
		}
		g.strategies[s.Strategy] = struct{}{}
		// strict > keeps the first-seen signal on equal confidence
		if s.Confidence > g.best.Confidence {
			g.best = s
		}
	}

	out := make([]model.Signal, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g.strategies) < p.MinStrategies {
			continue
		}
		if g.best.Confidence < p.MinConfidence {
			continue
		}
		out = append(out, g.best)
	}
	return out
}
