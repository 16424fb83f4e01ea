package service

import (
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/application/strategy"
)

// StrategySet enables and tunes the known strategy kinds. The set is
// closed: a nil entry means disabled, and there is no runtime registry
// to add more.
type StrategySet struct {
	SignalTrader *strategy.SignalTraderParams
	Arbitrageur  *strategy.ArbitrageurParams
	MarketMaker  *strategy.MarketMakerParams
}

// BuildStrategies constructs the enabled strategies in a fixed run order.
// The order matters downstream: aggregation breaks confidence ties by
// first-seen signal.
func BuildStrategies(set StrategySet) []port.Strategy {
	var out []port.Strategy
	if set.SignalTrader != nil {
		out = append(out, strategy.NewSignalTrader(*set.SignalTrader))
	}
	if set.Arbitrageur != nil {
		out = append(out, strategy.NewArbitrageur(*set.Arbitrageur))
	}
	if set.MarketMaker != nil {
		out = append(out, strategy.NewMarketMaker(*set.MarketMaker))
	}
	for _, st := range out {
		log.Info().Str("strategy", st.Name()).Msg("strategy enabled")
	}
	return out
}
