package port

import (
	"context"

	"polyagent/internal/domain/model"
)

// Strategy analyzes a market snapshot and proposes trades. Implementations
// must be side-effect free: the engine owns sizing, risk and execution.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, markets []model.Market, data DataProvider) ([]model.Signal, error)
}
