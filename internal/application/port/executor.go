package port

import (
	"context"

	"polyagent/internal/domain/model"
)

// Executor fills validated signals against some venue and owns the
// resulting portfolio state. Paper and live executors both satisfy it.
type Executor interface {
	// PlaceOrder attempts to fill the signal. A non-nil Fill is returned
	// only on success; rejections (insufficient balance, no position to
	// sell, negative price) come back as errors.
	PlaceOrder(ctx context.Context, sig model.Signal) (*model.Fill, error)

	// Portfolio returns a copy of the current balance and open positions.
	Portfolio(ctx context.Context) (model.Portfolio, error)

	// OpenOrderCount reports resting orders at the venue. Paper trading
	// fills instantly and always reports zero.
	OpenOrderCount(ctx context.Context) (int, error)
}
