package port

import (
	"context"
	"errors"

	"polyagent/internal/domain/model"
)

// ErrUnavailable marks a capability that is configured off or missing its
// credentials. The absence is a typed state, not a nil client.
var ErrUnavailable = errors.New("capability unavailable")

// DataProvider supplies market data to strategies and the orchestrator.
type DataProvider interface {
	GetActiveMarkets(ctx context.Context, limit int) ([]model.Market, error)
	GetOrderbook(ctx context.Context, tokenID string) (model.OrderBook, error)
	GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error)
	GetPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]model.PricePoint, error)
}

// NewsProvider supplies headlines for a query. Optional capability.
type NewsProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.NewsItem, error)
}

// PriceFeed streams live quote updates for a set of tokens.
type PriceFeed interface {
	Name() string
	Subscribe(ctx context.Context, tokenIDs []string) (<-chan model.PriceQuote, error)
}
