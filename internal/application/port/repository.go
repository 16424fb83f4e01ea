package port

import (
	"context"
	"time"

	"polyagent/internal/domain/model"
)

// Archiver is the write-only slice of persistence that secondary stores
// (postgres archive, redis cache/stream) implement. Fan-out via the
// composite repo; a failing archiver never blocks the cycle.
type Archiver interface {
	RecordTrade(ctx context.Context, trade model.Trade) error
	RecordSignal(ctx context.Context, rec model.SignalRecord) error
	InsertSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error
}

// Repository is the primary persistence surface the engine depends on:
// append-only trade and signal logs, portfolio snapshots, the
// conditional-order lifecycle table and the config-change log.
type Repository interface {
	Archiver

	// Trade log reads
	Trades(ctx context.Context, strategy string, limit int) ([]model.Trade, error)
	TradesSince(ctx context.Context, since time.Time) ([]model.Trade, error)

	// Snapshot reads
	LatestSnapshot(ctx context.Context) (*model.PortfolioSnapshot, error)
	Snapshots(ctx context.Context, limit int) ([]model.PortfolioSnapshot, error)

	// Signal log reads
	Signals(ctx context.Context, strategy string, limit int) ([]model.SignalRecord, error)

	// Conditional orders
	CreateConditionalOrder(ctx context.Context, order *model.ConditionalOrder) (int64, error)
	ActiveConditionalOrders(ctx context.Context) ([]model.ConditionalOrder, error)
	MarkOrderTriggered(ctx context.Context, id int64, price float64, at time.Time) error
	MarkOrderCancelled(ctx context.Context, id int64) error
	UpdateHighWatermark(ctx context.Context, id int64, watermark float64) error

	// Config-change diff log
	RecordConfigChange(ctx context.Context, at time.Time, diff string) error

	Close() error
}
