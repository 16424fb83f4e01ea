package port

import "context"

// Notifier delivers operator-facing event messages (fills, triggers,
// reload results). Implementations must not block the trading cycle.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}
