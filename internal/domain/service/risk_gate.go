package service

import "polyagent/internal/domain/model"

// Rejection reason codes emitted by the risk gate.
const (
	ReasonPositionTooLarge  = "position_too_large"
	ReasonDailyLossExceeded = "daily_loss_exceeded"
	ReasonTooManyOpenOrders = "too_many_open_orders"
)

// RiskLimits are the configured hard limits the gate enforces.
type RiskLimits struct {
	MaxPositionSize float64
	MaxDailyLoss    float64
	MaxOpenOrders   int
}

// CheckRisk validates a sized signal against the per-cycle risk snapshot.
// Checks run in a fixed order and the first failure wins. The daily-loss
// check blocks further trades once the threshold is reached; it does not
// undo trades that pushed it there. The open-order check applies only in
// live-order modes. Returns "" when the signal passes.
func CheckRisk(sig model.Signal, snap model.RiskSnapshot, limits RiskLimits, live bool) string {
	if sig.Size > limits.MaxPositionSize {
		return ReasonPositionTooLarge
	}
	if snap.DailyLoss >= limits.MaxDailyLoss {
		return ReasonDailyLossExceeded
	}
	if live && snap.OpenOrders >= limits.MaxOpenOrders {
		return ReasonTooManyOpenOrders
	}
	return ""
}
