package model

import "time"

// OrderType is the kind of conditional order.
type OrderType string

const (
	OrderStopLoss     OrderType = "stop_loss"
	OrderTakeProfit   OrderType = "take_profit"
	OrderTrailingStop OrderType = "trailing_stop"
)

// OrderStatus is the lifecycle state of a conditional order.
// active -> triggered and active -> cancelled are the only transitions;
// both end states are terminal.
type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderTriggered OrderStatus = "triggered"
	OrderCancelled OrderStatus = "cancelled"
)

// ConditionalOrder is a protective order evaluated against live bids.
// A position may carry several at once (e.g. a stop-loss and a take-profit).
type ConditionalOrder struct {
	ID             int64       `json:"id"`
	TokenID        string      `json:"token_id"`
	MarketID       string      `json:"market_id"`
	Type           OrderType   `json:"order_type"`
	Status         OrderStatus `json:"status"`
	TriggerPrice   float64     `json:"trigger_price"`
	Size           float64     `json:"size"`
	HighWatermark  float64     `json:"high_watermark,omitempty"` // trailing stops only
	TrailPercent   float64     `json:"trail_percent,omitempty"`  // trailing stops only
	ParentStrategy string      `json:"parent_strategy"`
	Reason         string      `json:"reason"`
	CreatedAt      time.Time   `json:"created_at"`
	TriggeredAt    time.Time   `json:"triggered_at,omitempty"`
	TriggeredPrice float64     `json:"triggered_price,omitempty"`
}
