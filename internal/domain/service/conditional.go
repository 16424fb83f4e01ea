package service

import "polyagent/internal/domain/model"

// EvaluateConditional applies the trigger rule of one active conditional
// order to the latest bid.
//
//	stop_loss     triggers when bid <= trigger price
//	take_profit   triggers when bid >= trigger price
//	trailing_stop ratchets the high watermark up on every evaluation and
//	              triggers when bid <= watermark * (1 - trail percent)
//
// The returned watermark is meaningful for trailing stops only; callers
// persist it when it rose, even on evaluations that do not trigger.
func EvaluateConditional(o model.ConditionalOrder, bid float64) (triggered bool, watermark float64) {
	switch o.Type {
	case model.OrderStopLoss:
		return bid <= o.TriggerPrice, 0
	case model.OrderTakeProfit:
		return bid >= o.TriggerPrice, 0
	case model.OrderTrailingStop:
		watermark = o.HighWatermark
		if bid > watermark {
			watermark = bid
		}
		return bid <= watermark*(1.0-o.TrailPercent), watermark
	default:
		return false, 0
	}
}
