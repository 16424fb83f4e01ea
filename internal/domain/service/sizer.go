package service

import "polyagent/internal/domain/model"

// SizingMethod selects how trade sizes are computed.
type SizingMethod string

const (
	SizeFixed           SizingMethod = "fixed"
	SizeKelly           SizingMethod = "kelly"
	SizeFractionalKelly SizingMethod = "fractional_kelly"
)

// Sizer maps a signal plus portfolio state to a bounded USD size.
// It only ever shrinks a signal's requested size, never grows it.
type Sizer struct {
	method        SizingMethod
	kellyFraction float64
	maxBetPct     float64
}

// NewSizer builds a sizer; kellyFraction applies to fractional Kelly only.
func NewSizer(method SizingMethod, kellyFraction, maxBetPct float64) *Sizer {
	return &Sizer{method: method, kellyFraction: kellyFraction, maxBetPct: maxBetPct}
}

// Size returns the USD notional to trade for the signal, clamped to
// [0, maxBetPct * total value] and never above the signal's own size.
func (s *Sizer) Size(sig model.Signal, pf model.Portfolio) float64 {
	var frac float64
	switch s.method {
	case SizeKelly:
		frac = KellyFraction(sig.Confidence, sig.TargetPrice)
	case SizeFractionalKelly:
		frac = s.kellyFraction * KellyFraction(sig.Confidence, sig.TargetPrice)
	default:
		return sig.Size
	}

	total := pf.TotalValue()
	size := frac * total
	if maxBet := s.maxBetPct * total; size > maxBet {
		size = maxBet
	}
	if size > sig.Size {
		size = sig.Size
	}
	if size < 0 {
		size = 0
	}
	return size
}

// KellyFraction computes the full Kelly criterion f* = (b*p - q) / b for a
// binary-outcome price, where b = (1/price) - 1 are the implied payout
// odds. Returns 0 when the price leaves no edge (b <= 0) or the fraction
// is non-positive.
func KellyFraction(confidence, price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	b := 1.0/price - 1.0
	if b <= 0 {
		return 0
	}
	q := 1.0 - confidence
	f := (b*confidence - q) / b
	if f <= 0 {
		return 0
	}
	return f
}
