package service

import (
	"math"
	"testing"

	"polyagent/internal/domain/model"
)

func sizerPortfolio(balance float64) model.Portfolio {
	return model.Portfolio{Balance: balance, Positions: map[string]model.Position{}}
}

func TestFixedSizingPassesThrough(t *testing.T) {
	s := NewSizer(SizeFixed, 0.25, 0.10)
	sig := model.Signal{Confidence: 0.8, TargetPrice: 0.5, Size: 42.0}

	if got := s.Size(sig, sizerPortfolio(1000)); got != 42.0 {
		t.Fatalf("expected 42.0, got %v", got)
	}
}

func TestKellyFraction(t *testing.T) {
	// price 0.5 => b = 1; p=0.8, q=0.2 => f* = (1*0.8 - 0.2)/1 = 0.6
	f := KellyFraction(0.8, 0.5)
	if math.Abs(f-0.6) > 1e-9 {
		t.Fatalf("expected 0.6, got %v", f)
	}
}

func TestKellyFractionNoEdge(t *testing.T) {
	cases := []struct {
		confidence, price float64
	}{
		{0.3, 0.5},  // f* negative
		{0.8, 1.0},  // b = 0
		{0.8, 1.5},  // price out of range
		{0.8, 0.0},  // price out of range
		{0.8, -0.1}, // negative price
	}
	for _, c := range cases {
		if f := KellyFraction(c.confidence, c.price); f != 0 {
			t.Errorf("KellyFraction(%v, %v) = %v, expected 0", c.confidence, c.price, f)
		}
	}
}

func TestKellySizeNeverExceedsSignalSize(t *testing.T) {
	s := NewSizer(SizeKelly, 0.25, 0.90)
	sig := model.Signal{Confidence: 0.9, TargetPrice: 0.3, Size: 10.0}

	got := s.Size(sig, sizerPortfolio(10000))
	if got > sig.Size {
		t.Fatalf("sizer amplified the signal: %v > %v", got, sig.Size)
	}
	if got < 0 {
		t.Fatalf("negative size %v", got)
	}
}

func TestKellySizeClampsToMaxBetPct(t *testing.T) {
	s := NewSizer(SizeKelly, 0.25, 0.10)
	sig := model.Signal{Confidence: 0.9, TargetPrice: 0.3, Size: 100000.0}

	got := s.Size(sig, sizerPortfolio(1000))
	if got > 100.0+1e-9 {
		t.Fatalf("expected clamp at 10%% of total value (100), got %v", got)
	}
}

func TestFractionalKellyScalesDown(t *testing.T) {
	full := NewSizer(SizeKelly, 0.25, 1.0)
	frac := NewSizer(SizeFractionalKelly, 0.25, 1.0)
	sig := model.Signal{Confidence: 0.8, TargetPrice: 0.5, Size: 100000.0}
	pf := sizerPortfolio(1000)

	f := full.Size(sig, pf)
	q := frac.Size(sig, pf)
	if math.Abs(q-0.25*f) > 1e-9 {
		t.Fatalf("fractional kelly %v is not 0.25 of full kelly %v", q, f)
	}
}

func TestKellyNoEdgeReturnsZero(t *testing.T) {
	s := NewSizer(SizeKelly, 0.25, 0.10)
	sig := model.Signal{Confidence: 0.2, TargetPrice: 0.5, Size: 50.0}

	if got := s.Size(sig, sizerPortfolio(1000)); got != 0 {
		t.Fatalf("expected size 0 with no edge, got %v", got)
	}
}
