package model

import "time"

// Position is a holding in one token. Created on the first buy fill,
// weighted-average merged on later buys, reduced by sells, removed at zero.
type Position struct {
	MarketID      string    `json:"market_id"`
	TokenID       string    `json:"token_id"`
	Shares        float64   `json:"shares"`
	AvgPrice      float64   `json:"avg_price"`
	CurrentPrice  float64   `json:"current_price"`
	OpenedAt      time.Time `json:"opened_at"`
	EntryStrategy string    `json:"entry_strategy"`
}

// Value marks the position at the last seen price, falling back to the
// average entry price when no current price is known.
func (p Position) Value() float64 {
	price := p.CurrentPrice
	if price <= 0 {
		price = p.AvgPrice
	}
	return p.Shares * price
}

// Portfolio is the ledger: uninvested cash plus positions keyed by token id.
type Portfolio struct {
	Balance   float64             `json:"balance"`
	Positions map[string]Position `json:"positions"`
}

// TotalValue is cash plus the marked value of every position.
func (p Portfolio) TotalValue() float64 {
	total := p.Balance
	for _, pos := range p.Positions {
		total += pos.Value()
	}
	return total
}

// RiskSnapshot is the per-cycle view of ledger state the risk gate reads.
// Computed once per cycle and updated in memory after each accepted order.
type RiskSnapshot struct {
	DailyLoss  float64
	OpenOrders int
}

// Apply folds an accepted order into the snapshot so later signals in the
// same cycle see the capital it consumed.
func (s *RiskSnapshot) Apply(side Side, size float64, live bool) {
	switch side {
	case SideBuy:
		s.DailyLoss += size
	case SideSell:
		s.DailyLoss -= size
	}
	if live {
		s.OpenOrders++
	}
}

// Trade is one row of the append-only trade log.
type Trade struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Strategy  string    `json:"strategy"`
	MarketID  string    `json:"market_id"`
	TokenID   string    `json:"token_id"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Reason    string    `json:"reason"`
}

// Fill is the result of an executed order.
type Fill struct {
	ID       string  `json:"id"`
	MarketID string  `json:"market_id"`
	TokenID  string  `json:"token_id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"` // actual USD notional filled
	Shares   float64 `json:"shares"`
	WriteOff bool    `json:"write_off,omitempty"` // position closed at zero price
}

// PortfolioSnapshot is a persisted point-in-time view of the ledger.
type PortfolioSnapshot struct {
	TsMs          int64
	Balance       float64
	TotalValue    float64
	PositionsJSON string
}
