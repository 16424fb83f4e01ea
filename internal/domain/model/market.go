package model

import "time"

// Market is a single prediction market with binary (or categorical) outcomes.
// OutcomePrices[i] prices Outcomes[i]; ClobTokenIDs[i] is its tradable token.
type Market struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
	ClobTokenIDs  []string  `json:"clob_token_ids"`
	Volume        float64   `json:"volume"`
	Volume24h     float64   `json:"volume_24h"`
	Liquidity     float64   `json:"liquidity"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	ConditionID   string    `json:"condition_id,omitempty"`
	Slug          string    `json:"slug,omitempty"`
	EndDate       string    `json:"end_date,omitempty"`
}

// Tradable reports whether the market accepts orders at all.
func (m Market) Tradable() bool { return m.Active && !m.Closed }

// YesPrice returns the price of the first outcome, or 0 when unknown.
func (m Market) YesPrice() float64 {
	if len(m.OutcomePrices) == 0 {
		return 0
	}
	return m.OutcomePrices[0]
}

// OrderBookLevel is one price level of an order book.
type OrderBookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds resting orders for a single token.
type OrderBook struct {
	Bids []OrderBookLevel `json:"bids"`
	Asks []OrderBookLevel `json:"asks"`
}

// BestBid returns the highest bid price, 0 when the book side is empty.
func (b OrderBook) BestBid() float64 {
	best := 0.0
	for _, l := range b.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, 0 when the book side is empty.
func (b OrderBook) BestAsk() float64 {
	best := 0.0
	for _, l := range b.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// Midpoint between best bid and best ask.
func (b OrderBook) Midpoint() float64 { return (b.BestBid() + b.BestAsk()) / 2 }

// Spread between best ask and best bid.
func (b OrderBook) Spread() float64 { return b.BestAsk() - b.BestBid() }

// PriceQuote is the current bid/ask for a token.
type PriceQuote struct {
	TokenID string  `json:"token_id"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	TsMs    int64   `json:"ts_ms,omitempty"`
}

// Spread between ask and bid.
func (q PriceQuote) Spread() float64 { return q.Ask - q.Bid }

// PricePoint is a timestamped price observation from history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// NewsItem is a headline returned by a news provider.
type NewsItem struct {
	Title     string    `json:"title"`
	Published time.Time `json:"published"`
	URL       string    `json:"url"`
}
