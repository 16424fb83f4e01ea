package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Paper simulates fills against a virtual USDC balance. Orders fill
// instantly at the signal's target price; there are no resting orders.
type Paper struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]model.Position
	now       func() time.Time
}

var _ port.Executor = (*Paper)(nil)

func NewPaper(startingBalance float64) *Paper {
	return &Paper{
		balance:   startingBalance,
		positions: make(map[string]model.Position),
		now:       time.Now,
	}
}

// Recover restores balance and positions from the latest persisted
// snapshot. Malformed position records are skipped; positions recovered
// without metadata get entry_strategy "unknown" and opened_at now.
func (p *Paper) Recover(ctx context.Context, repo port.Repository) error {
	snap, err := repo.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		log.Info().Float64("balance", p.balance).Msg("no snapshot found, starting fresh")
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = snap.Balance

	var raw map[string]map[string]any
	if err := json.Unmarshal([]byte(snap.PositionsJSON), &raw); err != nil {
		log.Warn().Err(err).Msg("snapshot positions unreadable, starting with none")
		return nil
	}

	now := p.now()
	for tokenID, fields := range raw {
		shares, okShares := asFloat(fields["shares"])
		avg, okAvg := asFloat(fields["avg_price"])
		if !okShares || !okAvg || shares <= 0 || avg <= 0 {
			log.Warn().Str("token", tokenID).Msg("malformed position record skipped")
			continue
		}
		pos := model.Position{
			TokenID:       tokenID,
			Shares:        shares,
			AvgPrice:      avg,
			OpenedAt:      now,
			EntryStrategy: model.StrategyUnknown,
		}
		if v, ok := fields["market_id"].(string); ok {
			pos.MarketID = v
		}
		if v, ok := asFloat(fields["current_price"]); ok {
			pos.CurrentPrice = v
		}
		if v, ok := fields["entry_strategy"].(string); ok && v != "" {
			pos.EntryStrategy = v
		}
		if v, ok := fields["opened_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				pos.OpenedAt = ts
			}
		}
		p.positions[tokenID] = pos
	}
	log.Info().Int("positions", len(p.positions)).Float64("balance", p.balance).Msg("portfolio recovered from snapshot")
	return nil
}

func (p *Paper) PlaceOrder(ctx context.Context, sig model.Signal) (*model.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch sig.Side {
	case model.SideBuy:
		return p.buy(sig)
	case model.SideSell:
		return p.sell(sig)
	}
	return nil, fmt.Errorf("unsupported side %q", sig.Side)
}

func (p *Paper) buy(sig model.Signal) (*model.Fill, error) {
	cost := sig.Size
	if cost > p.balance {
		return nil, fmt.Errorf("insufficient balance: need %.2f, have %.2f", cost, p.balance)
	}
	if sig.TargetPrice <= 0 {
		return nil, fmt.Errorf("invalid buy price %.4f", sig.TargetPrice)
	}

	shares := sig.Size / sig.TargetPrice
	p.balance -= cost

	if pos, held := p.positions[sig.TokenID]; held {
		total := pos.Shares + shares
		pos.AvgPrice = (pos.Shares*pos.AvgPrice + shares*sig.TargetPrice) / total
		pos.Shares = total
		pos.CurrentPrice = sig.TargetPrice
		p.positions[sig.TokenID] = pos
	} else {
		p.positions[sig.TokenID] = model.Position{
			MarketID:      sig.MarketID,
			TokenID:       sig.TokenID,
			Shares:        shares,
			AvgPrice:      sig.TargetPrice,
			CurrentPrice:  sig.TargetPrice,
			OpenedAt:      p.now(),
			EntryStrategy: sig.Strategy,
		}
	}

	log.Info().Str("token", sig.TokenID).Float64("shares", shares).Float64("price", sig.TargetPrice).Float64("cost", cost).Msg("paper buy")
	return &model.Fill{
		ID:       uuid.NewString(),
		MarketID: sig.MarketID,
		TokenID:  sig.TokenID,
		Side:     model.SideBuy,
		Price:    sig.TargetPrice,
		Size:     cost,
		Shares:   shares,
	}, nil
}

func (p *Paper) sell(sig model.Signal) (*model.Fill, error) {
	pos, held := p.positions[sig.TokenID]
	if !held {
		return nil, fmt.Errorf("no position to sell for token %s", sig.TokenID)
	}
	if sig.TargetPrice < 0 {
		return nil, fmt.Errorf("invalid sell price %.4f", sig.TargetPrice)
	}

	// A worthless market cannot be sold into; write the position off so
	// downstream order cleanup still runs instead of retrying forever.
	if sig.TargetPrice == 0 {
		delete(p.positions, sig.TokenID)
		log.Warn().Str("token", sig.TokenID).Float64("cost_basis", pos.Shares*pos.AvgPrice).Msg("position written off at zero price")
		return &model.Fill{
			ID:       uuid.NewString(),
			MarketID: pos.MarketID,
			TokenID:  sig.TokenID,
			Side:     model.SideSell,
			Price:    0,
			Size:     0,
			Shares:   pos.Shares,
			WriteOff: true,
		}, nil
	}

	shares := sig.Size / sig.TargetPrice
	if shares > pos.Shares {
		// Partial fill: sell what is held rather than rejecting.
		shares = pos.Shares
	}

	proceeds := shares * sig.TargetPrice
	p.balance += proceeds
	pos.Shares -= shares

	if pos.Shares <= 0 {
		delete(p.positions, sig.TokenID)
	} else {
		pos.CurrentPrice = sig.TargetPrice
		p.positions[sig.TokenID] = pos
	}

	log.Info().Str("token", sig.TokenID).Float64("shares", shares).Float64("price", sig.TargetPrice).Float64("proceeds", proceeds).Msg("paper sell")
	return &model.Fill{
		ID:       uuid.NewString(),
		MarketID: pos.MarketID,
		TokenID:  sig.TokenID,
		Side:     model.SideSell,
		Price:    sig.TargetPrice,
		Size:     proceeds,
		Shares:   shares,
	}, nil
}

func (p *Paper) Portfolio(ctx context.Context) (model.Portfolio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := model.Portfolio{Balance: p.balance, Positions: make(map[string]model.Position, len(p.positions))}
	for k, v := range p.positions {
		out.Positions[k] = v
	}
	return out, nil
}

// OpenOrderCount is always zero for paper trading: fills are instant.
func (p *Paper) OpenOrderCount(ctx context.Context) (int, error) { return 0, nil }

// asFloat coerces persisted numeric fields that may have been stored as
// strings or json numbers.
func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
