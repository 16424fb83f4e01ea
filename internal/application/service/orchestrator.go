package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
	domain "polyagent/internal/domain/service"
)

// Mode is the execution mode of the engine.
type Mode string

const (
	ModePaper   Mode = "paper"
	ModeLive    Mode = "live"
	ModeMonitor Mode = "monitor"
)

// ConditionalOrderConfig controls auto-created protective orders.
type ConditionalOrderConfig struct {
	Enabled              bool
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	TrailingStopEnabled  bool
	TrailingStopPct      float64
}

// SizingConfig selects and tunes the position sizer.
type SizingConfig struct {
	Method        domain.SizingMethod
	KellyFraction float64
	MaxBetPct     float64
}

// EngineConfig is an immutable snapshot of everything the tick loop needs.
// Reload builds a fresh one and swaps it in whole; live fields are never
// mutated in place.
type EngineConfig struct {
	Mode        Mode
	MarketLimit int
	Aggregation domain.AggregationParams
	Sizing      SizingConfig
	Risk        domain.RiskLimits
	Exit        domain.ExitRules
	Orders      ConditionalOrderConfig
}

// Deps are the external capabilities the engine consumes.
type Deps struct {
	Data       port.DataProvider
	Repo       port.Repository
	Archive    port.Archiver // optional secondary stores, best-effort
	Executor   port.Executor
	Notifier   port.Notifier // optional
	Strategies []port.Strategy
}

// TickResult summarizes one cycle.
type TickResult struct {
	MarketsFetched   int `json:"markets_fetched"`
	SignalsGenerated int `json:"signals_generated"`
	OrdersTriggered  int `json:"orders_triggered"`
	ExitsExecuted    int `json:"exits_executed"`
	TradesExecuted   int `json:"trades_executed"`
}

// Orchestrator runs the fetch-analyze-execute cycle and owns the
// hot-reloadable configuration. Cycles are strictly sequential; Tick,
// PlaceOrder and Reload serialize on the same lock so a reload never
// lands mid-cycle.
type Orchestrator struct {
	mu sync.Mutex

	cfg        EngineConfig
	strategies []port.Strategy
	sizer      *domain.Sizer
	exit       *domain.ExitManager

	data     port.DataProvider
	repo     port.Repository
	archive  port.Archiver
	executor port.Executor
	notifier port.Notifier

	cachedSignals []model.Signal
	cachedAt      time.Time

	now func() time.Time
}

func NewOrchestrator(cfg EngineConfig, d Deps) (*Orchestrator, error) {
	if d.Data == nil || d.Repo == nil || d.Executor == nil {
		return nil, fmt.Errorf("orchestrator: data, repo and executor are required")
	}
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 100
	}
	o := &Orchestrator{
		cfg:        cfg,
		strategies: d.Strategies,
		sizer:      domain.NewSizer(cfg.Sizing.Method, cfg.Sizing.KellyFraction, cfg.Sizing.MaxBetPct),
		exit:       domain.NewExitManager(cfg.Exit),
		data:       d.Data,
		repo:       d.Repo,
		archive:    d.Archive,
		executor:   d.Executor,
		notifier:   d.Notifier,
		now:        time.Now,
	}
	return o, nil
}

// Mode returns the current execution mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg.Mode
}

// Tick runs a single cycle: conditional orders, market fetch, strategies,
// exits, then risk-gated entries, finishing with a portfolio snapshot.
// A failing stage is logged and skipped; Tick itself only errors on
// context cancellation.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var res TickResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	trading := o.cfg.Mode != ModeMonitor
	bids := map[string]float64{}

	if trading {
		res.OrdersTriggered = o.checkConditionalOrders(ctx, bids)
	}

	markets, err := o.data.GetActiveMarkets(ctx, o.cfg.MarketLimit)
	if err != nil {
		log.Warn().Err(err).Msg("market fetch failed, continuing with empty snapshot")
	}
	res.MarketsFetched = len(markets)

	raw := o.runStrategies(ctx, markets)
	res.SignalsGenerated = len(raw)

	if trading {
		res.ExitsExecuted = o.runExits(ctx, bids)
	}

	entries := domain.AggregateSignals(raw, o.cfg.Aggregation)
	o.cachedSignals = entries
	o.cachedAt = o.now()

	if trading {
		res.TradesExecuted = o.processEntries(ctx, entries)
	} else {
		for _, sig := range entries {
			o.recordSignal(ctx, sig, "generated", "monitor mode")
		}
	}

	o.persistSnapshot(ctx)

	log.Info().
		Int("markets", res.MarketsFetched).
		Int("signals", res.SignalsGenerated).
		Int("triggered", res.OrdersTriggered).
		Int("exits", res.ExitsExecuted).
		Int("trades", res.TradesExecuted).
		Str("mode", string(o.cfg.Mode)).
		Msg("cycle complete")
	return res, nil
}

// checkConditionalOrders evaluates every active order against the latest
// bid. Orders whose position is gone are cancelled, not evaluated.
// Triggered orders sell the full remaining position directly, bypassing
// aggregation, sizing and the risk gate.
func (o *Orchestrator) checkConditionalOrders(ctx context.Context, bids map[string]float64) int {
	orders, err := o.repo.ActiveConditionalOrders(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("conditional order scan failed")
		return 0
	}
	if len(orders) == 0 {
		return 0
	}

	pf, err := o.executor.Portfolio(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("portfolio read failed, skipping conditional orders")
		return 0
	}

	triggered := 0
	for _, order := range orders {
		pos, held := pf.Positions[order.TokenID]
		if !held {
			if err := o.repo.MarkOrderCancelled(ctx, order.ID); err != nil {
				log.Warn().Err(err).Int64("order", order.ID).Msg("stale order cancel failed")
			} else {
				log.Info().Int64("order", order.ID).Str("token", order.TokenID).Msg("cancelled stale conditional order")
			}
			continue
		}

		bid, ok := o.lookupBid(ctx, bids, order.TokenID)
		if !ok {
			continue
		}

		hit, watermark := domain.EvaluateConditional(order, bid)
		if order.Type == model.OrderTrailingStop && watermark > order.HighWatermark {
			if err := o.repo.UpdateHighWatermark(ctx, order.ID, watermark); err != nil {
				log.Warn().Err(err).Int64("order", order.ID).Msg("watermark update failed")
			}
		}
		if !hit {
			continue
		}

		now := o.now()
		if err := o.repo.MarkOrderTriggered(ctx, order.ID, bid, now); err != nil {
			log.Warn().Err(err).Int64("order", order.ID).Msg("trigger update failed")
			continue
		}

		sig := model.Signal{
			Strategy:    order.ParentStrategy,
			MarketID:    order.MarketID,
			TokenID:     order.TokenID,
			Side:        model.SideSell,
			Confidence:  1.0,
			TargetPrice: bid,
			Size:        pos.Shares * bid,
			Reason:      fmt.Sprintf("%s triggered @ %.4f (trigger=%.4f)", order.Type, bid, order.TriggerPrice),
		}
		fill, err := o.executor.PlaceOrder(ctx, sig)
		if err != nil {
			log.Warn().Err(err).Int64("order", order.ID).Str("token", order.TokenID).Msg("conditional sell failed")
			o.recordSignal(ctx, sig, "rejected", err.Error())
			continue
		}
		triggered++
		o.recordFill(ctx, sig, fill)
		o.notify(ctx, fmt.Sprintf("conditional %s filled: sell %s @ %.4f ($%.2f)", order.Type, order.TokenID, fill.Price, fill.Size))

		// Position fully closed: sibling orders on the token are now stale.
		if pf2, err := o.executor.Portfolio(ctx); err == nil {
			pf = pf2
			if _, still := pf.Positions[order.TokenID]; !still {
				o.cancelOrdersForToken(ctx, order.TokenID, order.ID)
			}
		}
	}
	return triggered
}

func (o *Orchestrator) cancelOrdersForToken(ctx context.Context, tokenID string, except int64) {
	orders, err := o.repo.ActiveConditionalOrders(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("sibling order scan failed")
		return
	}
	for _, sib := range orders {
		if sib.TokenID != tokenID || sib.ID == except {
			continue
		}
		if err := o.repo.MarkOrderCancelled(ctx, sib.ID); err != nil {
			log.Warn().Err(err).Int64("order", sib.ID).Msg("sibling cancel failed")
		}
	}
}

// runStrategies collects signals from every strategy, isolating failures.
func (o *Orchestrator) runStrategies(ctx context.Context, markets []model.Market) []model.Signal {
	var out []model.Signal
	for _, st := range o.strategies {
		sigs, err := st.Analyze(ctx, markets, o.data)
		if err != nil {
			log.Warn().Err(err).Str("strategy", st.Name()).Msg("strategy failed, skipping")
			continue
		}
		out = append(out, sigs...)
	}
	return out
}

// runExits closes positions the exit rules flag. Exit sells execute
// directly; protecting held capital does not wait for consensus or the
// risk gate. Closing a position cancels its conditional orders.
func (o *Orchestrator) runExits(ctx context.Context, bids map[string]float64) int {
	pf, err := o.executor.Portfolio(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("portfolio read failed, skipping exits")
		return 0
	}

	prices := map[string]float64{}
	for tokenID := range pf.Positions {
		if bid, ok := o.lookupBid(ctx, bids, tokenID); ok {
			prices[tokenID] = bid
		}
	}

	executed := 0
	for _, sig := range o.exit.Evaluate(pf.Positions, prices) {
		fill, err := o.executor.PlaceOrder(ctx, sig)
		if err != nil {
			log.Warn().Err(err).Str("token", sig.TokenID).Msg("exit sell failed")
			o.recordSignal(ctx, sig, "rejected", err.Error())
			continue
		}
		executed++
		o.recordFill(ctx, sig, fill)
		o.cancelOrdersForToken(ctx, sig.TokenID, 0)
		o.notify(ctx, fmt.Sprintf("exit: sell %s @ %.4f ($%.2f) [%s]", sig.TokenID, fill.Price, fill.Size, sig.Reason))
		log.Info().Str("token", sig.TokenID).Str("reason", sig.Reason).Float64("size", fill.Size).Msg("position closed by exit rule")
	}
	return executed
}

// processEntries sizes, risk-checks and executes aggregated entry signals.
// The risk snapshot is computed once here and folded forward after every
// accepted order.
func (o *Orchestrator) processEntries(ctx context.Context, entries []model.Signal) int {
	if len(entries) == 0 {
		return 0
	}

	snap := o.riskSnapshot(ctx)
	live := o.cfg.Mode == ModeLive

	executed := 0
	for _, sig := range entries {
		if err := sig.Validate(); err != nil {
			o.recordSignal(ctx, sig, "skipped", err.Error())
			continue
		}

		pf, err := o.executor.Portfolio(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("portfolio read failed, skipping entry")
			continue
		}
		sized := o.sizer.Size(sig, pf)
		if sized <= 0 {
			o.recordSignal(ctx, sig, "skipped", "sized to zero")
			continue
		}
		sig.Size = sized

		if reason := domain.CheckRisk(sig, snap, o.cfg.Risk, live); reason != "" {
			o.recordSignal(ctx, sig, "rejected", reason)
			log.Info().Str("token", sig.TokenID).Str("reason", reason).Msg("signal rejected by risk gate")
			continue
		}

		fill, err := o.executor.PlaceOrder(ctx, sig)
		if err != nil {
			o.recordSignal(ctx, sig, "rejected", err.Error())
			continue
		}
		executed++
		snap.Apply(sig.Side, fill.Size, live)
		o.recordFill(ctx, sig, fill)
		if sig.Side == model.SideBuy {
			o.createConditionalOrders(ctx, sig, fill)
		}
		o.notify(ctx, fmt.Sprintf("trade: %s %s @ %.4f ($%.2f) [%s]", sig.Side, sig.TokenID, fill.Price, fill.Size, sig.Strategy))
	}
	return executed
}

// PlaceOrder is the manual trade entry point. It passes through the same
// risk gate as cycle-generated trades; no caller can bypass it.
func (o *Orchestrator) PlaceOrder(ctx context.Context, sig model.Signal) (*model.Fill, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cfg.Mode == ModeMonitor {
		return nil, fmt.Errorf("monitor mode: execution disabled")
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	snap := o.riskSnapshot(ctx)
	live := o.cfg.Mode == ModeLive
	if reason := domain.CheckRisk(sig, snap, o.cfg.Risk, live); reason != "" {
		o.recordSignal(ctx, sig, "rejected", reason)
		return nil, fmt.Errorf("risk gate: %s", reason)
	}

	fill, err := o.executor.PlaceOrder(ctx, sig)
	if err != nil {
		o.recordSignal(ctx, sig, "rejected", err.Error())
		return nil, err
	}
	o.recordFill(ctx, sig, fill)
	if sig.Side == model.SideBuy {
		o.createConditionalOrders(ctx, sig, fill)
	}
	o.persistSnapshot(ctx)
	o.notify(ctx, fmt.Sprintf("manual trade: %s %s @ %.4f ($%.2f)", sig.Side, sig.TokenID, fill.Price, fill.Size))
	return fill, nil
}

// createConditionalOrders attaches protective orders to a fresh buy fill.
// Signal-level stop/take levels override the configured percentage
// defaults; both are absolute prices when set.
func (o *Orchestrator) createConditionalOrders(ctx context.Context, sig model.Signal, fill *model.Fill) {
	cfg := o.cfg.Orders
	if !cfg.Enabled {
		return
	}
	now := o.now()

	stop := fill.Price * (1 - cfg.DefaultStopLossPct)
	if sig.StopLoss > 0 {
		stop = sig.StopLoss
	}
	take := fill.Price * (1 + cfg.DefaultTakeProfitPct)
	if sig.TakeProfit > 0 {
		take = sig.TakeProfit
	}

	orders := []model.ConditionalOrder{
		{
			TokenID:        fill.TokenID,
			MarketID:       fill.MarketID,
			Type:           model.OrderStopLoss,
			Status:         model.OrderActive,
			TriggerPrice:   stop,
			Size:           fill.Size,
			ParentStrategy: sig.Strategy,
			Reason:         fmt.Sprintf("auto stop for entry @ %.4f", fill.Price),
			CreatedAt:      now,
		},
		{
			TokenID:        fill.TokenID,
			MarketID:       fill.MarketID,
			Type:           model.OrderTakeProfit,
			Status:         model.OrderActive,
			TriggerPrice:   take,
			Size:           fill.Size,
			ParentStrategy: sig.Strategy,
			Reason:         fmt.Sprintf("auto take-profit for entry @ %.4f", fill.Price),
			CreatedAt:      now,
		},
	}
	if cfg.TrailingStopEnabled && cfg.TrailingStopPct > 0 {
		orders = append(orders, model.ConditionalOrder{
			TokenID:        fill.TokenID,
			MarketID:       fill.MarketID,
			Type:           model.OrderTrailingStop,
			Status:         model.OrderActive,
			TriggerPrice:   fill.Price * (1 - cfg.TrailingStopPct),
			Size:           fill.Size,
			HighWatermark:  fill.Price,
			TrailPercent:   cfg.TrailingStopPct,
			ParentStrategy: sig.Strategy,
			Reason:         fmt.Sprintf("auto trailing stop for entry @ %.4f", fill.Price),
			CreatedAt:      now,
		})
	}

	for i := range orders {
		if _, err := o.repo.CreateConditionalOrder(ctx, &orders[i]); err != nil {
			log.Warn().Err(err).Str("token", fill.TokenID).Str("type", string(orders[i].Type)).Msg("conditional order create failed")
		}
	}
}

// Reload swaps in a new configuration between cycles. Mode changes are
// refused; the executor and its positions survive the swap.
func (o *Orchestrator) Reload(cfg EngineConfig, strategies []port.Strategy, diff string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cfg.Mode != o.cfg.Mode {
		return fmt.Errorf("reload refused: mode change %s -> %s requires restart", o.cfg.Mode, cfg.Mode)
	}
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = o.cfg.MarketLimit
	}

	o.cfg = cfg
	o.strategies = strategies
	o.sizer = domain.NewSizer(cfg.Sizing.Method, cfg.Sizing.KellyFraction, cfg.Sizing.MaxBetPct)
	o.exit = domain.NewExitManager(cfg.Exit)

	if diff != "" {
		if err := o.repo.RecordConfigChange(context.Background(), o.now(), diff); err != nil {
			log.Warn().Err(err).Msg("config change log failed")
		}
	}
	log.Info().Str("diff", diff).Msg("configuration reloaded")
	return nil
}

// LatestSignals returns the cached result of the last cycle's aggregation.
// It never touches external providers.
func (o *Orchestrator) LatestSignals() ([]model.Signal, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Signal, len(o.cachedSignals))
	copy(out, o.cachedSignals)
	return out, o.cachedAt
}

// RecomputeSignals fetches fresh markets and reruns strategies and
// aggregation without executing anything.
func (o *Orchestrator) RecomputeSignals(ctx context.Context) ([]model.Signal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	markets, err := o.data.GetActiveMarkets(ctx, o.cfg.MarketLimit)
	if err != nil {
		return nil, err
	}
	entries := domain.AggregateSignals(o.runStrategies(ctx, markets), o.cfg.Aggregation)
	o.cachedSignals = entries
	o.cachedAt = o.now()
	return entries, nil
}

// Portfolio returns the executor's current ledger.
func (o *Orchestrator) Portfolio(ctx context.Context) (model.Portfolio, error) {
	return o.executor.Portfolio(ctx)
}

// DailyLoss nets buys against sells over the current UTC day's trade log.
func (o *Orchestrator) DailyLoss(ctx context.Context) (float64, error) {
	midnight := o.now().UTC().Truncate(24 * time.Hour)
	trades, err := o.repo.TradesSince(ctx, midnight)
	if err != nil {
		return 0, err
	}
	loss := 0.0
	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			loss += t.Size
		case model.SideSell:
			loss -= t.Size
		}
	}
	return loss, nil
}

func (o *Orchestrator) riskSnapshot(ctx context.Context) model.RiskSnapshot {
	var snap model.RiskSnapshot
	loss, err := o.DailyLoss(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("daily loss scan failed, assuming zero")
	} else {
		snap.DailyLoss = loss
	}
	if o.cfg.Mode == ModeLive {
		n, err := o.executor.OpenOrderCount(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("open order count failed, assuming zero")
		} else {
			snap.OpenOrders = n
		}
	}
	return snap
}

func (o *Orchestrator) persistSnapshot(ctx context.Context) {
	pf, err := o.executor.Portfolio(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("portfolio read failed, snapshot skipped")
		return
	}
	positions, err := json.Marshal(pf.Positions)
	if err != nil {
		log.Warn().Err(err).Msg("positions marshal failed, snapshot skipped")
		return
	}
	snap := model.PortfolioSnapshot{
		TsMs:          o.now().UnixMilli(),
		Balance:       pf.Balance,
		TotalValue:    pf.TotalValue(),
		PositionsJSON: string(positions),
	}
	if err := o.repo.InsertSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("snapshot insert failed")
	}
	if o.archive != nil {
		if err := o.archive.InsertSnapshot(ctx, snap); err != nil {
			log.Debug().Err(err).Msg("snapshot archive failed")
		}
	}
}

func (o *Orchestrator) recordFill(ctx context.Context, sig model.Signal, fill *model.Fill) {
	trade := model.Trade{
		Timestamp: o.now(),
		Strategy:  sig.Strategy,
		MarketID:  fill.MarketID,
		TokenID:   fill.TokenID,
		Side:      fill.Side,
		Price:     fill.Price,
		Size:      fill.Size,
		Reason:    sig.Reason,
	}
	if err := o.repo.RecordTrade(ctx, trade); err != nil {
		log.Error().Err(err).Str("token", fill.TokenID).Msg("trade log write failed")
	}
	if o.archive != nil {
		if err := o.archive.RecordTrade(ctx, trade); err != nil {
			log.Debug().Err(err).Msg("trade archive failed")
		}
	}
	note := fmt.Sprintf("filled %.4f shares @ %.4f", fill.Shares, fill.Price)
	if fill.WriteOff {
		note = "position written off at zero price"
	}
	o.recordSignal(ctx, sig, "executed", note)
}

func (o *Orchestrator) recordSignal(ctx context.Context, sig model.Signal, status, note string) {
	rec := model.SignalRecord{
		TsMs:   o.now().UnixMilli(),
		Signal: sig,
		Status: status,
		Note:   note,
	}
	if err := o.repo.RecordSignal(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("signal log write failed")
	}
	if o.archive != nil {
		if err := o.archive.RecordSignal(ctx, rec); err != nil {
			log.Debug().Err(err).Msg("signal archive failed")
		}
	}
}

// lookupBid fetches the latest bid for a token once per cycle.
func (o *Orchestrator) lookupBid(ctx context.Context, cache map[string]float64, tokenID string) (float64, bool) {
	if bid, ok := cache[tokenID]; ok {
		return bid, bid > 0
	}
	quote, err := o.data.GetPrice(ctx, tokenID)
	if err != nil {
		log.Debug().Err(err).Str("token", tokenID).Msg("price fetch failed")
		cache[tokenID] = 0
		return 0, false
	}
	cache[tokenID] = quote.Bid
	return quote.Bid, quote.Bid > 0
}

func (o *Orchestrator) notify(ctx context.Context, msg string) {
	if o.notifier != nil {
		o.notifier.Notify(ctx, msg)
	}
}
