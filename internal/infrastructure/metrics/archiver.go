package metrics

import (
	"context"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Archiver counts everything the engine persists. It sits in the archive
// fan-out next to the real stores and never fails.
type Archiver struct{}

var _ port.Archiver = Archiver{}

func (Archiver) RecordTrade(_ context.Context, trade model.Trade) error {
	TradesTotal.WithLabelValues(trade.Strategy, string(trade.Side)).Inc()
	return nil
}

func (Archiver) RecordSignal(_ context.Context, rec model.SignalRecord) error {
	SignalsTotal.WithLabelValues(rec.Signal.Strategy, rec.Status).Inc()
	if rec.Status == "rejected" {
		RejectionsTotal.WithLabelValues(rec.Note).Inc()
	}
	return nil
}

func (Archiver) InsertSnapshot(_ context.Context, snap model.PortfolioSnapshot) error {
	PortfolioValue.Set(snap.TotalValue)
	return nil
}
