package composite

import (
	"context"

	"polyagent/internal/application/port"
	"polyagent/internal/domain/model"
)

// Archiver fans writes out to every configured secondary store. Each store
// gets every write; the first error is reported after all stores ran.
type Archiver struct {
	stores []port.Archiver
}

func New(stores ...port.Archiver) *Archiver {
	// nil stores are allowed; filter in constructor for safety
	out := make([]port.Archiver, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Archiver{stores: out}
}

// Empty reports whether no stores are configured.
func (a *Archiver) Empty() bool { return len(a.stores) == 0 }

func (a *Archiver) RecordTrade(ctx context.Context, t model.Trade) error {
	var firstErr error
	for _, s := range a.stores {
		if err := s.RecordTrade(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Archiver) RecordSignal(ctx context.Context, rec model.SignalRecord) error {
	var firstErr error
	for _, s := range a.stores {
		if err := s.RecordSignal(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Archiver) InsertSnapshot(ctx context.Context, snap model.PortfolioSnapshot) error {
	var firstErr error
	for _, s := range a.stores {
		if err := s.InsertSnapshot(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Archiver = (*Archiver)(nil)
