package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
)

// Sink delivers one message to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg string) error
}

// Manager fans a notification out to every configured sink. A failing sink
// is logged and skipped; notifications never fail the trading cycle.
type Manager struct {
	sinks []Sink
}

var _ port.Notifier = (*Manager)(nil)

func NewManager(sinks ...Sink) *Manager {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Manager{sinks: kept}
}

func (m *Manager) Notify(ctx context.Context, msg string) {
	for _, s := range m.sinks {
		if err := s.Send(ctx, msg); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("notification delivery failed")
		}
	}
}
