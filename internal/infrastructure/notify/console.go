package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Console writes notifications to the structured log.
type Console struct{}

func NewConsole() Console { return Console{} }

func (Console) Name() string { return "console" }

func (Console) Send(_ context.Context, msg string) error {
	log.Info().Str("channel", "notify").Msg(msg)
	return nil
}
