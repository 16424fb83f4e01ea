package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"polyagent/internal/application/port"
	"polyagent/internal/application/service"
)

// New builds the executor for the configured mode. Paper and monitor modes
// share the simulated ledger; monitor mode keeps it so portfolio snapshots
// and recovery still work even though no orders reach it. Live mode requires
// API credentials in the environment and fails fast without them.
func New(ctx context.Context, mode service.Mode, startingBalance float64, clobURL string, timeout time.Duration, repo port.Repository) (port.Executor, error) {
	switch mode {
	case service.ModePaper, service.ModeMonitor:
		paper := NewPaper(startingBalance)
		if err := paper.Recover(ctx, repo); err != nil {
			return nil, fmt.Errorf("recover paper portfolio: %w", err)
		}
		log.Info().Str("mode", string(mode)).Float64("balance", startingBalance).Msg("paper executor initialized")
		return paper, nil
	case service.ModeLive:
		live := NewLive(clobURL, timeout)
		if !live.Available() {
			return nil, fmt.Errorf("live mode requires POLYMARKET_API_KEY and POLYMARKET_API_SECRET: %w", port.ErrUnavailable)
		}
		log.Info().Str("url", clobURL).Msg("live executor initialized")
		return live, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}
