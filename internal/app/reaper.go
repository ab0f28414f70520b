package app

import (
	"context"
	"time"
)

// ReapFinished deletes sessions that finished more than the retention window before now.
func (g *GameService) ReapFinished(now time.Time) int {
	cutoff := now.Add(-g.opts.Retention)
	reaped := 0
	for _, session := range g.sessions.List() {
		if session.finishedBefore(cutoff) {
			g.DeleteSession(session.ID())
			reaped++
		}
	}
	return reaped
}

// RunReaper calls ReapFinished every interval until ctx is done.
func (g *GameService) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := g.ReapFinished(g.opts.Clock()); n > 0 {
				g.logger.Info().Int("reaped", n).Msg("finished games removed")
			}
		}
	}
}
