package app

import (
	"context"
	"sync"
	"time"
)

// DefaultWatchdogInterval is how often an active session checks its time budget.
const DefaultWatchdogInterval = 10 * time.Second

// Watchdog periodically runs a check until the check asks to stop or Stop is called.
// A nil *Watchdog is valid and Stop on it is a no-op.
type Watchdog struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// StartWatchdog runs tick every interval on its own goroutine. Ticks never overlap.
func StartWatchdog(interval time.Duration, tick func() (keepRunning bool)) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watchdog{cancel: cancel, done: make(chan struct{})}
	go w.run(ctx, interval, tick)
	return w
}

func (w *Watchdog) run(ctx context.Context, interval time.Duration, tick func() bool) {
	defer close(w.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !tick() {
				w.Stop()
				return
			}
		}
	}
}

// Stop cancels the watchdog. It does not wait, so it may be called from inside tick.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.once.Do(w.cancel)
}

// Done is closed once the watchdog goroutine has exited.
func (w *Watchdog) Done() <-chan struct{} {
	return w.done
}
