package agent

import (
	"context"
	"time"

	"taskloop/internal/execlog"
)

// outputClock reports when agent output was last observed.
type outputClock interface {
	LastOutput() time.Time
}

// heartbeat periodically compares now to the last observed output and
// logs a warning when silence exceeds the threshold. It never cancels
// anything; only the hard timeout cancels an invocation.
type heartbeat struct {
	clock     outputClock
	interval  time.Duration
	threshold time.Duration
	log       *execlog.Logger
}

func newHeartbeat(clock outputClock, interval, threshold time.Duration, log *execlog.Logger) *heartbeat {
	return &heartbeat{
		clock:     clock,
		interval:  interval,
		threshold: threshold,
		log:       log,
	}
}

func (h *heartbeat) run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			silence := time.Since(h.clock.LastOutput())
			if h.threshold > 0 && silence > h.threshold {
				h.log.Warnf("agent silent for %s (threshold %s)", silence.Round(time.Second), h.threshold)
			}
		}
	}
}
