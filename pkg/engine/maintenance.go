package engine

import (
	"context"
	"time"
)

type sweeper interface {
	Sweep()
}

// StartMaintenance runs the periodic housekeeping pass: prune the event
// buffer and sweep expired entries out of the in-memory stores. The Redis
// backends expire natively and ignore this.
func (e *Engine) StartMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.buffer.Prune()
				if s, ok := e.blocks.(sweeper); ok {
					s.Sweep()
				}
				if s, ok := e.counters.(sweeper); ok {
					s.Sweep()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Healthy reports whether the backing stores respond. Used by the health
// endpoint; a degraded store does not stop analysis (the pipeline fails
// closed) but should surface in monitoring.
func (e *Engine) Healthy(ctx context.Context) error {
	if err := e.counters.Ping(ctx); err != nil {
		return err
	}
	return e.blocks.Ping(ctx)
}
