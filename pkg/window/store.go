package window

import (
	"context"
	"fmt"
	"time"
)

// CounterStore tracks timestamped occurrences per key over trailing time
// windows. Individual occurrences are recorded (not a running total) so
// entries older than the queried window are dropped lazily on each read.
// Implementations must be safe for concurrent use and must not lose
// increments under contention.
type CounterStore interface {
	// Increment records one occurrence for key and returns the number of
	// occurrences currently retained for it.
	Increment(ctx context.Context, key string) (int, error)

	// Count returns the number of occurrences for key within the trailing
	// window ending now.
	Count(ctx context.Context, key string, window time.Duration) (int, error)

	// Reset removes all occurrences for key.
	Reset(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}

var ErrUnavailable = fmt.Errorf("counter store unavailable")
