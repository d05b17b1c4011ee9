package supervisor

import (
	"context"
	"time"
)

// DefaultBackoff is the delay before the next attempt after each
// consecutive failure. The last entry repeats.
var DefaultBackoff = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// delayFor returns the backoff for a zero-based failed attempt index.
func delayFor(table []time.Duration, attempt int) time.Duration {
	if len(table) == 0 {
		return 0
	}
	return table[min(max(attempt, 0), len(table)-1)]
}

func waitForBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
