package services

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes the pause after a hard item failure (error or
// timeout): exponential in the run's cumulative failure count, capped at
// 30s, with up to a second of jitter. The count never resets within a run,
// so a run that keeps failing throttles progressively harder even when
// successes are interleaved. Soft failures such as a no-match result do
// not back off; only upstream trouble does.
func backoffDelay(failed int) time.Duration {
	exp := failed
	if exp > 6 {
		exp = 6
	}
	secs := math.Min(math.Pow(2, float64(exp)), 30)
	jitter := rand.Float64()
	return time.Duration((secs + jitter) * float64(time.Second))
}

// sleepCtx pauses for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
