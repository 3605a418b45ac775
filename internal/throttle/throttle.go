// Package throttle provides the single chokepoint for outbound request
// pacing. Every network call to a given upstream flows through one Gate,
// so concurrent callers (interactive searches, batch refreshes) share the
// same budget instead of multiplying it.
package throttle

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate is a blocking rate limiter with no burst allowance: requests are
// spaced evenly at the configured rate even after an idle period.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate returns a gate allowing requestsPerSec sustained throughput.
func NewGate(requestsPerSec float64) *Gate {
	return &Gate{limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1)}
}

// Wait blocks until the next request slot is available or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately, consuming the
// slot if so. Used by callers that prefer to skip work over queueing.
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}
