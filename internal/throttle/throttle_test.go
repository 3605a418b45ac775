package throttle

import (
	"context"
	"testing"
	"time"
)

func TestGateSpacesRequests(t *testing.T) {
	g := NewGate(10) // 100ms spacing

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := g.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	// First slot is free, the next two cost ~100ms each.
	if elapsed < 150*time.Millisecond {
		t.Errorf("3 requests at 10/s took %v, expected at least 150ms", elapsed)
	}
}

func TestGateWaitRespectsContext(t *testing.T) {
	g := NewGate(0.1) // 10s spacing
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := g.Wait(ctx); err == nil {
		t.Error("expected Wait to fail once context deadline passed")
	}
}

func TestGateAllow(t *testing.T) {
	g := NewGate(0.1)
	if !g.Allow() {
		t.Error("first Allow should succeed")
	}
	if g.Allow() {
		t.Error("second immediate Allow should fail at 0.1/s")
	}
}
