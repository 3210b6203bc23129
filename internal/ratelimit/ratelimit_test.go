package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Burst(t *testing.T) {
	l := NewWithBurst(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow() {
		t.Error("request allowed beyond burst")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewWithBurst(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("unlimited limiter denied request %d", i)
		}
	}
}

func TestLimiter_WaitN(t *testing.T) {
	l := NewWithBurst(1000, 5)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Larger than the burst; clamped instead of failing.
	if err := l.WaitN(ctx, 50); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := NewWithBurst(0.001, 1)
	l.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestLimiter_Tokens(t *testing.T) {
	l := NewWithBurst(0.001, 3)

	if got := l.Tokens(); got < 2.99 || got > 3 {
		t.Fatalf("Tokens = %v, want full burst of 3", got)
	}
	l.Allow()
	l.Allow()
	if got := l.Tokens(); got < 0.99 || got > 1.01 {
		t.Errorf("Tokens after two calls = %v, want about 1", got)
	}
}
