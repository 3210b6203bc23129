package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)

	got, ok := c.Get(ctx, "a")
	if !ok || got != 1 {
		t.Fatalf("Get() = %d, %v; want 1, true", got, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "short", 1, time.Second)
	c.Set(ctx, "forever", 2, 0)

	now = now.Add(2 * time.Second)

	if _, ok := c.Get(ctx, "short"); ok {
		t.Error("expected expired entry to be hidden")
	}
	if v, ok := c.Get(ctx, "forever"); !ok || v != 2 {
		t.Errorf("Get(forever) = %d, %v; want 2, true", v, ok)
	}

	c.purge()
	if c.Len() != 1 {
		t.Errorf("Len() after purge = %d, want 1", c.Len())
	}
}

func TestCache_DeleteAndClose(t *testing.T) {
	c := New[int, string](time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, 1, "x", 0)
	c.Delete(ctx, 1)
	if _, ok := c.Get(ctx, 1); ok {
		t.Error("expected deleted key to miss")
	}

	c.Close()
	c.Close()
}
