package ratelimit

import (
	"context"
	"testing"
)

func TestInMemoryStore_BurstThenDeny(t *testing.T) {
	store := NewInMemoryStore()
	policy := Policy{RequestsPerMinute: 60, Burst: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := Allow(ctx, store, "ip-1", policy); err != nil {
			t.Fatalf("expected allow within burst, got %v", err)
		}
	}
	if err := Allow(ctx, store, "ip-1", policy); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited after burst exhausted, got %v", err)
	}
}

func TestInMemoryStore_PerActorIsolation(t *testing.T) {
	store := NewInMemoryStore()
	policy := Policy{RequestsPerMinute: 60, Burst: 1}
	ctx := context.Background()

	if err := Allow(ctx, store, "tenant-a", policy); err != nil {
		t.Fatalf("tenant-a first request should be allowed: %v", err)
	}
	if err := Allow(ctx, store, "tenant-b", policy); err != nil {
		t.Fatalf("tenant-b should have its own bucket: %v", err)
	}
}
