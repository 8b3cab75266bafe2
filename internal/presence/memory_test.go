package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_UpsertIsSingleEntryPerIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Unix(1_700_000_000, 0)

	for i := range 5 {
		if err := s.Upsert(ctx, "alice", t0.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, _ := s.Count(ctx)
	if n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	last, ok := s.LastSeen("alice")
	if !ok || !last.Equal(t0.Add(4*time.Second)) {
		t.Fatalf("expected lastSeen t0+4s, got %v (ok=%v)", last, ok)
	}
}

func TestMemoryStore_UpsertNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Unix(1_700_000_000, 0)

	_ = s.Upsert(ctx, "alice", t0.Add(10*time.Second))
	_ = s.Upsert(ctx, "alice", t0)

	last, _ := s.LastSeen("alice")
	if !last.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("stale upsert overwrote newer timestamp: %v", last)
	}
}

func TestMemoryStore_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Upsert(ctx, "alice", time.Now())
	if err := s.Remove(ctx, "alice"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := s.Remove(ctx, "alice"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := s.Remove(ctx, "never-seen"); err != nil {
		t.Fatalf("remove of unknown identity: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestMemoryStore_EvictOlderThan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Unix(1_700_000_000, 0)

	_ = s.Upsert(ctx, "alice", t0)
	_ = s.Upsert(ctx, "bob", t0.Add(60*time.Second))

	evicted, err := s.EvictOlderThan(ctx, 90*time.Second, t0.Add(100*time.Second))
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "alice" {
		t.Fatalf("expected only alice evicted, got %v", evicted)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("expected bob to remain, count=%d", n)
	}

	// Exactly at the boundary is still fresh.
	evicted, _ = s.EvictOlderThan(ctx, 90*time.Second, t0.Add(150*time.Second))
	if len(evicted) != 0 {
		t.Fatalf("entry at the threshold boundary was evicted: %v", evicted)
	}
}

func TestMemoryStore_ConcurrentUpsertAndEvict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				id := Identity(fmt.Sprintf("user-%d", i%20))
				_ = s.Upsert(ctx, id, base.Add(time.Duration(w*i)*time.Millisecond))
				if i%10 == 0 {
					_, _ = s.EvictOlderThan(ctx, time.Second, base.Add(2*time.Second))
				}
			}
		}(w)
	}
	wg.Wait()

	n, _ := s.Count(ctx)
	if n > 20 {
		t.Fatalf("count %d exceeds number of distinct identities", n)
	}
}
