package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirepresence/internal/presence"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// lastCount drains queued events and returns the newest count seen, or -1.
func lastCount(ch <-chan *Event) int {
	n := -1
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return n
			}
			if ev.Kind == EventOnlineCount {
				n = ev.Count
			}
		default:
			return n
		}
	}
}

func mustStoreCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	n, err := h.OnlineCount(context.Background())
	if err != nil {
		t.Fatalf("online count: %v", err)
	}
	if n != want {
		t.Fatalf("expected %d online, got %d", want, n)
	}
}

// flakyStore fails Remove while failRemove is set.
type flakyStore struct {
	*presence.MemoryStore
	failRemove bool
}

func (f *flakyStore) Remove(ctx context.Context, id presence.Identity) error {
	if f.failRemove {
		return errors.New("backend down")
	}
	return f.MemoryStore.Remove(ctx, id)
}
