// Package presence tracks which identities are currently online.
package presence

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps failures of the backing resource.
var ErrStoreUnavailable = errors.New("presence store unavailable")

// Identity names an authenticated user. It is the username carried in the token.
type Identity string

// Store holds at most one entry per identity. All methods are atomic with
// respect to each other.
type Store interface {
	// Upsert inserts or refreshes the entry for id. lastSeen never moves backwards.
	Upsert(ctx context.Context, id Identity, now time.Time) error
	// Remove deletes the entry for id. Missing entries are not an error.
	Remove(ctx context.Context, id Identity) error
	// Count returns the number of live entries.
	Count(ctx context.Context) (int, error)
	// EvictOlderThan removes entries whose lastSeen is before now-threshold and returns them.
	EvictOlderThan(ctx context.Context, threshold time.Duration, now time.Time) ([]Identity, error)
}

// Counter answers the online-count query.
type Counter interface {
	OnlineCount(ctx context.Context) (int, error)
}

// Recorder receives presence telemetry.
type Recorder interface {
	SetOnline(n int)
	Event(kind string)
	Evicted(n int)
}

// Event kinds reported to a Recorder.
const (
	EventOnline     = "online"
	EventOffline    = "offline"
	EventSupersede  = "supersede"
	EventDisconnect = "disconnect"
)

// NopRecorder discards telemetry.
type NopRecorder struct{}

func (NopRecorder) SetOnline(int) {}
func (NopRecorder) Event(string)  {}
func (NopRecorder) Evicted(int)   {}
