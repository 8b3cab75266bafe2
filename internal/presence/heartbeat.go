package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/log"
)

// Heartbeats implements presence for clients that only talk in discrete requests.
// Clients send Online on an interval while visible and Offline when hidden;
// Sweep evicts clients that stopped beating without saying goodbye.
type Heartbeats struct {
	store          Store
	staleThreshold time.Duration
	rec            Recorder
	log            *zerolog.Logger
	now            func() time.Time
}

// NewHeartbeats builds the heartbeat protocol over store. rec may be nil.
func NewHeartbeats(store Store, staleThreshold time.Duration, rec Recorder, logger *zerolog.Logger) *Heartbeats {
	if rec == nil {
		rec = NopRecorder{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Heartbeats{
		store:          store,
		staleThreshold: staleThreshold,
		rec:            rec,
		log:            logger,
		now:            time.Now,
	}
}

// Online records a heartbeat for id. A late beat refreshes the entry even if
// the threshold has passed but no sweep has run yet.
func (h *Heartbeats) Online(ctx context.Context, id Identity) error {
	if err := h.store.Upsert(ctx, id, h.now()); err != nil {
		return err
	}
	h.rec.Event(EventOnline)
	h.refreshGauge(ctx)
	return nil
}

// Offline removes id. Calling it for an absent identity is a no-op.
func (h *Heartbeats) Offline(ctx context.Context, id Identity) error {
	if err := h.store.Remove(ctx, id); err != nil {
		return err
	}
	h.rec.Event(EventOffline)
	h.refreshGauge(ctx)
	return nil
}

// Sweep evicts entries whose last heartbeat is older than the stale threshold.
func (h *Heartbeats) Sweep(ctx context.Context) ([]Identity, error) {
	evicted, err := h.store.EvictOlderThan(ctx, h.staleThreshold, h.now())
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		h.rec.Evicted(len(evicted))
		h.log.Debug().Int("evicted", len(evicted)).Msg("swept stale presence entries")
	}
	return evicted, nil
}

// OnlineCount sweeps first so stale entries are not reported, then counts.
// A failed sweep is logged and the count is still attempted.
func (h *Heartbeats) OnlineCount(ctx context.Context) (int, error) {
	if _, err := h.Sweep(ctx); err != nil {
		h.log.Warn().Err(err).Msg("sweep before count failed")
	}
	n, err := h.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	h.rec.SetOnline(n)
	return n, nil
}

func (h *Heartbeats) refreshGauge(ctx context.Context) {
	if n, err := h.store.Count(ctx); err == nil {
		h.rec.SetOnline(n)
	}
}
