package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/log"

	"github.com/vovakirdan/wirepresence/internal/presence"
)

const defaultRetryInterval = 5 * time.Second

// Hub tracks push connections and keeps the presence store in step with them.
//
// The connection set, the identity -> owning connection index and every store
// mutation are serialized by one mutex, so a supersede (drop the old handle,
// refresh the entry, bind the new handle) is observed as a single step and the
// count never dips while an identity moves between connections.
type Hub struct {
	mu      sync.Mutex
	store   presence.Store
	clients map[*Client]struct{}
	owners  map[presence.Identity]*Client
	// pending holds removals the store rejected; Run retries them.
	pending map[presence.Identity]struct{}

	rec           presence.Recorder
	log           *zerolog.Logger
	now           func() time.Time
	retryInterval time.Duration
}

// NewHub creates a hub over store. rec and logger may be nil.
func NewHub(store presence.Store, rec presence.Recorder, logger *zerolog.Logger) *Hub {
	if rec == nil {
		rec = presence.NopRecorder{}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		store:         store,
		clients:       make(map[*Client]struct{}),
		owners:        make(map[presence.Identity]*Client),
		pending:       make(map[presence.Identity]struct{}),
		rec:           rec,
		log:           logger,
		now:           time.Now,
		retryInterval: defaultRetryInterval,
	}
}

// Run retries failed removals until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.retryPending(ctx)
		}
	}
}

// RegisterClient adds a connection in the unassociated state and sends it the current count.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	c.state = StateUnassociated

	if n, err := h.store.Count(context.Background()); err == nil {
		c.deliver(&Event{Kind: EventOnlineCount, Count: n})
	}
}

// Associate binds id to c. A connection already holding id is superseded and
// told so; the entry is refreshed rather than duplicated.
func (h *Hub) Associate(ctx context.Context, c *Client, id presence.Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok || c.state == StateClosed {
		return &CoreError{Code: ErrCodeNotConnected, Message: "connection is closed", Err: ErrNotConnected}
	}

	if err := h.store.Upsert(ctx, id, h.now()); err != nil {
		return &CoreError{Code: ErrCodeStoreUnavailable, Message: "presence unavailable, retry later", Err: err}
	}
	delete(h.pending, id)

	if c.state == StateAssociated && c.identity == id {
		return nil
	}
	if c.state == StateAssociated {
		// Same connection switching accounts.
		h.release(ctx, c)
	}

	if prev, ok := h.owners[id]; ok && prev != c {
		prev.identity = ""
		prev.state = StateUnassociated
		prev.deliver(&Event{Kind: EventSuperseded})
		h.rec.Event(presence.EventSupersede)
		h.log.Info().Str("identity", string(id)).Str("old_client", prev.ID).Str("new_client", c.ID).Msg("presence superseded")
	}

	h.owners[id] = c
	c.identity = id
	c.state = StateAssociated
	h.rec.Event(presence.EventOnline)
	h.log.Debug().Str("identity", string(id)).Str("client_id", c.ID).Msg("client associated")

	h.broadcastCount(ctx)
	return nil
}

// Dissociate handles an explicit offline signal: c keeps its connection but
// no longer counts as online.
func (h *Hub) Dissociate(ctx context.Context, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.state != StateAssociated {
		return
	}
	h.release(ctx, c)
	h.rec.Event(presence.EventOffline)
	h.broadcastCount(ctx)
}

// UnregisterClient closes c. If it still owned an identity, that identity goes offline.
func (h *Hub) UnregisterClient(ctx context.Context, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	owned := c.state == StateAssociated
	if owned {
		h.release(ctx, c)
	}

	delete(h.clients, c)
	c.state = StateClosed
	close(c.Events)

	if owned {
		h.rec.Event(presence.EventDisconnect)
		h.broadcastCount(ctx)
	}
}

// NotifyError queues err for c. Clients that are already closed are skipped.
func (h *Hub) NotifyError(c *Client, err *CoreError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok || c.state == StateClosed {
		return
	}
	c.deliver(&Event{Kind: EventError, Error: err})
}

// OnlineCount returns the store size. Removal is connection driven, so no sweep is needed.
func (h *Hub) OnlineCount(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Count(ctx)
}

// State reports where c is in its lifecycle.
func (h *Hub) State(c *Client) (ClientState, presence.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.state, c.identity
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// release unbinds c's identity and removes the entry if c still owns it.
// Caller holds h.mu.
func (h *Hub) release(ctx context.Context, c *Client) {
	id := c.identity
	c.identity = ""
	c.state = StateUnassociated

	if h.owners[id] != c {
		return
	}
	delete(h.owners, id)

	if err := h.store.Remove(ctx, id); err != nil {
		h.pending[id] = struct{}{}
		h.log.Warn().Err(err).Str("identity", string(id)).Msg("presence remove failed, will retry")
	}
}

// broadcastCount sends the current count to every connection. Caller holds h.mu.
func (h *Hub) broadcastCount(ctx context.Context) {
	n, err := h.store.Count(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("count for broadcast failed")
		return
	}
	h.rec.SetOnline(n)

	ev := &Event{Kind: EventOnlineCount, Count: n}
	for c := range h.clients {
		c.deliver(ev)
	}
}

func (h *Hub) retryPending(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return
	}

	removed := false
	for id := range h.pending {
		if _, owned := h.owners[id]; owned {
			delete(h.pending, id)
			continue
		}
		if err := h.store.Remove(ctx, id); err != nil {
			h.log.Debug().Err(err).Str("identity", string(id)).Msg("presence remove retry failed")
			continue
		}
		delete(h.pending, id)
		removed = true
	}

	if removed {
		h.broadcastCount(ctx)
	}
}
