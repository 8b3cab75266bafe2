package core

import "github.com/vovakirdan/wirepresence/internal/presence"

// ClientState is the lifecycle position of one connection.
type ClientState int

const (
	// StateUnassociated means connected with no identity bound.
	StateUnassociated ClientState = iota
	// StateAssociated means the connection owns an identity's presence.
	StateAssociated
	// StateClosed is terminal; the client is discarded.
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateUnassociated:
		return "unassociated"
	case StateAssociated:
		return "associated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one push connection as seen by the hub.
// identity and state are guarded by the owning Hub's mutex.
type Client struct {
	ID     string
	Events chan *Event

	identity presence.Identity
	state    ClientState
}

// NewClient constructs a client with an initialized event queue.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 8),
		state:  StateUnassociated,
	}
}

// deliver queues ev without blocking. When the queue is full the queued count
// snapshots are collapsed, since only the newest one matters; notices such as
// superseded and errors keep their place.
func (c *Client) deliver(ev *Event) {
	select {
	case c.Events <- ev:
		return
	default:
	}

	kept := make([]*Event, 0, cap(c.Events)+1)
	for drained := false; !drained; {
		select {
		case queued := <-c.Events:
			if queued.Kind != EventOnlineCount {
				kept = append(kept, queued)
			}
		default:
			drained = true
		}
	}
	kept = append(kept, ev)

	for _, queued := range kept {
		select {
		case c.Events <- queued:
		default:
			// Queue holds nothing but notices; the rest are lost.
			return
		}
	}
}
