package core

// EventKind is a notification the hub emits to clients.
type EventKind int

const (
	// EventOnlineCount carries the current number of online identities.
	EventOnlineCount EventKind = iota
	// EventSuperseded tells a connection its identity was claimed by a newer connection.
	EventSuperseded
	// EventError notifies a client about a rejected request.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind  EventKind
	Count int
	Error *CoreError
}
