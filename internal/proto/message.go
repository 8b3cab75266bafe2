package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypeUserOnline  = "user-online"
	InboundTypeUserOffline = "user-offline"

	OutboundTypeOnlineCount = "online-count"
	OutboundTypeSuperseded  = "superseded"
	OutboundTypeError       = "error"
)

// UserOnlineData announces the sender as online. Token must belong to Username
// when Username is set.
type UserOnlineData struct {
	Username string `json:"username,omitempty"`
	Token    string `json:"token"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OnlineCount is broadcast whenever the number of online users changes.
type OnlineCount struct {
	Count int `json:"count"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
