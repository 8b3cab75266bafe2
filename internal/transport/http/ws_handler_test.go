package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirepresence/internal/config"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/proto"
)

type wireMessage struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func dialWS(ctx context.Context, t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.server.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendOnline(ctx context.Context, t *testing.T, conn *websocket.Conn, username, token string) {
	t.Helper()
	payload, _ := json.Marshal(proto.UserOnlineData{Username: username, Token: token})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeUserOnline, Data: payload}); err != nil {
		t.Fatalf("send user-online: %v", err)
	}
}

// readUntil reads messages until match returns true.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(wireMessage) bool) wireMessage {
	t.Helper()
	for {
		var msg wireMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func countIs(want int) func(wireMessage) bool {
	return func(msg wireMessage) bool {
		if msg.Type != proto.OutboundTypeOnlineCount {
			return false
		}
		var c proto.OnlineCount
		return json.Unmarshal(msg.Data, &c) == nil && c.Count == want
	}
}

func waitForCount(t *testing.T, env *testEnv, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.onlineCount(t) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("online count never reached %d", want)
}

func TestWebSocketOnlineBroadcast(t *testing.T) {
	env := newTestEnv(t, config.ModePush)
	token := env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	watcher := dialWS(ctx, t, env)
	readUntil(ctx, t, watcher, countIs(0))

	conn := dialWS(ctx, t, env)
	sendOnline(ctx, t, conn, "alice", token)

	readUntil(ctx, t, watcher, countIs(1))
	if n := env.onlineCount(t); n != 1 {
		t.Fatalf("expected 1 online, got %d", n)
	}

	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeUserOffline}); err != nil {
		t.Fatalf("send user-offline: %v", err)
	}
	readUntil(ctx, t, watcher, countIs(0))
}

func TestWebSocketSupersedeAndStaleDisconnect(t *testing.T) {
	env := newTestEnv(t, config.ModePush)
	token := env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(ctx, t, env)
	sendOnline(ctx, t, connA, "alice", token)
	readUntil(ctx, t, connA, countIs(1))

	connB := dialWS(ctx, t, env)
	sendOnline(ctx, t, connB, "", token)

	readUntil(ctx, t, connA, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeSuperseded })
	if n := env.onlineCount(t); n != 1 {
		t.Fatalf("second session must not double count, got %d", n)
	}

	// A was superseded; its disconnect leaves alice online through B.
	connA.Close(websocket.StatusNormalClosure, "bye")
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Connections() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := env.onlineCount(t); n != 1 {
		t.Fatalf("expected alice still online via B, got %d", n)
	}

	connB.Close(websocket.StatusNormalClosure, "bye")
	waitForCount(t, env, 0)
}

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t, config.ModePush)
	env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	sendOnline(ctx, t, conn, "alice", "invalid")

	msg := readUntil(ctx, t, conn, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeError })
	if msg.Error == nil || msg.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", msg.Error)
	}
	if n := env.onlineCount(t); n != 0 {
		t.Fatalf("unauthenticated socket changed the count to %d", n)
	}
}

func TestWebSocketRejectsMismatchedUsername(t *testing.T) {
	env := newTestEnv(t, config.ModePush)
	token := env.register(t, "alice")
	env.register(t, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	sendOnline(ctx, t, conn, "bob", token)

	msg := readUntil(ctx, t, conn, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeError })
	if msg.Error == nil || msg.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", msg.Error)
	}
}

func TestWebSocketUnknownMessageType(t *testing.T) {
	env := newTestEnv(t, config.ModePush)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "join"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := readUntil(ctx, t, conn, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeError })
	if msg.Error == nil || msg.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request error, got %+v", msg.Error)
	}
}

func TestWebSocketRateLimitedErrorReachesClient(t *testing.T) {
	env := newTestEnvWithConfig(t, config.ModePush, func(c *config.Config) {
		c.MaxMessagesPerMinute = 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(ctx, t, env)
	for range 2 {
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "join"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	first := readUntil(ctx, t, conn, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeError })
	if first.Error == nil || first.Error.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request first, got %+v", first.Error)
	}
	second := readUntil(ctx, t, conn, func(msg wireMessage) bool { return msg.Type == proto.OutboundTypeError })
	if second.Error == nil || second.Error.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited second, got %+v", second.Error)
	}
}

func dialWithOrigin(ctx context.Context, env *testEnv, origin string) (*websocket.Conn, *stdhttp.Response, error) {
	wsURL := strings.Replace(env.server.URL, "http", "ws", 1) + "/ws"
	return websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Origin": []string{origin}},
	})
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, config.ModePush)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := dialWithOrigin(ctx, env, "http://evil.example")
	if err == nil {
		conn.Close(websocket.StatusNormalClosure, "done")
		t.Fatalf("expected cross-origin upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
	if n := env.hub.Connections(); n != 0 {
		t.Fatalf("expected no registered connections, got %d", n)
	}
}

func TestWebSocketAllowsConfiguredOrigin(t *testing.T) {
	env := newTestEnvWithConfig(t, config.ModePush, func(c *config.Config) {
		c.WSOriginPatterns = []string{"app.example"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dialWithOrigin(ctx, env, "https://app.example")
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readUntil(ctx, t, conn, countIs(0))
}
