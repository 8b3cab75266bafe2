package http

import (
	"bytes"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wirepresence/internal/auth"
	"github.com/vovakirdan/wirepresence/internal/config"
	"github.com/vovakirdan/wirepresence/internal/core"
	"github.com/vovakirdan/wirepresence/internal/log"
	"github.com/vovakirdan/wirepresence/internal/presence"
	"github.com/vovakirdan/wirepresence/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	server     *httptest.Server
	auth       *auth.Service
	jwt        *auth.JWTConfig
	presence   *presence.MemoryStore
	hub        *core.Hub
	heartbeats *presence.Heartbeats
}

// newTestEnv starts a server over in-memory sqlite and presence stores.
func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, mode, nil)
}

// newTestEnvWithConfig is newTestEnv with a hook to adjust the server config.
func newTestEnvWithConfig(t *testing.T, mode string, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.Presence.Mode = mode
	if mutate != nil {
		mutate(&cfg)
	}

	disabledLogger := log.Nop()
	env := &testEnv{
		auth:     authService,
		jwt:      jwtConfig,
		presence: presence.NewMemoryStore(),
	}

	deps := Dependencies{Auth: authService}
	switch mode {
	case config.ModePoll:
		env.heartbeats = presence.NewHeartbeats(env.presence, cfg.Presence.StaleThreshold, nil, disabledLogger)
		deps.Heartbeats = env.heartbeats
	default:
		env.hub = core.NewHub(env.presence, nil, disabledLogger)
		deps.Hub = env.hub
	}

	server := NewServer(&cfg, deps, disabledLogger)
	env.server = httptest.NewServer(server.Handler)
	t.Cleanup(env.server.Close)

	return env
}

// register creates an account and returns its token.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	resp := e.do(t, stdhttp.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}

	var body AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return body.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := stdhttp.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (e *testEnv) onlineCount(t *testing.T) int {
	t.Helper()

	resp := e.do(t, stdhttp.MethodGet, "/api/online-count", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("online-count: status %d", resp.StatusCode)
	}

	var body CountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	return body.Count
}
