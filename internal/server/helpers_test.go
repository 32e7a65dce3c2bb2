package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/forumchat/internal/auth"
	"github.com/Tyrowin/forumchat/internal/bus"
	"github.com/Tyrowin/forumchat/internal/envelope"
	"github.com/Tyrowin/forumchat/internal/storage/sqlite"
)

const (
	testOrigin   = "http://localhost:8080"
	readTimeout  = 2 * time.Second
	quietTimeout = 200 * time.Millisecond
)

var testSecret = []byte("gateway-test-secret")

type testEnv struct {
	gateway *Gateway
	server  *httptest.Server
	topics  *bus.Registry
	store   *sqlite.Store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv starts a gateway backed by a fresh SQLite store. Scenario tests
// get a generous rate limit unless a mutator says otherwise.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := *NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimit.Burst = 1000
	for _, m := range mutate {
		m(&cfg)
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "forumchat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	resolver, err := auth.NewTokenResolver(testSecret)
	if err != nil {
		t.Fatalf("NewTokenResolver: %v", err)
	}

	topics := bus.NewRegistry(cfg.BusCapacity)
	gateway, err := NewGateway(Options{
		Config:   cfg,
		Topics:   topics,
		Store:    store,
		Resolver: resolver,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	gateway.Start()

	server := httptest.NewServer(SetupRoutes(gateway))
	t.Cleanup(func() {
		server.Close()
		_ = gateway.Shutdown(5 * time.Second)
	})

	return &testEnv{gateway: gateway, server: server, topics: topics, store: store}
}

func mintToken(t *testing.T, username string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// buildWebSocketURL converts the test server URL into a ws:// URL for path.
func buildWebSocketURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func dialHeaders(t *testing.T, env *testEnv, headers http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(buildWebSocketURL(env.server, "/api/ws"), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// connect opens an authenticated connection as username.
func connect(t *testing.T, env *testEnv, username string) *websocket.Conn {
	t.Helper()
	headers := http.Header{}
	headers.Set("Origin", testOrigin)
	headers.Set("Authorization", "Bearer "+mintToken(t, username))
	conn, _, err := dialHeaders(t, env, headers)
	if err != nil {
		t.Fatalf("dial as %s: %v", username, err)
	}
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, module, typ string, payload any) {
	t.Helper()
	env, err := envelope.New(module, typ, payload)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	data, err := envelope.Encode(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write envelope: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", kind)
	}
	env, err := envelope.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

// expectNoMessage fails if anything arrives within quietTimeout. A timed-out
// gorilla connection cannot be read again, so this must be the last read.
func expectNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(quietTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
}

func expectEnvelope(t *testing.T, conn *websocket.Conn, module, typ string) envelope.Envelope {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Module != module || env.Type != typ {
		t.Fatalf("expected %s/%s, got %s (payload %s)", module, typ, env, env.Payload)
	}
	return env
}

func decodeInto[T any](t *testing.T, env envelope.Envelope) T {
	t.Helper()
	var v T
	if err := env.Payload.Decode(&v); err != nil {
		t.Fatalf("decode %s payload %s: %v", env, env.Payload, err)
	}
	return v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
