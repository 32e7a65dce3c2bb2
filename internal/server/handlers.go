// Package server exposes HTTP handlers, including the authenticated WebSocket
// upgrade, health checks, and the built-in test page.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/forumchat/internal/auth"
	"github.com/Tyrowin/forumchat/internal/bus"
	"github.com/Tyrowin/forumchat/internal/envelope"
	"github.com/Tyrowin/forumchat/internal/module"
)

// Options wires a Gateway. Resolver is required; nil Modules and Topics get
// the default module set and a fresh topic registry.
type Options struct {
	Config   Config
	Modules  *module.Registry
	Topics   *bus.Registry
	Store    module.MessageStore
	Resolver auth.Resolver
	Logger   *slog.Logger
}

// Gateway accepts WebSocket connections and runs one Session per connection
// against the shared topic and module registries.
type Gateway struct {
	cfg      Config
	deps     SessionDeps
	resolver auth.Resolver
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewGateway builds a gateway from opts. The hub is not running until Start.
func NewGateway(opts Options) (*Gateway, error) {
	if opts.Resolver == nil {
		return nil, errors.New("gateway: identity resolver is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Sanitize(opts.Config)

	modules := opts.Modules
	if modules == nil {
		modules = module.Default()
	}
	topics := opts.Topics
	if topics == nil {
		topics = bus.NewRegistry(cfg.BusCapacity)
	}

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Gateway{
		cfg: cfg,
		deps: SessionDeps{
			Config:  cfg,
			Modules: modules,
			Topics:  topics,
			Store:   opts.Store,
			Logger:  logger,
		},
		resolver: opts.Resolver,
		hub:      NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: logger,
	}, nil
}

// Start runs the hub in a separate goroutine. Call it before serving.
func (g *Gateway) Start() {
	go g.hub.Run()
	g.log.Info("Hub started and ready to manage WebSocket sessions")
}

// Shutdown stops every session and waits up to timeout for them to finish.
// A non-positive timeout uses the configured shutdown timeout.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = g.cfg.ShutdownTimeout
	}
	return g.hub.Shutdown(timeout)
}

// Hub returns the gateway's session hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// Topics returns the topic registry sessions subscribe through.
func (g *Gateway) Topics() *bus.Registry { return g.deps.Topics }

// Publish fans an envelope out on topic from outside any session, for example
// after a message is created over plain HTTP. It reports how many
// subscribers were reached.
func (g *Gateway) Publish(topic int64, moduleName, typ string, payload any) (int, error) {
	if _, ok := g.deps.Modules.Lookup(moduleName); !ok {
		return 0, fmt.Errorf("%w %q", module.ErrUnknownModule, moduleName)
	}
	env, err := envelope.New(moduleName, typ, payload)
	if err != nil {
		return 0, err
	}
	return g.deps.Topics.Publish(topic, env), nil
}

// WebSocketHandler authenticates the request, upgrades it, and hands the
// connection to the hub. Only GET is accepted.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	username, err := g.resolver.Resolve(r)
	if err != nil {
		g.log.Info("Rejected unauthenticated WebSocket request", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	session := NewSession(conn, username, r.RemoteAddr, g.deps)
	if err := g.hub.Register(session); err != nil {
		session.log.Warn("Session rejected", "error", err)
		session.writeClose(websocket.CloseGoingAway, shuttingDownMessage)
		session.closeConnection()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Forumchat gateway is running!")
}

// TestPageHandler serves an HTML page that speaks the envelope protocol, for
// poking at the gateway from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		slog.Warn("Error writing HTML response", "error", err)
	}
}
