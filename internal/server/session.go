// Package server manages individual WebSocket sessions: the read pump, the
// per-connection event loop, topic membership, and lifecycle control.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/forumchat/internal/bus"
	"github.com/Tyrowin/forumchat/internal/envelope"
	"github.com/Tyrowin/forumchat/internal/module"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// frameBuffer is how many client frames the read pump may run ahead of
	// the session loop.
	frameBuffer = 16

	// deliverBatch caps how many bus envelopes one wake-up forwards before the
	// loop looks at client frames again.
	deliverBatch = 64

	rateLimitedMessage  = "rate limit exceeded"
	binaryFrameMessage  = "binary frames are not supported"
	shuttingDownMessage = "server shutting down"
)

type frame struct {
	kind int
	data []byte
}

// Session is one authenticated WebSocket connection. All of its state is
// owned by the goroutine running run; only the read pump runs beside it.
type Session struct {
	id             string
	conn           *websocket.Conn
	addr           string
	username       string
	modules        *module.Registry
	topics         *bus.Registry
	joined         map[int64]*bus.Receiver
	notify         chan struct{}
	frames         chan frame
	done           chan struct{}
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	maxMessageSize int64
	mctx           *module.Context
	log            *slog.Logger
}

// NewSession prepares a session for an upgraded connection. The connection is
// not read or written until the hub starts the session.
func NewSession(conn *websocket.Conn, username, addr string, deps SessionDeps) *Session {
	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:             id,
		conn:           conn,
		addr:           addr,
		username:       username,
		modules:        deps.Modules,
		topics:         deps.Topics,
		joined:         make(map[int64]*bus.Receiver),
		notify:         make(chan struct{}, 1),
		frames:         make(chan frame, frameBuffer),
		done:           make(chan struct{}),
		limiter:        newRateLimiter(deps.Config.RateLimit.Burst, deps.Config.RateLimit.RefillInterval),
		rateLimit:      deps.Config.RateLimit,
		maxMessageSize: deps.Config.MaxMessageSize,
		log:            logger.With("session_id", id, "remote_addr", addr, "username", username),
	}
	s.mctx = &module.Context{
		Username:   username,
		Topics:     deps.Topics,
		Store:      deps.Store,
		Membership: s,
	}

	if conn != nil && s.maxMessageSize > 0 {
		conn.SetReadLimit(s.maxMessageSize)
	}
	return s
}

// SessionDeps are the shared collaborators every session uses.
type SessionDeps struct {
	Config  Config
	Modules *module.Registry
	Topics  *bus.Registry
	Store   module.MessageStore
	Logger  *slog.Logger
}

// ID is the session's log correlation id.
func (s *Session) ID() string { return s.id }

// Username is the identity the session was authenticated as.
func (s *Session) Username() string { return s.username }

// Join subscribes the session to topic, sharing its wake-up channel with
// every other subscription it holds.
func (s *Session) Join(topic int64) bool {
	if _, ok := s.joined[topic]; ok {
		return false
	}
	s.joined[topic] = s.topics.Subscribe(topic, s.notify)
	s.log.Debug("Joined topic", "topic", topic, "joined", len(s.joined))
	return true
}

// Leave drops the session's subscription to topic.
func (s *Session) Leave(topic int64) bool {
	rx, ok := s.joined[topic]
	if !ok {
		return false
	}
	delete(s.joined, topic)
	if s.topics.Unsubscribe(topic, rx) {
		s.log.Debug("Released topic bus", "topic", topic)
	}
	s.log.Debug("Left topic", "topic", topic, "joined", len(s.joined))
	return true
}

// run is the session loop. It returns once the session has closed; by then
// every topic it joined has been released.
func (s *Session) run(ctx context.Context) {
	s.log.Info("Session started")

	go s.readPump()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway, shuttingDownMessage)
			return

		case f, ok := <-s.frames:
			if !ok {
				return
			}
			if !s.handleFrame(ctx, f) {
				return
			}

		case <-s.notify:
			if !s.deliverPending() {
				return
			}

		case <-ticker.C:
			if !s.handlePing() {
				return
			}
		}
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn("Error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

func (s *Session) readPump() {
	defer close(s.frames)

	s.setupReadConnection()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		select {
		case s.frames <- frame{kind: kind, data: data}:
		case <-s.done:
			return
		}
	}
}

// handleReadError logs the reason the read side of the connection ended.
func (s *Session) handleReadError(err error) {
	select {
	case <-s.done:
		s.log.Debug("Read pump stopped after close", "error", err)
		return
	default:
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		s.log.Warn("Frame exceeded maximum size", "max_bytes", s.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		s.log.Info("Client disconnected", "reason", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		s.log.Info("Connection closed", "reason", err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		s.log.Warn("Unexpected WebSocket close", "error", err)
		return
	}

	s.log.Warn("WebSocket read error", "error", err)
}

// handleFrame processes one client frame and returns false when the
// connection can no longer be written to.
func (s *Session) handleFrame(ctx context.Context, f frame) bool {
	if !s.limiter.Allow() {
		s.log.Warn("Rate limit exceeded; discarding frame",
			"burst", s.rateLimit.Burst, "interval", s.rateLimit.RefillInterval)
		return s.sendError(rateLimitedMessage)
	}

	if f.kind != websocket.TextMessage {
		return s.sendError(binaryFrameMessage)
	}

	env, err := envelope.Decode(f.data)
	if err != nil {
		s.log.Info("Rejected malformed envelope", "error", err)
		return s.sendError(module.ClientMessage(err))
	}

	if err := s.modules.Dispatch(ctx, s.mctx, env); err != nil {
		s.logDispatchError(env, err)
		return s.sendError(module.ClientMessage(err))
	}

	s.log.Debug("Handled envelope", "envelope", env.String())
	return true
}

func (s *Session) logDispatchError(env envelope.Envelope, err error) {
	var clientErr *module.ClientError
	switch {
	case errors.As(err, &clientErr) && clientErr.Err != nil:
		s.log.Error("Handler failed", "envelope", env.String(), "error", err)
	case errors.Is(err, module.ErrUnknownModule),
		errors.Is(err, module.ErrUnknownType),
		errors.Is(err, module.ErrInvalidPayload),
		clientErr != nil:
		s.log.Info("Rejected envelope", "envelope", env.String(), "error", err)
	default:
		s.log.Error("Handler failed", "envelope", env.String(), "error", err)
	}
}

// deliverPending forwards what the joined topics have buffered. Topics are
// visited in turn so one busy thread cannot hold back the others; order
// within a topic is preserved.
func (s *Session) deliverPending() bool {
	delivered := 0
	for progressed := true; progressed; {
		progressed = false
		for topic, rx := range s.joined {
			env, err := rx.TryRecv()
			if err != nil {
				var lag *bus.LagError
				if errors.As(err, &lag) {
					s.log.Warn("Subscriber lagged; envelopes dropped", "topic", topic, "missed", lag.Missed)
					progressed = true
				}
				continue
			}
			progressed = true

			if !s.deliver(env) {
				return false
			}
			delivered++
			if delivered >= deliverBatch {
				s.wake()
				return true
			}
		}
	}
	return true
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) deliver(env envelope.Envelope) bool {
	if !s.modules.ShouldDeliver(s.mctx, env) {
		return true
	}
	return s.send(env)
}

func (s *Session) sendError(message string) bool {
	return s.send(module.ErrorEnvelope(message))
}

// send writes env as one text frame.
func (s *Session) send(env envelope.Envelope) bool {
	data, err := envelope.Encode(env)
	if err != nil {
		s.log.Error("Error encoding envelope", "envelope", env.String(), "error", err)
		return true
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn("Error setting write deadline", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("Error writing envelope", "envelope", env.String(), "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}

func (s *Session) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug("Error writing close message", "error", err)
		}
	}
}

// close leaves every joined topic, announcing the departure to whoever is
// still watching, then closes the connection.
func (s *Session) close() {
	close(s.done)

	released := len(s.joined)
	for topic := range s.joined {
		if err := module.Leave(s.mctx, topic); err != nil {
			s.log.Error("Error leaving topic on close", "topic", topic, "error", err)
		}
	}

	s.closeConnection()
	s.log.Info("Session closed", "topics_released", released)
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("Error closing connection", "error", err)
		}
	}
}
