// Package server tracks live sessions and coordinates their shutdown via the
// Hub type. Fan-out itself happens on the per-topic buses.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrHubClosed is returned when a session is registered after shutdown began.
var ErrHubClosed = errors.New("hub is shut down")

// Hub owns the goroutines of every live session. It maintains registration
// and unregistration and waits for sessions to finish on shutdown.
type Hub struct {
	sessions   map[*Session]struct{}
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a Hub. Run must be started before sessions are registered.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Register hands a session to the hub, which starts its loop.
func (h *Hub) Register(s *Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	select {
	case h.register <- s:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// SessionCount is the number of sessions currently running.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

// Run starts the hub's main event loop, handling session registration and
// unregistration. This method should be called in a separate goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			h.mutex.Lock()
			h.sessions[s] = struct{}{}
			count := len(h.sessions)
			h.mutex.Unlock()
			s.log.Info("Session registered", "sessions", count)

			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				s.run(h.ctx)
				select {
				case h.unregister <- s:
				case <-h.done:
				}
			}()

		case s := <-h.unregister:
			h.mutex.Lock()
			delete(h.sessions, s)
			count := len(h.sessions)
			h.mutex.Unlock()
			s.log.Info("Session unregistered", "sessions", count)
		}
	}
}

// shutdownSessions forgets every live session. Each one sees the cancelled
// context, sends a going-away close frame and releases its topics itself.
func (h *Hub) shutdownSessions() {
	h.mutex.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]struct{})
	h.mutex.Unlock()

	h.log.Info("Shutting down sessions", "sessions", len(sessions))
}

// Shutdown initiates graceful shutdown of the hub and waits for all session
// goroutines to complete, or for the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
