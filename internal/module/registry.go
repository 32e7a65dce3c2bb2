package module

import (
	"context"
	"fmt"
	"sort"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

// Registry is the read-only mapping from module name to handler. It is built
// once and needs no locking.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry registers handlers under their own names. Duplicate or empty
// names are configuration errors.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("module registry: nil handler")
		}
		name := h.Name()
		if name == "" {
			return nil, fmt.Errorf("module registry: handler %T has no name", h)
		}
		if _, dup := r.handlers[name]; dup {
			return nil, fmt.Errorf("module registry: duplicate module %q", name)
		}
		r.handlers[name] = h
	}
	return r, nil
}

// Default returns the registry of every module the gateway serves.
func Default() *Registry {
	r, err := NewRegistry(Threads{}, Messaging{}, System{})
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the handler registered for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists the registered modules in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes a client envelope to its module's handler.
func (r *Registry) Dispatch(ctx context.Context, c *Context, env envelope.Envelope) error {
	h, ok := r.handlers[env.Module]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownModule, env.Module)
	}
	return h.Handle(ctx, c, env.Type, env.Payload)
}

// ShouldDeliver asks the envelope's module whether the connection behind c
// should receive it. Envelopes of unknown modules are never delivered.
func (r *Registry) ShouldDeliver(c *Context, env envelope.Envelope) bool {
	h, ok := r.handlers[env.Module]
	if !ok {
		return false
	}
	return h.ShouldDeliver(c, env.Type, env.Payload)
}
