// Package module defines the gateway's event handlers. Every envelope names a
// module; the module's Handler processes envelopes arriving from a client and
// decides whether envelopes published on a topic reach a given connection.
//
// The handler set is closed and fixed at startup: see Default.
package module

import (
	"context"
	"fmt"

	"github.com/Tyrowin/forumchat/internal/envelope"
	"github.com/Tyrowin/forumchat/internal/storage"
)

// Publisher fans envelopes out to the subscribers of a topic.
type Publisher interface {
	Publish(topic int64, env envelope.Envelope) int
}

// Membership is the connection's set of joined topics. Join reports whether
// the topic was newly joined; Leave reports whether it had been joined.
type Membership interface {
	Join(topic int64) bool
	Leave(topic int64) bool
}

// MessageStore is the persistence collaborator for durable messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg storage.NewMessage) (storage.Message, error)
}

// Context is what a handler sees of the connection it runs for. Username is
// fixed for the life of the connection.
type Context struct {
	Username   string
	Topics     Publisher
	Store      MessageStore
	Membership Membership
}

// Publish builds an envelope and fans it out on topic.
func (c *Context) Publish(topic int64, module, typ string, payload any) error {
	if c.Topics == nil {
		return fmt.Errorf("publish %s/%s: no topic registry", module, typ)
	}
	env, err := envelope.New(module, typ, payload)
	if err != nil {
		return err
	}
	c.Topics.Publish(topic, env)
	return nil
}

// Handler processes one module's envelopes.
//
// Handle runs for envelopes sent by the client of c, in arrival order, and
// fails closed: bad payloads and unknown types are errors. ShouldDeliver runs
// once per published envelope and recipient and fails open.
type Handler interface {
	Name() string
	Handle(ctx context.Context, c *Context, typ string, payload envelope.Payload) error
	ShouldDeliver(c *Context, typ string, payload envelope.Payload) bool
}

// Base supplies the default behaviour for modules that only care about one
// side: accept every client envelope and deliver every published one.
type Base struct{}

// Handle accepts and ignores the envelope.
func (Base) Handle(context.Context, *Context, string, envelope.Payload) error {
	return nil
}

// ShouldDeliver always delivers.
func (Base) ShouldDeliver(*Context, string, envelope.Payload) bool {
	return true
}

// Presence is the payload of every per-user thread event.
type Presence struct {
	Username string `json:"username"`
	ThreadID int64  `json:"thread_id"`
}

type threadRef struct {
	ThreadID int64 `json:"thread_id"`
}

// decodePayload is the typed payload accessor handlers use.
func decodePayload[T any](module, typ string, payload envelope.Payload) (T, error) {
	var v T
	if err := payload.Decode(&v); err != nil {
		return v, fmt.Errorf("%w for %s/%s: %v", ErrInvalidPayload, module, typ, err)
	}
	return v, nil
}

func decodeThreadRef(module, typ string, payload envelope.Payload) (int64, error) {
	ref, err := decodePayload[threadRef](module, typ, payload)
	if err != nil {
		return 0, err
	}
	if ref.ThreadID <= 0 {
		return 0, fmt.Errorf("%w for %s/%s: thread_id must be positive", ErrInvalidPayload, module, typ)
	}
	return ref.ThreadID, nil
}

// notFromSelf is the shared self-echo filter for presence events. A payload
// that cannot be read is delivered.
func notFromSelf(c *Context, payload envelope.Payload) bool {
	var p Presence
	if err := payload.Decode(&p); err != nil {
		return true
	}
	return p.Username != c.Username
}
