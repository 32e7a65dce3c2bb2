package module

import (
	"context"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

// System event types.
const (
	SystemModule = "system"
	TypeError    = "error"
)

// ErrorPayload is the body of a system error envelope.
type ErrorPayload struct {
	Message string `json:"message"`
}

// System owns server-originated notices. Clients cannot send it anything.
type System struct {
	Base
}

// Name implements Handler.
func (System) Name() string { return SystemModule }

// Handle rejects every client envelope.
func (System) Handle(_ context.Context, _ *Context, typ string, _ envelope.Payload) error {
	return unknownType(SystemModule, typ)
}

// ErrorEnvelope builds the reply sent to a client whose envelope failed.
func ErrorEnvelope(message string) envelope.Envelope {
	env, err := envelope.New(SystemModule, TypeError, ErrorPayload{Message: message})
	if err != nil {
		// ErrorPayload always marshals.
		panic(err)
	}
	return env
}
