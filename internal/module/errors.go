package module

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

var (
	// ErrUnknownModule is returned for envelopes naming an unregistered module.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownType is returned by a handler for a type it does not accept.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidPayload is returned when a payload does not match its type.
	ErrInvalidPayload = errors.New("invalid payload")
)

// ClientError is a handler failure with a message that is safe to show the
// client. The wrapped error is only logged.
type ClientError struct {
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func unknownType(module, typ string) error {
	return fmt.Errorf("%w %q for module %q", ErrUnknownType, typ, module)
}

// ClientMessage renders err as the text of a system error envelope. Errors
// the client caused are described; anything else is reported generically.
func ClientMessage(err error) string {
	var clientErr *ClientError
	switch {
	case errors.As(err, &clientErr):
		return clientErr.Message
	case errors.Is(err, ErrUnknownModule),
		errors.Is(err, ErrUnknownType),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, envelope.ErrMalformed):
		return err.Error()
	default:
		return "internal server error"
	}
}
