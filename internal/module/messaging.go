package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tyrowin/forumchat/internal/envelope"
	"github.com/Tyrowin/forumchat/internal/storage"
)

// Messaging event types.
const (
	MessagingModule = "messaging"

	TypeTyping            = "typing"
	TypeStopTyping        = "stop_typing"
	TypeCreateMessage     = "create_message"
	TypeUserTyping        = "user_typing"
	TypeUserStoppedTyping = "user_stopped_typing"
	TypeMessageCreated    = "message_created"
)

// CreateMessagePayload is what a client sends to post into a thread.
type CreateMessagePayload struct {
	Content     string `json:"content"`
	DirectoryID int64  `json:"directory_id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

// Messaging relays typing indicators and persists then broadcasts new
// thread messages.
type Messaging struct{}

// Name implements Handler.
func (Messaging) Name() string { return MessagingModule }

// Handle implements Handler.
func (m Messaging) Handle(ctx context.Context, c *Context, typ string, payload envelope.Payload) error {
	switch typ {
	case TypeTyping, TypeStopTyping:
		threadID, err := decodeThreadRef(MessagingModule, typ, payload)
		if err != nil {
			return err
		}
		out := TypeUserTyping
		if typ == TypeStopTyping {
			out = TypeUserStoppedTyping
		}
		return c.Publish(threadID, MessagingModule, out, Presence{Username: c.Username, ThreadID: threadID})

	case TypeCreateMessage:
		return m.createMessage(ctx, c, payload)

	default:
		return unknownType(MessagingModule, typ)
	}
}

// createMessage publishes message_created only after the durable write
// succeeded, on the topic of the message's directory.
func (Messaging) createMessage(ctx context.Context, c *Context, payload envelope.Payload) error {
	in, err := decodePayload[CreateMessagePayload](MessagingModule, TypeCreateMessage, payload)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w for %s/%s: content is required", ErrInvalidPayload, MessagingModule, TypeCreateMessage)
	}
	if in.DirectoryID <= 0 {
		return fmt.Errorf("%w for %s/%s: directory_id must be positive", ErrInvalidPayload, MessagingModule, TypeCreateMessage)
	}
	if c.Store == nil {
		return &ClientError{Message: "failed to create message", Err: fmt.Errorf("no message store configured")}
	}

	created, err := c.Store.CreateMessage(ctx, storage.NewMessage{
		Author:      c.Username,
		Content:     in.Content,
		DirectoryID: in.DirectoryID,
		ParentID:    in.ParentID,
	})
	if err != nil {
		return &ClientError{Message: "failed to create message", Err: err}
	}
	return c.Publish(created.DirectoryID, MessagingModule, TypeMessageCreated, created)
}

// ShouldDeliver hides a user's own typing indicators from them. New messages
// reach everyone, the author included.
func (Messaging) ShouldDeliver(c *Context, typ string, payload envelope.Payload) bool {
	switch typ {
	case TypeUserTyping, TypeUserStoppedTyping:
		return notFromSelf(c, payload)
	default:
		return true
	}
}
