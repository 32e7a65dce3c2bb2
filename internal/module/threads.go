package module

import (
	"context"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

// Thread membership event types.
const (
	ThreadsModule = "threads"

	TypeJoinThread  = "join_thread"
	TypeLeaveThread = "leave_thread"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
)

// Threads subscribes a connection to thread topics and announces arrivals
// and departures to the other watchers of the thread.
type Threads struct{}

// Name implements Handler.
func (Threads) Name() string { return ThreadsModule }

// Handle implements Handler.
func (Threads) Handle(_ context.Context, c *Context, typ string, payload envelope.Payload) error {
	switch typ {
	case TypeJoinThread:
		threadID, err := decodeThreadRef(ThreadsModule, typ, payload)
		if err != nil {
			return err
		}
		if !c.Membership.Join(threadID) {
			return nil
		}
		return c.Publish(threadID, ThreadsModule, TypeUserJoined, Presence{Username: c.Username, ThreadID: threadID})

	case TypeLeaveThread:
		threadID, err := decodeThreadRef(ThreadsModule, typ, payload)
		if err != nil {
			return err
		}
		return Leave(c, threadID)

	default:
		return unknownType(ThreadsModule, typ)
	}
}

// ShouldDeliver hides a user's own joins and leaves from them.
func (Threads) ShouldDeliver(c *Context, typ string, payload envelope.Payload) bool {
	switch typ {
	case TypeUserJoined, TypeUserLeft:
		return notFromSelf(c, payload)
	default:
		return true
	}
}

// Leave drops the connection's subscription to threadID and, if it was
// joined, tells the remaining watchers. It is also used when a connection
// closes.
func Leave(c *Context, threadID int64) error {
	if !c.Membership.Leave(threadID) {
		return nil
	}
	return c.Publish(threadID, ThreadsModule, TypeUserLeft, Presence{Username: c.Username, ThreadID: threadID})
}
