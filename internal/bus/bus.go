// Package bus provides the per-topic publish/subscribe channels that back the
// gateway's fan-out, and the registry that creates them on first subscriber
// and drops them when the last subscriber leaves.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

// DefaultCapacity is the number of envelopes a bus retains for slow receivers.
const DefaultCapacity = 100

var (
	// ErrEmpty is returned by TryRecv when the receiver has caught up.
	ErrEmpty = errors.New("bus: no envelope available")
	// ErrClosed is returned by TryRecv after the receiver was closed.
	ErrClosed = errors.New("bus: receiver closed")
)

// LagError reports envelopes a receiver lost because it fell more than the
// bus capacity behind. The receiver's cursor has already been moved to the
// oldest retained envelope.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("bus: receiver lagged, %d envelopes skipped", e.Missed)
}

// Bus is a bounded multi-producer, multi-consumer broadcast ring. Every
// receiver reads every envelope published after it subscribed, unless it
// falls behind by more than the capacity.
type Bus struct {
	mu        sync.Mutex
	ring      []envelope.Envelope
	head      uint64 // sequence number of the next envelope to publish
	receivers map[*Receiver]struct{}
}

// New creates a bus retaining up to capacity envelopes.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:      make([]envelope.Envelope, capacity),
		receivers: make(map[*Receiver]struct{}),
	}
}

// Subscribe returns a receiver positioned at the next publish. notify is
// signalled without blocking after every publish; receivers may share one
// notify channel, which should have a buffer of one.
func (b *Bus) Subscribe(notify chan struct{}) *Receiver {
	if notify == nil {
		notify = make(chan struct{}, 1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &Receiver{bus: b, next: b.head, notify: notify}
	b.receivers[r] = struct{}{}
	return r
}

// Publish appends env to the ring and wakes every receiver. It never blocks
// on a receiver and returns how many receivers were subscribed.
func (b *Bus) Publish(env envelope.Envelope) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.receivers) == 0 {
		return 0
	}
	b.ring[b.head%uint64(len(b.ring))] = env
	b.head++

	for r := range b.receivers {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
	return len(b.receivers)
}

// ReceiverCount reports the number of open receivers.
func (b *Bus) ReceiverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receivers)
}

// Capacity reports the ring size.
func (b *Bus) Capacity() int {
	return len(b.ring)
}

// Receiver is one subscriber's private read cursor on a Bus. It is not safe
// for concurrent use by multiple goroutines.
type Receiver struct {
	bus    *Bus
	next   uint64
	notify chan struct{}
	closed bool
}

// Notify returns the channel signalled when new envelopes may be available.
func (r *Receiver) Notify() <-chan struct{} {
	return r.notify
}

// TryRecv returns the next envelope without waiting. It returns ErrEmpty when
// caught up, *LagError when envelopes were overwritten before being read, and
// ErrClosed once the receiver is closed.
func (r *Receiver) TryRecv() (envelope.Envelope, error) {
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.closed {
		return envelope.Envelope{}, ErrClosed
	}
	if r.next == b.head {
		return envelope.Envelope{}, ErrEmpty
	}

	capacity := uint64(len(b.ring))
	if b.head-r.next > capacity {
		oldest := b.head - capacity
		missed := oldest - r.next
		r.next = oldest
		return envelope.Envelope{}, &LagError{Missed: missed}
	}

	env := b.ring[r.next%capacity]
	r.next++
	return env, nil
}

// Close detaches the receiver from its bus and returns the number of
// receivers left. Closing twice is a no-op.
func (r *Receiver) Close() int {
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if !r.closed {
		r.closed = true
		delete(b.receivers, r)
	}
	return len(b.receivers)
}
