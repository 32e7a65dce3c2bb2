package bus

import (
	"slices"
	"sync"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

// Registry maps topic ids to buses. A bus exists exactly while its topic has
// at least one receiver. The lock is only held for map operations and never
// while waiting on a receiver.
type Registry struct {
	mu       sync.Mutex
	capacity int
	buses    map[int64]*Bus
}

// NewRegistry creates an empty registry whose buses retain capacity
// envelopes each.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		buses:    make(map[int64]*Bus),
	}
}

// Subscribe attaches a new receiver to topic, creating its bus if nobody was
// watching it yet.
func (r *Registry) Subscribe(topic int64, notify chan struct{}) *Receiver {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buses[topic]
	if !ok {
		b = New(r.capacity)
		r.buses[topic] = b
	}
	return b.Subscribe(notify)
}

// Unsubscribe closes rx and removes the topic's bus when rx was its last
// receiver. It reports whether the bus was removed.
func (r *Registry) Unsubscribe(topic int64, rx *Receiver) bool {
	if rx == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rx.Close() > 0 {
		return false
	}
	if b, ok := r.buses[topic]; ok && b == rx.bus {
		delete(r.buses, topic)
		return true
	}
	return false
}

// Publish fans env out to every receiver of topic and returns how many there
// were. Publishing to a topic without a bus is a no-op.
func (r *Registry) Publish(topic int64, env envelope.Envelope) int {
	r.mu.Lock()
	b := r.buses[topic]
	r.mu.Unlock()

	if b == nil {
		return 0
	}
	return b.Publish(env)
}

// Has reports whether topic currently has a bus.
func (r *Registry) Has(topic int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.buses[topic]
	return ok
}

// SubscriberCount reports the receivers attached to topic.
func (r *Registry) SubscriberCount(topic int64) int {
	r.mu.Lock()
	b := r.buses[topic]
	r.mu.Unlock()

	if b == nil {
		return 0
	}
	return b.ReceiverCount()
}

// Topics lists the topics with a live bus in ascending order.
func (r *Registry) Topics() []int64 {
	r.mu.Lock()
	topics := make([]int64, 0, len(r.buses))
	for topic := range r.buses {
		topics = append(topics, topic)
	}
	r.mu.Unlock()

	slices.Sort(topics)
	return topics
}

// Len reports the number of live buses.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buses)
}
