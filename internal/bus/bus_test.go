package bus

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Tyrowin/forumchat/internal/envelope"
)

func testEnvelope(t *testing.T, n int) envelope.Envelope {
	t.Helper()
	env, err := envelope.New("messaging", "user_typing", map[string]any{"username": "alice", "thread_id": n})
	if err != nil {
		t.Fatalf("envelope.New: %v", err)
	}
	return env
}

func mustRecv(t *testing.T, rx *Receiver) envelope.Envelope {
	t.Helper()
	env, err := rx.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv returned error: %v", err)
	}
	return env
}

// TestBusFanOutIsFIFOPerReceiver verifies every receiver sees every envelope
// published after it subscribed, in publish order.
func TestBusFanOutIsFIFOPerReceiver(t *testing.T) {
	b := New(8)
	first := b.Subscribe(nil)
	second := b.Subscribe(nil)

	for i := 0; i < 5; i++ {
		if got := b.Publish(testEnvelope(t, i)); got != 2 {
			t.Fatalf("Publish reached %d receivers, want 2", got)
		}
	}

	for _, rx := range []*Receiver{first, second} {
		for i := 0; i < 5; i++ {
			want := fmt.Sprintf(`{"thread_id":%d,"username":"alice"}`, i)
			if got := string(mustRecv(t, rx).Payload); got != want {
				t.Errorf("envelope %d got %s want %s", i, got, want)
			}
		}
		if _, err := rx.TryRecv(); !errors.Is(err, ErrEmpty) {
			t.Errorf("expected ErrEmpty after draining, got %v", err)
		}
	}
}

// TestBusLateSubscriberSeesOnlyNewEnvelopes checks a receiver starts at the
// publish head rather than replaying history.
func TestBusLateSubscriberSeesOnlyNewEnvelopes(t *testing.T) {
	b := New(4)
	early := b.Subscribe(nil)
	b.Publish(testEnvelope(t, 1))

	late := b.Subscribe(nil)
	if _, err := late.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("late receiver should start empty, got %v", err)
	}

	b.Publish(testEnvelope(t, 2))
	mustRecv(t, early)
	mustRecv(t, early)
	mustRecv(t, late)
}

// TestBusLagSkipsAhead fills the ring past capacity and checks the slow
// receiver is told exactly how much it lost and then resumes at the oldest
// retained envelope.
func TestBusLagSkipsAhead(t *testing.T) {
	const capacity = 4
	b := New(capacity)
	slow := b.Subscribe(nil)

	for i := 0; i < 10; i++ {
		b.Publish(testEnvelope(t, i))
	}

	_, err := slow.TryRecv()
	var lagErr *LagError
	if !errors.As(err, &lagErr) {
		t.Fatalf("expected LagError, got %v", err)
	}
	if lagErr.Missed != 6 {
		t.Errorf("Missed got %d want 6", lagErr.Missed)
	}

	for i := 6; i < 10; i++ {
		want := fmt.Sprintf(`{"thread_id":%d,"username":"alice"}`, i)
		if got := string(mustRecv(t, slow).Payload); got != want {
			t.Errorf("after lag got %s want %s", got, want)
		}
	}
	if _, err := slow.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

// TestBusPublishNeverBlocks publishes far more than the capacity into a
// receiver nobody drains, with a notify channel nobody reads.
func TestBusPublishNeverBlocks(t *testing.T) {
	b := New(2)
	notify := make(chan struct{}, 1)
	b.Subscribe(notify)

	env := testEnvelope(t, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(env)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow receiver")
	}
	if len(notify) != 1 {
		t.Errorf("notify should hold one pending signal, has %d", len(notify))
	}
}

// TestBusSharedNotify checks receivers on different buses can share one
// wake-up channel.
func TestBusSharedNotify(t *testing.T) {
	notify := make(chan struct{}, 1)
	a := New(4)
	b := New(4)
	rxA := a.Subscribe(notify)
	rxB := b.Subscribe(notify)

	b.Publish(testEnvelope(t, 1))
	select {
	case <-notify:
	default:
		t.Fatal("expected notify signal after publish")
	}
	if _, err := rxA.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Errorf("rxA should be empty, got %v", err)
	}
	mustRecv(t, rxB)

	if rxA.Notify() != rxB.Notify() {
		t.Error("receivers should expose the shared notify channel")
	}
}

func TestReceiverClose(t *testing.T) {
	b := New(4)
	rx := b.Subscribe(nil)
	other := b.Subscribe(nil)

	if left := rx.Close(); left != 1 {
		t.Errorf("Close left %d receivers, want 1", left)
	}
	if left := rx.Close(); left != 1 {
		t.Errorf("second Close left %d receivers, want 1", left)
	}
	if _, err := rx.TryRecv(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if got := b.Publish(testEnvelope(t, 1)); got != 1 {
		t.Errorf("Publish reached %d receivers, want 1", got)
	}
	mustRecv(t, other)

	other.Close()
	if got := b.Publish(testEnvelope(t, 2)); got != 0 {
		t.Errorf("Publish with no receivers reached %d, want 0", got)
	}
}
