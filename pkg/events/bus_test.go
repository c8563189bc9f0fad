package events

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	cancel := bus.Subscribe(rec.handle)
	defer cancel()

	bus.Publish(Event{Type: TypeJobCreated, JobID: "j1"})

	waitFor(t, "event delivery", func() bool { return len(rec.snapshot()) == 1 })
	got := rec.snapshot()[0]
	if got.Type != TypeJobCreated || got.JobID != "j1" {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("publish must stamp the event")
	}
}

func TestJobScopedSubscription(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	cancel := bus.SubscribeJob("j1", rec.handle)
	defer cancel()

	bus.Publish(Event{Type: TypeStageStarted, JobID: "j1"})
	bus.Publish(Event{Type: TypeStageStarted, JobID: "j2"})
	bus.Publish(Event{Type: TypeJobCompleted, JobID: "j1"})

	waitFor(t, "scoped delivery", func() bool { return len(rec.snapshot()) == 2 })
	for _, ev := range rec.snapshot() {
		if ev.JobID != "j1" {
			t.Errorf("received event for wrong job: %s", ev.JobID)
		}
	}
}

func TestInitialEventsDeliveredFirst(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	cancel := bus.SubscribeJob("j1", rec.handle, Event{Type: TypeSnapshot, JobID: "j1"})
	defer cancel()

	bus.Publish(Event{Type: TypeStageProgress, JobID: "j1"})

	waitFor(t, "two events", func() bool { return len(rec.snapshot()) == 2 })
	got := rec.snapshot()
	if got[0].Type != TypeSnapshot {
		t.Errorf("expected snapshot first, got %s", got[0].Type)
	}
	if got[1].Type != TypeStageProgress {
		t.Errorf("expected stageProgress second, got %s", got[1].Type)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	cancel := bus.Subscribe(rec.handle)

	bus.Publish(Event{Type: TypeJobCreated})
	waitFor(t, "first event", func() bool { return len(rec.snapshot()) == 1 })

	cancel()
	bus.Publish(Event{Type: TypeJobCompleted})
	time.Sleep(20 * time.Millisecond)

	if n := len(rec.snapshot()); n != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", n)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	block := make(chan struct{})
	cancel := bus.Subscribe(func(Event) { <-block })
	defer cancel()
	defer close(block)

	// One event is stuck in the handler, defaultBuffer more fill the
	// channel; anything beyond must drop without blocking Publish.
	for i := 0; i < defaultBuffer+10; i++ {
		bus.Publish(Event{Type: TypeMetrics})
	}

	waitFor(t, "dropped counter", func() bool { return bus.Dropped() > 0 })
}

func TestPublishAfterCloseIsNoOp(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)

	bus.Close()
	bus.Publish(Event{Type: TypeJobCreated})

	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("expected no delivery after close, got %d", n)
	}
}
