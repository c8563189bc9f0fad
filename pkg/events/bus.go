package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultBuffer is the per-subscriber channel depth. Publishers never
// block; events beyond the buffer are dropped and counted.
const defaultBuffer = 128

type subscriber struct {
	id    string
	jobID string // empty means all jobs
	ch    chan Event
}

// Bus is the process-wide pub/sub channel for lifecycle and resource
// events. Each subscriber gets a dedicated buffered channel drained by
// its own goroutine, so a slow consumer cannot stall a publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*subscriber
	closed  bool
	dropped uint64
	wg      sync.WaitGroup
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]*subscriber),
	}
}

// Publish delivers the event to every matching subscriber. The call
// never blocks; a full subscriber buffer drops the event.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.jobID != "" && sub.jobID != ev.JobID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// Subscribe registers a handler for all events. The returned function
// removes the subscription.
func (b *Bus) Subscribe(h Handler) func() {
	return b.subscribe("", h, nil)
}

// SubscribeJob registers a handler for events of a single job. Initial
// events, if any, are delivered to this subscriber before any published
// event; the caller is expected to capture them under the same lock
// that guards the state they snapshot.
func (b *Bus) SubscribeJob(jobID string, h Handler, initial ...Event) func() {
	return b.subscribe(jobID, h, initial)
}

func (b *Bus) subscribe(jobID string, h Handler, initial []Event) func() {
	sub := &subscriber{
		id:    uuid.NewString(),
		jobID: jobID,
		ch:    make(chan Event, defaultBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	for _, ev := range initial {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			h(ev)
		}
	}()

	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Dropped returns the number of events discarded due to slow subscribers
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Close removes all subscribers and waits for in-flight deliveries
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	b.wg.Wait()
}
