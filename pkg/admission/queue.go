package admission

import (
	"context"
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
)

// pending is one request waiting for an admission slot. ready is closed
// by release() when the slot transfers; closing transfers ownership of
// the slot to the waiter.
type pending struct {
	ready      chan struct{}
	enqueuedAt time.Time
}

// tryAdmit acquires an admission slot, queueing FIFO when all slots are
// busy. It returns nil once the caller owns a slot, ErrQueueOverflow
// when the queue is at depth, ErrQueueTimeout when the wait exceeds the
// configured bound, or the context error on cancellation.
func (c *Controller) tryAdmit(ctx context.Context) error {
	c.mu.Lock()
	if c.active < c.cfg.MaxConcurrentJobs {
		c.active++
		c.metrics.SetActiveJobs(c.active)
		c.mu.Unlock()
		return nil
	}
	if c.cfg.MaxQueueDepth > 0 && len(c.queue) >= c.cfg.MaxQueueDepth {
		c.mu.Unlock()
		return ErrQueueOverflow
	}

	p := &pending{
		ready:      make(chan struct{}),
		enqueuedAt: time.Now(),
	}
	c.queue = append(c.queue, p)
	c.metrics.SetQueueDepth(len(c.queue))
	depth := len(c.queue)
	c.mu.Unlock()

	c.log.Debug("request queued", map[string]interface{}{"queue_depth": depth})

	var timeout <-chan time.Time
	if c.cfg.QueueTimeout > 0 {
		timer := time.NewTimer(c.cfg.QueueTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.ready:
		return nil
	case <-timeout:
		// The slot may have been dispatched between the timer firing
		// and this withdrawal; queue membership under the lock decides.
		if c.withdraw(p) {
			return ErrQueueTimeout
		}
		return nil
	case <-ctx.Done():
		if c.withdraw(p) {
			return ctx.Err()
		}
		// Already dispatched: the slot is ours, hand it back.
		c.release()
		return ctx.Err()
	}
}

// withdraw removes p from the queue if it is still waiting, reporting
// whether it was found. A false return means release() already popped
// it and closed its ready channel.
func (c *Controller) withdraw(p *pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, q := range c.queue {
		if q == p {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.metrics.SetQueueDepth(len(c.queue))
			return true
		}
	}
	return false
}

// release frees an admission slot. If a request is waiting the slot
// transfers directly to the queue head, keeping dispatch strictly FIFO;
// otherwise the active count drops. Runs on every exit path of an
// admitted request.
func (c *Controller) release() {
	c.mu.Lock()
	if len(c.queue) > 0 {
		head := c.queue[0]
		c.queue = c.queue[1:]
		close(head.ready)
	} else if c.active > 0 {
		c.active--
	}
	active := c.active
	queued := len(c.queue)
	c.mu.Unlock()

	c.metrics.SetActiveJobs(active)
	c.metrics.SetQueueDepth(queued)
	c.bus.Publish(events.Event{
		Type: events.TypeMetrics,
		Payload: map[string]interface{}{
			"active_jobs": active,
			"queue_depth": queued,
		},
	})
}
