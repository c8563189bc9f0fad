package tracker

import (
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
)

// Start launches the retention sweep loop
func (t *Tracker) Start() {
	t.wg.Add(1)
	go t.cleanupLoop()
}

// Stop halts the sweep loop and waits for it to exit
func (t *Tracker) Stop() {
	t.stopMu.Lock()
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	t.stopMu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) cleanupLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-t.stopCh:
			return
		}
	}
}

// Sweep removes jobs past their retention window: terminal jobs some
// time after they finished, unfinished jobs past a hard ceiling (a job
// stuck that long has lost its driver). Returns the number removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	for jobID, job := range t.jobs {
		var reason string
		switch {
		case job.Status.IsTerminal() && job.EndTime != nil && now.Sub(*job.EndTime) > t.cfg.CompletedRetention:
			reason = "retention"
		case !job.Status.IsTerminal() && now.Sub(job.StartTime) > t.cfg.UnfinishedRetention:
			reason = "stuck"
		default:
			continue
		}

		t.emitLocked(events.TypeJobRemoved, job, map[string]interface{}{"reason": reason})
		delete(t.jobs, jobID)
		removed++
	}

	if removed > 0 {
		t.bus.Publish(events.Event{
			Type:    events.TypeJobsCleanedUp,
			Payload: map[string]interface{}{"removed": removed},
		})
		t.log.Info("retention sweep removed jobs", map[string]interface{}{"removed": removed})
	}
	return removed
}
