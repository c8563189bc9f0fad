package tracker

import (
	"sort"

	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/models"
)

// JobSummary returns the compact projection of a job
func (t *Tracker) JobSummary(jobID string) (*models.JobSummary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return nil, err
	}
	return job.Summarize(), nil
}

// JobDetails returns a deep copy of the full job, including per-stage
// detail blobs
func (t *Tracker) JobDetails(jobID string) (*models.Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Jobs returns summaries of every retained job, newest first
func (t *Tracker) Jobs() []*models.JobSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*models.JobSummary, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job.Summarize())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// SubscribeToJob delivers an immediate snapshot of the job followed by
// its subsequent lifecycle events. The snapshot is captured under the
// same lock that guards subscription, so no transition can slip between
// the two. The returned function cancels the subscription.
func (t *Tracker) SubscribeToJob(jobID string, h events.Handler) (func(), error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return nil, err
	}

	snapshot := events.Event{
		Type:    events.TypeSnapshot,
		JobID:   jobID,
		Summary: job.Summarize(),
	}
	return t.bus.SubscribeJob(jobID, h, snapshot), nil
}

// SubscribeToAll delivers the global event stream
func (t *Tracker) SubscribeToAll(h events.Handler) func() {
	return t.bus.Subscribe(h)
}
