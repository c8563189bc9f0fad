package tracker

import (
	"fmt"
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/models"
)

// CompleteJob marks the job completed, force-completing any stage still
// active. Overall progress lands at exactly 100.
func (t *Tracker) CompleteJob(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	if active := job.ActiveStage(); active != nil {
		t.finishStageLocked(job, active, models.StageStatusCompleted, "")
	}
	t.completeJobLocked(job)
	return nil
}

// completeJobLocked applies the terminal completed transition. Caller
// holds the lock.
func (t *Tracker) completeJobLocked(job *models.Job) {
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.EndTime = &now
	job.Progress.Overall = 100
	job.Progress.Stage = 100
	job.Performance.TotalDurationMS = now.Sub(job.StartTime).Milliseconds()
	t.emitLocked(events.TypeJobCompleted, job, nil)
}

// FailJob marks the job failed, failing any active stage with the same
// message
func (t *Tracker) FailJob(jobID, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	if active := job.ActiveStage(); active != nil {
		t.finishStageLocked(job, active, models.StageStatusFailed, errMsg)
	} else if errMsg != "" {
		job.Errors = append(job.Errors, errMsg)
	}

	now := time.Now()
	job.Status = models.JobStatusFailed
	job.EndTime = &now
	job.Performance.TotalDurationMS = now.Sub(job.StartTime).Milliseconds()
	t.emitLocked(events.TypeJobFailed, job, map[string]interface{}{"error": errMsg})
	return nil
}

// CancelJob marks the job cancelled. The currently active stage, if
// any, is failed with the cancellation reason. Cancellation is
// non-preemptive: in-flight processor work is not interrupted and late
// results must be discarded by the caller.
func (t *Tracker) CancelJob(jobID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	if active := job.ActiveStage(); active != nil {
		t.finishStageLocked(job, active, models.StageStatusFailed, reason)
	}

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.EndTime = &now
	job.Performance.TotalDurationMS = now.Sub(job.StartTime).Milliseconds()
	t.emitLocked(events.TypeJobCancelled, job, map[string]interface{}{"reason": reason})
	t.log.Info("job cancelled", map[string]interface{}{"job_id": jobID, "reason": reason})
	return nil
}

// AddWarning attaches a non-fatal annotation to the job. Status and
// progress are unchanged.
func (t *Tracker) AddWarning(jobID, message, stageName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}

	job.Warnings = append(job.Warnings, message)
	payload := map[string]interface{}{"message": message}
	if stageName != "" {
		payload["stage"] = stageName
	}
	t.emitLocked(events.TypeJobWarning, job, payload)
	return nil
}
