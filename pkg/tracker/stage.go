package tracker

import (
	"fmt"
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/models"
)

// StartStage activates the named stage. If another stage is still
// active it is force-completed first, preserving the single-active
// invariant.
func (t *Tracker) StartStage(jobID, stageName string, details map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	stage := job.FindStage(stageName)
	if stage == nil {
		return fmt.Errorf("%w: %s has no stage %q", ErrStageNotFound, jobID, stageName)
	}
	if stage.Status == models.StageStatusActive {
		mergeDetails(stage, details)
		return nil
	}
	if stage.Status.IsTerminal() {
		return fmt.Errorf("stage %q of job %s already %s", stageName, jobID, stage.Status)
	}

	if active := job.ActiveStage(); active != nil {
		t.finishStageLocked(job, active, models.StageStatusCompleted, "")
	}

	now := time.Now()
	stage.Status = models.StageStatusActive
	stage.StartedAt = &now
	stage.Progress = 0
	mergeDetails(stage, details)
	job.Status = models.JobStatusProcessing
	for i, st := range job.Stages {
		if st == stage {
			job.CurrentStageIndex = i
		}
	}

	recomputeLocked(job)
	t.emitLocked(events.TypeStageStarted, job, map[string]interface{}{"stage": stageName})
	return nil
}

// UpdateStageProgress records intra-stage progress. Updates against a
// stage that is not active are silently dropped so callers racing a
// stage transition do not fail; values are clamped to [0,100] and never
// regress while the stage is active.
func (t *Tracker) UpdateStageProgress(jobID, stageName string, progress float64, details map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	stage := job.FindStage(stageName)
	if stage == nil {
		return fmt.Errorf("%w: %s has no stage %q", ErrStageNotFound, jobID, stageName)
	}
	if stage.Status != models.StageStatusActive {
		return nil
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < stage.Progress {
		return nil
	}

	stage.Progress = progress
	mergeDetails(stage, details)
	recomputeLocked(job)
	t.emitLocked(events.TypeStageProgress, job, map[string]interface{}{
		"stage":    stageName,
		"progress": progress,
	})
	return nil
}

// CompleteStage marks the named stage completed. Completing a stage
// that already reached a terminal state is a no-op.
func (t *Tracker) CompleteStage(jobID, stageName string, details map[string]interface{}) error {
	return t.finishStage(jobID, stageName, models.StageStatusCompleted, "", details)
}

// FailStage marks the named stage failed. A stage failure is recorded
// on the job but does not fail the job; callers decide.
func (t *Tracker) FailStage(jobID, stageName, errMsg string) error {
	return t.finishStage(jobID, stageName, models.StageStatusFailed, errMsg, nil)
}

// SkipStage marks the named stage skipped. Skipped weight counts as
// completed for progress purposes.
func (t *Tracker) SkipStage(jobID, stageName, reason string) error {
	details := map[string]interface{}{}
	if reason != "" {
		details["reason"] = reason
	}
	return t.finishStage(jobID, stageName, models.StageStatusSkipped, "", details)
}

func (t *Tracker) finishStage(jobID, stageName string, status models.StageStatus, errMsg string, details map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.jobLocked(jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}
	stage := job.FindStage(stageName)
	if stage == nil {
		return fmt.Errorf("%w: %s has no stage %q", ErrStageNotFound, jobID, stageName)
	}
	if stage.Status.IsTerminal() {
		return nil
	}

	mergeDetails(stage, details)
	t.finishStageLocked(job, stage, status, errMsg)

	if job.AllStagesTerminal() {
		t.completeJobLocked(job)
	}
	return nil
}

// finishStageLocked applies a terminal stage transition and emits the
// matching event. Caller holds the lock.
func (t *Tracker) finishStageLocked(job *models.Job, stage *models.Stage, status models.StageStatus, errMsg string) {
	now := time.Now()
	stage.Status = status
	stage.CompletedAt = &now
	if status == models.StageStatusCompleted || status == models.StageStatusSkipped {
		stage.Progress = 100
	}
	if errMsg != "" {
		stage.Error = errMsg
		job.Errors = append(job.Errors, fmt.Sprintf("%s: %s", stage.Name, errMsg))
	}
	if stage.StartedAt != nil {
		job.Performance.StageDurationsMS[stage.Name] = now.Sub(*stage.StartedAt).Milliseconds()
	}

	recomputeLocked(job)

	var typ events.Type
	switch status {
	case models.StageStatusFailed:
		typ = events.TypeStageFailed
	case models.StageStatusSkipped:
		typ = events.TypeStageSkipped
	default:
		typ = events.TypeStageCompleted
	}
	payload := map[string]interface{}{"stage": stage.Name}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	t.emitLocked(typ, job, payload)
}

func mergeDetails(stage *models.Stage, details map[string]interface{}) {
	if len(details) == 0 {
		return
	}
	if stage.Details == nil {
		stage.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		stage.Details[k] = v
	}
}
