package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusStarted    JobStatus = "started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true if the status is terminal (no further transitions)
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// StageStatus represents the state of a single pipeline stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// IsTerminal returns true if the stage reached a terminal state
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusSkipped
}

// CountsAsCompleted reports whether the stage's weight counts toward
// completed weight in the overall progress computation. Skipped stages
// count so a pipeline that skips optional work still reaches 100.
func (s StageStatus) CountsAsCompleted() bool {
	return s == StageStatusCompleted || s == StageStatusSkipped
}

// Stage is one named, weighted phase within a job's pipeline
type Stage struct {
	Name        string                 `json:"name"`
	Label       string                 `json:"label"`
	Weight      float64                `json:"weight"`
	Status      StageStatus            `json:"status"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Progress    float64                `json:"progress"` // 0-100
	Details     map[string]interface{} `json:"details,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Progress holds the weighted overall progress and the active stage progress
type Progress struct {
	Overall float64 `json:"overall"` // 0-100
	Stage   float64 `json:"stage"`   // 0-100, progress of the active stage
}

// Performance tracks per-job timing metrics
type Performance struct {
	TotalDurationMS  int64            `json:"total_duration_ms"`
	StageDurationsMS map[string]int64 `json:"stage_durations_ms,omitempty"`
}

// Job represents one submitted unit of media-processing work tracked end-to-end
type Job struct {
	ID                string                 `json:"id"`
	MediaType         string                 `json:"media_type"`
	Status            JobStatus              `json:"status"`
	StartTime         time.Time              `json:"start_time"`
	EndTime           *time.Time             `json:"end_time,omitempty"`
	Stages            []*Stage               `json:"stages"`
	CurrentStageIndex int                    `json:"current_stage_index"`
	Progress          Progress               `json:"progress"`
	TotalWeight       float64                `json:"total_weight"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Performance       Performance            `json:"performance"`
	Warnings          []string               `json:"warnings,omitempty"`
	Errors            []string               `json:"errors,omitempty"`
}

// ActiveStage returns the currently active stage, or nil
func (j *Job) ActiveStage() *Stage {
	for _, st := range j.Stages {
		if st.Status == StageStatusActive {
			return st
		}
	}
	return nil
}

// FindStage returns the stage with the given name, or nil
func (j *Job) FindStage(name string) *Stage {
	for _, st := range j.Stages {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// AllStagesTerminal reports whether every stage reached a terminal state
func (j *Job) AllStagesTerminal() bool {
	for _, st := range j.Stages {
		if !st.Status.IsTerminal() {
			return false
		}
	}
	return len(j.Stages) > 0
}

// Clone returns a deep copy safe to hand to callers
func (j *Job) Clone() *Job {
	cp := *j
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	cp.Stages = make([]*Stage, len(j.Stages))
	for i, st := range j.Stages {
		sc := *st
		if st.StartedAt != nil {
			t := *st.StartedAt
			sc.StartedAt = &t
		}
		if st.CompletedAt != nil {
			t := *st.CompletedAt
			sc.CompletedAt = &t
		}
		sc.Details = cloneMap(st.Details)
		cp.Stages[i] = &sc
	}
	cp.Metadata = cloneMap(j.Metadata)
	cp.Performance.StageDurationsMS = cloneInt64Map(j.Performance.StageDurationsMS)
	cp.Warnings = append([]string(nil), j.Warnings...)
	cp.Errors = append([]string(nil), j.Errors...)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
