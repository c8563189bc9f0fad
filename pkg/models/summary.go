package models

import "time"

// StageSummary is the compact stage view used in job summaries.
// It omits the per-stage detail blobs carried on the full Stage.
type StageSummary struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Status   StageStatus `json:"status"`
	Progress float64     `json:"progress"`
}

// JobSummary is a read-only projection of a job suitable for event
// payloads and API responses
type JobSummary struct {
	ID           string                 `json:"id"`
	MediaType    string                 `json:"media_type"`
	Status       JobStatus              `json:"status"`
	Progress     Progress               `json:"progress"`
	CurrentStage string                 `json:"current_stage,omitempty"`
	Stages       []StageSummary         `json:"stages"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      *time.Time             `json:"end_time,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Warnings     []string               `json:"warnings,omitempty"`
	Errors       []string               `json:"errors,omitempty"`
}

// Summarize builds the compact projection of a job
func (j *Job) Summarize() *JobSummary {
	s := &JobSummary{
		ID:        j.ID,
		MediaType: j.MediaType,
		Status:    j.Status,
		Progress:  j.Progress,
		Stages:    make([]StageSummary, len(j.Stages)),
		StartTime: j.StartTime,
		Metadata:  cloneMap(j.Metadata),
		Warnings:  append([]string(nil), j.Warnings...),
		Errors:    append([]string(nil), j.Errors...),
	}
	if j.EndTime != nil {
		t := *j.EndTime
		s.EndTime = &t
	}
	for i, st := range j.Stages {
		s.Stages[i] = StageSummary{
			Name:     st.Name,
			Label:    st.Label,
			Status:   st.Status,
			Progress: st.Progress,
		}
		if st.Status == StageStatusActive {
			s.CurrentStage = st.Name
		}
	}
	return s
}
