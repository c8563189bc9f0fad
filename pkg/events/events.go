package events

import (
	"time"

	"github.com/mediaforge/mediaforge/pkg/models"
)

// Type classifies messages emitted during job execution and resource
// management
type Type string

const (
	TypeJobCreated        Type = "jobCreated"
	TypeStageStarted      Type = "stageStarted"
	TypeStageProgress     Type = "stageProgress"
	TypeStageCompleted    Type = "stageCompleted"
	TypeStageFailed       Type = "stageFailed"
	TypeStageSkipped      Type = "stageSkipped"
	TypeJobCompleted      Type = "jobCompleted"
	TypeJobFailed         Type = "jobFailed"
	TypeJobWarning        Type = "jobWarning"
	TypeJobCancelled      Type = "jobCancelled"
	TypeJobRemoved        Type = "jobRemoved"
	TypeJobsCleanedUp     Type = "jobsCleanedUp"
	TypeMetrics           Type = "metrics"
	TypeMemoryWarning     Type = "memoryWarning"
	TypeMemoryPressure    Type = "memoryPressure"
	TypeGarbageCollection Type = "garbageCollection"
	TypeCacheHit          Type = "cacheHit"

	// TypeSnapshot is delivered once to a new per-job subscriber before
	// the live stream begins. It is not part of the lifecycle stream.
	TypeSnapshot Type = "snapshot"
)

// Event is one observability message. JobID is empty for process-wide
// events such as memoryPressure.
type Event struct {
	Type      Type                   `json:"type"`
	JobID     string                 `json:"job_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Summary   *models.JobSummary     `json:"summary,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Handler consumes events delivered by the bus
type Handler func(Event)
