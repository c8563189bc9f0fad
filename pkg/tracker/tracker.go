package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/logging"
	"github.com/mediaforge/mediaforge/pkg/models"
	"github.com/mediaforge/mediaforge/pkg/stages"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrStageNotFound = errors.New("stage not found")
	ErrDuplicateJob  = errors.New("job already exists")
	ErrJobFinished   = errors.New("job already in terminal state")
)

// Config holds the tracker's retention policy
type Config struct {
	CompletedRetention  time.Duration // remove terminal jobs this long after they finish
	UnfinishedRetention time.Duration // remove jobs stuck unfinished past this ceiling
	CleanupInterval     time.Duration // sweep frequency
}

// DefaultConfig returns the standard retention windows
func DefaultConfig() Config {
	return Config{
		CompletedRetention:  5 * time.Minute,
		UnfinishedRetention: time.Hour,
		CleanupInterval:     time.Minute,
	}
}

// Tracker owns all job and stage state, computes weighted progress, and
// emits lifecycle events. Every mutation happens under its lock, which
// also orders event emission with state changes.
type Tracker struct {
	mu      sync.RWMutex
	jobs    map[string]*models.Job
	catalog *stages.Catalog
	bus     *events.Bus
	cfg     Config
	log     *logging.Logger

	stopCh chan struct{}
	stopMu sync.Mutex
	wg     sync.WaitGroup
}

// New creates a tracker over the given stage catalog and event bus
func New(catalog *stages.Catalog, bus *events.Bus, cfg Config, log *logging.Logger) *Tracker {
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = DefaultConfig().CompletedRetention
	}
	if cfg.UnfinishedRetention <= 0 {
		cfg.UnfinishedRetention = DefaultConfig().UnfinishedRetention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}
	return &Tracker{
		jobs:    make(map[string]*models.Job),
		catalog: catalog,
		bus:     bus,
		cfg:     cfg,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// CreateJob registers a new job with the expected pipeline for its
// media type. Reusing a job id is an error, never a silent overwrite.
func (t *Tracker) CreateJob(jobID, mediaType string, metadata map[string]interface{}) (*models.JobSummary, error) {
	pipeline, ok := t.catalog.Pipeline(mediaType)
	if !ok {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.jobs[jobID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	}

	job := &models.Job{
		ID:                jobID,
		MediaType:         mediaType,
		Status:            models.JobStatusStarted,
		StartTime:         time.Now(),
		Stages:            make([]*models.Stage, len(pipeline)),
		CurrentStageIndex: -1,
		Metadata:          metadata,
		Performance: models.Performance{
			StageDurationsMS: make(map[string]int64),
		},
	}
	for i, def := range pipeline {
		job.Stages[i] = &models.Stage{
			Name:   def.Name,
			Label:  def.Label,
			Weight: def.Weight,
			Status: models.StageStatusPending,
		}
		job.TotalWeight += def.Weight
	}

	t.jobs[jobID] = job
	t.emitLocked(events.TypeJobCreated, job, nil)
	t.log.Debug("job created", map[string]interface{}{
		"job_id":     jobID,
		"media_type": mediaType,
		"stages":     len(job.Stages),
	})
	return job.Summarize(), nil
}

// jobLocked fetches a job; caller holds the lock
func (t *Tracker) jobLocked(jobID string) (*models.Job, error) {
	job, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// emitLocked publishes an event carrying the job's summary. Publishing
// under the tracker lock keeps event order consistent with state order;
// the bus never blocks, so this is safe.
func (t *Tracker) emitLocked(typ events.Type, job *models.Job, payload map[string]interface{}) {
	t.bus.Publish(events.Event{
		Type:    typ,
		JobID:   job.ID,
		Summary: job.Summarize(),
		Payload: payload,
	})
}

// recomputeLocked recalculates the weighted overall progress:
//
//	overall = 100 * (completed_weight + active_weight*active_progress/100) / total_weight
//
// Skipped stages count as completed weight; failed stages contribute
// nothing until the job itself reaches a terminal state.
func recomputeLocked(job *models.Job) {
	if job.TotalWeight <= 0 {
		return
	}

	completed := 0.0
	activePart := 0.0
	stageProgress := 0.0
	for _, st := range job.Stages {
		switch {
		case st.Status.CountsAsCompleted():
			completed += st.Weight
		case st.Status == models.StageStatusActive:
			activePart = st.Weight * st.Progress / 100
			stageProgress = st.Progress
		}
	}

	overall := 100 * (completed + activePart) / job.TotalWeight
	if overall > 100 {
		overall = 100
	}
	job.Progress.Overall = overall
	job.Progress.Stage = stageProgress
}
