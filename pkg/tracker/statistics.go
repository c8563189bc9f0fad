package tracker

import (
	"time"

	"github.com/mediaforge/mediaforge/pkg/models"
)

// MediaTypeStats aggregates per-media-type numbers over retained jobs
type MediaTypeStats struct {
	Count              int     `json:"count"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	AvgProgress        float64 `json:"avg_progress"`
}

// Statistics is an on-demand aggregate over all retained jobs
type Statistics struct {
	TotalJobs     int                       `json:"total_jobs"`
	ActiveJobs    int                       `json:"active_jobs"`
	CompletedJobs int                       `json:"completed_jobs"`
	FailedJobs    int                       `json:"failed_jobs"`
	CancelledJobs int                       `json:"cancelled_jobs"`
	JobsLast24h   int                       `json:"jobs_last_24h"`
	ByMediaType   map[string]MediaTypeStats `json:"by_media_type"`
}

// Statistics computes the aggregate view of every retained job
func (t *Tracker) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Statistics{
		ByMediaType: make(map[string]MediaTypeStats),
	}

	type acc struct {
		count      int
		durations  float64
		durCount   int
		progress   float64
	}
	byType := make(map[string]*acc)
	cutoff := time.Now().Add(-24 * time.Hour)

	for _, job := range t.jobs {
		stats.TotalJobs++
		switch job.Status {
		case models.JobStatusCompleted:
			stats.CompletedJobs++
		case models.JobStatusFailed:
			stats.FailedJobs++
		case models.JobStatusCancelled:
			stats.CancelledJobs++
		default:
			stats.ActiveJobs++
		}
		if job.StartTime.After(cutoff) {
			stats.JobsLast24h++
		}

		a, ok := byType[job.MediaType]
		if !ok {
			a = &acc{}
			byType[job.MediaType] = a
		}
		a.count++
		a.progress += job.Progress.Overall
		if job.EndTime != nil {
			a.durations += job.EndTime.Sub(job.StartTime).Seconds()
			a.durCount++
		}
	}

	for mediaType, a := range byType {
		s := MediaTypeStats{
			Count:       a.count,
			AvgProgress: a.progress / float64(a.count),
		}
		if a.durCount > 0 {
			s.AvgDurationSeconds = a.durations / float64(a.durCount)
		}
		stats.ByMediaType[mediaType] = s
	}
	return stats
}
