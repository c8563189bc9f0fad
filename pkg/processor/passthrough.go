package processor

import (
	"context"
	"os"
	"time"

	"github.com/mediaforge/mediaforge/pkg/tracker"
)

// Passthrough is a built-in processor that performs no real media work.
// It walks the owning job's expected pipeline through the tracker,
// completing each stage in order, and returns a result describing the
// input. Used by the demo command and as a stand-in backend in tests.
type Passthrough struct {
	tracker   *tracker.Tracker
	stepDelay time.Duration
}

// NewPassthrough creates a passthrough processor. stepDelay, if
// positive, is slept per stage so progress is observable.
func NewPassthrough(trk *tracker.Tracker, stepDelay time.Duration) *Passthrough {
	return &Passthrough{
		tracker:   trk,
		stepDelay: stepDelay,
	}
}

// Type identifies the processor for pool accounting
func (p *Passthrough) Type() string {
	return "passthrough"
}

// Process reads the input file and delegates to the buffer path
func (p *Passthrough) Process(ctx context.Context, ownerID, inputPath string, options map[string]interface{}) (*Result, error) {
	input, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, err
	}
	return p.ProcessBuffer(ctx, ownerID, input, nil, options)
}

// ProcessBuffer drives every stage of the owning job to completion.
// Stage errors are ignored: on the chunked path later chunks find the
// stages already terminal, which is expected.
func (p *Passthrough) ProcessBuffer(ctx context.Context, ownerID string, input []byte, metadata, options map[string]interface{}) (*Result, error) {
	start := time.Now()

	if p.tracker != nil {
		if job, err := p.tracker.JobDetails(ownerID); err == nil {
			for _, stage := range job.Stages {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if err := p.tracker.StartStage(ownerID, stage.Name, nil); err != nil {
					continue
				}
				_ = p.tracker.UpdateStageProgress(ownerID, stage.Name, 50, nil)
				if p.stepDelay > 0 {
					select {
					case <-time.After(p.stepDelay):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				_ = p.tracker.CompleteStage(ownerID, stage.Name, nil)
			}
		}
	}

	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"bytes_processed": float64(len(input)),
			"segments":        []interface{}{len(input)},
		},
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}
