package processor

import (
	"context"
)

// Result is the structured outcome of one processing invocation.
// ProcessingTime is wall-clock seconds spent inside the processor.
type Result struct {
	Success        bool                   `json:"success"`
	Data           map[string]interface{} `json:"data,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
	ProcessingTime float64                `json:"processing_time"`
}

// Failed reports whether the result carries any error
func (r *Result) Failed() bool {
	return r == nil || !r.Success || len(r.Errors) > 0
}

// Processor is the capability contract the orchestration engine invokes.
// The engine never inspects what a processor does; it only schedules it,
// bounds its resources, and tracks the job it drives.
//
// ownerID is the job id the invocation belongs to. Processors that report
// stage-level progress do so against that id through the tracker they were
// constructed with.
type Processor interface {
	// Type identifies the processor kind for resource-pool accounting
	// (e.g. "transcription", "object_detection", "thumbnail").
	Type() string

	// Process runs against an input file on disk.
	Process(ctx context.Context, ownerID, inputPath string, options map[string]interface{}) (*Result, error)
}

// BufferProcessor is implemented by processors that accept in-memory
// input directly. The orchestrator prefers this path and falls back to
// a scoped temporary file when it is absent.
type BufferProcessor interface {
	Processor
	ProcessBuffer(ctx context.Context, ownerID string, input []byte, metadata, options map[string]interface{}) (*Result, error)
}
