package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediaforge/mediaforge/pkg/memory"
	"github.com/mediaforge/mediaforge/pkg/processor"
)

// processChunked handles inputs past the stream threshold: the input is
// split into fixed-size chunks processed in batches bounded by
// MaxConcurrentChunks (independent of the job-level ceiling), and the
// per-chunk results are merged. The processor never sees the input
// whole, and the merged result bypasses the cache.
func (c *Controller) processChunked(ctx context.Context, proc processor.Processor, mediaType string, input []byte, metadata, options map[string]interface{}) (*processor.Result, error) {
	jobID := uuid.NewString()
	if _, err := c.tracker.CreateJob(jobID, mediaType, metadata); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.pool.Acquire(proc.Type())
	defer c.pool.Release(proc.Type())

	budget := memory.Budget(int64(len(input)), c.cfg.MemoryOverhead)
	stopWatch := c.gov.WatchJob(jobID, budget)
	defer stopWatch()

	chunkSize := int(c.cfg.ChunkSize)
	total := (len(input) + chunkSize - 1) / chunkSize
	results := make([]*processor.Result, total)

	c.log.Info("chunked processing", map[string]interface{}{
		"job_id":      jobID,
		"input_bytes": len(input),
		"chunks":      total,
	})

	start := time.Now()
	for batch := 0; batch < total; batch += c.cfg.MaxConcurrentChunks {
		if err := ctx.Err(); err != nil {
			c.cancelJob(jobID, "context cancelled")
			c.metrics.JobFinished("cancelled", time.Since(start).Seconds())
			return nil, err
		}

		end := batch + c.cfg.MaxConcurrentChunks
		if end > total {
			end = total
		}
		c.metrics.ChunkBatch()

		var wg sync.WaitGroup
		for i := batch; i < end; i++ {
			i := i
			offset := i * chunkSize
			limit := offset + chunkSize
			if limit > len(input) {
				limit = len(input)
			}
			chunk := input[offset:limit]

			wg.Add(1)
			run := func() {
				defer wg.Done()
				meta := chunkMetadata(metadata, i, total, offset)
				res, err := invoke(ctx, proc, jobID, chunk, meta, options)
				if err != nil {
					res = &processor.Result{
						Errors: []string{fmt.Sprintf("chunk %d: %v", i, err)},
					}
				}
				results[i] = res
			}
			if c.workers != nil {
				c.workers.Submit(run)
			} else {
				go run()
			}
		}
		wg.Wait()
	}

	merged := mergeResults(results)
	elapsed := time.Since(start).Seconds()
	if merged.Success {
		if err := c.tracker.CompleteJob(jobID); err != nil {
			c.log.Warn("complete chunked job", map[string]interface{}{"job_id": jobID, "error": err.Error()})
		}
		c.metrics.JobFinished("completed", elapsed)
	} else {
		c.failJob(jobID, firstError(merged))
		c.metrics.JobFinished("failed", elapsed)
	}
	return merged, nil
}

// chunkMetadata copies the request metadata and annotates it with the
// chunk's position so processors can reassemble ordering if they need to
func chunkMetadata(metadata map[string]interface{}, index, total, offset int) map[string]interface{} {
	meta := make(map[string]interface{}, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["chunk_index"] = index
	meta["chunk_count"] = total
	meta["chunk_offset"] = offset
	return meta
}

// mergeResults folds per-chunk results into one, in chunk order:
// array-valued fields concatenate, numeric fields sum, anything else
// takes the last chunk's value. Success requires every chunk to succeed
// with zero errors.
func mergeResults(chunks []*processor.Result) *processor.Result {
	merged := &processor.Result{Data: make(map[string]interface{})}
	failed := false

	for _, res := range chunks {
		if res == nil {
			failed = true
			continue
		}
		merged.ProcessingTime += res.ProcessingTime
		merged.Warnings = append(merged.Warnings, res.Warnings...)
		merged.Errors = append(merged.Errors, res.Errors...)
		if res.Failed() {
			failed = true
		}
		for key, value := range res.Data {
			merged.Data[key] = mergeValue(merged.Data[key], value)
		}
	}

	merged.Success = !failed && len(merged.Errors) == 0
	return merged
}

func mergeValue(existing, value interface{}) interface{} {
	switch v := value.(type) {
	case []interface{}:
		prev, _ := existing.([]interface{})
		return append(prev, v...)
	case []string:
		prev, _ := existing.([]interface{})
		for _, s := range v {
			prev = append(prev, s)
		}
		return prev
	case float64:
		return asFloat(existing) + v
	case float32:
		return asFloat(existing) + float64(v)
	case int:
		return asFloat(existing) + float64(v)
	case int64:
		return asFloat(existing) + float64(v)
	default:
		return value
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
