package admission

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediaforge/mediaforge/pkg/cache"
	"github.com/mediaforge/mediaforge/pkg/config"
	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/logging"
	"github.com/mediaforge/mediaforge/pkg/memory"
	"github.com/mediaforge/mediaforge/pkg/metrics"
	"github.com/mediaforge/mediaforge/pkg/processor"
	"github.com/mediaforge/mediaforge/pkg/resources"
	"github.com/mediaforge/mediaforge/pkg/tracker"
	"github.com/mediaforge/mediaforge/pkg/workerpool"
)

// Controller gates concurrent processing. Requests pass a content-
// fingerprint cache check, then an admission gate bounded by
// MaxConcurrentJobs with FIFO queueing above it; admitted requests get
// a tracker job, per-processor-type pool accounting, a memory budget
// watcher, and a size-scaled cooperative timeout. Inputs past the
// stream threshold take the chunked path instead and bypass the cache.
type Controller struct {
	cfg     config.Config
	tracker *tracker.Tracker
	results *cache.ResultCache
	pool    *resources.Pool
	gov     *memory.Governor
	bus     *events.Bus
	metrics *metrics.Collector
	log     *logging.Logger
	workers *workerpool.Pool

	mu     sync.Mutex
	active int
	queue  []*pending
}

// New wires a controller over the shared engine components. The worker
// pool is created only when enabled in the configuration.
func New(cfg config.Config, trk *tracker.Tracker, results *cache.ResultCache, pool *resources.Pool, gov *memory.Governor, bus *events.Bus, m *metrics.Collector, log *logging.Logger) *Controller {
	c := &Controller{
		cfg:     cfg,
		tracker: trk,
		results: results,
		pool:    pool,
		gov:     gov,
		bus:     bus,
		metrics: m,
		log:     log,
	}
	if cfg.EnableWorkerPool {
		c.workers = workerpool.New(cfg.WorkerPoolSize)
	}
	return c
}

// Close releases the controller's own resources. In-flight requests are
// not interrupted.
func (c *Controller) Close() {
	if c.workers != nil {
		c.workers.Close()
	}
}

// Process runs one request end to end and returns the processor's
// result. Identical (input, metadata, options) submissions are served
// from the result cache without any job or pool bookkeeping. Inputs
// larger than the stream threshold are split into chunks and never
// handed to a processor whole.
func (c *Controller) Process(ctx context.Context, proc processor.Processor, mediaType string, input []byte, metadata, options map[string]interface{}) (*processor.Result, error) {
	if int64(len(input)) > c.cfg.StreamThreshold {
		return c.processChunked(ctx, proc, mediaType, input, metadata, options)
	}

	key := cache.Key(input, metadata, options)
	admitted := false
	for {
		if res, ok := c.results.Get(key); ok {
			if admitted {
				// A duplicate finished while this request waited; the
				// slot is unused, hand it on.
				c.release()
			}
			c.metrics.CacheHit()
			c.bus.Publish(events.Event{
				Type:    events.TypeCacheHit,
				Payload: map[string]interface{}{"cache_key": key},
			})
			return res, nil
		}
		if admitted {
			break
		}
		c.metrics.CacheMiss()
		if err := c.tryAdmit(ctx); err != nil {
			return nil, err
		}
		admitted = true
		// Dequeued (or freshly admitted) requests re-check the cache
		// before doing any work.
	}
	defer c.release()

	res, err := c.execute(ctx, proc, mediaType, input, metadata, options)
	if err != nil {
		return nil, err
	}
	if res.Success && len(res.Errors) == 0 && len(res.Data) > 0 {
		c.results.Put(key, res)
	}
	return res, nil
}

// execute runs an admitted request: tracker job, pool accounting,
// memory budget watcher, and the processor itself raced against the
// size-scaled deadline
func (c *Controller) execute(ctx context.Context, proc processor.Processor, mediaType string, input []byte, metadata, options map[string]interface{}) (*processor.Result, error) {
	jobID := uuid.NewString()
	if _, err := c.tracker.CreateJob(jobID, mediaType, metadata); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.pool.Acquire(proc.Type())
	defer c.pool.Release(proc.Type())

	budget := memory.Budget(int64(len(input)), c.cfg.MemoryOverhead)
	stopWatch := c.gov.WatchJob(jobID, budget)
	defer stopWatch()

	deadline := c.timeoutFor(int64(len(input)))
	start := time.Now()

	type outcome struct {
		res *processor.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := invoke(ctx, proc, jobID, input, metadata, options)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case out := <-done:
		elapsed := time.Since(start).Seconds()
		if out.err != nil {
			c.failJob(jobID, out.err.Error())
			c.metrics.JobFinished("failed", elapsed)
			return nil, out.err
		}
		if out.res.Failed() {
			c.failJob(jobID, firstError(out.res))
			c.metrics.JobFinished("failed", elapsed)
			return out.res, nil
		}
		// The processor may already have completed the job through its
		// stage transitions; forcing completion twice is harmless.
		if err := c.tracker.CompleteJob(jobID); err != nil && !errors.Is(err, tracker.ErrJobFinished) {
			c.log.Warn("complete job after processing", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
		c.metrics.JobFinished("completed", elapsed)
		return out.res, nil

	case <-timer.C:
		// Cooperative timeout: the processor keeps running unobserved,
		// its late result is discarded.
		msg := fmt.Sprintf("processing timeout after %s", deadline)
		c.failJob(jobID, msg)
		c.metrics.JobFinished("timeout", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: job %s after %s", ErrProcessingTimeout, jobID, deadline)

	case <-ctx.Done():
		c.cancelJob(jobID, "context cancelled")
		c.metrics.JobFinished("cancelled", time.Since(start).Seconds())
		return nil, ctx.Err()
	}
}

func (c *Controller) failJob(jobID, msg string) {
	if err := c.tracker.FailJob(jobID, msg); err != nil && !errors.Is(err, tracker.ErrJobFinished) {
		c.log.Warn("fail job", map[string]interface{}{"job_id": jobID, "error": err.Error()})
	}
}

func (c *Controller) cancelJob(jobID, reason string) {
	if err := c.tracker.CancelJob(jobID, reason); err != nil && !errors.Is(err, tracker.ErrJobFinished) {
		c.log.Warn("cancel job", map[string]interface{}{"job_id": jobID, "error": err.Error()})
	}
}

// invoke hands the input to the processor, preferring the in-memory
// path. Processors without one get a scoped temporary file that is
// removed as soon as the call returns.
func invoke(ctx context.Context, proc processor.Processor, jobID string, input []byte, metadata, options map[string]interface{}) (*processor.Result, error) {
	if bp, ok := proc.(processor.BufferProcessor); ok {
		return bp.ProcessBuffer(ctx, jobID, input, metadata, options)
	}

	f, err := os.CreateTemp("", "mediaforge-*.bin")
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(input); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp input: %w", err)
	}
	return proc.Process(ctx, jobID, path, options)
}

func firstError(res *processor.Result) string {
	if res != nil && len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return "processor reported failure"
}

// Stats is a point-in-time view of the controller and its caches
type Stats struct {
	ActiveJobs   int                        `json:"active_jobs"`
	QueuedJobs   int                        `json:"queued_jobs"`
	CacheEntries int                        `json:"cache_entries"`
	CacheHits    uint64                     `json:"cache_hits"`
	CacheMisses  uint64                     `json:"cache_misses"`
	Pool         map[string]resources.Entry `json:"pool"`
}

// Stats snapshots the admission gate, result cache, and resource pool
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	active := c.active
	queued := len(c.queue)
	c.mu.Unlock()

	hits, misses := c.results.Stats()
	return Stats{
		ActiveJobs:   active,
		QueuedJobs:   queued,
		CacheEntries: c.results.Len(),
		CacheHits:    hits,
		CacheMisses:  misses,
		Pool:         c.pool.Snapshot(),
	}
}
