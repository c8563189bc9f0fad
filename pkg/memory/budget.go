package memory

import (
	"runtime"
	"sync"
	"time"

	"github.com/mediaforge/mediaforge/pkg/events"
)

// Budget computes the per-job memory allowance for an input of the
// given size: twice the input plus a fixed overhead
func Budget(inputSize, overhead int64) int64 {
	return 2*inputSize + overhead
}

// WatchJob samples heap growth for one job at 1 s intervals. Exceeding
// the budget publishes a single memoryWarning for the job and requests
// a GC pass. The returned function stops the sampler and must be called
// on every job exit path.
func (g *Governor) WatchJob(jobID string, budget int64) (stop func()) {
	done := make(chan struct{})

	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		warned := false
		for {
			select {
			case <-ticker.C:
				if warned {
					continue
				}
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				growth := int64(ms.HeapAlloc) - int64(baseline.HeapAlloc)
				if growth > budget {
					warned = true
					g.log.Warn("job exceeded memory budget", map[string]interface{}{
						"job_id":       jobID,
						"budget_bytes": budget,
						"growth_bytes": growth,
					})
					g.bus.Publish(events.Event{
						Type:  events.TypeMemoryWarning,
						JobID: jobID,
						Payload: map[string]interface{}{
							"budget_bytes": budget,
							"growth_bytes": growth,
						},
					})
					g.requestGC("job budget exceeded")
				}
			case <-done:
				return
			case <-g.stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
