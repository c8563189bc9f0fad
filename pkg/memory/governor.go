package memory

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/logging"
)

// Flusher is the cache surface the governor needs for the pressure
// response
type Flusher interface {
	Flush() int
	Len() int
}

// Governor watches process memory and responds to pressure. Crossing
// the configured ceiling flushes the entire result cache and requests a
// garbage-collection pass; the response is deliberately blunt, trading
// cache efficiency for availability.
type Governor struct {
	maxMemory int64
	interval  time.Duration
	cache     Flusher
	bus       *events.Bus
	log       *logging.Logger
	onFlush   func()

	gcLimiter *rate.Limiter
	proc      *process.Process

	stopCh chan struct{}
	stopMu sync.Mutex
	wg     sync.WaitGroup
}

// NewGovernor creates a governor. maxMemory <= 0 disables the pressure
// response; gcInterval bounds how often a GC pass may be requested.
func NewGovernor(maxMemory int64, interval, gcInterval time.Duration, cache Flusher, bus *events.Bus, log *logging.Logger) *Governor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Governor{
		maxMemory: maxMemory,
		interval:  interval,
		cache:     cache,
		bus:       bus,
		log:       log,
		gcLimiter: rate.NewLimiter(rate.Every(gcInterval), 1),
		proc:      proc,
		stopCh:    make(chan struct{}),
	}
}

// SetOnPressure registers a hook invoked after each pressure response
// (used to bump metrics without coupling this package to the collector)
func (g *Governor) SetOnPressure(fn func()) {
	g.onFlush = fn
}

// Start begins the monitoring loop
func (g *Governor) Start() {
	g.wg.Add(1)
	go g.run()
}

// Stop halts monitoring and waits for the loop to exit
func (g *Governor) Stop() {
	g.stopMu.Lock()
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
	g.stopMu.Unlock()
	g.wg.Wait()
}

func (g *Governor) run() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Check()
		case <-g.stopCh:
			return
		}
	}
}

// Check samples process memory once and runs the pressure response if
// the ceiling is exceeded. Exposed so tests and operators can force a
// sample outside the timer.
func (g *Governor) Check() {
	if g.maxMemory <= 0 {
		return
	}

	usage := g.ProcessBytes()
	if usage <= g.maxMemory {
		return
	}

	flushed := 0
	if g.cache != nil {
		flushed = g.cache.Flush()
	}

	g.log.Warn("memory pressure: cache flushed", map[string]interface{}{
		"usage_bytes":     usage,
		"limit_bytes":     g.maxMemory,
		"entries_flushed": flushed,
	})

	g.bus.Publish(events.Event{
		Type: events.TypeMemoryPressure,
		Payload: map[string]interface{}{
			"usage_bytes":     usage,
			"limit_bytes":     g.maxMemory,
			"entries_flushed": flushed,
		},
	})

	g.requestGC("memory pressure")

	if g.onFlush != nil {
		g.onFlush()
	}
}

// ProcessBytes returns the current process RSS, falling back to the Go
// heap when process stats are unavailable
func (g *Governor) ProcessBytes() int64 {
	if g.proc != nil {
		if info, err := g.proc.MemoryInfo(); err == nil && info != nil {
			return int64(info.RSS)
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// requestGC runs a collection pass unless one ran too recently. GC is
// requested, not forced: a pass that is rate-limited away is simply
// skipped.
func (g *Governor) requestGC(reason string) {
	if !g.gcLimiter.Allow() {
		return
	}
	runtime.GC()
	g.bus.Publish(events.Event{
		Type: events.TypeGarbageCollection,
		Payload: map[string]interface{}{
			"reason": reason,
		},
	})
}
