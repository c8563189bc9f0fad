package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and updates the engine's Prometheus metrics.
// All methods are safe on a nil receiver so components can run without
// metrics wired.
type Collector struct {
	registry *prometheus.Registry

	jobsTotal         *prometheus.CounterVec
	activeJobs        prometheus.Gauge
	queueDepth        prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	chunkBatches      prometheus.Counter
	memoryPressure    prometheus.Counter
	processingSeconds prometheus.Histogram
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediaforge_jobs_total",
				Help: "Jobs finished by terminal status",
			},
			[]string{"status"},
		),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaforge_active_jobs",
			Help: "Jobs currently holding an admission slot",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaforge_queue_depth",
			Help: "Requests waiting for an admission slot",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_cache_hits_total",
			Help: "Result cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_cache_misses_total",
			Help: "Result cache misses",
		}),
		chunkBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_chunk_batches_total",
			Help: "Chunk batches dispatched on the streaming path",
		}),
		memoryPressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaforge_memory_pressure_total",
			Help: "Memory pressure responses triggered",
		}),
		processingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediaforge_processing_duration_seconds",
			Help:    "Wall-clock job processing duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}

	c.registry.MustRegister(
		c.jobsTotal,
		c.activeJobs,
		c.queueDepth,
		c.cacheHits,
		c.cacheMisses,
		c.chunkBatches,
		c.memoryPressure,
		c.processingSeconds,
	)
	return c
}

// Handler serves the collector's registry in Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// JobFinished records a job reaching a terminal status
func (c *Collector) JobFinished(status string, seconds float64) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(status).Inc()
	c.processingSeconds.Observe(seconds)
}

// SetActiveJobs updates the active-slot gauge
func (c *Collector) SetActiveJobs(n int) {
	if c == nil {
		return
	}
	c.activeJobs.Set(float64(n))
}

// SetQueueDepth updates the queue-depth gauge
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// CacheHit records a result served from cache
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// CacheMiss records a cache lookup that found nothing
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// ChunkBatch records one dispatched chunk batch
func (c *Collector) ChunkBatch() {
	if c == nil {
		return
	}
	c.chunkBatches.Inc()
}

// MemoryPressure records one pressure response
func (c *Collector) MemoryPressure() {
	if c == nil {
		return
	}
	c.memoryPressure.Inc()
}
