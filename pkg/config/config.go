package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the orchestration engine
type Config struct {
	// Admission
	MaxConcurrentJobs int           // admission ceiling
	MaxQueueDepth     int           // 0 disables the bound
	QueueTimeout      time.Duration // max wait for a queued request; 0 disables

	// Caching
	CacheSize int           // entry-count LRU capacity
	CacheTTL  time.Duration // expiry on read; 0 disables

	// Memory
	MaxMemoryUsage     int64         // bytes; process-wide pressure ceiling
	MemoryOverhead     int64         // fixed per-job budget overhead in bytes
	GCInterval         time.Duration // minimum spacing between GC requests
	MonitoringInterval time.Duration // global memory sampling interval

	// Streaming
	StreamThreshold     int64 // direct-vs-chunked cutoff in bytes
	ChunkSize           int64 // bytes per chunk
	MaxConcurrentChunks int   // sub-concurrency bound per batch

	// Worker pool
	EnableWorkerPool bool
	WorkerPoolSize   int

	// Timeouts
	BaseTimeout  time.Duration // size-independent portion of the job timeout
	TimeoutPerMB time.Duration // added per megabyte of input

	// Retention
	CompletedRetention  time.Duration // remove finished jobs after this
	UnfinishedRetention time.Duration // ceiling for jobs stuck unfinished
	CleanupInterval     time.Duration // sweep frequency

	// Stage catalog
	StageCatalogPath string // optional YAML override for builtin catalogs

	// Daemon
	ListenAddr string
	LogLevel   string
	LogJSON    bool
	LogDir     string
}

// Default returns the engine defaults
func Default() Config {
	return Config{
		MaxConcurrentJobs:   4,
		MaxQueueDepth:       256,
		QueueTimeout:        2 * time.Minute,
		CacheSize:           100,
		CacheTTL:            15 * time.Minute,
		MaxMemoryUsage:      2 << 30, // 2 GiB
		MemoryOverhead:      64 << 20,
		GCInterval:          30 * time.Second,
		MonitoringInterval:  5 * time.Second,
		StreamThreshold:     32 << 20,
		ChunkSize:           1 << 20,
		MaxConcurrentChunks: 4,
		EnableWorkerPool:    false,
		WorkerPoolSize:      4,
		BaseTimeout:         30 * time.Second,
		TimeoutPerMB:        2 * time.Second,
		CompletedRetention:  5 * time.Minute,
		UnfinishedRetention: time.Hour,
		CleanupInterval:     time.Minute,
		ListenAddr:          ":8080",
		LogLevel:            "info",
	}
}

// Load reads configuration from an optional file plus MEDIAFORGE_*
// environment variables, layered over the defaults
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("mediaforge")
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("max_concurrent_jobs", defaults.MaxConcurrentJobs)
	v.SetDefault("max_queue_depth", defaults.MaxQueueDepth)
	v.SetDefault("queue_timeout", defaults.QueueTimeout)
	v.SetDefault("cache_size", defaults.CacheSize)
	v.SetDefault("cache_ttl", defaults.CacheTTL)
	v.SetDefault("max_memory_usage", defaults.MaxMemoryUsage)
	v.SetDefault("memory_overhead", defaults.MemoryOverhead)
	v.SetDefault("gc_interval", defaults.GCInterval)
	v.SetDefault("monitoring_interval", defaults.MonitoringInterval)
	v.SetDefault("stream_threshold", defaults.StreamThreshold)
	v.SetDefault("chunk_size", defaults.ChunkSize)
	v.SetDefault("max_concurrent_chunks", defaults.MaxConcurrentChunks)
	v.SetDefault("enable_worker_pool", defaults.EnableWorkerPool)
	v.SetDefault("worker_pool_size", defaults.WorkerPoolSize)
	v.SetDefault("base_timeout", defaults.BaseTimeout)
	v.SetDefault("timeout_per_mb", defaults.TimeoutPerMB)
	v.SetDefault("completed_retention", defaults.CompletedRetention)
	v.SetDefault("unfinished_retention", defaults.UnfinishedRetention)
	v.SetDefault("cleanup_interval", defaults.CleanupInterval)
	v.SetDefault("stage_catalog_path", "")
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_json", false)
	v.SetDefault("log_dir", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		MaxConcurrentJobs:   v.GetInt("max_concurrent_jobs"),
		MaxQueueDepth:       v.GetInt("max_queue_depth"),
		QueueTimeout:        v.GetDuration("queue_timeout"),
		CacheSize:           v.GetInt("cache_size"),
		CacheTTL:            v.GetDuration("cache_ttl"),
		MaxMemoryUsage:      v.GetInt64("max_memory_usage"),
		MemoryOverhead:      v.GetInt64("memory_overhead"),
		GCInterval:          v.GetDuration("gc_interval"),
		MonitoringInterval:  v.GetDuration("monitoring_interval"),
		StreamThreshold:     v.GetInt64("stream_threshold"),
		ChunkSize:           v.GetInt64("chunk_size"),
		MaxConcurrentChunks: v.GetInt("max_concurrent_chunks"),
		EnableWorkerPool:    v.GetBool("enable_worker_pool"),
		WorkerPoolSize:      v.GetInt("worker_pool_size"),
		BaseTimeout:         v.GetDuration("base_timeout"),
		TimeoutPerMB:        v.GetDuration("timeout_per_mb"),
		CompletedRetention:  v.GetDuration("completed_retention"),
		UnfinishedRetention: v.GetDuration("unfinished_retention"),
		CleanupInterval:     v.GetDuration("cleanup_interval"),
		StageCatalogPath:    v.GetString("stage_catalog_path"),
		ListenAddr:          v.GetString("listen_addr"),
		LogLevel:            v.GetString("log_level"),
		LogJSON:             v.GetBool("log_json"),
		LogDir:              v.GetString("log_dir"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got %d", c.MaxConcurrentJobs)
	}
	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("max_queue_depth must be >= 0, got %d", c.MaxQueueDepth)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("max_concurrent_chunks must be positive, got %d", c.MaxConcurrentChunks)
	}
	if c.StreamThreshold <= 0 {
		return fmt.Errorf("stream_threshold must be positive, got %d", c.StreamThreshold)
	}
	if c.EnableWorkerPool && c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size must be positive when the pool is enabled, got %d", c.WorkerPoolSize)
	}
	return nil
}
