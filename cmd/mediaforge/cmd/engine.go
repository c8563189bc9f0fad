package cmd

import (
	"github.com/mediaforge/mediaforge/pkg/admission"
	"github.com/mediaforge/mediaforge/pkg/cache"
	"github.com/mediaforge/mediaforge/pkg/config"
	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/logging"
	"github.com/mediaforge/mediaforge/pkg/memory"
	"github.com/mediaforge/mediaforge/pkg/metrics"
	"github.com/mediaforge/mediaforge/pkg/resources"
	"github.com/mediaforge/mediaforge/pkg/stages"
	"github.com/mediaforge/mediaforge/pkg/tracker"
)

// engine bundles the wired components shared by the serve and demo
// commands
type engine struct {
	cfg     config.Config
	log     *logging.Logger
	bus     *events.Bus
	catalog *stages.Catalog
	tracker *tracker.Tracker
	results *cache.ResultCache
	pool    *resources.Pool
	gov     *memory.Governor
	metrics *metrics.Collector
	ctrl    *admission.Controller
}

func buildEngine(cfg config.Config) (*engine, error) {
	level := logging.ParseLevel(cfg.LogLevel)
	var log *logging.Logger
	var err error
	if cfg.LogDir != "" {
		log, err = logging.NewFileLogger(cfg.LogDir, "mediaforge", level, cfg.LogJSON)
		if err != nil {
			return nil, err
		}
	} else {
		log = logging.New("mediaforge", level, cfg.LogJSON)
	}

	catalog := stages.Builtin()
	if cfg.StageCatalogPath != "" {
		catalog, err = stages.LoadFile(cfg.StageCatalogPath)
		if err != nil {
			return nil, err
		}
	}

	bus := events.NewBus()
	trk := tracker.New(catalog, bus, tracker.Config{
		CompletedRetention:  cfg.CompletedRetention,
		UnfinishedRetention: cfg.UnfinishedRetention,
		CleanupInterval:     cfg.CleanupInterval,
	}, log)

	results := cache.New(cfg.CacheSize, cfg.CacheTTL)
	pool := resources.NewPool()
	m := metrics.NewCollector()

	gov := memory.NewGovernor(cfg.MaxMemoryUsage, cfg.MonitoringInterval, cfg.GCInterval, results, bus, log)
	gov.SetOnPressure(m.MemoryPressure)

	ctrl := admission.New(cfg, trk, results, pool, gov, bus, m, log)

	return &engine{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		catalog: catalog,
		tracker: trk,
		results: results,
		pool:    pool,
		gov:     gov,
		metrics: m,
		ctrl:    ctrl,
	}, nil
}

// start launches the background loops
func (e *engine) start() {
	e.tracker.Start()
	e.gov.Start()
	e.log.Info("engine started", map[string]interface{}{
		"max_concurrent_jobs": e.cfg.MaxConcurrentJobs,
		"media_types":         e.catalog.MediaTypes(),
	})
}

// stop winds the engine down in dependency order
func (e *engine) stop() {
	e.ctrl.Close()
	e.gov.Stop()
	e.tracker.Stop()
	e.bus.Close()
	e.log.Close()
}
