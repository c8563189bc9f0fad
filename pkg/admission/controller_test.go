package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/mediaforge/pkg/cache"
	"github.com/mediaforge/mediaforge/pkg/config"
	"github.com/mediaforge/mediaforge/pkg/events"
	"github.com/mediaforge/mediaforge/pkg/logging"
	"github.com/mediaforge/mediaforge/pkg/memory"
	"github.com/mediaforge/mediaforge/pkg/metrics"
	"github.com/mediaforge/mediaforge/pkg/models"
	"github.com/mediaforge/mediaforge/pkg/processor"
	"github.com/mediaforge/mediaforge/pkg/resources"
	"github.com/mediaforge/mediaforge/pkg/stages"
	"github.com/mediaforge/mediaforge/pkg/tracker"
)

type testEngine struct {
	ctrl    *Controller
	tracker *tracker.Tracker
	results *cache.ResultCache
	pool    *resources.Pool
	bus     *events.Bus
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) *testEngine {
	t.Helper()

	cfg := config.Default()
	cfg.MonitoringInterval = time.Hour
	cfg.QueueTimeout = 0
	if mutate != nil {
		mutate(&cfg)
	}

	log := logging.New("test", logging.ERROR, false)
	bus := events.NewBus()
	trk := tracker.New(stages.Builtin(), bus, tracker.DefaultConfig(), log)
	results := cache.New(cfg.CacheSize, cfg.CacheTTL)
	pool := resources.NewPool()
	gov := memory.NewGovernor(0, cfg.MonitoringInterval, cfg.GCInterval, results, bus, log)
	ctrl := New(cfg, trk, results, pool, gov, bus, metrics.NewCollector(), log)

	t.Cleanup(func() {
		ctrl.Close()
		bus.Close()
	})
	return &testEngine{ctrl: ctrl, tracker: trk, results: results, pool: pool, bus: bus}
}

// stubProcessor records every invocation and optionally blocks until a
// token arrives on release
type stubProcessor struct {
	mu         sync.Mutex
	inputSizes []int
	inputs     []string
	release    chan struct{}
	result     *processor.Result

	current int32
	maxSeen int32
}

func (s *stubProcessor) Type() string { return "stub" }

func (s *stubProcessor) Process(ctx context.Context, ownerID, inputPath string, options map[string]interface{}) (*processor.Result, error) {
	return nil, errors.New("file path not supported by stub")
}

func (s *stubProcessor) ProcessBuffer(ctx context.Context, ownerID string, input []byte, metadata, options map[string]interface{}) (*processor.Result, error) {
	cur := atomic.AddInt32(&s.current, 1)
	for {
		prev := atomic.LoadInt32(&s.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&s.maxSeen, prev, cur) {
			break
		}
	}
	defer atomic.AddInt32(&s.current, -1)

	s.mu.Lock()
	s.inputSizes = append(s.inputSizes, len(input))
	s.inputs = append(s.inputs, string(input))
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.result != nil {
		return s.result, nil
	}
	return &processor.Result{
		Success:        true,
		Data:           map[string]interface{}{"items": []interface{}{"x"}, "count": 1.0},
		ProcessingTime: 0.001,
	}, nil
}

func (s *stubProcessor) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputSizes)
}

func (s *stubProcessor) seenInputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestProcessCompletesJob(t *testing.T) {
	eng := newTestEngine(t, nil)
	stub := &stubProcessor{}

	res, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("input"), nil, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	jobs := eng.tracker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, float64(100), jobs[0].Progress.Overall)

	entry, ok := eng.pool.Get("stub")
	require.True(t, ok)
	assert.Equal(t, 0, entry.ActiveJobs)
	assert.Equal(t, 1, entry.TotalJobs)
}

func TestDuplicateSubmissionHitsCache(t *testing.T) {
	eng := newTestEngine(t, nil)
	stub := &stubProcessor{}

	var mu sync.Mutex
	hits := 0
	cancel := eng.tracker.SubscribeToAll(func(ev events.Event) {
		if ev.Type == events.TypeCacheHit {
			mu.Lock()
			hits++
			mu.Unlock()
		}
	})
	defer cancel()

	input := []byte("same input")
	meta := map[string]interface{}{"filename": "a.jpg"}

	first, err := eng.ctrl.Process(context.Background(), stub, "image", input, meta, nil)
	require.NoError(t, err)
	second, err := eng.ctrl.Process(context.Background(), stub, "image", input, meta, nil)
	require.NoError(t, err)

	assert.Same(t, first, second, "cache hit should return the stored result")
	assert.Equal(t, 1, stub.calls(), "processor must run once")

	// Zero new resource-pool churn and no new job on the hit.
	entry, _ := eng.pool.Get("stub")
	assert.Equal(t, 1, entry.TotalJobs)
	assert.Len(t, eng.tracker.Jobs(), 1)

	waitFor(t, "cacheHit event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hits == 1
	})
}

func TestFailedResultsAreNotCached(t *testing.T) {
	eng := newTestEngine(t, nil)
	stub := &stubProcessor{result: &processor.Result{
		Success: false,
		Errors:  []string{"decode error"},
	}}

	res, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("bad"), nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, 0, eng.results.Len())

	jobs := eng.tracker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].Errors, "decode error")
}

func TestConcurrencyCeilingAndFIFODispatch(t *testing.T) {
	const slots = 2
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = slots
	})
	stub := &stubProcessor{release: make(chan struct{})}

	inputs := []string{"req-0", "req-1", "req-2", "req-3"}
	errCh := make(chan error, len(inputs))
	for i, in := range inputs {
		i, in := i, in
		go func() {
			_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte(in), nil, nil)
			errCh <- err
		}()
		// Launch order defines enqueue order, so make each step land
		// before the next request is submitted.
		if i < slots {
			waitFor(t, "request active", func() bool { return stub.calls() == i+1 })
		} else {
			waitFor(t, "request queued", func() bool { return eng.ctrl.Stats().QueuedJobs == i+1-slots })
		}
	}

	waitFor(t, "two active, two queued", func() bool {
		st := eng.ctrl.Stats()
		return st.ActiveJobs == slots && st.QueuedJobs == len(inputs)-slots
	})

	// Release one slot at a time; each freed slot must dispatch the
	// queue head before the next release.
	for i := 0; i < len(inputs); i++ {
		stub.release <- struct{}{}
		expected := slots + i + 1
		if expected > len(inputs) {
			expected = len(inputs)
		}
		waitFor(t, "queue head dispatched", func() bool { return stub.calls() >= expected })
	}
	for range inputs {
		require.NoError(t, <-errCh)
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&stub.maxSeen), int32(slots),
		"active processors must never exceed the ceiling")
	assert.Equal(t, inputs, stub.seenInputs(), "queued requests must dispatch FIFO")

	st := eng.ctrl.Stats()
	assert.Equal(t, 0, st.ActiveJobs)
	assert.Equal(t, 0, st.QueuedJobs)
}

func TestQueueOverflow(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = 1
		cfg.MaxQueueDepth = 1
	})
	stub := &stubProcessor{release: make(chan struct{})}

	done := make(chan error, 2)
	go func() {
		_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("active"), nil, nil)
		done <- err
	}()
	waitFor(t, "first request active", func() bool { return stub.calls() == 1 })

	go func() {
		_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("queued"), nil, nil)
		done <- err
	}()
	waitFor(t, "second request queued", func() bool { return eng.ctrl.Stats().QueuedJobs == 1 })

	_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("rejected"), nil, nil)
	assert.ErrorIs(t, err, ErrQueueOverflow)

	stub.release <- struct{}{}
	stub.release <- struct{}{}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestQueueTimeout(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = 1
		cfg.QueueTimeout = 30 * time.Millisecond
	})
	stub := &stubProcessor{release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("active"), nil, nil)
		done <- err
	}()
	waitFor(t, "first request active", func() bool { return stub.calls() == 1 })

	_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("waiting"), nil, nil)
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.Equal(t, 0, eng.ctrl.Stats().QueuedJobs)

	stub.release <- struct{}{}
	require.NoError(t, <-done)
}

func TestQueuedRequestObservesContextCancellation(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.MaxConcurrentJobs = 1
	})
	stub := &stubProcessor{release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("active"), nil, nil)
		done <- err
	}()
	waitFor(t, "first request active", func() bool { return stub.calls() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	queued := make(chan error, 1)
	go func() {
		_, err := eng.ctrl.Process(ctx, stub, "image", []byte("queued"), nil, nil)
		queued <- err
	}()
	waitFor(t, "second request queued", func() bool { return eng.ctrl.Stats().QueuedJobs == 1 })

	cancel()
	assert.ErrorIs(t, <-queued, context.Canceled)
	assert.Equal(t, 0, eng.ctrl.Stats().QueuedJobs)

	stub.release <- struct{}{}
	require.NoError(t, <-done)
}

func TestProcessingTimeout(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.BaseTimeout = 30 * time.Millisecond
		cfg.TimeoutPerMB = 0
	})
	stub := &stubProcessor{release: make(chan struct{})}
	defer close(stub.release)

	_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte("slow"), nil, nil)
	assert.ErrorIs(t, err, ErrProcessingTimeout)

	jobs := eng.tracker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)

	// The slot must be released despite the timeout.
	assert.Equal(t, 0, eng.ctrl.Stats().ActiveJobs)
}

func TestChunkedPathNeverPassesWholeInput(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.StreamThreshold = 256
		cfg.ChunkSize = 100
		cfg.MaxConcurrentChunks = 2
	})
	stub := &stubProcessor{}

	input := make([]byte, 350)
	for i := range input {
		input[i] = byte(i % 251)
	}

	res, err := eng.ctrl.Process(context.Background(), stub, "video", input, nil, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Equal(t, 4, stub.calls(), "350 bytes in 100-byte chunks is 4 chunks")
	totalBytes := 0
	for _, size := range stub.inputSizes {
		assert.LessOrEqual(t, size, 100, "processor must never see more than one chunk")
		totalBytes += size
	}
	assert.Equal(t, len(input), totalBytes)

	// Array fields concatenate across chunks, scalars sum.
	items, ok := res.Data["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 4)
	assert.Equal(t, 4.0, res.Data["count"])

	// Chunked results bypass the cache.
	assert.Equal(t, 0, eng.results.Len())

	jobs := eng.tracker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusCompleted, jobs[0].Status)
}

func TestChunkedPathFailsJobOnChunkError(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.StreamThreshold = 64
		cfg.ChunkSize = 64
		cfg.MaxConcurrentChunks = 2
	})
	stub := &stubProcessor{result: &processor.Result{
		Success: false,
		Errors:  []string{"corrupt segment"},
	}}

	res, err := eng.ctrl.Process(context.Background(), stub, "video", make([]byte, 200), nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)

	jobs := eng.tracker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)
}

func TestMergeResults(t *testing.T) {
	merged := mergeResults([]*processor.Result{
		{
			Success:        true,
			Data:           map[string]interface{}{"words": []interface{}{"a", "b"}, "duration": 1.5},
			Warnings:       []string{"w1"},
			ProcessingTime: 0.2,
		},
		{
			Success:        true,
			Data:           map[string]interface{}{"words": []interface{}{"c"}, "duration": 2.5, "codec": "h264"},
			ProcessingTime: 0.3,
		},
	})

	assert.True(t, merged.Success)
	assert.Equal(t, []interface{}{"a", "b", "c"}, merged.Data["words"])
	assert.Equal(t, 4.0, merged.Data["duration"])
	assert.Equal(t, "h264", merged.Data["codec"])
	assert.InDelta(t, 0.5, merged.ProcessingTime, 1e-9)
	assert.Equal(t, []string{"w1"}, merged.Warnings)
}

func TestMergeResultsFailsOnAnyChunkError(t *testing.T) {
	merged := mergeResults([]*processor.Result{
		{Success: true, Data: map[string]interface{}{"n": 1.0}},
		{Success: false, Errors: []string{"chunk 1: boom"}},
	})
	assert.False(t, merged.Success)
	assert.Equal(t, []string{"chunk 1: boom"}, merged.Errors)
}

func TestTimeoutScalesWithInputSize(t *testing.T) {
	eng := newTestEngine(t, func(cfg *config.Config) {
		cfg.BaseTimeout = 10 * time.Second
		cfg.TimeoutPerMB = 2 * time.Second
	})

	cases := []struct {
		size int64
		want time.Duration
	}{
		{0, 10 * time.Second},
		{1, 12 * time.Second},            // partial MB rounds up
		{1 << 20, 12 * time.Second},      // exactly 1 MB
		{5<<20 + 1, 22 * time.Second},    // 6 MB worth
		{100 << 20, 210 * time.Second},   // 100 MB
	}
	for _, tc := range cases {
		if got := eng.ctrl.timeoutFor(tc.size); got != tc.want {
			t.Errorf("timeoutFor(%d) = %s, want %s", tc.size, got, tc.want)
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	eng := newTestEngine(t, nil)
	stub := &stubProcessor{}

	for i := 0; i < 3; i++ {
		_, err := eng.ctrl.Process(context.Background(), stub, "image", []byte(fmt.Sprintf("in-%d", i)), nil, nil)
		require.NoError(t, err)
	}

	st := eng.ctrl.Stats()
	assert.Equal(t, 0, st.ActiveJobs)
	assert.Equal(t, 3, st.CacheEntries)
	assert.Equal(t, 3, st.Pool["stub"].TotalJobs)
}
