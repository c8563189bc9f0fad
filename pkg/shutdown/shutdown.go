package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mediaforge/mediaforge/pkg/logging"
)

// Manager coordinates graceful shutdown. Registered functions run in
// reverse order (LIFO) under a shared timeout.
type Manager struct {
	mu      sync.Mutex
	funcs   []func(context.Context) error
	timeout time.Duration
	log     *logging.Logger
}

// New creates a shutdown manager
func New(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		log:     log,
	}
}

// Register adds a shutdown function
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, fn)
}

// Wait blocks until SIGTERM or SIGINT, then runs the shutdown sequence
func (m *Manager) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	m.log.Info("shutdown signal received", map[string]interface{}{"signal": sig.String()})
	m.Shutdown()
}

// Shutdown executes all registered functions in LIFO order
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.funcs) - 1; i >= 0; i-- {
		if err := m.funcs[i](ctx); err != nil {
			m.log.Error("shutdown step failed", map[string]interface{}{
				"step":  i,
				"error": err.Error(),
			})
		}
	}
	m.log.Info("shutdown complete")
}
