package resources

import (
	"sync"
	"time"
)

// Entry tracks shared bookkeeping for all jobs of one processor type
type Entry struct {
	ProcessorType string    `json:"processor_type"`
	ActiveJobs    int       `json:"active_jobs"`
	TotalJobs     int       `json:"total_jobs"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsed      time.Time `json:"last_used"`
}

// Pool manages per-processor-type resource entries
type Pool struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewPool creates an empty resource pool
func NewPool() *Pool {
	return &Pool{
		entries: make(map[string]*Entry),
	}
}

// Acquire records a job starting on the given processor type, creating
// the entry on first use, and returns a copy of the updated entry
func (p *Pool) Acquire(processorType string) Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[processorType]
	if !ok {
		entry = &Entry{
			ProcessorType: processorType,
			CreatedAt:     time.Now(),
		}
		p.entries[processorType] = entry
	}

	entry.ActiveJobs++
	entry.TotalJobs++
	entry.LastUsed = time.Now()
	return *entry
}

// Release records a job finishing on the given processor type
func (p *Pool) Release(processorType string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[processorType]
	if !ok {
		return
	}
	if entry.ActiveJobs > 0 {
		entry.ActiveJobs--
	}
	entry.LastUsed = time.Now()
}

// Get returns a copy of the entry for a processor type
func (p *Pool) Get(processorType string) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.entries[processorType]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// ActiveTotal returns the number of active jobs across all processor types
func (p *Pool) ActiveTotal() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for _, entry := range p.entries {
		total += entry.ActiveJobs
	}
	return total
}

// Snapshot returns a copy of every entry keyed by processor type
func (p *Pool) Snapshot() map[string]Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Entry, len(p.entries))
	for key, entry := range p.entries {
		out[key] = *entry
	}
	return out
}
