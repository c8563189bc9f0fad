package workerpool

import (
	"sync"
)

// Pool is a fixed-size worker pool for CPU-bound sub-tasks. Tasks are
// plain closures; all data crosses the boundary inside the closure, so
// no shared mutable state leaks between workers.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// New starts size workers. A size below 1 is raised to 1.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func(), size*2),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues a task, blocking when the queue is full. Submitting
// after Close panics, same as sending on a closed channel.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Close stops accepting tasks and waits for in-flight ones to finish
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}
