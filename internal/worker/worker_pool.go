// ============================================================================
// Ping Agent Worker Pool - bounded concurrent executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Manages the lifecycle of a fixed set of Worker goroutines and
// distributes tasks to them.
//
// Design:
//   Worker Pool pattern:
//   1. A fixed number of Worker goroutines keeps running
//   2. Submit appends to an unbounded FIFO backlog and never blocks
//   3. One feeder goroutine moves backlog tasks into the buffered taskCh
//   4. The worker count caps in-flight executions; when every worker is
//      busy, tasks wait in the backlog until one frees up
//
//   ┌─────────────┐
//   │   Wheel     │ --Submit()--> backlog --feeder--> taskCh
//   └─────────────┘
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool() - create Pool, initialize channels
//   2. Start(n) - start the feeder and n Worker goroutines
//   3. Submit(task) - append to the backlog
//   4. Stop() - refuse new tasks, flush the backlog, wait for workers to exit
//
// The feeder is the only sender on taskCh and closes it once the backlog
// is flushed after Stop. A task accepted by Submit always runs.
//
// ============================================================================

package worker

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrPoolClosed indicates the pool has been stopped
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted indicates Start has not been called yet
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool manages a set of concurrent Workers
type Pool struct {
	workers  []*Worker
	taskCh   chan Task
	stopCh   chan struct{}
	notify   chan struct{} // wakes the feeder, capacity 1
	backlog  []Task
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex
	inFlight atomic.Int64
	queued   atomic.Int64
	log      *zap.Logger
}

// NewPool creates a new Worker Pool whose hand-off channel holds bufferSize tasks
func NewPool(bufferSize int, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Pool{
		workers: make([]*Worker, 0),
		taskCh:  make(chan Task, bufferSize),
		stopCh:  make(chan struct{}),
		notify:  make(chan struct{}, 1),
		log:     log,
	}
}

// Start launches workerCount Workers
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	if workerCount <= 0 {
		return errors.New("worker count must be positive")
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}
	go p.feed()

	p.started = true
	return nil
}

// Submit queues a task for execution. It never blocks; the backlog is unbounded.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.backlog = append(p.backlog, task)
	p.queued.Add(1)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Stop shuts the pool down gracefully. Every accepted task still runs.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// feed moves backlog tasks into taskCh in submission order
func (p *Pool) feed() {
	defer close(p.taskCh)
	for {
		if task, ok := p.pop(); ok {
			p.taskCh <- task
			continue
		}
		select {
		case <-p.notify:
		case <-p.stopCh:
			// stopped is set, so the backlog can only shrink from here
			for {
				task, ok := p.pop()
				if !ok {
					return
				}
				p.taskCh <- task
			}
		}
	}
}

func (p *Pool) pop() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.backlog) == 0 {
		return Task{}, false
	}
	task := p.backlog[0]
	p.backlog[0] = Task{}
	p.backlog = p.backlog[1:]
	return task, true
}

// GetWorkerCount returns the number of Workers
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start has been called
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// InFlight returns the number of tasks currently executing
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Queued returns the number of accepted tasks no worker has picked up yet
func (p *Pool) Queued() int {
	return int(p.queued.Load())
}
