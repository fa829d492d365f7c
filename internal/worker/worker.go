// ============================================================================
// Ping Agent Worker - Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that actually executes tasks, each Worker runs in an independent goroutine
//
// How it works:
//   1. Receive task from taskCh (blocking wait)
//   2. Run it under a Context carrying the task timeout
//   3. Recover from panics so one broken task cannot kill the worker
//   4. Repeat until the feeder closes taskCh after Stop
//
// Timeout Control:
//   Each task gets its own context.WithTimeout. A stuck job is cut off at
//   its deadline, which keeps the pool from being starved indefinitely.
//   The task itself reports its outcome, the worker only logs.
//
// ============================================================================

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker represents a work execution unit
type Worker struct {
	id     int         // used for logging and debugging
	taskCh <-chan Task // shared task queue (read-only)
	pool   *Pool
	log    *zap.Logger
}

func newWorker(id int, p *Pool) *Worker {
	return &Worker{
		id:     id,
		taskCh: p.taskCh,
		pool:   p,
		log:    p.log.With(zap.Int("worker_id", id)),
	}
}

// Run is the main loop of Worker. It returns once taskCh is closed and empty.
func (w *Worker) Run() {
	for task := range w.taskCh {
		w.pool.queued.Add(-1)
		w.execute(task)
	}
}

func (w *Worker) execute(task Task) {
	if task.Run == nil {
		return
	}

	w.pool.inFlight.Add(1)
	defer w.pool.inFlight.Add(-1)

	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("task panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r),
				zap.Duration("elapsed", time.Since(start)))
		}
	}()

	task.Run(ctx)
}
