// ============================================================================
// Ping Agent Interval Wheel
// ============================================================================
//
// Package: internal/wheel
// File: wheel.go
// Function: Time wheel dedicated to one check interval.
//
// Layout:
//   A wheel for an interval of N seconds owns N buckets, one per second of
//   the period. Each bucket is a slot map of jobs, allocated on first use.
//
//   buckets:  [0] [1] [2] ... [N-1]
//              ↑ timeCursor (driver loop, fires)
//                      ↑ fillCursor (AddJob, places)
//
// Placement (AddJob):
//   1. A bucket with a reclaimed slot is reused first (LIFO stack)
//   2. Otherwise the job goes into bucket fillCursor, which then advances
//      circularly. Same-interval checks are spread across the whole period
//      instead of all firing in the same second.
//
// Driver loop (one goroutine per wheel):
//   fire bucket timeCursor -> wait one tick -> advance -> repeat
//   Firing snapshots the bucket under the lock, releases it, and submits
//   every job to the wheel's worker pool. Submit only appends to the pool's
//   backlog, so a saturated pool delays execution but never the cursor.
//   Completions are unordered and the loop never waits for them.
//
// ============================================================================

package wheel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChuLiYu/ping-agent/internal/job"
	"github.com/ChuLiYu/ping-agent/internal/slotmap"
	"github.com/ChuLiYu/ping-agent/internal/worker"
)

// Defaults
const (
	DefaultTick        = time.Second
	DefaultWorkerCount = 8
	DefaultQueueSize   = 256
	DefaultJobTimeout  = 10 * time.Second
)

var (
	// ErrInvalidPlacement is returned when removing from an empty or out-of-range slot
	ErrInvalidPlacement = errors.New("invalid job placement")
	// ErrInvalidInterval is returned by New for an interval under one second
	ErrInvalidInterval = errors.New("wheel interval must be at least one second")
)

// Executor runs a fired job. It is called on a worker goroutine with a
// context carrying the job deadline.
type Executor interface {
	Execute(ctx context.Context, j job.Job)
}

// Dispatcher observes each job handed to the worker pool
type Dispatcher interface {
	RecordDispatch()
}

// Config configures a wheel
type Config struct {
	Interval    time.Duration // period; one bucket per whole second
	Tick        time.Duration // real time per cursor step
	WorkerCount int
	QueueSize   int
	JobTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
}

// Wheel is an interval time wheel
type Wheel struct {
	cfg  Config
	exec Executor
	obs  Dispatcher
	pool *worker.Pool
	log  *zap.Logger

	mu          sync.Mutex
	buckets     []*slotmap.Map[job.Job]
	fillCursor  int
	freeBuckets []int // buckets holding a reclaimed slot, LIFO
	timeCursor  int
	jobs        int

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// New allocates the buckets of a wheel. Start launches the driver loop.
func New(cfg Config, exec Executor, obs Dispatcher, log *zap.Logger) (*Wheel, error) {
	if cfg.Interval < time.Second {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, cfg.Interval)
	}
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	n := int(cfg.Interval / time.Second)
	buckets := make([]*slotmap.Map[job.Job], n)

	log = log.With(zap.Duration("interval", cfg.Interval))
	return &Wheel{
		cfg:     cfg,
		exec:    exec,
		obs:     obs,
		pool:    worker.NewPool(cfg.QueueSize, log),
		log:     log,
		buckets: buckets,
		done:    make(chan struct{}),
	}, nil
}

// Interval returns the wheel's period
func (w *Wheel) Interval() time.Duration {
	return w.cfg.Interval
}

// Buckets returns the bucket count
func (w *Wheel) Buckets() int {
	return len(w.buckets)
}

// Start launches the worker pool and the driver loop. Calling it again is a no-op.
func (w *Wheel) Start(ctx context.Context) error {
	var err error
	w.startOnce.Do(func() {
		if err = w.pool.Start(w.cfg.WorkerCount); err != nil {
			return
		}
		ctx, w.cancel = context.WithCancel(ctx)
		go w.run(ctx)
		w.log.Debug("wheel started",
			zap.Int("buckets", len(w.buckets)),
			zap.Int("workers", w.cfg.WorkerCount))
	})
	return err
}

// Stop ends the driver loop and waits for in-flight jobs to finish.
func (w *Wheel) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		}
		w.pool.Stop()
		w.log.Debug("wheel stopped")
	})
}

// AddJob places j and returns its bucket and slot.
func (w *Wheel) AddJob(j job.Job) (bucket, slot int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last := len(w.freeBuckets) - 1; last >= 0 {
		bucket = w.freeBuckets[last]
		w.freeBuckets = w.freeBuckets[:last]
	} else {
		bucket = w.fillCursor
		w.fillCursor = (w.fillCursor + 1) % len(w.buckets)
	}

	if w.buckets[bucket] == nil {
		w.buckets[bucket] = slotmap.New[job.Job]()
	}
	slot = w.buckets[bucket].Insert(j)
	w.jobs++
	return bucket, slot
}

// RemoveJob evicts the job at (bucket, slot) and marks the slot reusable.
func (w *Wheel) RemoveJob(bucket, slot int) (job.Job, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if bucket < 0 || bucket >= len(w.buckets) {
		return job.Job{}, fmt.Errorf("%w: bucket %d of %d", ErrInvalidPlacement, bucket, len(w.buckets))
	}
	var j job.Job
	ok := false
	if b := w.buckets[bucket]; b != nil {
		j, ok = b.Remove(slot)
	}
	if !ok {
		return job.Job{}, fmt.Errorf("%w: bucket %d slot %d is empty", ErrInvalidPlacement, bucket, slot)
	}

	w.freeBuckets = append(w.freeBuckets, bucket)
	w.jobs--
	return j, nil
}

// Len returns the number of placed jobs
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobs
}

// BucketLen returns the number of jobs in bucket i
func (w *Wheel) BucketLen(i int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.buckets) || w.buckets[i] == nil {
		return 0
	}
	return w.buckets[i].Len()
}

// run is the driver loop
func (w *Wheel) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	for {
		_, due := w.advance()
		w.dispatch(due)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// advance snapshots the bucket under the time cursor and moves the cursor on.
func (w *Wheel) advance() (bucket int, due []job.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()

	bucket = w.timeCursor
	if b := w.buckets[bucket]; b != nil {
		due = b.Values()
	}
	w.timeCursor = (w.timeCursor + 1) % len(w.buckets)
	return bucket, due
}

// dispatch hands every due job to the worker pool
func (w *Wheel) dispatch(due []job.Job) {
	for _, j := range due {
		j := j
		err := w.pool.Submit(worker.Task{
			ID:      j.ID.String(),
			Timeout: w.cfg.JobTimeout,
			Run: func(ctx context.Context) {
				w.exec.Execute(ctx, j)
			},
		})
		if err != nil {
			w.log.Warn("dropping job dispatch", zap.Stringer("check_id", j.ID), zap.Error(err))
			continue
		}
		if w.obs != nil {
			w.obs.RecordDispatch()
		}
	}
}
