// ============================================================================
// Ping Agent Scheduler Registry
// ============================================================================
//
// Package: internal/scheduler
// File: registry.go
// Function: Owns one interval wheel per distinct interval and the location
//           of every registered check.
//
// State:
//   wheels:    interval -> *wheel.Wheel   (created lazily, started after the first placement)
//   locations: CheckID  -> Location{Interval, Bucket, Slot}
//
//   A check id is present in locations iff its job occupies exactly that
//   slot of that wheel. Both maps are guarded by one mutex; wheels carry
//   their own lock for bucket state, and the driver loops never take the
//   registry lock.
//
// Commands:
//   add    -> AddCheck     (validate, convert, place)
//   remove -> RemoveCheck  (evict, forget)
//
// ============================================================================

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChuLiYu/ping-agent/internal/job"
	"github.com/ChuLiYu/ping-agent/internal/metrics"
	"github.com/ChuLiYu/ping-agent/internal/wheel"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

var (
	// ErrUnknownCheck is returned when removing an id that is not registered
	ErrUnknownCheck = errors.New("unknown check")
	// ErrDuplicateCheck is returned for a re-registration under DuplicateReject
	ErrDuplicateCheck = errors.New("check already registered")
	// ErrUnknownCommand is returned for a command kind other than add or remove
	ErrUnknownCommand = errors.New("unknown command")
	// ErrStopped is returned once the registry has been stopped
	ErrStopped = errors.New("registry stopped")
)

// DuplicatePolicy decides what AddCheck does with an id that is already registered
type DuplicatePolicy string

const (
	// DuplicateReplace evicts the old placement and places the new check
	DuplicateReplace DuplicatePolicy = "replace"
	// DuplicateReject refuses the new registration
	DuplicateReject DuplicatePolicy = "reject"
)

// Valid reports whether p is a known policy
func (p DuplicatePolicy) Valid() bool {
	return p == DuplicateReplace || p == DuplicateReject
}

// Options configures the registry and every wheel it creates
type Options struct {
	Tick              time.Duration
	WorkerCount       int // per wheel
	QueueSize         int // per wheel
	JobTimeout        time.Duration
	DuplicatePolicy   DuplicatePolicy
	UnsupportedPolicy job.UnsupportedPolicy
	// ReclaimEmptyWheels stops and drops a wheel once its last check is removed
	ReclaimEmptyWheels bool
	// MaxInterval is the longest period a check may register with
	MaxInterval time.Duration
}

// SetDefaults fills zero values
func (o *Options) SetDefaults() {
	if o.Tick <= 0 {
		o.Tick = wheel.DefaultTick
	}
	if o.WorkerCount <= 0 {
		o.WorkerCount = wheel.DefaultWorkerCount
	}
	if o.QueueSize <= 0 {
		o.QueueSize = wheel.DefaultQueueSize
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = wheel.DefaultJobTimeout
	}
	if o.DuplicatePolicy == "" {
		o.DuplicatePolicy = DuplicateReplace
	}
	if o.UnsupportedPolicy == "" {
		o.UnsupportedPolicy = job.UnsupportedWarn
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = types.DefaultMaxInterval
	}
}

// Location is where a check's job currently sits
type Location struct {
	Interval time.Duration
	Bucket   int
	Slot     int
}

// Registry maps intervals to wheels and check ids to locations
type Registry struct {
	opts    Options
	exec    wheel.Executor
	metrics *metrics.Collector
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	wheels    map[time.Duration]*wheel.Wheel
	locations map[types.CheckID]Location
	stopped   bool
}

// NewRegistry creates an empty registry. metrics and log may be nil.
func NewRegistry(opts Options, exec wheel.Executor, m *metrics.Collector, log *zap.Logger) *Registry {
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:      opts,
		exec:      exec,
		metrics:   m,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		wheels:    make(map[time.Duration]*wheel.Wheel),
		locations: make(map[types.CheckID]Location),
	}
}

// AddCheck registers c and schedules it on the wheel for its interval.
func (r *Registry) AddCheck(ctx context.Context, c *types.Check) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if c == nil {
		return Location{}, fmt.Errorf("add check: %w", types.ErrMissingID)
	}
	if err := c.ValidateMax(r.opts.MaxInterval); err != nil {
		return Location{}, fmt.Errorf("add check %s: %w", c.ID, err)
	}

	j, err := job.FromCheck(c, r.opts.UnsupportedPolicy)
	if err != nil {
		return Location{}, fmt.Errorf("add check %s: %w", c.ID, err)
	}
	if j.Kind == job.KindDummy && r.opts.UnsupportedPolicy == job.UnsupportedWarn {
		r.log.Warn("unsupported check kind, scheduling no-op job",
			zap.Stringer("check_id", c.ID),
			zap.String("kind", string(c.Kind)))
	}

	var retired *wheel.Wheel

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return Location{}, ErrStopped
	}

	if old, ok := r.locations[c.ID]; ok {
		if r.opts.DuplicatePolicy == DuplicateReject {
			r.mu.Unlock()
			return Location{}, fmt.Errorf("%w: %s", ErrDuplicateCheck, c.ID)
		}
		if retired, err = r.evictLocked(c.ID, old); err != nil {
			r.mu.Unlock()
			return Location{}, err
		}
		r.log.Debug("replacing check", zap.Stringer("check_id", c.ID))
	}

	w, created, err := r.wheelLocked(c.Interval)
	if err != nil {
		r.mu.Unlock()
		r.stopRetired(retired)
		return Location{}, err
	}
	bucket, slot := w.AddJob(j)
	// A new wheel starts after its first placement so bucket 0 fires on the first tick
	if created {
		if err := w.Start(r.ctx); err != nil {
			delete(r.wheels, c.Interval)
			r.mu.Unlock()
			r.stopRetired(retired)
			return Location{}, fmt.Errorf("start wheel %s: %w", c.Interval, err)
		}
	}
	loc := Location{Interval: c.Interval, Bucket: bucket, Slot: slot}
	r.locations[c.ID] = loc
	r.updateStatsLocked()
	r.mu.Unlock()

	r.stopRetired(retired)

	r.log.Debug("check scheduled",
		zap.Stringer("check_id", c.ID),
		zap.Duration("interval", loc.Interval),
		zap.Int("bucket", loc.Bucket),
		zap.Int("slot", loc.Slot))
	return loc, nil
}

// RemoveCheck unschedules id. An unknown id yields ErrUnknownCheck.
func (r *Registry) RemoveCheck(id types.CheckID) error {
	r.mu.Lock()
	loc, ok := r.locations[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCheck, id)
	}
	retired, err := r.evictLocked(id, loc)
	r.updateStatsLocked()
	r.mu.Unlock()

	r.stopRetired(retired)
	if err != nil {
		return err
	}

	r.log.Debug("check removed", zap.Stringer("check_id", id), zap.Duration("interval", loc.Interval))
	return nil
}

// HandleCommand applies one upstream command
func (r *Registry) HandleCommand(ctx context.Context, cmd types.Command) error {
	switch cmd.Kind {
	case types.CommandAdd:
		if cmd.Check == nil {
			return fmt.Errorf("add command without check: %w", types.ErrMissingID)
		}
		_, err := r.AddCheck(ctx, cmd.Check)
		return err
	case types.CommandRemove:
		return r.RemoveCheck(cmd.CheckID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
}

// Location returns where id is scheduled
func (r *Registry) Location(id types.CheckID) (Location, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	return loc, ok
}

// Wheel returns the wheel for interval, if one exists
func (r *Registry) Wheel(interval time.Duration) (*wheel.Wheel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wheels[interval]
	return w, ok
}

// Intervals returns the intervals that currently own a wheel, ascending
func (r *Registry) Intervals() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, 0, len(r.wheels))
	for iv := range r.wheels {
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered checks
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locations)
}

// Stop halts every wheel and waits for in-flight jobs. Later adds fail with ErrStopped.
func (r *Registry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	wheels := make([]*wheel.Wheel, 0, len(r.wheels))
	for _, w := range r.wheels {
		wheels = append(wheels, w)
	}
	r.mu.Unlock()

	r.cancel()
	var wg sync.WaitGroup
	for _, w := range wheels {
		wg.Add(1)
		go func(w *wheel.Wheel) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
	r.log.Info("scheduler stopped", zap.Int("wheels", len(wheels)))
}

// wheelLocked returns the wheel for interval, creating it on first use.
// A created wheel is not started yet.
func (r *Registry) wheelLocked(interval time.Duration) (*wheel.Wheel, bool, error) {
	if w, ok := r.wheels[interval]; ok {
		return w, false, nil
	}

	w, err := wheel.New(wheel.Config{
		Interval:    interval,
		Tick:        r.opts.Tick,
		WorkerCount: r.opts.WorkerCount,
		QueueSize:   r.opts.QueueSize,
		JobTimeout:  r.opts.JobTimeout,
	}, r.exec, r.metrics, r.log)
	if err != nil {
		return nil, false, err
	}

	r.wheels[interval] = w
	r.log.Info("wheel created", zap.Duration("interval", interval), zap.Int("buckets", w.Buckets()))
	return w, true, nil
}

// evictLocked removes id from its wheel and then from the location map. On
// error both are left as they were. It returns the wheel to stop when
// reclaiming emptied it; the caller stops it unlocked.
func (r *Registry) evictLocked(id types.CheckID, loc Location) (*wheel.Wheel, error) {
	w, ok := r.wheels[loc.Interval]
	if !ok {
		return nil, fmt.Errorf("evict %s: no wheel for interval %s", id, loc.Interval)
	}
	if _, err := w.RemoveJob(loc.Bucket, loc.Slot); err != nil {
		return nil, fmt.Errorf("evict %s: %w", id, err)
	}
	delete(r.locations, id)

	if r.opts.ReclaimEmptyWheels && w.Len() == 0 {
		delete(r.wheels, loc.Interval)
		return w, nil
	}
	return nil, nil
}

func (r *Registry) stopRetired(w *wheel.Wheel) {
	if w == nil {
		return
	}
	w.Stop()
	r.log.Info("wheel reclaimed", zap.Duration("interval", w.Interval()))
}

func (r *Registry) updateStatsLocked() {
	r.metrics.SetSchedulerStats(len(r.locations), len(r.wheels))
}
