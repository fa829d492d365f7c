// ============================================================================
// Ping Agent - top-level coordinator
// ============================================================================
//
// Package: internal/agent
// File: agent.go
// Function: Wires the shared resources, the executor and the scheduler
//           registry together and applies the upstream command stream.
//
// Components:
//   - resource.Pool:      bounded HTTP clients shared by every wheel
//   - job.Executor:       runs fired jobs, emits result events
//   - scheduler.Registry: interval wheels + check locations
//   - sink.Sink:          result event destination (owned by the caller)
//
// Command loop:
//   Run consumes commands until the context is cancelled or the stream
//   closes. A failing command is logged and counted; it never stops the
//   loop.
//
// Shutdown:
//   Stop halts every wheel (waiting for in-flight jobs), then closes the
//   resource pool.
//
// ============================================================================

package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ChuLiYu/ping-agent/internal/job"
	"github.com/ChuLiYu/ping-agent/internal/metrics"
	"github.com/ChuLiYu/ping-agent/internal/resource"
	"github.com/ChuLiYu/ping-agent/internal/scheduler"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Config configures an agent
type Config struct {
	Scheduler    scheduler.Options
	HTTPPoolSize int           // clients in the shared resource pool
	HTTPTimeout  time.Duration // per-client timeout, on top of the job deadline
	SendTimeout  time.Duration // bound on one sink delivery
}

// Stats is a point-in-time view of the agent
type Stats struct {
	Checks             int
	Intervals          []time.Duration
	ResourcesAvailable int
	Uptime             time.Duration
}

// Agent runs scheduled checks on behalf of an upstream command stream
type Agent struct {
	resources *resource.Pool
	executor  *job.Executor
	registry  *scheduler.Registry
	metrics   *metrics.Collector
	log       *zap.Logger

	startTime time.Time
	stopOnce  sync.Once
}

// New builds an agent around s. metrics and log may be nil.
func New(cfg Config, s sink.Sink, m *metrics.Collector, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}

	resources := resource.NewPool(cfg.HTTPPoolSize, cfg.HTTPTimeout)
	executor := job.NewExecutor(resources, s, m, log.Named("executor"), cfg.SendTimeout)
	registry := scheduler.NewRegistry(cfg.Scheduler, executor, m, log.Named("scheduler"))

	log.Info("agent created",
		zap.Int("http_pool_size", resources.Size()),
		zap.Duration("tick", schedulerTick(cfg.Scheduler)))

	return &Agent{
		resources: resources,
		executor:  executor,
		registry:  registry,
		metrics:   m,
		log:       log,
		startTime: time.Now(),
	}
}

func schedulerTick(o scheduler.Options) time.Duration {
	o.SetDefaults()
	return o.Tick
}

// Handle applies a single command and records its outcome
func (a *Agent) Handle(ctx context.Context, cmd types.Command) error {
	err := a.registry.HandleCommand(ctx, cmd)
	a.metrics.RecordCommand(string(cmd.Kind), err)
	if err != nil {
		a.log.Warn("command failed",
			zap.String("kind", string(cmd.Kind)),
			zap.Stringer("check_id", commandID(cmd)),
			zap.Error(err))
		return err
	}
	a.log.Debug("command applied",
		zap.String("kind", string(cmd.Kind)),
		zap.Stringer("check_id", commandID(cmd)))
	return nil
}

func commandID(cmd types.Command) types.CheckID {
	if cmd.Check != nil {
		return cmd.Check.ID
	}
	return cmd.CheckID
}

// Run applies commands from cmds until ctx is done or cmds is closed.
func (a *Agent) Run(ctx context.Context, cmds <-chan types.Command) {
	a.log.Info("command loop started")
	defer a.log.Info("command loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			_ = a.Handle(ctx, cmd)
		}
	}
}

// Registry exposes the scheduler registry
func (a *Agent) Registry() *scheduler.Registry {
	return a.registry
}

// Stats returns a snapshot of the agent state
func (a *Agent) Stats() Stats {
	return Stats{
		Checks:             a.registry.Len(),
		Intervals:          a.registry.Intervals(),
		ResourcesAvailable: a.resources.Available(),
		Uptime:             time.Since(a.startTime),
	}
}

// Stop halts scheduling and releases the resource pool
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		a.log.Info("stopping agent")
		a.registry.Stop()
		a.resources.Close()
		a.log.Info("agent stopped", zap.Duration("uptime", time.Since(a.startTime)))
	})
}
