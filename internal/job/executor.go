// ============================================================================
// Ping Agent Job Executor
// ============================================================================
//
// Package: internal/job
// File: executor.go
// Function: Runs one fired job on a worker and reports its result.
//
// Execution:
//   Dummy: debug log only, no result event
//   HTTP:  acquire pooled client -> issue request -> build event -> sink
//
// Failure mapping (every HTTP execution yields exactly one event):
//   - acquisition failure  -> failure "resource acquisition: ..."
//   - deadline exceeded    -> failure "timeout: ..."
//   - transport error      -> failure "request failed: ..."
//   - unexpected status    -> failure "unexpected status N"
//
// Delivery is fire-and-forget for the wheel. The sink gets its own send
// timeout detached from the job deadline, so an event for a job that
// timed out is still delivered. Sink errors are logged and counted but
// never propagated.
//
// ============================================================================

package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChuLiYu/ping-agent/internal/metrics"
	"github.com/ChuLiYu/ping-agent/internal/resource"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// DefaultSendTimeout bounds one sink delivery
const DefaultSendTimeout = 5 * time.Second

// Executor runs jobs against the shared resource pool
type Executor struct {
	resources   *resource.Pool
	sink        sink.Sink
	metrics     *metrics.Collector
	log         *zap.Logger
	sendTimeout time.Duration
}

// NewExecutor creates an executor. metrics and log may be nil.
func NewExecutor(resources *resource.Pool, s sink.Sink, m *metrics.Collector, log *zap.Logger, sendTimeout time.Duration) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Executor{
		resources:   resources,
		sink:        s,
		metrics:     m,
		log:         log,
		sendTimeout: sendTimeout,
	}
}

// Execute runs j. ctx carries the execution deadline.
func (e *Executor) Execute(ctx context.Context, j Job) {
	switch j.Kind {
	case KindDummy:
		e.log.Debug("check fired",
			zap.Stringer("check_id", j.ID),
			zap.String("kind", string(j.CheckKind)))
	case KindHTTP:
		e.log.Debug("triggering http check",
			zap.Stringer("check_id", j.ID),
			zap.String("url", j.HTTP.URL))
		e.deliver(ctx, e.executeHTTP(ctx, j))
	default:
		e.log.Error("unknown job kind", zap.Stringer("check_id", j.ID), zap.Stringer("kind", j.Kind))
	}
}

func (e *Executor) executeHTTP(ctx context.Context, j Job) types.Event {
	start := time.Now()
	ev := types.Event{
		CheckID:   j.ID,
		Kind:      types.KindHTTP,
		Timestamp: start.UTC(),
	}

	h, err := e.resources.Acquire(ctx)
	if err != nil {
		return failed(ev, time.Since(start), fmt.Errorf("resource acquisition: %w", err))
	}
	defer h.Release()

	resp, err := h.Execute(ctx, j.HTTP)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(ev, time.Since(start), fmt.Errorf("timeout: %w", err))
		}
		return failed(ev, time.Since(start), fmt.Errorf("request failed: %w", err))
	}

	ev.StatusCode = resp.Status
	ev.Latency = resp.Elapsed
	if j.ExpectedStatus != 0 && resp.Status != j.ExpectedStatus {
		return failed(ev, resp.Elapsed, fmt.Errorf("unexpected status %d, want %d", resp.Status, j.ExpectedStatus))
	}

	ev.Outcome = types.OutcomeSuccess
	e.log.Info("http check completed",
		zap.Stringer("check_id", j.ID),
		zap.Int("status", resp.Status),
		zap.Int64("response_time_ms", resp.Elapsed.Milliseconds()))
	return ev
}

func failed(ev types.Event, latency time.Duration, err error) types.Event {
	ev.Outcome = types.OutcomeFailure
	ev.Latency = latency
	ev.Error = err.Error()
	return ev
}

// deliver hands ev to the sink with a send timeout detached from the job deadline
func (e *Executor) deliver(ctx context.Context, ev types.Event) {
	e.metrics.RecordResult(string(ev.Outcome), ev.Latency)
	if !ev.Succeeded() {
		e.log.Warn("check failed",
			zap.Stringer("check_id", ev.CheckID),
			zap.Int("status", ev.StatusCode),
			zap.String("error", ev.Error))
	}

	if e.sink == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sendTimeout)
	defer cancel()

	if err := e.sink.Send(sendCtx, ev); err != nil {
		e.metrics.RecordSinkError()
		e.log.Error("failed to deliver result event",
			zap.Stringer("check_id", ev.CheckID),
			zap.Error(err))
	}
}
