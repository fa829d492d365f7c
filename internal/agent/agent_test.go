package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ChuLiYu/ping-agent/internal/metrics"
	"github.com/ChuLiYu/ping-agent/internal/scheduler"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// ============================================================================
// Test helpers
// ============================================================================

func newTestAgent(t *testing.T, tick time.Duration, s sink.Sink, m *metrics.Collector, log *zap.Logger) *Agent {
	t.Helper()
	a := New(Config{
		Scheduler: scheduler.Options{
			Tick:        tick,
			WorkerCount: 2,
			JobTimeout:  time.Second,
		},
		HTTPPoolSize: 2,
		SendTimeout:  time.Second,
	}, s, m, log)
	t.Cleanup(a.Stop)
	return a
}

func newHealthServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// End-to-end scenarios
// ============================================================================

// A single 5s http check is placed at bucket 0, slot 0 and fires on the
// first tick, producing exactly one success event before the next period.
func TestHTTPCheckProducesOneEventPerPeriod(t *testing.T) {
	var hits atomic.Int32
	srv := newHealthServer(t, &hits)
	mem := sink.NewMemory()
	a := newTestAgent(t, 200*time.Millisecond, mem, nil, nil)

	id := uuid.New()
	check := types.Check{
		ID:       id,
		Interval: 5 * time.Second,
		Kind:     types.KindHTTP,
		HTTP:     &types.HTTPCheck{URL: srv.URL},
	}
	require.NoError(t, a.Handle(context.Background(), types.AddCommand(check)))

	loc, ok := a.Registry().Location(id)
	require.True(t, ok)
	assert.Equal(t, scheduler.Location{Interval: 5 * time.Second, Bucket: 0, Slot: 0}, loc)

	require.NoError(t, mem.Wait(waitCtx(t, 2*time.Second), 1))

	// Next period is five ticks (one second) away
	time.Sleep(100 * time.Millisecond)
	events := mem.EventsFor(id)
	require.Len(t, events, 1)
	assert.Equal(t, types.OutcomeSuccess, events[0].Outcome)
	assert.Equal(t, http.StatusOK, events[0].StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPCheckRepeatsEveryPeriod(t *testing.T) {
	var hits atomic.Int32
	srv := newHealthServer(t, &hits)
	mem := sink.NewMemory()
	a := newTestAgent(t, 10*time.Millisecond, mem, nil, nil)

	check := types.Check{ID: uuid.New(), Interval: 2 * time.Second, Kind: types.KindHTTP, HTTP: &types.HTTPCheck{URL: srv.URL}}
	require.NoError(t, a.Handle(context.Background(), types.AddCommand(check)))

	require.NoError(t, mem.Wait(waitCtx(t, 2*time.Second), 3))
	assert.GreaterOrEqual(t, int(hits.Load()), 3)
}

func TestUnsupportedKindProducesNoEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mem := sink.NewMemory()
	a := newTestAgent(t, 10*time.Millisecond, mem, nil, zap.New(core))

	check := types.Check{ID: uuid.New(), Interval: time.Second, Kind: "icmp"}
	require.NoError(t, a.Handle(context.Background(), types.AddCommand(check)))

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("check fired").Len() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 1, logs.FilterMessage("unsupported check kind, scheduling no-op job").Len())
}

func TestFailingCheckReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	mem := sink.NewMemory()
	a := newTestAgent(t, 10*time.Millisecond, mem, nil, nil)

	check := types.Check{ID: uuid.New(), Interval: time.Second, Kind: types.KindHTTP, HTTP: &types.HTTPCheck{URL: url}}
	require.NoError(t, a.Handle(context.Background(), types.AddCommand(check)))

	require.NoError(t, mem.Wait(waitCtx(t, 2*time.Second), 1))
	ev := mem.Events()[0]
	assert.Equal(t, types.OutcomeFailure, ev.Outcome)
	assert.NotEmpty(t, ev.Error)
}

// ============================================================================
// Command handling
// ============================================================================

func TestRunAppliesCommandStream(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	a := newTestAgent(t, time.Hour, sink.NewMemory(), m, nil)

	a1 := types.Check{ID: uuid.New(), Interval: 3 * time.Second, Kind: "dns"}
	a2 := types.Check{ID: uuid.New(), Interval: 3 * time.Second, Kind: "dns"}

	cmds := make(chan types.Command, 5)
	cmds <- types.AddCommand(a1)
	cmds <- types.AddCommand(a2)
	cmds <- types.RemoveCommand(uuid.New()) // unknown, logged and skipped
	cmds <- types.RemoveCommand(a1.ID)
	close(cmds)

	done := make(chan struct{})
	go func() {
		a.Run(context.Background(), cmds)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the stream closed")
	}

	assert.Equal(t, 1, a.Registry().Len())
	_, ok := a.Registry().Location(a2.ID)
	assert.True(t, ok)

	assert.Equal(t, 2.0, commandCount(t, reg, "add", "ok"))
	assert.Equal(t, 1.0, commandCount(t, reg, "remove", "ok"))
	assert.Equal(t, 1.0, commandCount(t, reg, "remove", "error"))

	n, err := testutil.GatherAndCount(reg, "agent_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func commandCount(t *testing.T, g prometheus.Gatherer, kind, result string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "agent_commands_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] == kind && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRunStopsOnCancel(t *testing.T) {
	a := newTestAgent(t, time.Hour, sink.NewMemory(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, make(chan types.Command))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandleReturnsCommandErrors(t *testing.T) {
	a := newTestAgent(t, time.Hour, sink.NewMemory(), nil, nil)

	err := a.Handle(context.Background(), types.RemoveCommand(uuid.New()))
	assert.ErrorIs(t, err, scheduler.ErrUnknownCheck)

	err = a.Handle(context.Background(), types.Command{Kind: "pause"})
	assert.ErrorIs(t, err, scheduler.ErrUnknownCommand)
}

func TestStatsAndStop(t *testing.T) {
	a := New(Config{Scheduler: scheduler.Options{Tick: time.Hour}, HTTPPoolSize: 3}, sink.NewMemory(), nil, nil)

	require.NoError(t, a.Handle(context.Background(), types.AddCommand(types.Check{ID: uuid.New(), Interval: 2 * time.Second, Kind: "dns"})))
	require.NoError(t, a.Handle(context.Background(), types.AddCommand(types.Check{ID: uuid.New(), Interval: 9 * time.Second, Kind: "dns"})))

	st := a.Stats()
	assert.Equal(t, 2, st.Checks)
	assert.Equal(t, []time.Duration{2 * time.Second, 9 * time.Second}, st.Intervals)
	assert.Equal(t, 3, st.ResourcesAvailable)

	a.Stop()
	a.Stop()

	err := a.Handle(context.Background(), types.AddCommand(types.Check{ID: uuid.New(), Interval: time.Second, Kind: "dns"}))
	assert.ErrorIs(t, err, scheduler.ErrStopped)
}

// ============================================================================
// Load
// ============================================================================

// Every check registered on a one-second wheel must fire within one period,
// however many share the wheel.
func TestManyChecksAllFireEachPeriod(t *testing.T) {
	const checks = 500

	reg := prometheus.NewRegistry()
	a := newTestAgent(t, 10*time.Millisecond, sink.NewMemory(), metrics.NewCollector(reg), nil)

	for i := 0; i < checks; i++ {
		c := types.Check{ID: uuid.New(), Interval: 4 * time.Second, Kind: "dns"}
		require.NoError(t, a.Handle(context.Background(), types.AddCommand(c)))
	}
	assert.Equal(t, checks, a.Stats().Checks)

	start := time.Now()
	assert.Eventually(t, func() bool {
		return dispatched(reg) >= checks
	}, 5*time.Second, 10*time.Millisecond)
	t.Logf("%d checks dispatched in %s", checks, time.Since(start))
}

// dispatched is polled from assert.Eventually, so it must not fail the test itself
func dispatched(g prometheus.Gatherer) float64 {
	families, err := g.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() == "agent_jobs_dispatched_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
