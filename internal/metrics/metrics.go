// ============================================================================
// Ping Agent Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Collects and exposes scheduler and check execution metrics.
//
// Metric families:
//
//   1. Counters:
//      - agent_jobs_dispatched_total: jobs handed to a wheel's worker pool
//      - agent_check_results_total{outcome}: result events produced
//      - agent_sink_errors_total: result events the sink failed to accept
//      - agent_commands_total{kind,result}: inbound commands by outcome
//
//   2. Histogram:
//      - agent_check_latency_seconds: execution latency of HTTP checks
//
//   3. Gauges:
//      - agent_checks_scheduled: checks currently placed in a wheel
//      - agent_wheels_active: running interval wheels
//
// Example queries:
//
//   # failure ratio
//   rate(agent_check_results_total{outcome="failure"}[5m])
//     / rate(agent_check_results_total[5m])
//
//   # p95 probe latency
//   histogram_quantile(0.95, agent_check_latency_seconds_bucket)
//
// A nil *Collector is valid and records nothing.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus metrics collector
type Collector struct {
	jobsDispatched prometheus.Counter
	results        *prometheus.CounterVec
	sinkErrors     prometheus.Counter
	commands       *prometheus.CounterVec

	checkLatency prometheus.Histogram

	checksScheduled prometheus.Gauge
	wheelsActive    prometheus.Gauge
}

// NewCollector creates the collector and registers it with reg.
// A nil reg registers with the Prometheus default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_jobs_dispatched_total",
			Help: "Total number of jobs dispatched to wheel worker pools",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_check_results_total",
			Help: "Total number of check result events by outcome",
		}, []string{"outcome"}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_sink_errors_total",
			Help: "Total number of result events rejected by the result sink",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_commands_total",
			Help: "Total number of scheduling commands by kind and result",
		}, []string{"kind", "result"}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_check_latency_seconds",
			Help:    "Check execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		checksScheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_checks_scheduled",
			Help: "Current number of scheduled checks",
		}),
		wheelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_wheels_active",
			Help: "Current number of running interval wheels",
		}),
	}

	reg.MustRegister(
		c.jobsDispatched,
		c.results,
		c.sinkErrors,
		c.commands,
		c.checkLatency,
		c.checksScheduled,
		c.wheelsActive,
	)

	return c
}

// RecordDispatch counts one job handed to a worker pool
func (c *Collector) RecordDispatch() {
	if c == nil {
		return
	}
	c.jobsDispatched.Inc()
}

// RecordResult counts one result event and observes its latency
func (c *Collector) RecordResult(outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.results.WithLabelValues(outcome).Inc()
	c.checkLatency.Observe(latency.Seconds())
}

// RecordSinkError counts one event the sink did not accept
func (c *Collector) RecordSinkError() {
	if c == nil {
		return
	}
	c.sinkErrors.Inc()
}

// RecordCommand counts one handled command
func (c *Collector) RecordCommand(kind string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.commands.WithLabelValues(kind, result).Inc()
}

// SetSchedulerStats updates the scheduler gauges
func (c *Collector) SetSchedulerStats(checks, wheels int) {
	if c == nil {
		return
	}
	c.checksScheduled.Set(float64(checks))
	c.wheelsActive.Set(float64(wheels))
}

// Handler returns the /metrics handler for the given gatherer.
// A nil gatherer uses the Prometheus default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on port until ctx is cancelled.
func StartServer(ctx context.Context, port int, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
