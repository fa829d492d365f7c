package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/ping-agent/internal/job"
	"github.com/ChuLiYu/ping-agent/internal/resource"
	"github.com/ChuLiYu/ping-agent/internal/scheduler"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/internal/wheel"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

const checksYAML = `
checks:
  - id: 5b7d0c2e-4a51-4f43-9d1e-0b5f4a3c9e11
    interval: 5s
    kind: dns
  - id: 0c4b3f6a-8d2e-4b1a-a6f0-7e9d2c5b8a33
    interval: 5s
    kind: dns
  - id: 9a1e7c55-3b2d-4f60-8e14-2d7c6b9f0a42
    interval: 1m
    kind: dns
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644), "Failed to write %s", name)
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "ping-agent", cmd.Use, "Root command should be 'ping-agent'")
	assert.Equal(t, Version, cmd.Version)

	commands := cmd.Commands()
	assert.Len(t, commands, 4, "Should have 4 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Name()] = true
	}

	assert.True(t, commandNames["run"], "Should have 'run' command")
	assert.True(t, commandNames["collector"], "Should have 'collector' command")
	assert.True(t, commandNames["validate"], "Should have 'validate' command")
	assert.True(t, commandNames["status"], "Should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/agent.yaml", configFlag.DefValue, "Default config path should be configs/agent.yaml")
}

func TestBuildCollectorCommand(t *testing.T) {
	cmd := buildCollectorCommand()

	assert.Equal(t, "collector", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("listen"), "Should have --listen flag")
	assert.NotNil(t, cmd.RunE, "RunE function should be set")
}

// ============================================================================
// Config
// ============================================================================

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeTemp(t, "agent.yaml", `
agent:
  tick: 500ms
  worker_pool_size: 4
  worker_queue_size: 32
  job_timeout: 3s
  duplicate_policy: reject
  unsupported_policy: ignore
  reclaim_empty_wheels: true
  max_interval: 1h

resources:
  http_pool_size: 6
  http_timeout: 2s

sink:
  kind: redis
  send_timeout: 1s
  redis:
    address: 127.0.0.1:6379
    stream: results
    max_len: 1000

checks:
  file: /etc/ping-agent/checks.yaml
  watch: true

metrics:
  enabled: true
  port: 8080

log:
  level: debug
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err, "loadConfig should not return an error")
	require.NotNil(t, cfg)

	assert.Equal(t, 500*time.Millisecond, cfg.Agent.Tick)
	assert.Equal(t, 4, cfg.Agent.WorkerPoolSize)
	assert.Equal(t, 32, cfg.Agent.WorkerQueueSize)
	assert.Equal(t, 3*time.Second, cfg.Agent.JobTimeout)
	assert.True(t, cfg.Agent.ReclaimEmptyWheels)
	assert.Equal(t, 6, cfg.Resources.HTTPPoolSize)
	assert.Equal(t, sink.KindRedis, cfg.Sink.Kind)
	assert.Equal(t, "results", cfg.Sink.Redis.Stream)
	assert.Equal(t, int64(1000), cfg.Sink.Redis.MaxLen)
	assert.True(t, cfg.Checks.Watch)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	ac := cfg.AgentConfig()
	assert.Equal(t, scheduler.DuplicateReject, ac.Scheduler.DuplicatePolicy)
	assert.Equal(t, job.UnsupportedIgnore, ac.Scheduler.UnsupportedPolicy)
	assert.Equal(t, 4, ac.Scheduler.WorkerCount)
	assert.Equal(t, time.Hour, ac.Scheduler.MaxInterval)
	assert.Equal(t, 2*time.Second, ac.HTTPTimeout)
	assert.Equal(t, time.Second, ac.SendTimeout)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err, "loadConfig should return an error for nonexistent file")
	assert.Nil(t, cfg, "Config should be nil on error")
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "invalid.yaml", `
agent:
  worker_pool_size: "not a number"
  invalid yaml structure
    broken indentation
`)

	cfg, err := loadConfig(path)

	assert.Error(t, err, "loadConfig should return an error for invalid YAML")
	assert.Nil(t, cfg, "Config should be nil on parse error")
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFileGetsDefaults(t *testing.T) {
	path := writeTemp(t, "empty.yaml", "")

	cfg, err := loadConfig(path)
	require.NoError(t, err, "Empty YAML file should parse without error")

	assert.Equal(t, wheel.DefaultTick, cfg.Agent.Tick)
	assert.Equal(t, wheel.DefaultWorkerCount, cfg.Agent.WorkerPoolSize)
	assert.Equal(t, wheel.DefaultJobTimeout, cfg.Agent.JobTimeout)
	assert.Equal(t, string(scheduler.DuplicateReplace), cfg.Agent.DuplicatePolicy)
	assert.Equal(t, string(job.UnsupportedWarn), cfg.Agent.UnsupportedPolicy)
	assert.False(t, cfg.Agent.ReclaimEmptyWheels)
	assert.Equal(t, types.DefaultMaxInterval, cfg.Agent.MaxInterval)
	assert.Equal(t, resource.DefaultSize, cfg.Resources.HTTPPoolSize)
	assert.Equal(t, sink.KindMemory, cfg.Sink.Kind)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":50051", cfg.Collector.Listen)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"duplicate policy", "agent:\n  duplicate_policy: merge\n", "agent.duplicate_policy"},
		{"unsupported policy", "agent:\n  unsupported_policy: queue\n", "agent.unsupported_policy"},
		{"tick above a second", "agent:\n  tick: 2s\n", "agent.tick"},
		{"max interval under a second", "agent:\n  max_interval: 500ms\n", "agent.max_interval"},
		{"unknown sink", "sink:\n  kind: kafka\n", "unknown sink kind"},
		{"grpc sink without address", "sink:\n  kind: grpc\n", "sink.grpc.address"},
		{"redis sink without address", "sink:\n  kind: redis\n", "sink.redis.address"},
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"metrics port", "metrics:\n  enabled: true\n  port: 70000\n", "metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeTemp(t, "agent.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ============================================================================
// validate / status
// ============================================================================

func TestValidate(t *testing.T) {
	checks := writeTemp(t, "checks.yaml", checksYAML)
	cfgPath := writeTemp(t, "agent.yaml", "checks:\n  file: "+checks+"\n")

	var out bytes.Buffer
	require.NoError(t, validate(&out, cfgPath, ""))
	assert.Contains(t, out.String(), "3 checks ok")

	bad := writeTemp(t, "bad.yaml", "checks:\n  - id: nope\n")
	out.Reset()
	assert.Error(t, validate(&out, cfgPath, bad), "explicit checks file overrides config")

	// 1m check against a 30s cap
	capped := writeTemp(t, "capped.yaml", "checks:\n  file: "+checks+"\nagent:\n  max_interval: 30s\n")
	out.Reset()
	err := validate(&out, capped, "")
	assert.ErrorIs(t, err, types.ErrIntervalTooLong)
}

func TestShowStatus(t *testing.T) {
	checks := writeTemp(t, "checks.yaml", checksYAML)
	cfgPath := writeTemp(t, "agent.yaml", "checks:\n  file: "+checks+"\nmetrics:\n  enabled: true\n")

	var out bytes.Buffer
	require.NoError(t, showStatus(&out, cfgPath), "showStatus should not return an error")

	s := out.String()
	assert.Contains(t, s, "Sink:               memory")
	assert.Contains(t, s, "http://localhost:9090/metrics")
	assert.Contains(t, s, "Checks:  3")
	assert.Contains(t, s, "2 checks over 5 buckets")
	assert.Contains(t, s, "1 checks over 60 buckets")
}

// ============================================================================
// run / collector
// ============================================================================

func TestRunAgent(t *testing.T) {
	checks := writeTemp(t, "checks.yaml", checksYAML)
	cfgPath := writeTemp(t, "agent.yaml", `
agent:
  tick: 10ms
  worker_pool_size: 2
log:
  level: error
checks:
  file: `+checks+`
  watch: true
`)
	cfg, err := loadConfig(cfgPath)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.NoError(t, runAgent(ctx, cfg), "runAgent should stop cleanly when its context ends")
}

func TestRunAgent_BadChecksFile(t *testing.T) {
	checks := writeTemp(t, "checks.yaml", "checks:\n  - id: nope\n")
	cfg, err := loadConfig(writeTemp(t, "agent.yaml", "log:\n  level: error\nchecks:\n  file: "+checks+"\n"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- runAgent(context.Background(), cfg) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runAgent should fail fast on an invalid checks file")
	}
}

func TestRunCollector(t *testing.T) {
	cfg, err := loadConfig(writeTemp(t, "agent.yaml", "log:\n  level: error\ncollector:\n  listen: 127.0.0.1:0\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, runCollector(ctx, cfg))
}
