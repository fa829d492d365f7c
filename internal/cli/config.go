package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/ping-agent/internal/agent"
	"github.com/ChuLiYu/ping-agent/internal/job"
	"github.com/ChuLiYu/ping-agent/internal/logging"
	"github.com/ChuLiYu/ping-agent/internal/resource"
	"github.com/ChuLiYu/ping-agent/internal/scheduler"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/internal/wheel"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Config represents the complete agent configuration
// Maps config file fields through YAML tags
type Config struct {
	Agent struct {
		Tick               time.Duration `yaml:"tick"`
		WorkerPoolSize     int           `yaml:"worker_pool_size"`  // per wheel
		WorkerQueueSize    int           `yaml:"worker_queue_size"` // per wheel
		JobTimeout         time.Duration `yaml:"job_timeout"`
		DuplicatePolicy    string        `yaml:"duplicate_policy"`   // replace, reject
		UnsupportedPolicy  string        `yaml:"unsupported_policy"` // reject, warn, ignore
		ReclaimEmptyWheels bool          `yaml:"reclaim_empty_wheels"`
		MaxInterval        time.Duration `yaml:"max_interval"`
	} `yaml:"agent"`

	Resources struct {
		HTTPPoolSize int           `yaml:"http_pool_size"`
		HTTPTimeout  time.Duration `yaml:"http_timeout"`
	} `yaml:"resources"`

	Sink sink.Config `yaml:"sink"`

	Checks struct {
		File     string        `yaml:"file"`
		Watch    bool          `yaml:"watch"`
		Debounce time.Duration `yaml:"debounce"`
	} `yaml:"checks"`

	Collector struct {
		Listen string `yaml:"listen"`
	} `yaml:"collector"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Log logging.Config `yaml:"log"`
}

// SetDefaults fills unset values
func (c *Config) SetDefaults() {
	if c.Agent.Tick <= 0 {
		c.Agent.Tick = wheel.DefaultTick
	}
	if c.Agent.WorkerPoolSize <= 0 {
		c.Agent.WorkerPoolSize = wheel.DefaultWorkerCount
	}
	if c.Agent.WorkerQueueSize <= 0 {
		c.Agent.WorkerQueueSize = wheel.DefaultQueueSize
	}
	if c.Agent.JobTimeout <= 0 {
		c.Agent.JobTimeout = wheel.DefaultJobTimeout
	}
	if c.Agent.DuplicatePolicy == "" {
		c.Agent.DuplicatePolicy = string(scheduler.DuplicateReplace)
	}
	if c.Agent.UnsupportedPolicy == "" {
		c.Agent.UnsupportedPolicy = string(job.UnsupportedWarn)
	}
	if c.Agent.MaxInterval <= 0 {
		c.Agent.MaxInterval = types.DefaultMaxInterval
	}
	if c.Resources.HTTPPoolSize <= 0 {
		c.Resources.HTTPPoolSize = resource.DefaultSize
	}
	if c.Collector.Listen == "" {
		c.Collector.Listen = ":50051"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	c.Sink.SetDefaults()
	c.Log.SetDefaults()
}

// Validate rejects configurations the agent cannot run with
func (c *Config) Validate() error {
	if !scheduler.DuplicatePolicy(c.Agent.DuplicatePolicy).Valid() {
		return fmt.Errorf("agent.duplicate_policy: unknown policy %q", c.Agent.DuplicatePolicy)
	}
	if !job.UnsupportedPolicy(c.Agent.UnsupportedPolicy).Valid() {
		return fmt.Errorf("agent.unsupported_policy: unknown policy %q", c.Agent.UnsupportedPolicy)
	}
	if c.Agent.Tick > time.Second {
		return fmt.Errorf("agent.tick: %s exceeds one second per bucket", c.Agent.Tick)
	}
	if c.Agent.MaxInterval < time.Second {
		return fmt.Errorf("agent.max_interval: %s is under one second", c.Agent.MaxInterval)
	}
	switch c.Sink.Kind {
	case sink.KindMemory:
	case sink.KindGRPC:
		if c.Sink.GRPC.Address == "" {
			return fmt.Errorf("sink.grpc.address is required")
		}
	case sink.KindRedis:
		if c.Sink.Redis.Address == "" {
			return fmt.Errorf("sink.redis.address is required")
		}
	default:
		return fmt.Errorf("sink.kind: %w: %q", sink.ErrUnknownKind, c.Sink.Kind)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port: %d out of range", c.Metrics.Port)
	}
	return nil
}

// AgentConfig maps the file configuration onto the agent's
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		Scheduler: scheduler.Options{
			Tick:               c.Agent.Tick,
			WorkerCount:        c.Agent.WorkerPoolSize,
			QueueSize:          c.Agent.WorkerQueueSize,
			JobTimeout:         c.Agent.JobTimeout,
			DuplicatePolicy:    scheduler.DuplicatePolicy(c.Agent.DuplicatePolicy),
			UnsupportedPolicy:  job.UnsupportedPolicy(c.Agent.UnsupportedPolicy),
			ReclaimEmptyWheels: c.Agent.ReclaimEmptyWheels,
			MaxInterval:        c.Agent.MaxInterval,
		},
		HTTPPoolSize: c.Resources.HTTPPoolSize,
		HTTPTimeout:  c.Resources.HTTPTimeout,
		SendTimeout:  c.Sink.SendTimeout,
	}
}

// loadConfig reads path, applies defaults and validates the result
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
