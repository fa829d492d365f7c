// ============================================================================
// Ping Agent Result Sink
// ============================================================================
//
// Package: internal/sink
// File: sink.go
// Purpose: Destination for completed-check result events, abstracted over
// transport.
//
// Variants:
//   - Memory: ordered in-process log, for tests and local inspection
//   - GRPC:   unary SendEvent to a remote collector
//   - Redis:  XADD onto a Redis stream
//
// The scheduler only depends on the Sink interface; which variant is used
// is a configuration detail.
//
// ============================================================================

package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Sink accepts result events
type Sink interface {
	// Send delivers one event. It must be safe for concurrent use.
	Send(ctx context.Context, event types.Event) error
}

// Closer is implemented by sinks that hold connections
type Closer interface {
	Close() error
}

// ErrUnknownKind is returned by New for an unrecognized sink kind
var ErrUnknownKind = errors.New("unknown sink kind")

// Sink kinds
const (
	KindMemory = "memory"
	KindGRPC   = "grpc"
	KindRedis  = "redis"
)

// Config selects and configures a sink variant
type Config struct {
	Kind        string        `yaml:"kind"`
	SendTimeout time.Duration `yaml:"send_timeout"`

	GRPC struct {
		Address string `yaml:"address"`
	} `yaml:"grpc"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
		MaxLen   int64  `yaml:"max_len"`
	} `yaml:"redis"`
}

// SetDefaults fills in unset values
func (c *Config) SetDefaults() {
	if c.Kind == "" {
		c.Kind = KindMemory
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = DefaultStream
	}
}

// New builds the sink described by cfg
func New(cfg Config) (Sink, error) {
	cfg.SetDefaults()

	switch cfg.Kind {
	case KindMemory:
		return NewMemory(), nil
	case KindGRPC:
		if cfg.GRPC.Address == "" {
			return nil, fmt.Errorf("grpc sink: address is required")
		}
		return DialGRPC(cfg.GRPC.Address)
	case KindRedis:
		if cfg.Redis.Address == "" {
			return nil, fmt.Errorf("redis sink: address is required")
		}
		return NewRedisFromConfig(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Close releases s if it holds resources
func Close(s Sink) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
