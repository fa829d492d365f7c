package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// DefaultStream is the Redis stream events are appended to
const DefaultStream = "ping-agent:results"

// Redis publishes events to a Redis stream, one entry per event with the
// JSON-encoded event under the "event" field.
type Redis struct {
	client *redis.Client
	stream string
	maxLen int64
	owned  bool
}

// NewRedis creates a sink on an existing client. The caller keeps ownership of client.
func NewRedis(client *redis.Client, stream string, maxLen int64) *Redis {
	if stream == "" {
		stream = DefaultStream
	}
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisFromConfig creates a client from cfg and a sink that owns it
func NewRedisFromConfig(cfg Config) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s := NewRedis(client, cfg.Redis.Stream, cfg.Redis.MaxLen)
	s.owned = true
	return s
}

// Send implements Sink
func (s *Redis) Send(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"check_id": event.CheckID.String(),
			"outcome":  string(event.Outcome),
			"event":    string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream name
func (s *Redis) Stream() string {
	return s.stream
}

// Close closes the client if the sink created it
func (s *Redis) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
