// Package types defines the core domain model shared across the ping agent:
// checks, the commands that register or evict them, and the result events
// produced when they run.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckID is the globally unique identifier assigned to a check upstream.
// It is stable for the lifetime of the check's registration.
type CheckID = uuid.UUID

// CheckKind names what a check does. The set is open: the agent only knows
// how to execute some kinds, the rest are "unsupported".
type CheckKind string

const (
	KindHTTP CheckKind = "http" // HTTP probe
)

// DefaultMaxInterval bounds check periods unless the agent configures otherwise.
// A wheel keeps one bucket per second of its interval.
const DefaultMaxInterval = 24 * time.Hour

// Validation errors
var (
	ErrMissingID       = errors.New("check id is required")
	ErrInvalidInterval = errors.New("check interval must be a positive whole number of seconds")
	ErrMissingHTTP     = errors.New("http check requires a url")
	ErrIntervalTooLong = errors.New("check interval exceeds the maximum")
)

// HTTPCheck is the request template of an HTTP probe.
type HTTPCheck struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body           string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
}

// Check is one periodic unit of monitoring work.
type Check struct {
	ID       CheckID       `json:"id"`
	Interval time.Duration `json:"interval"` // repeat period, whole seconds
	Kind     CheckKind     `json:"kind"`
	HTTP     *HTTPCheck    `json:"http,omitempty"`
}

// Validate checks the invariants the scheduler relies on.
func (c *Check) Validate() error {
	if c.ID == uuid.Nil {
		return ErrMissingID
	}
	if c.Interval < time.Second || c.Interval%time.Second != 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, c.Interval)
	}
	if c.Kind == KindHTTP && (c.HTTP == nil || c.HTTP.URL == "") {
		return ErrMissingHTTP
	}
	return nil
}

// ValidateMax runs Validate and also rejects intervals longer than limit.
// A non-positive limit means no bound.
func (c *Check) ValidateMax(limit time.Duration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if limit > 0 && c.Interval > limit {
		return fmt.Errorf("%w: %s > %s", ErrIntervalTooLong, c.Interval, limit)
	}
	return nil
}

// IntervalSeconds returns the interval as a bucket count.
func (c *Check) IntervalSeconds() int {
	return int(c.Interval / time.Second)
}

// CommandKind is the type of an inbound scheduling command.
type CommandKind string

const (
	CommandAdd    CommandKind = "add"
	CommandRemove CommandKind = "remove"
)

// Command is one instruction from the upstream command stream.
// Add carries a Check; Remove carries only the CheckID.
type Command struct {
	Kind    CommandKind
	Check   *Check
	CheckID CheckID
}

// AddCommand builds an add command for c.
func AddCommand(c Check) Command {
	return Command{Kind: CommandAdd, Check: &c, CheckID: c.ID}
}

// RemoveCommand builds a remove command for id.
func RemoveCommand(id CheckID) Command {
	return Command{Kind: CommandRemove, CheckID: id}
}

// Outcome is the terminal state of one check execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is the structured record of one completed check execution,
// delivered to a result sink.
type Event struct {
	CheckID    CheckID       `json:"check_id"`
	Kind       CheckKind     `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	Outcome    Outcome       `json:"outcome"`
	Latency    time.Duration `json:"latency_ns"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"` // failure detail
}

// Succeeded reports whether the execution succeeded.
func (e Event) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}
