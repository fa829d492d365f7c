// Package job turns checks into schedulable jobs and executes them.
package job

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/ping-agent/internal/resource"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Kind is the closed set of job variants the agent can execute
type Kind int

const (
	// KindDummy is a no-op placeholder for check kinds the agent does not support
	KindDummy Kind = iota
	// KindHTTP probes an HTTP endpoint
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindDummy:
		return "dummy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Job is one scheduled unit of work. It is a value and never mutated once placed.
type Job struct {
	ID             types.CheckID
	Kind           Kind
	CheckKind      types.CheckKind // upstream kind, kept for logs and events
	HTTP           resource.Request
	ExpectedStatus int
}

// UnsupportedPolicy decides what happens to checks of a kind the agent cannot run.
type UnsupportedPolicy string

const (
	// UnsupportedReject refuses the check at registration
	UnsupportedReject UnsupportedPolicy = "reject"
	// UnsupportedWarn schedules a no-op job and logs a warning
	UnsupportedWarn UnsupportedPolicy = "warn"
	// UnsupportedIgnore schedules a no-op job silently
	UnsupportedIgnore UnsupportedPolicy = "ignore"
)

// Valid reports whether p is a known policy
func (p UnsupportedPolicy) Valid() bool {
	switch p {
	case UnsupportedReject, UnsupportedWarn, UnsupportedIgnore:
		return true
	}
	return false
}

// ErrUnsupportedKind is returned for a check kind the agent cannot execute
// under the reject policy.
var ErrUnsupportedKind = errors.New("unsupported check kind")

// FromCheck converts a check into a job. Under any policy other than
// reject, an unsupported kind becomes a Dummy job.
func FromCheck(c *types.Check, policy UnsupportedPolicy) (Job, error) {
	j := Job{ID: c.ID, CheckKind: c.Kind}

	switch c.Kind {
	case types.KindHTTP:
		if c.HTTP == nil {
			return Job{}, types.ErrMissingHTTP
		}
		j.Kind = KindHTTP
		j.HTTP = resource.RequestFromCheck(c.HTTP)
		j.ExpectedStatus = c.HTTP.ExpectedStatus
		return j, nil
	default:
		if policy == UnsupportedReject {
			return Job{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, c.Kind)
		}
		j.Kind = KindDummy
		return j, nil
	}
}
