package worker

import (
	"context"
	"time"
)

// Task is one unit of work handed to the pool
type Task struct {
	ID      string                    // identifier used in logs
	Timeout time.Duration             // execution bound, zero means no bound
	Run     func(ctx context.Context) // the work itself; must honour ctx
}
