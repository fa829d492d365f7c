package sink

import (
	"context"
	"sync"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Memory buffers every event in arrival order. Unbounded.
type Memory struct {
	mu     sync.RWMutex
	events []types.Event
	notify chan struct{} // closed and replaced on every append
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{})}
}

// Send appends event to the log
func (m *Memory) Send(_ context.Context, event types.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
	return nil
}

// Events returns a snapshot of the log
func (m *Memory) Events() []types.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Len returns the number of buffered events
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// EventsFor returns the buffered events of one check
func (m *Memory) EventsFor(id types.CheckID) []types.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Event
	for _, e := range m.events {
		if e.CheckID == id {
			out = append(out, e)
		}
	}
	return out
}

// Wait blocks until at least n events are buffered or ctx is done.
func (m *Memory) Wait(ctx context.Context, n int) error {
	for {
		m.mu.RLock()
		have := len(m.events)
		ch := m.notify
		m.mu.RUnlock()

		if have >= n {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Discard drops every event
type Discard struct{}

// Send implements Sink
func (Discard) Send(context.Context, types.Event) error { return nil }
