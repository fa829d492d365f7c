// ============================================================================
// Ping Agent Resource Pool - bounded HTTP client pool
// ============================================================================
//
// Package: internal/resource
// File: pool.go
// Purpose: A finite set of reusable HTTP clients shared by every wheel and
// every job execution.
//
// Contract:
//   Acquire(ctx)    -> *Handle  (suspends while exhausted, bounded by ctx)
//   Handle.Execute  -> *Response or an explicit error
//   Handle.Release  -> returns the client to the pool
//
// Concurrency:
//   The pool is a buffered channel of clients, so it is safe to share by
//   pointer without any outer lock. Capacity caps concurrent HTTP calls.
//
// ============================================================================

package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSize is the number of concurrent client handles.
const DefaultSize = 10

var (
	// ErrPoolExhausted means no client became free before the wait bound elapsed.
	ErrPoolExhausted = errors.New("resource pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("resource pool is closed")
	// ErrHandleReleased is returned when a released handle is used again.
	ErrHandleReleased = errors.New("resource handle already released")
)

// Client is one pooled HTTP client.
type Client struct {
	id   int
	http *http.Client
}

// Pool is a bounded pool of HTTP clients.
type Pool struct {
	clients   chan *Client
	size      int
	closeOnce sync.Once
	closed    chan struct{}
}

// NewPool creates a pool of size clients. timeout bounds each HTTP call
// at the client level; zero means no client-level timeout.
func NewPool(size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = DefaultSize
	}

	p := &Pool{
		clients: make(chan *Client, size),
		size:    size,
		closed:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.clients <- &Client{
			id: i,
			http: &http.Client{
				Timeout:   timeout,
				Transport: http.DefaultTransport.(*http.Transport).Clone(),
			},
		}
	}
	return p
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Available returns the number of idle clients.
func (p *Pool) Available() int {
	return len(p.clients)
}

// Acquire checks out a client, waiting until one is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case c := <-p.clients:
		return &Handle{pool: p, client: c}, nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, ctx.Err())
	}
}

// Close stops handing out clients and drops idle connections.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for {
			select {
			case c := <-p.clients:
				c.http.CloseIdleConnections()
			default:
				return
			}
		}
	})
}

func (p *Pool) put(c *Client) {
	select {
	case <-p.closed:
		c.http.CloseIdleConnections()
	default:
		p.clients <- c
	}
}

// Handle is a checked-out client. It must be released exactly once;
// extra Release calls are ignored.
type Handle struct {
	pool   *Pool
	client *Client
	once   sync.Once
	done   atomic.Bool
}

// ClientID identifies the underlying pooled client.
func (h *Handle) ClientID() int {
	return h.client.id
}

// Execute issues req and reports the status code and elapsed time.
// Transport failures, cancellation, and deadline expiry are returned as errors.
func (h *Handle) Execute(ctx context.Context, req Request) (*Response, error) {
	if h.done.Load() {
		return nil, ErrHandleReleased
	}

	httpReq, err := req.build(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := h.client.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Response{Status: resp.StatusCode, Elapsed: time.Since(start)}, nil
}

// Release returns the client to the pool.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.done.Store(true)
		h.pool.put(h.client)
	})
}
