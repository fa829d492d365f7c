package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	collectorv1 "github.com/ChuLiYu/ping-agent/api/collector/v1"
	"github.com/ChuLiYu/ping-agent/internal/sink"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Collector implements the collector gRPC service. Each received event is
// forwarded to a downstream sink and folded into a per-check status table.
type Collector struct {
	downstream sink.Sink
	log        *zap.Logger

	mu     sync.RWMutex
	checks map[types.CheckID]*CheckStatus
}

// CheckStatus tracks the latest result seen for one check
type CheckStatus struct {
	CheckID             types.CheckID
	LastSeen            time.Time
	LastOutcome         types.Outcome
	LastError           string
	Received            int
	ConsecutiveFailures int
}

// NewCollector creates a collector. A nil downstream defaults to an in-memory sink.
func NewCollector(downstream sink.Sink, log *zap.Logger) *Collector {
	if downstream == nil {
		downstream = sink.NewMemory()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		downstream: downstream,
		log:        log,
		checks:     make(map[types.CheckID]*CheckStatus),
	}
}

// SendEvent handles one result event from an agent
func (c *Collector) SendEvent(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	ev, err := collectorv1.DecodeEvent(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid event: %v", err)
	}

	c.track(ev)

	fields := []zap.Field{
		zap.Stringer("check_id", ev.CheckID),
		zap.String("outcome", string(ev.Outcome)),
		zap.Int("status", ev.StatusCode),
		zap.Int64("latency_ms", ev.Latency.Milliseconds()),
	}
	if ev.Succeeded() {
		c.log.Info("event received", fields...)
	} else {
		c.log.Warn("event received", append(fields, zap.String("error", ev.Error))...)
	}

	if err := c.downstream.Send(ctx, ev); err != nil {
		return nil, status.Errorf(codes.Unavailable, "downstream sink: %v", err)
	}
	return &emptypb.Empty{}, nil
}

func (c *Collector) track(ev types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.checks[ev.CheckID]
	if !ok {
		st = &CheckStatus{CheckID: ev.CheckID}
		c.checks[ev.CheckID] = st
	}
	st.LastSeen = ev.Timestamp
	st.LastOutcome = ev.Outcome
	st.LastError = ev.Error
	st.Received++
	if ev.Succeeded() {
		st.ConsecutiveFailures = 0
	} else {
		st.ConsecutiveFailures++
	}
}

// Status returns a copy of the tracked status for id
func (c *Collector) Status(id types.CheckID) (CheckStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.checks[id]
	if !ok {
		return CheckStatus{}, false
	}
	return *st, true
}

// Checks returns the number of distinct checks seen
func (c *Collector) Checks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.checks)
}

// Register attaches the collector service to s
func (c *Collector) Register(s grpc.ServiceRegistrar) {
	collectorv1.RegisterCollectorServer(s, c)
}

// Serve listens on addr and serves until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, addr string, c *Collector) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, lis, c)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func ServeListener(ctx context.Context, lis net.Listener, c *Collector) error {
	s := grpc.NewServer()
	c.Register(s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()
	c.log.Info("collector listening", zap.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
