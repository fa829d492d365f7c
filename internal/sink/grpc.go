package sink

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	collectorv1 "github.com/ChuLiYu/ping-agent/api/collector/v1"
	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// GRPC forwards events to a remote collector over gRPC.
type GRPC struct {
	client collectorv1.CollectorClient
	conn   *grpc.ClientConn // nil when the caller owns the connection
}

// NewGRPC creates a sink on an established connection.
// The caller keeps ownership of conn.
func NewGRPC(conn grpc.ClientConnInterface) *GRPC {
	return &GRPC{client: collectorv1.NewCollectorClient(conn)}
}

// DialGRPC connects to the collector at addr. Close releases the connection.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPC, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector: %w", err)
	}

	s := NewGRPC(conn)
	s.conn = conn
	return s, nil
}

// Send implements Sink
func (s *GRPC) Send(ctx context.Context, event types.Event) error {
	req, err := collectorv1.EncodeEvent(event)
	if err != nil {
		return err
	}

	if _, err := s.client.SendEvent(ctx, req); err != nil {
		return fmt.Errorf("rpc send event failed: %w", err)
	}
	return nil
}

// Close closes the connection if the sink dialed it
func (s *GRPC) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
