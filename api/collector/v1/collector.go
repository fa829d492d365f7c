// Package collectorv1 defines the result collector gRPC service.
//
// The service has a single unary method, SendEvent, carrying one check
// result event encoded as a google.protobuf.Struct and answered with
// google.protobuf.Empty:
//
//	service Collector {
//	  rpc SendEvent(google.protobuf.Struct) returns (google.protobuf.Empty);
//	}
//
// Using well-known types keeps the wire format stable without a generated
// message package.
package collectorv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name
	ServiceName = "pingagent.collector.v1.Collector"
	// SendEventMethod is the full method name of SendEvent
	SendEventMethod = "/" + ServiceName + "/SendEvent"
)

// CollectorClient is the client API for the Collector service.
type CollectorClient interface {
	SendEvent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type collectorClient struct {
	cc grpc.ClientConnInterface
}

// NewCollectorClient wraps an established connection.
func NewCollectorClient(cc grpc.ClientConnInterface) CollectorClient {
	return &collectorClient{cc: cc}
}

func (c *collectorClient) SendEvent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SendEventMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectorServer is the server API for the Collector service.
type CollectorServer interface {
	SendEvent(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error)
}

// RegisterCollectorServer registers srv on s.
func RegisterCollectorServer(s grpc.ServiceRegistrar, srv CollectorServer) {
	s.RegisterService(&CollectorServiceDesc, srv)
}

func sendEventHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServer).SendEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SendEventMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CollectorServer).SendEvent(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CollectorServiceDesc is the grpc.ServiceDesc for the Collector service.
var CollectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendEvent",
			Handler:    sendEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pingagent/collector/v1/collector.proto",
}
