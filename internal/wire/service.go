package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name advertised over reflection-free
// registration.
const ServiceName = "batata.wire.Gateway"

// Stream is the minimal bidi-stream surface a handler needs, wrapping
// grpc.ServerStream's untyped SendMsg/RecvMsg with our Frame type.
type Stream interface {
	Context() context.Context
	Send(*Frame) error
	Recv() (*Frame, error)
}

// GatewayServer is implemented by the RPC server; it owns one Connect call
// for the lifetime of each client's bidirectional stream.
type GatewayServer interface {
	Connect(stream Stream) error
}

type serverStream struct {
	grpc.ServerStream
}

func (s *serverStream) Send(f *Frame) error {
	return s.SendMsg(f)
}

func (s *serverStream) Recv() (*Frame, error) {
	f := new(Frame)
	if err := s.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(GatewayServer).Connect(&serverStream{ServerStream: stream})
}

// ServiceDesc is the hand-written grpc.ServiceDesc standing in for
// protoc-generated code. It registers a single bidirectional streaming
// method, "Connect", framed with the batata-json codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "batata/wire.proto",
}
