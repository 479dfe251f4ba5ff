package raft

import (
	"context"

	"google.golang.org/grpc"
)

const deliverMethod = "/raft.Outbox/Deliver"

// delivered is the empty reply to a Deliver RPC. Protocol replies travel as
// messages of their own.
type delivered struct{}

// outboxServer is the server API for the raft.Outbox service.
type outboxServer interface {
	deliver(ctx context.Context, e *envelope) (*delivered, error)
}

var outboxServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft.Outbox",
	HandlerType: (*outboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft.proto",
}

func deliverHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(outboxServer).deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(outboxServer).deliver(ctx, req.(*envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// wireCodec encodes Deliver RPCs with the protowire layouts in encoding.go.
type wireCodec struct{}

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case *envelope:
		return encodeEnvelope(v)
	case *delivered:
		return []byte{}, nil
	default:
		return nil, errUnsupportedValue(v)
	}
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	switch v := v.(type) {
	case *envelope:
		e, err := decodeEnvelope(data)
		if err != nil {
			return err
		}
		*v = *e
		return nil
	case *delivered:
		return nil
	default:
		return errUnsupportedValue(v)
	}
}

func (wireCodec) Name() string {
	return "raft"
}
