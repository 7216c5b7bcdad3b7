package grpcrt

import (
	"context"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Transport performs one unary call of the EntityExecutor service.
// Implementations must be safe for concurrent use: query root fields of one
// request search in parallel.
//
// Provided implementations:
//   - internal/grpctp.Transport: pooled network client
//   - LocalTransport: in-process calls to a Server
type Transport interface {
	Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error)
}
