package grpcrt

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// CallRecord captures a single Call invocation for assertions.
type CallRecord struct {
	// Method is the descriptor invoked.
	Method protoreflect.MethodDescriptor
	// FullMethod is "/<service full name>/<method>".
	FullMethod string
	// Request is a snapshot of the input.
	Request proto.Message
}

// LocalTransport calls a Server in-process. Requests and responses go
// through their wire encoding so the codec behaves as over the network.
// Every call is recorded.
type LocalTransport struct {
	server *Server

	mu    sync.Mutex
	calls []CallRecord
}

var _ Transport = (*LocalTransport)(nil)

func NewLocalTransport(server *Server) *LocalTransport {
	return &LocalTransport{server: server}
}

func (t *LocalTransport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	req, err := roundTrip(method.Input(), request.Interface())
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.calls = append(t.calls, CallRecord{
		Method:     method,
		FullMethod: fmt.Sprintf("/%s/%s", method.Parent().FullName(), method.Name()),
		Request:    req,
	})
	t.mu.Unlock()

	res, err := t.server.Handle(ctx, method, req)
	if err != nil {
		return nil, err
	}
	return roundTrip(method.Output(), res)
}

// Calls returns a snapshot of recorded Call invocations.
func (t *LocalTransport) Calls() []CallRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CallRecord, len(t.calls))
	copy(out, t.calls)
	return out
}

func roundTrip(md protoreflect.MessageDescriptor, msg protoreflect.ProtoMessage) (*dynamicpb.Message, error) {
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	out := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
