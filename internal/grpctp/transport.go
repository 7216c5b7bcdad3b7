// Package grpctp is the network transport remote executors are called
// through.
package grpctp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/grpcrt"
	"github.com/hanpama/dalgraph/internal/reqid"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("grpctp: closed")

// Transport calls executor methods over gRPC. Each endpoint gets one
// multiplexed client connection, created on first use. Calls rotate over the
// endpoints the provider lists for the method's service.
type Transport struct {
	opts *Options
	next atomic.Uint64

	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

var _ grpcrt.Transport = (*Transport)(nil)

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{opts: o, conns: make(map[string]*grpc.ClientConn)}
}

// Call invokes method with request. Without a context deadline the
// configured RPC timeout applies. The service name and request id travel as
// outgoing metadata.
func (t *Transport) Call(ctx context.Context, method protoreflect.MethodDescriptor, request protoreflect.Message) (protoreflect.Message, error) {
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("grpctp: provider not configured")
	}
	service := string(method.Parent().FullName())
	endpoint, err := t.pick(ctx, service)
	if err != nil {
		return nil, err
	}
	cc, err := t.conn(endpoint)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, grpcrt.MetadataService, service)
	if id, ok := reqid.FromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcrt.MetadataRequestID, reqid.Format(id))
	}

	name := string(method.Name())
	eventbus.Publish(ctx, events.GRPCClientStart{Service: service, Method: name, Target: endpoint})
	start := time.Now()
	resp := dynamicpb.NewMessage(method.Output())
	err = cc.Invoke(ctx, "/"+service+"/"+name, request, resp)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		Service:  service,
		Method:   name,
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *Transport) pick(ctx context.Context, service string) (string, error) {
	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return "", err
	}
	if len(endpoints) == 0 {
		return "", ErrNoEndpoints
	}
	n := t.next.Add(1) - 1
	return endpoints[n%uint64(len(endpoints))], nil
}

func (t *Transport) conn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if cc, ok := t.conns[endpoint]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(endpoint, t.opts.DialOptions...)
	if err != nil {
		return nil, fmt.Errorf("grpctp: connect %s: %w", endpoint, err)
	}
	t.conns[endpoint] = cc
	return cc, nil
}

// Close closes every connection. Later calls fail with ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	for endpoint, cc := range t.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", endpoint, err))
		}
	}
	clear(t.conns)
	return errors.Join(errs...)
}
