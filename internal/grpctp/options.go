package grpctp

import (
	"time"

	"google.golang.org/grpc"

	"github.com/hanpama/dalgraph/internal/grpcrt"
)

// Options configures the transport.
//
// RPCTimeout defaults to 3s and applies when the context has no deadline.
// DialOptions default to insecure credentials with the standard backoff.
//
// Calls fail while Provider is nil.
type Options struct {
	Provider    EndpointProvider
	RPCTimeout  time.Duration
	DialOptions []grpc.DialOption
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{RPCTimeout: 3 * time.Second}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}

// WithEndpoints serves every call from the given static endpoints.
func WithEndpoints(endpoints ...string) Option {
	return func(o *Options) {
		o.Provider = NewStaticEndpoints(map[string][]string{string(grpcrt.ServiceName): endpoints})
	}
}
