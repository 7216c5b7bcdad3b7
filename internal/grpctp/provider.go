package grpctp

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrNoEndpoints is returned when a service has no endpoints.
var ErrNoEndpoints = errors.New("grpctp: no endpoints available")

// EndpointProvider lists the host:port endpoints serving a fully qualified
// gRPC service name. Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints serves endpoints from a map keyed by service name.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	data := maps.Clone(m)
	for k, v := range data {
		data[k] = slices.Clone(v)
	}
	if data == nil {
		data = map[string][]string{}
	}
	return &StaticEndpoints{data: data}
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data[service]) == 0 {
		return nil, ErrNoEndpoints
	}
	return slices.Clone(s.data[service]), nil
}

// Set replaces the endpoints of service.
func (s *StaticEndpoints) Set(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[service] = slices.Clone(endpoints)
}
