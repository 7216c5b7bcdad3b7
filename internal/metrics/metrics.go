// Package metrics records Prometheus metrics from the events published on the
// eventbus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
)

const namespace = "dalgraph"

// Metrics holds the collectors fed by the eventbus.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	GraphQLDuration  *prometheus.HistogramVec
	GraphQLErrors    *prometheus.CounterVec
	ResolverErrors   *prometheus.CounterVec
	DALDuration      *prometheus.HistogramVec
	DALErrors        *prometheus.CounterVec
	GRPCCalls        *prometheus.CounterVec
	SchemaReloads    *prometheus.CounterVec
	SchemaEntities   prometheus.Gauge
	unsubscribeFuncs []func()
}

// New creates the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		GraphQLDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		GraphQLErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "errors_total",
			Help:      "Errors returned by GraphQL operations",
		}, []string{"operation"}),
		ResolverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "Root fields that failed to resolve",
		}, []string{"type", "field"}),
		DALDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dal",
			Name:      "operation_duration_seconds",
			Help:      "Query executor operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "entity"}),
		DALErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dal",
			Name:      "errors_total",
			Help:      "Failed query executor operations",
		}, []string{"operation", "entity"}),
		GRPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "client_calls_total",
			Help:      "Remote executor calls by method and status code",
		}, []string{"method", "code"}),
		SchemaReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "reloads_total",
			Help:      "Schema reloads by result",
		}, []string{"result"}),
		SchemaEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "entities",
			Help:      "Entities in the schema in service",
		}),
	}
	m.registry.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.GraphQLDuration, m.GraphQLErrors, m.ResolverErrors,
		m.DALDuration, m.DALErrors, m.GRPCCalls,
		m.SchemaReloads, m.SchemaEntities,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the Prometheus registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Subscribe starts recording events from the global bus.
func (m *Metrics) Subscribe() {
	m.unsubscribeFuncs = append(m.unsubscribeFuncs,
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			op := e.OperationType
			if op == "" {
				op = "unknown"
			}
			m.GraphQLDuration.WithLabelValues(op).Observe(e.Duration.Seconds())
			if len(e.Errors) > 0 {
				m.GraphQLErrors.WithLabelValues(op).Add(float64(len(e.Errors)))
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ResolverError) {
			m.ResolverErrors.WithLabelValues(e.ObjectType, e.Field).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.DALFinish) {
			m.DALDuration.WithLabelValues(e.Operation, e.Entity).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.DALErrors.WithLabelValues(e.Operation, e.Entity).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GRPCClientFinish) {
			m.GRPCCalls.WithLabelValues(e.Method, codeName(e.Code)).Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SchemaReload) {
			if e.Err != nil {
				m.SchemaReloads.WithLabelValues("failure").Inc()
				return
			}
			m.SchemaReloads.WithLabelValues("success").Inc()
			m.SchemaEntities.Set(float64(e.Entities))
		}),
	)
}

// Unsubscribe stops recording events.
func (m *Metrics) Unsubscribe() {
	for _, fn := range m.unsubscribeFuncs {
		fn()
	}
	m.unsubscribeFuncs = nil
}

func codeName(c codes.Code) string { return c.String() }
