// Package otel turns published events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/reqid"
)

// Setup exports spans to the OTLP collector at endpoint and subscribes the
// span recorder to the global event bus. With an empty endpoint it does
// nothing. The returned function flushes and stops the exporter.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(service))),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := newRecorder(tp.Tracer("dalgraph")).subscribe()
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Span keys. Spans of one request are told apart by the request id and, for
// calls that may overlap, by what they target.
type (
	httpKey  int64
	queryKey int64
	grpcKey  struct {
		rid            int64
		method, target string
	}
	dalKey struct {
		rid               int64
		operation, entity string
	}
)

// recorder keeps the open spans between a start and a finish event.
type recorder struct {
	tracer trace.Tracer
	open   sync.Map
}

func newRecorder(tracer trace.Tracer) *recorder { return &recorder{tracer: tracer} }

// start opens a span under the first open parent found.
func (r *recorder) start(ctx context.Context, key any, name string, parents []any, attrs ...attribute.KeyValue) {
	for _, p := range parents {
		if v, ok := r.open.Load(p); ok {
			ctx = trace.ContextWithSpan(ctx, v.(trace.Span))
			break
		}
	}
	_, span := r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	r.open.Store(key, span)
}

func (r *recorder) finish(key any, err error, attrs ...attribute.KeyValue) {
	v, ok := r.open.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func rid(ctx context.Context) int64 {
	id, _ := reqid.FromContext(ctx)
	return id
}

func (r *recorder) subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			r.start(ctx, httpKey(rid(ctx)), "http.request", nil,
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			r.finish(httpKey(rid(ctx)), nil, semconv.HTTPStatusCodeKey.Int(e.Status))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			id := rid(ctx)
			r.start(ctx, queryKey(id), "graphql.operation", []any{httpKey(id)},
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			r.finish(queryKey(rid(ctx)), nil, attribute.Int("graphql.error_count", len(e.Errors)))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DALStart) {
			id := rid(ctx)
			r.start(ctx, dalKey{id, e.Operation, e.Entity}, "dal."+e.Operation, []any{queryKey(id), httpKey(id)},
				attribute.String("dal.entity", e.Entity))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.DALFinish) {
			r.finish(dalKey{rid(ctx), e.Operation, e.Entity}, e.Err, attribute.Int("dal.rows", e.Rows))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
			id := rid(ctx)
			r.start(ctx, grpcKey{id, e.Method, e.Target}, "grpc.client", []any{queryKey(id), httpKey(id)},
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
			r.finish(grpcKey{rid(ctx), e.Method, e.Target}, e.Err, attribute.String("grpc.code", e.Code.String()))
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.SchemaReload) {
			_, span := r.tracer.Start(ctx, "schema.reload", trace.WithAttributes(
				attribute.String("schema.source", e.Source),
				attribute.Int("schema.entities", e.Entities)))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
