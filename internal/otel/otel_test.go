package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/reqid"
)

func TestRecorderNestsSpans(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	unsubscribe := newRecorder(tp.Tracer("test")).subscribe()
	t.Cleanup(unsubscribe)

	ctx := reqid.WithID(context.Background(), 7)
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req})
	eventbus.Publish(ctx, events.GraphQLStart{OperationName: "Q", OperationType: "query"})
	eventbus.Publish(ctx, events.DALStart{Operation: "search", Entity: "product"})
	eventbus.Publish(ctx, events.DALFinish{Operation: "search", Entity: "product", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationName: "Q"})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200})

	spans := sr.Ended()
	require.Len(t, spans, 3)
	dal, query, http := spans[0], spans[1], spans[2]
	assert.Equal(t, "dal.search", dal.Name())
	assert.Equal(t, codes.Error, dal.Status().Code)
	assert.Equal(t, query.SpanContext().SpanID(), dal.Parent().SpanID())
	assert.Equal(t, http.SpanContext().SpanID(), query.Parent().SpanID())
	assert.Equal(t, http.SpanContext().TraceID(), dal.SpanContext().TraceID())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "dalgraph")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
