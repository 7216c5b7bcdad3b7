package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/metrics"
)

func TestMetricsFromEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	m := metrics.New()
	m.Subscribe()
	t.Cleanup(m.Unsubscribe)

	ctx := context.Background()
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: http.StatusUnsupportedMediaType, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("a"), errors.New("b")}})
	eventbus.Publish(ctx, events.ResolverError{ObjectType: "Query", Field: "products", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.DALFinish{Operation: "search", Entity: "product", Err: errors.New("boom")})
	eventbus.Publish(ctx, events.GRPCClientFinish{Method: "SearchProduct", Code: codes.NotFound})
	eventbus.Publish(ctx, events.SchemaReload{Entities: 7})
	eventbus.Publish(ctx, events.SchemaReload{Err: errors.New("broken")})

	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "415")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.GraphQLErrors.WithLabelValues("query")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ResolverErrors.WithLabelValues("Query", "products")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DALErrors.WithLabelValues("search", "product")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GRPCCalls.WithLabelValues("SearchProduct", "NotFound")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SchemaReloads.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SchemaReloads.WithLabelValues("failure")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.SchemaEntities))

	m.Unsubscribe()
	eventbus.Publish(ctx, events.ResolverError{ObjectType: "Query", Field: "products"})
	require.Equal(t, 1.0, testutil.ToFloat64(m.ResolverErrors.WithLabelValues("Query", "products")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := metrics.New()
	m.DALDuration.WithLabelValues("search", "product").Observe(0.01)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.Contains(body, `dalgraph_dal_operation_duration_seconds_count{entity="product",operation="search"} 1`), body)
	require.Contains(t, body, "go_goroutines")
}
