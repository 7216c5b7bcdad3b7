package grpcrt_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/grpcrt"
	"github.com/hanpama/dalgraph/internal/grpctp"
	"github.com/hanpama/dalgraph/internal/protoreg"
	"github.com/hanpama/dalgraph/internal/store/memory"
)

type remote struct {
	reg    *entity.Registry
	store  *memory.Store
	server *grpcrt.Server
	client *grpcrt.Client
	local  *grpcrt.LocalTransport
}

func (r *remote) def(t *testing.T, name string) *entity.Definition {
	return entitytest.Definition(t, r.reg, name)
}

// newRemote serves a seeded memory store through an in-process transport.
func newRemote(t *testing.T) *remote {
	t.Helper()
	reg := entitytest.Registry(t)
	services, err := protoreg.Build(reg)
	require.NoError(t, err)

	r := &remote{reg: reg, store: memory.New(reg)}
	r.server = grpcrt.NewServer(services, reg, r.store)
	r.local = grpcrt.NewLocalTransport(r.server)
	r.client = grpcrt.NewClient(services, reg, r.local)

	ctx := context.Background()
	_, err = r.store.Create(ctx, r.def(t, "product_manufacturer"), []map[string]any{
		{"id": "m1", "name": "Acme"},
		{"id": "m2", "name": "Globex"},
	})
	require.NoError(t, err)
	_, err = r.store.Create(ctx, r.def(t, "category"), []map[string]any{
		{"id": "c1", "name": "Chairs"},
		{"id": "c2", "name": "Tables"},
	})
	require.NoError(t, err)
	_, err = r.store.Create(ctx, r.def(t, "product"), []map[string]any{
		{"id": "p1", "name": "Oak chair", "stock": 5, "price": 10.0, "manufacturerId": "m1", "customFields": map[string]any{"color": "brown"}, "categories": []any{map[string]any{"id": "c1"}}},
		{"id": "p2", "name": "Pine chair", "stock": 1, "price": 20.0, "manufacturerId": "m1"},
		{"id": "p3", "name": "Stool", "stock": 7, "active": false},
	})
	require.NoError(t, err)
	return r
}

func TestRemoteSearch(t *testing.T) {
	r := newRemote(t)

	c := criteria.New().SetLimit(2)
	c.TotalCountMode = criteria.TotalCountExact
	c.AddSorting(criteria.Sorting{Field: "product.name", Direction: criteria.Ascending})
	c.AddAssociation("product.manufacturer", criteria.New())
	c.AddAssociation("product.categories", criteria.New())
	c.AddAggregation(&criteria.Aggregation{Name: "stock", Type: criteria.Sum, Field: "product.stock"})

	res, err := r.client.Search(context.Background(), r.def(t, "product"), c)
	require.NoError(t, err)

	assert.Same(t, c, res.Criteria)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"p1", "p2"}, res.IDs())

	oak := res.Elements[0]
	assert.Equal(t, "Oak chair", oak["name"])
	assert.Equal(t, 5, oak["stock"])
	assert.Equal(t, 10.0, oak["price"])
	assert.Equal(t, map[string]any{"color": "brown"}, oak["customFields"])
	require.IsType(t, entity.Record{}, oak["manufacturer"])
	assert.Equal(t, "Acme", oak["manufacturer"].(entity.Record)["name"])
	require.IsType(t, entity.Collection{}, oak["categories"])
	assert.Equal(t, []string{"c1"}, ids(oak["categories"].(entity.Collection)))

	// Loaded but empty associations stay distinguishable from unloaded ones.
	assert.Equal(t, entity.Collection{}, res.Elements[1]["categories"])

	agg, ok := res.Aggregation("stock")
	require.True(t, ok)
	require.Len(t, agg.Buckets, 1)
	assert.Equal(t, "sum", agg.Buckets[0].Values[0].Key)

	calls := r.local.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/dalgraph.executor.v1.EntityExecutor/SearchProduct", calls[0].FullMethod)
}

func TestRemoteNullValues(t *testing.T) {
	r := newRemote(t)

	c := criteria.New()
	c.AddFilter(&criteria.Equals{Field: "product.id", Value: "p3"})
	c.AddAssociation("product.manufacturer", criteria.New())

	res, err := r.client.Search(context.Background(), r.def(t, "product"), c)
	require.NoError(t, err)
	require.Len(t, res.Elements, 1)

	stool := res.Elements[0]
	assert.Equal(t, false, stool["active"])
	v, present := stool["manufacturer"]
	assert.True(t, present)
	assert.Nil(t, v)
	_, present = stool["manufacturerId"]
	assert.False(t, present)
}

func TestRemoteWrites(t *testing.T) {
	r := newRemote(t)
	ctx := context.Background()
	product := r.def(t, "product")

	ids, err := r.client.Create(ctx, product, []map[string]any{{
		"name":         "Bench",
		"stock":        3,
		"manufacturer": map[string]any{"name": "Initech"},
	}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, 3, r.store.Len("product_manufacturer"))

	_, err = r.client.Update(ctx, product, []map[string]any{{"id": ids[0], "stock": 4, "price": nil}})
	require.NoError(t, err)

	c := criteria.New()
	c.AddFilter(&criteria.Equals{Field: "product.id", Value: ids[0]})
	res, err := r.store.Search(ctx, product, c)
	require.NoError(t, err)
	require.Len(t, res.Elements, 1)
	assert.Equal(t, 4, res.Elements[0]["stock"])

	deleted, err := r.client.Delete(ctx, product, []map[string]any{{"id": ids[0]}})
	require.NoError(t, err)
	assert.Equal(t, ids, deleted)

	_, err = r.client.Delete(ctx, product, []map[string]any{{"id": ids[0]}})
	require.ErrorIs(t, err, dal.ErrNotFound)

	_, err = r.client.Create(ctx, product, []map[string]any{{"id": "p1", "name": "Again"}})
	require.ErrorIs(t, err, dal.ErrConflict)
}

func TestRemoteRejectsUnknownPayloadFields(t *testing.T) {
	r := newRemote(t)

	_, err := r.client.Create(context.Background(), r.def(t, "product"), []map[string]any{{
		"name":         "Bench",
		"manufacturer": map[string]any{"nope": 1},
	}})
	require.ErrorContains(t, err, `/0: unknown field "nope" on product_manufacturer`)
	assert.Empty(t, r.local.Calls())
}

func TestRemoteErrorsKeepViolations(t *testing.T) {
	verr := &criteria.ValidationError{Violations: []criteria.Violation{{Path: "/filter/0/field", Message: "unknown field"}}}
	r := newRemote(t)
	services, err := protoreg.Build(r.reg)
	require.NoError(t, err)
	server := grpcrt.NewServer(services, r.reg, failing{err: verr})
	client := grpcrt.NewClient(services, r.reg, grpcrt.NewLocalTransport(server))

	_, err = client.Search(context.Background(), r.def(t, "product"), criteria.New())

	var got *criteria.ValidationError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, verr.Violations, got.Violations)
	assert.Equal(t, verr.Error(), err.Error())
}

func TestRemoteOverGRPC(t *testing.T) {
	r := newRemote(t)
	services, err := protoreg.Build(r.reg)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	grpcrt.NewServer(services, r.reg, r.store).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	transport := grpctp.New(
		grpctp.WithEndpoints("passthrough:///bufnet"),
		grpctp.WithDialOptions(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		),
	)
	t.Cleanup(func() { _ = transport.Close() })
	client := grpcrt.NewClient(services, r.reg, transport)

	c := criteria.New()
	c.AddFilter(&criteria.EqualsAny{Field: "product.id", Values: []string{"p1", "p3"}})
	c.AddSorting(criteria.Sorting{Field: "product.stock", Direction: criteria.Descending})
	res, err := client.Search(context.Background(), r.def(t, "product"), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p1"}, res.IDs())

	_, err = client.Delete(context.Background(), r.def(t, "product"), []map[string]any{{"id": "missing"}})
	require.ErrorIs(t, err, dal.ErrNotFound)
}

type failing struct {
	dal.Executor
	err error
}

func (f failing) Search(context.Context, *entity.Definition, *criteria.Criteria) (*dal.SearchResult, error) {
	return nil, f.err
}

func ids(coll entity.Collection) []string {
	out := make([]string, len(coll))
	for i, r := range coll {
		out[i] = r.ID()
	}
	return out
}
