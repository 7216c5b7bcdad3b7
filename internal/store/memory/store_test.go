package memory_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/store/memory"
)

type fixture struct {
	reg   *entity.Registry
	store *memory.Store
}

func (f fixture) def(t *testing.T, name string) *entity.Definition {
	return entitytest.Definition(t, f.reg, name)
}

func (f fixture) search(t *testing.T, name string, c *criteria.Criteria) *dal.SearchResult {
	t.Helper()
	res, err := f.store.Search(context.Background(), f.def(t, name), c)
	require.NoError(t, err)
	return res
}

// seed stores two manufacturers, three categories and four products.
func seed(t *testing.T) fixture {
	t.Helper()
	reg := entitytest.Registry(t)
	f := fixture{reg: reg, store: memory.New(reg)}
	ctx := context.Background()

	_, err := f.store.Create(ctx, f.def(t, "product_manufacturer"), []map[string]any{
		{"id": "m1", "name": "Acme"},
		{"id": "m2", "name": "Globex"},
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, f.def(t, "category"), []map[string]any{
		{"id": "c1", "name": "Chairs", "position": 2},
		{"id": "c2", "name": "Tables", "position": 1},
		{"id": "c3", "name": "Sale", "position": 3, "parentId": "c1"},
	})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, f.def(t, "product"), []map[string]any{
		{"id": "p1", "name": "Oak chair", "stock": 5, "price": 10.0, "manufacturerId": "m1", "categories": []any{map[string]any{"id": "c1"}, map[string]any{"id": "c3"}}},
		{"id": "p2", "name": "Pine chair", "stock": 1, "price": 20.0, "manufacturerId": "m1", "categories": []any{map[string]any{"id": "c1"}}},
		{"id": "p3", "name": "Glass table", "stock": 0, "price": 30.0, "manufacturerId": "m2", "categories": []any{map[string]any{"id": "c2"}}},
		{"id": "p4", "name": "Stool", "stock": 7, "active": false},
	})
	require.NoError(t, err)
	return f
}

func TestNestedCreateAndLoad(t *testing.T) {
	f := seed(t)

	ids, err := f.store.Create(context.Background(), f.def(t, "product"), []map[string]any{{
		"name":         "Bench",
		"manufacturer": map[string]any{"name": "Initech"},
		"categories":   []any{map[string]any{"id": "c2"}, map[string]any{"name": "Outdoor"}},
	}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, 3, f.store.Len("product_manufacturer"))
	require.Equal(t, 4, f.store.Len("category"))

	c := criteria.New()
	c.AddFilter(&criteria.Equals{Field: "product.id", Value: ids[0]})
	c.AddAssociation("product.manufacturer", criteria.New())
	cats := criteria.New().AddSorting(criteria.Sorting{Field: "name", Direction: criteria.Ascending})
	c.AddAssociation("product.categories", cats)

	res := f.search(t, "product", c)
	require.Len(t, res.Elements, 1)
	bench := res.Elements[0]
	require.Equal(t, true, bench["active"])
	require.Equal(t, 0, bench["stock"])
	require.Equal(t, "Initech", bench["manufacturer"].(entity.Record)["name"])

	var names []string
	for _, cat := range bench["categories"].(entity.Collection) {
		names = append(names, cat["name"].(string))
	}
	require.Equal(t, []string{"Outdoor", "Tables"}, names)
}

func TestFilters(t *testing.T) {
	f := seed(t)

	tests := []struct {
		name   string
		filter criteria.Filter
		want   []string
	}{
		{"equals", &criteria.Equals{Field: "product.stock", Value: "5"}, []string{"p1"}},
		{"equals bool", &criteria.Equals{Field: "product.active", Value: "false"}, []string{"p4"}},
		{"equals null", &criteria.Equals{Field: "product.manufacturerId", Value: nil}, []string{"p4"}},
		{"equalsAny", &criteria.EqualsAny{Field: "product.id", Values: []string{"p2", "p3"}}, []string{"p2", "p3"}},
		{"contains ignores case", &criteria.Contains{Field: "product.name", Value: "CHAIR"}, []string{"p1", "p2"}},
		{"range", &criteria.Range{Field: "product.price", Parameters: map[criteria.RangeOperator]float64{criteria.GT: 10, criteria.LTE: 30}}, []string{"p2", "p3"}},
		{"to-one path", &criteria.Equals{Field: "product.manufacturer.name", Value: "Globex"}, []string{"p3"}},
		{"to-many path", &criteria.Equals{Field: "product.categories.name", Value: "Sale"}, []string{"p1"}},
		{"not", &criteria.Not{Operator: criteria.OperatorOr, Queries: []criteria.Filter{
			&criteria.Equals{Field: "product.id", Value: "p1"},
			&criteria.Equals{Field: "product.id", Value: "p2"},
		}}, []string{"p3", "p4"}},
		{"multi or", &criteria.Multi{Operator: criteria.OperatorOr, Queries: []criteria.Filter{
			&criteria.Equals{Field: "product.id", Value: "p4"},
			&criteria.Contains{Field: "product.name", Value: "glass"},
		}}, []string{"p3", "p4"}},
		{"multi and", &criteria.Multi{Operator: criteria.OperatorAnd, Queries: []criteria.Filter{
			&criteria.Contains{Field: "product.name", Value: "chair"},
			&criteria.Range{Field: "product.stock", Parameters: map[criteria.RangeOperator]float64{criteria.GTE: 2}},
		}}, []string{"p1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.search(t, "product", criteria.New().AddFilter(tt.filter))
			require.Equal(t, tt.want, res.IDs())
		})
	}
}

func TestSortingAndPagination(t *testing.T) {
	f := seed(t)

	c := criteria.New().AddSorting(criteria.Sorting{Field: "price", Direction: criteria.Descending})
	c.TotalCountMode = criteria.TotalCountExact
	c.SetLimit(2)
	c.Offset = 1

	res := f.search(t, "product", c)
	require.Equal(t, 4, res.Total)
	require.Equal(t, []string{"p2", "p1"}, res.IDs())

	c = criteria.New().AddSorting(criteria.Sorting{Field: "manufacturer.name", Direction: criteria.Ascending})
	require.Equal(t, []string{"p4", "p1", "p2", "p3"}, f.search(t, "product", c).IDs())

	c = criteria.New()
	c.Offset = 10
	require.Empty(t, f.search(t, "product", c).Elements)
}

func TestAggregations(t *testing.T) {
	f := seed(t)

	c := criteria.New()
	c.SetLimit(1)
	c.AddAggregation(&criteria.Aggregation{Name: "stock", Type: criteria.Stats, Field: "product.stock"})
	c.AddAggregation(&criteria.Aggregation{Name: "byMaker", Type: criteria.Sum, Field: "product.price", GroupByFields: []string{"product.manufacturerId"}})
	c.AddAggregation(&criteria.Aggregation{Name: "makers", Type: criteria.ValueCount, Field: "product.manufacturer.name"})
	c.AddAggregation(&criteria.Aggregation{Name: "distinct", Type: criteria.Cardinality, Field: "product.manufacturerId"})

	res := f.search(t, "product", c)
	require.Len(t, res.Elements, 1)

	want := []dal.AggregationResult{
		{Name: "stock", Buckets: []dal.Bucket{{Values: []dal.KeyValue{
			{Key: "count", Value: 4},
			{Key: "avg", Value: 3.25},
			{Key: "sum", Value: 13.0},
			{Key: "min", Value: 0},
			{Key: "max", Value: 7},
		}}}},
		{Name: "byMaker", Buckets: []dal.Bucket{
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m1"}}, Values: []dal.KeyValue{{Key: "sum", Value: 30.0}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m2"}}, Values: []dal.KeyValue{{Key: "sum", Value: 30.0}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: nil}}, Values: []dal.KeyValue{{Key: "sum", Value: 0.0}}},
		}},
		{Name: "makers", Buckets: []dal.Bucket{{Values: []dal.KeyValue{
			{Key: "values", Value: []dal.KeyValue{{Key: "Acme", Value: 2}, {Key: "Globex", Value: 1}}},
		}}}},
		{Name: "distinct", Buckets: []dal.Bucket{{Values: []dal.KeyValue{{Key: "cardinality", Value: 2}}}}},
	}
	if diff := cmp.Diff(want, res.Aggregations); diff != "" {
		t.Fatalf("aggregations (-want +got):\n%s", diff)
	}
}

func TestWriteErrors(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	product := f.def(t, "product")

	_, err := f.store.Create(ctx, product, []map[string]any{{"id": "p1", "name": "Again"}})
	require.ErrorIs(t, err, dal.ErrConflict)

	_, err = f.store.Update(ctx, product, []map[string]any{{"id": "nope", "name": "x"}})
	require.ErrorIs(t, err, dal.ErrNotFound)

	// A failing batch leaves no partial writes behind.
	_, err = f.store.Create(ctx, product, []map[string]any{{"id": "p9", "name": "New"}, {"id": "p1", "name": "Dup"}})
	require.ErrorIs(t, err, dal.ErrConflict)
	require.Equal(t, 4, f.store.Len("product"))

	_, err = f.store.Delete(ctx, product, []map[string]any{{"id": "nope"}})
	require.ErrorIs(t, err, dal.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	product := f.def(t, "product")

	ids, err := f.store.Update(ctx, product, []map[string]any{{"id": "p2", "name": "Birch chair"}})
	require.NoError(t, err)
	require.Equal(t, []string{"p2"}, ids)

	res := f.search(t, "product", criteria.New().AddFilter(&criteria.Equals{Field: "product.id", Value: "p2"}))
	require.Equal(t, "Birch chair", res.Elements[0]["name"])
	require.Equal(t, 1, res.Elements[0]["stock"])
	require.NotNil(t, res.Elements[0]["updatedAt"])

	require.Equal(t, 4, f.store.Len("product_category"))
	ids, err = f.store.Delete(ctx, product, []map[string]any{{"id": "p1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)
	require.Equal(t, 3, f.store.Len("product"))
	require.Equal(t, 2, f.store.Len("product_category"))
}

func TestSearchHonorsContext(t *testing.T) {
	f := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.store.Search(ctx, f.def(t, "product"), criteria.New())
	require.ErrorIs(t, err, context.Canceled)
}
