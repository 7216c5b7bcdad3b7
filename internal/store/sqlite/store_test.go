package sqlite_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/store/sqlite"
)

type fixture struct {
	reg   *entity.Registry
	store *sqlite.Store
}

func (f fixture) def(t *testing.T, name string) *entity.Definition {
	return entitytest.Definition(t, f.reg, name)
}

func (f fixture) ids(t *testing.T, name string, c *criteria.Criteria) []string {
	t.Helper()
	res, err := f.store.Search(context.Background(), f.def(t, name), c)
	require.NoError(t, err)
	return res.IDs()
}

func open(t *testing.T) fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "dalgraph_test.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	reg := entitytest.Registry(t)
	store := sqlite.New(db, reg)
	require.NoError(t, store.Migrate(context.Background()))
	// Migrate is idempotent.
	require.NoError(t, store.Migrate(context.Background()))
	return fixture{reg: reg, store: store}
}

func seed(t *testing.T) fixture {
	t.Helper()
	f := open(t)
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
		{"id": "p1", "name": "Oak chair", "stock": 5, "price": 10.0, "manufacturerId": "m1", "customFields": map[string]any{"wood": "oak"}, "categories": []any{map[string]any{"id": "c1"}, map[string]any{"id": "c3"}}},
		{"id": "p2", "name": "Pine chair", "stock": 1, "price": 20.0, "manufacturerId": "m1", "categories": []any{map[string]any{"id": "c1"}}},
		{"id": "p3", "name": "Glass table", "stock": 0, "price": 30.0, "manufacturerId": "m2", "categories": []any{map[string]any{"id": "c2"}}},
		{"id": "p4", "name": "Stool", "stock": 7, "active": false},
	})
	require.NoError(t, err)
	return f
}

func TestRoundTripValues(t *testing.T) {
	f := seed(t)

	c := criteria.New().AddFilter(&criteria.Equals{Field: "product.id", Value: "p1"})
	c.AddAssociation("product.manufacturer", criteria.New())
	c.AddAssociation("product.categories", criteria.New().AddSorting(criteria.Sorting{Field: "name", Direction: criteria.Descending}))
	res, err := f.store.Search(context.Background(), f.def(t, "product"), c)
	require.NoError(t, err)
	require.Len(t, res.Elements, 1)

	p := res.Elements[0]
	require.Equal(t, "Oak chair", p["name"])
	require.Equal(t, 5, p["stock"])
	require.Equal(t, 10.0, p["price"])
	require.Equal(t, true, p["active"])
	require.Equal(t, map[string]any{"wood": "oak"}, p["customFields"])
	require.Nil(t, p["description"])
	require.Equal(t, "Acme", p["manufacturer"].(entity.Record)["name"])

	var names []string
	for _, cat := range p["categories"].(entity.Collection) {
		names = append(names, cat["name"].(string))
	}
	require.Equal(t, []string{"Sale", "Chairs"}, names)
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
		{"contains escapes wildcards", &criteria.Contains{Field: "product.name", Value: "%"}, nil},
		{"range", &criteria.Range{Field: "product.price", Parameters: map[criteria.RangeOperator]float64{criteria.GT: 10, criteria.LTE: 30}}, []string{"p2", "p3"}},
		{"to-one path", &criteria.Equals{Field: "product.manufacturer.name", Value: "Globex"}, []string{"p3"}},
		{"many-to-many path", &criteria.Equals{Field: "product.categories.name", Value: "Sale"}, []string{"p1"}},
		{"nested path", &criteria.Equals{Field: "product.categories.parent.name", Value: "Chairs"}, []string{"p1"}},
		{"not", &criteria.Not{Operator: criteria.OperatorOr, Queries: []criteria.Filter{
			&criteria.Equals{Field: "product.id", Value: "p1"},
			&criteria.Equals{Field: "product.id", Value: "p2"},
		}}, []string{"p3", "p4"}},
		{"multi or", &criteria.Multi{Operator: criteria.OperatorOr, Queries: []criteria.Filter{
			&criteria.Equals{Field: "product.id", Value: "p4"},
			&criteria.Contains{Field: "product.name", Value: "glass"},
		}}, []string{"p3", "p4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, nilIfEmpty(f.ids(t, "product", criteria.New().AddFilter(tt.filter))))
		})
	}

	require.Equal(t, []string{"m1"}, f.ids(t, "product_manufacturer", criteria.New().AddFilter(
		&criteria.Equals{Field: "product_manufacturer.products.name", Value: "Pine chair"},
	)))
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestSortingAndPagination(t *testing.T) {
	f := seed(t)

	c := criteria.New().AddSorting(criteria.Sorting{Field: "price", Direction: criteria.Descending})
	c.TotalCountMode = criteria.TotalCountExact
	c.SetLimit(2)
	c.Offset = 1
	res, err := f.store.Search(context.Background(), f.def(t, "product"), c)
	require.NoError(t, err)
	require.Equal(t, 4, res.Total)
	require.Equal(t, []string{"p2", "p1"}, res.IDs())

	c = criteria.New().AddSorting(criteria.Sorting{Field: "manufacturer.name", Direction: criteria.Ascending})
	require.Equal(t, []string{"p4", "p1", "p2", "p3"}, f.ids(t, "product", c))

	c = criteria.New().AddSorting(criteria.Sorting{Field: "parent.name", Direction: criteria.Descending})
	require.Equal(t, []string{"c3", "c1", "c2"}, f.ids(t, "category", c))
}

func TestAggregations(t *testing.T) {
	f := seed(t)

	c := criteria.New()
	c.AddAggregation(&criteria.Aggregation{Name: "stock", Type: criteria.Stats, Field: "product.stock"})
	c.AddAggregation(&criteria.Aggregation{Name: "byMaker", Type: criteria.Sum, Field: "product.price", GroupByFields: []string{"product.manufacturerId"}})
	c.AddAggregation(&criteria.Aggregation{Name: "makers", Type: criteria.ValueCount, Field: "product.manufacturer.name"})
	c.AddAggregation(&criteria.Aggregation{Name: "distinct", Type: criteria.Cardinality, Field: "product.manufacturerId"})

	res, err := f.store.Search(context.Background(), f.def(t, "product"), c)
	require.NoError(t, err)

	want := []dal.AggregationResult{
		{Name: "stock", Buckets: []dal.Bucket{{Keys: []dal.KeyValue{}, Values: []dal.KeyValue{
			{Key: "count", Value: 4},
			{Key: "avg", Value: 3.25},
			{Key: "sum", Value: 13.0},
			{Key: "min", Value: 0},
			{Key: "max", Value: 7},
		}}}},
		{Name: "byMaker", Buckets: []dal.Bucket{
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: nil}}, Values: []dal.KeyValue{{Key: "sum", Value: 0.0}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m1"}}, Values: []dal.KeyValue{{Key: "sum", Value: 30.0}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m2"}}, Values: []dal.KeyValue{{Key: "sum", Value: 30.0}}},
		}},
		{Name: "makers", Buckets: []dal.Bucket{{Keys: []dal.KeyValue{}, Values: []dal.KeyValue{
			{Key: "values", Value: []dal.KeyValue{{Key: "Acme", Value: 2}, {Key: "Globex", Value: 1}}},
		}}}},
		{Name: "distinct", Buckets: []dal.Bucket{{Keys: []dal.KeyValue{}, Values: []dal.KeyValue{{Key: "cardinality", Value: 2}}}}},
	}
	if diff := cmp.Diff(want, res.Aggregations); diff != "" {
		t.Fatalf("aggregations (-want +got):\n%s", diff)
	}

	c = criteria.New()
	c.AddAggregation(&criteria.Aggregation{Name: "bad", Type: criteria.Count, Field: "product.categories.name"})
	_, err = f.store.Search(context.Background(), f.def(t, "product"), c)
	require.ErrorContains(t, err, "crosses a to-many association")
}

func TestWrites(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	product := f.def(t, "product")

	_, err := f.store.Create(ctx, product, []map[string]any{{"id": "p9", "name": "New"}, {"id": "p1", "name": "Dup"}})
	require.ErrorIs(t, err, dal.ErrConflict)
	require.Empty(t, f.ids(t, "product", criteria.New().AddFilter(&criteria.Equals{Field: "product.id", Value: "p9"})))

	_, err = f.store.Update(ctx, product, []map[string]any{{"id": "nope", "name": "x"}})
	require.ErrorIs(t, err, dal.ErrNotFound)

	_, err = f.store.Update(ctx, product, []map[string]any{{"id": "p2", "active": "false", "manufacturer": map[string]any{"id": "m2", "link": "https://globex.example"}}})
	require.NoError(t, err)
	require.Equal(t, []string{"p2", "p4"}, f.ids(t, "product", criteria.New().AddFilter(&criteria.Equals{Field: "product.active", Value: "false"})))
	require.Equal(t, []string{"m2"}, f.ids(t, "product_manufacturer", criteria.New().AddFilter(&criteria.Contains{Field: "product_manufacturer.link", Value: "globex"})))

	ids, err := f.store.Delete(ctx, product, []map[string]any{{"id": "p1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)
	links := f.ids(t, "product_category", criteria.New().AddFilter(&criteria.Equals{Field: "product_category.productId", Value: "p1"}))
	require.Len(t, links, 0)

	_, err = f.store.Delete(ctx, product, []map[string]any{{"id": "p1"}})
	require.ErrorIs(t, err, dal.ErrNotFound)
}

func TestSearchEmptyTables(t *testing.T) {
	f := open(t)
	c := criteria.New().AddFilter(&criteria.Contains{Field: "product.name", Value: "x"})
	c.TotalCountMode = criteria.TotalCountExact
	res, err := f.store.Search(context.Background(), f.def(t, "product"), c)
	require.NoError(t, err)
	require.Zero(t, res.Total)
	require.Empty(t, res.Elements)
}

func TestMigrateAddsColumnsOnReload(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "reload_test.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	current := entity.NewCurrent(entitytest.Registry(t))
	store := sqlite.New(db, current)
	require.NoError(t, store.Migrate(ctx))
	_, err = store.Create(ctx, entitytest.Definition(t, current, "product_manufacturer"), []map[string]any{{"id": "m1", "name": "Acme"}})
	require.NoError(t, err)

	extended := strings.Replace(entitytest.YAML,
		"      - {name: link, kind: string}\n",
		"      - {name: link, kind: string}\n      - {name: country, kind: string}\n", 1)
	reg, err := entity.Parse([]byte(extended))
	require.NoError(t, err)
	current.Store(reg)
	require.NoError(t, store.Migrate(ctx))

	manufacturer := entitytest.Definition(t, current, "product_manufacturer")
	_, err = store.Create(ctx, manufacturer, []map[string]any{{"id": "m2", "name": "Globex", "country": "DE"}})
	require.NoError(t, err)

	res, err := store.Search(ctx, manufacturer, criteria.New().AddFilter(&criteria.Equals{Field: "product_manufacturer.country", Value: "DE"}))
	require.NoError(t, err)
	require.Equal(t, []string{"m2"}, res.IDs())

	res, err = store.Search(ctx, manufacturer, criteria.New())
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, res.IDs())
}
