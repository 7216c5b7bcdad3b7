package grpcrt_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/grpcrt"
)

func TestCriteriaCodec(t *testing.T) {
	c := criteria.New().SetLimit(10)
	c.Offset = 20
	c.TotalCountMode = criteria.TotalCountExact
	c.AddFilter(
		&criteria.Equals{Field: "product.id", Value: "p1"},
		&criteria.Equals{Field: "product.manufacturerId", Value: nil},
		&criteria.Multi{Operator: criteria.OperatorOr, Queries: []criteria.Filter{
			&criteria.Contains{Field: "product.name", Value: "chair"},
			&criteria.EqualsAny{Field: "product.id", Values: []string{"p2", "p3"}},
		}},
		&criteria.Not{Operator: criteria.OperatorAnd, Queries: []criteria.Filter{
			&criteria.Range{Field: "product.stock", Parameters: map[criteria.RangeOperator]float64{criteria.GTE: 1, criteria.LT: 5}},
		}},
	)
	c.AddSorting(criteria.Sorting{Field: "product.name", Direction: criteria.Descending})
	c.AddAggregation(&criteria.Aggregation{Name: "stock", Type: criteria.Sum, Field: "product.stock"})
	c.AddAggregation(&criteria.Aggregation{Name: "perMaker", Type: criteria.Count, Field: "product.id", GroupByFields: []string{"product.manufacturerId"}})
	c.AddAssociation("product.categories", criteria.New().SetLimit(2))

	raw, err := grpcrt.EncodeCriteria(c)
	require.NoError(t, err)
	got, err := grpcrt.DecodeCriteria(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(c, got, cmpopts.IgnoreUnexported(criteria.Criteria{})); diff != "" {
		t.Fatalf("criteria mismatch (-want +got):\n%s", diff)
	}
	var names []string
	for _, a := range got.AggregationList() {
		names = append(names, a.Name)
	}
	require.Equal(t, []string{"stock", "perMaker"}, names)
}

func TestDecodeCriteriaRejectsMalformedInput(t *testing.T) {
	_, err := grpcrt.DecodeCriteria([]byte{0xc1})
	require.Error(t, err)

	raw, err := msgpack.Marshal(map[string]any{
		"filters": []any{map[string]any{"type": "fuzzy", "field": "product.name"}},
	})
	require.NoError(t, err)
	_, err = grpcrt.DecodeCriteria(raw)
	require.ErrorContains(t, err, `unknown filter type "fuzzy"`)
}

func TestAggregationsCodec(t *testing.T) {
	in := []dal.AggregationResult{
		{Name: "perMaker", Buckets: []dal.Bucket{
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m1"}}, Values: []dal.KeyValue{{Key: "count", Value: 2}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: nil}}, Values: []dal.KeyValue{{Key: "count", Value: 1}}},
		}},
		{Name: "prices", Buckets: []dal.Bucket{
			{Values: []dal.KeyValue{{Key: "values", Value: []dal.KeyValue{{Key: "10", Value: 1}, {Key: "20", Value: 2}}}}},
		}},
	}

	raw, err := grpcrt.EncodeAggregations(in)
	require.NoError(t, err)
	got, err := grpcrt.DecodeAggregations(raw)
	require.NoError(t, err)

	want := []dal.AggregationResult{
		{Name: "perMaker", Buckets: []dal.Bucket{
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: "m1"}}, Values: []dal.KeyValue{{Key: "count", Value: int64(2)}}},
			{Keys: []dal.KeyValue{{Key: "product.manufacturerId", Value: nil}}, Values: []dal.KeyValue{{Key: "count", Value: int64(1)}}},
		}},
		{Name: "prices", Buckets: []dal.Bucket{
			{Values: []dal.KeyValue{{Key: "values", Value: []dal.KeyValue{{Key: "10", Value: int64(1)}, {Key: "20", Value: int64(2)}}}}},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("aggregations mismatch (-want +got):\n%s", diff)
	}

	empty, err := grpcrt.EncodeAggregations(nil)
	require.NoError(t, err)
	none, err := grpcrt.DecodeAggregations(empty)
	require.NoError(t, err)
	require.Nil(t, none)
}
