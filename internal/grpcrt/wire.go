package grpcrt

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
)

// Criteria and aggregation results have recursive, loosely typed shapes that
// do not map onto per-entity messages. They travel as msgpack documents in
// bytes fields.

type wireCriteria struct {
	Limit        *int                     `msgpack:"limit,omitempty"`
	Offset       int                      `msgpack:"offset,omitempty"`
	TotalCount   int                      `msgpack:"totalCount,omitempty"`
	Filters      []wireFilter             `msgpack:"filters,omitempty"`
	Sorting      []wireSorting            `msgpack:"sorting,omitempty"`
	Aggregations []wireAggregation        `msgpack:"aggregations,omitempty"`
	Associations map[string]*wireCriteria `msgpack:"associations,omitempty"`
}

type wireFilter struct {
	Type       string             `msgpack:"type"`
	Field      string             `msgpack:"field,omitempty"`
	Value      any                `msgpack:"value,omitempty"`
	Values     []string           `msgpack:"values,omitempty"`
	Parameters map[string]float64 `msgpack:"parameters,omitempty"`
	Operator   string             `msgpack:"operator,omitempty"`
	Queries    []wireFilter       `msgpack:"queries,omitempty"`
}

type wireSorting struct {
	Field     string `msgpack:"field"`
	Direction string `msgpack:"direction"`
}

type wireAggregation struct {
	Name          string   `msgpack:"name"`
	Type          string   `msgpack:"type"`
	Field         string   `msgpack:"field"`
	GroupByFields []string `msgpack:"groupByFields,omitempty"`
}

type wireAggregationResult struct {
	Name    string       `msgpack:"name"`
	Buckets []wireBucket `msgpack:"buckets"`
}

type wireBucket struct {
	Keys   []wireKV `msgpack:"keys,omitempty"`
	Values []wireKV `msgpack:"values,omitempty"`
}

// wireKV holds either a scalar Value or, for per-value counts, Nested.
type wireKV struct {
	Key    string   `msgpack:"key"`
	Value  any      `msgpack:"value,omitempty"`
	Nested []wireKV `msgpack:"nested"`
}

const (
	filterEquals    = "equals"
	filterEqualsAny = "equalsAny"
	filterContains  = "contains"
	filterRange     = "range"
	filterNot       = "not"
	filterMulti     = "multi"
)

// EncodeCriteria serializes c for a SearchRequest.
func EncodeCriteria(c *criteria.Criteria) ([]byte, error) {
	w, err := toWireCriteria(c)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(w)
}

// DecodeCriteria reverses EncodeCriteria.
func DecodeCriteria(b []byte) (*criteria.Criteria, error) {
	var w wireCriteria
	if err := unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return fromWireCriteria(&w)
}

// EncodeAggregations serializes the aggregation results of a search.
func EncodeAggregations(results []dal.AggregationResult) ([]byte, error) {
	if len(results) == 0 {
		return nil, nil
	}
	out := make([]wireAggregationResult, len(results))
	for i, r := range results {
		out[i] = wireAggregationResult{Name: r.Name, Buckets: make([]wireBucket, len(r.Buckets))}
		for j, b := range r.Buckets {
			out[i].Buckets[j] = wireBucket{Keys: toWireKVs(b.Keys), Values: toWireKVs(b.Values)}
		}
	}
	return msgpack.Marshal(out)
}

// DecodeAggregations reverses EncodeAggregations.
func DecodeAggregations(b []byte) ([]dal.AggregationResult, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var in []wireAggregationResult
	if err := unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("decode aggregations: %w", err)
	}
	out := make([]dal.AggregationResult, len(in))
	for i, r := range in {
		out[i] = dal.AggregationResult{Name: r.Name, Buckets: make([]dal.Bucket, len(r.Buckets))}
		for j, b := range r.Buckets {
			out[i].Buckets[j] = dal.Bucket{Keys: fromWireKVs(b.Keys), Values: fromWireKVs(b.Values)}
		}
	}
	return out, nil
}

// EncodeJSON serializes the value of a json field.
func EncodeJSON(v any) ([]byte, error) { return msgpack.Marshal(v) }

// DecodeJSON reverses EncodeJSON. Maps decode as map[string]any.
func DecodeJSON(b []byte) (any, error) {
	var v any
	if err := unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// unmarshal decodes numbers as int64 and float64 whatever their wire width.
func unmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

func toWireCriteria(c *criteria.Criteria) (*wireCriteria, error) {
	if c == nil {
		return nil, nil
	}
	w := &wireCriteria{
		Limit:      c.Limit,
		Offset:     c.Offset,
		TotalCount: int(c.TotalCountMode),
	}
	for _, f := range c.Filters {
		wf, err := toWireFilter(f)
		if err != nil {
			return nil, err
		}
		w.Filters = append(w.Filters, wf)
	}
	for _, s := range c.Sorting {
		w.Sorting = append(w.Sorting, wireSorting{Field: s.Field, Direction: string(s.Direction)})
	}
	for _, a := range c.AggregationList() {
		w.Aggregations = append(w.Aggregations, wireAggregation{
			Name:          a.Name,
			Type:          string(a.Type),
			Field:         a.Field,
			GroupByFields: a.GroupByFields,
		})
	}
	for _, key := range c.AssociationKeys() {
		nested, err := toWireCriteria(c.Associations[key])
		if err != nil {
			return nil, err
		}
		if w.Associations == nil {
			w.Associations = map[string]*wireCriteria{}
		}
		w.Associations[key] = nested
	}
	return w, nil
}

func fromWireCriteria(w *wireCriteria) (*criteria.Criteria, error) {
	c := criteria.New()
	if w == nil {
		return c, nil
	}
	c.Limit = w.Limit
	c.Offset = w.Offset
	c.TotalCountMode = criteria.TotalCountMode(w.TotalCount)
	for _, wf := range w.Filters {
		f, err := fromWireFilter(wf)
		if err != nil {
			return nil, err
		}
		c.AddFilter(f)
	}
	for _, s := range w.Sorting {
		c.AddSorting(criteria.Sorting{Field: s.Field, Direction: criteria.Direction(s.Direction)})
	}
	for _, a := range w.Aggregations {
		c.AddAggregation(&criteria.Aggregation{
			Name:          a.Name,
			Type:          criteria.AggregationType(a.Type),
			Field:         a.Field,
			GroupByFields: a.GroupByFields,
		})
	}
	for key, nested := range w.Associations {
		n, err := fromWireCriteria(nested)
		if err != nil {
			return nil, err
		}
		c.AddAssociation(key, n)
	}
	return c, nil
}

func toWireFilter(f criteria.Filter) (wireFilter, error) {
	switch f := f.(type) {
	case *criteria.Equals:
		return wireFilter{Type: filterEquals, Field: f.Field, Value: f.Value}, nil
	case *criteria.EqualsAny:
		return wireFilter{Type: filterEqualsAny, Field: f.Field, Values: f.Values}, nil
	case *criteria.Contains:
		return wireFilter{Type: filterContains, Field: f.Field, Value: f.Value}, nil
	case *criteria.Range:
		params := make(map[string]float64, len(f.Parameters))
		for op, v := range f.Parameters {
			params[string(op)] = v
		}
		return wireFilter{Type: filterRange, Field: f.Field, Parameters: params}, nil
	case *criteria.Not:
		queries, err := toWireFilters(f.Queries)
		return wireFilter{Type: filterNot, Operator: string(f.Operator), Queries: queries}, err
	case *criteria.Multi:
		queries, err := toWireFilters(f.Queries)
		return wireFilter{Type: filterMulti, Operator: string(f.Operator), Queries: queries}, err
	}
	return wireFilter{}, fmt.Errorf("cannot encode filter %T", f)
}

func toWireFilters(filters []criteria.Filter) ([]wireFilter, error) {
	out := make([]wireFilter, 0, len(filters))
	for _, f := range filters {
		wf, err := toWireFilter(f)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func fromWireFilter(w wireFilter) (criteria.Filter, error) {
	switch w.Type {
	case filterEquals:
		return &criteria.Equals{Field: w.Field, Value: w.Value}, nil
	case filterEqualsAny:
		return &criteria.EqualsAny{Field: w.Field, Values: w.Values}, nil
	case filterContains:
		s, _ := w.Value.(string)
		return &criteria.Contains{Field: w.Field, Value: s}, nil
	case filterRange:
		params := make(map[criteria.RangeOperator]float64, len(w.Parameters))
		for op, v := range w.Parameters {
			params[criteria.RangeOperator(op)] = v
		}
		return &criteria.Range{Field: w.Field, Parameters: params}, nil
	case filterNot, filterMulti:
		queries := make([]criteria.Filter, 0, len(w.Queries))
		for _, q := range w.Queries {
			f, err := fromWireFilter(q)
			if err != nil {
				return nil, err
			}
			queries = append(queries, f)
		}
		if w.Type == filterNot {
			return &criteria.Not{Operator: criteria.Operator(w.Operator), Queries: queries}, nil
		}
		return &criteria.Multi{Operator: criteria.Operator(w.Operator), Queries: queries}, nil
	}
	return nil, fmt.Errorf("unknown filter type %q", w.Type)
}

func toWireKVs(kvs []dal.KeyValue) []wireKV {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]wireKV, len(kvs))
	for i, kv := range kvs {
		if nested, ok := kv.Value.([]dal.KeyValue); ok {
			out[i] = wireKV{Key: kv.Key, Nested: toWireKVs(nested)}
			if out[i].Nested == nil {
				out[i].Nested = []wireKV{}
			}
			continue
		}
		out[i] = wireKV{Key: kv.Key, Value: kv.Value}
	}
	return out
}

func fromWireKVs(kvs []wireKV) []dal.KeyValue {
	if len(kvs) == 0 {
		return nil
	}
	out := make([]dal.KeyValue, len(kvs))
	for i, kv := range kvs {
		if kv.Nested != nil {
			out[i] = dal.KeyValue{Key: kv.Key, Value: fromWireKVs(kv.Nested)}
			continue
		}
		out[i] = dal.KeyValue{Key: kv.Key, Value: kv.Value}
	}
	return out
}
