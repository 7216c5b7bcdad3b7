package memory

import (
	"fmt"
	"strings"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// aggregate computes aggs over the matched rows, before pagination.
func (s *Store) aggregate(def *entity.Definition, rows []entity.Record, aggs []*criteria.Aggregation) ([]dal.AggregationResult, error) {
	out := make([]dal.AggregationResult, 0, len(aggs))
	for _, a := range aggs {
		groups, err := s.group(def, rows, a.GroupByFields)
		if err != nil {
			return nil, fmt.Errorf("aggregation %q: %w", a.Name, err)
		}
		res := dal.AggregationResult{Name: a.Name}
		for _, g := range groups {
			var vs []any
			for _, row := range g.rows {
				reached, err := s.values(def, row, criteria.Unprefix(def.Name, a.Field))
				if err != nil {
					return nil, fmt.Errorf("aggregation %q: %w", a.Name, err)
				}
				for _, v := range reached {
					if v != nil {
						vs = append(vs, v)
					}
				}
			}
			res.Buckets = append(res.Buckets, dal.Bucket{Keys: g.keys, Values: compute(a.Type, vs)})
		}
		out = append(out, res)
	}
	return out, nil
}

type group struct {
	keys []dal.KeyValue
	rows []entity.Record
}

// group splits rows by the first value of each groupBy path, in order of
// first appearance. Without groupBy fields every row lands in one bucket.
func (s *Store) group(def *entity.Definition, rows []entity.Record, by []string) ([]*group, error) {
	if len(by) == 0 {
		return []*group{{rows: rows}}, nil
	}
	var out []*group
	index := map[string]*group{}
	for _, row := range rows {
		keys := make([]dal.KeyValue, len(by))
		parts := make([]string, len(by))
		for i, field := range by {
			vs, err := s.values(def, row, criteria.Unprefix(def.Name, field))
			if err != nil {
				return nil, err
			}
			var v any
			if len(vs) > 0 {
				v = vs[0]
			}
			keys[i] = dal.KeyValue{Key: field, Value: v}
			if v != nil {
				parts[i] = text(v)
			}
		}
		id := strings.Join(parts, "\x00")
		g, ok := index[id]
		if !ok {
			g = &group{keys: keys}
			index[id] = g
			out = append(out, g)
		}
		g.rows = append(g.rows, row)
	}
	return out, nil
}

func compute(t criteria.AggregationType, vs []any) []dal.KeyValue {
	switch t {
	case criteria.Count:
		return []dal.KeyValue{{Key: "count", Value: len(vs)}}
	case criteria.Cardinality:
		seen := map[string]bool{}
		for _, v := range vs {
			seen[text(v)] = true
		}
		return []dal.KeyValue{{Key: "cardinality", Value: len(seen)}}
	case criteria.Avg:
		return []dal.KeyValue{{Key: "avg", Value: avg(vs)}}
	case criteria.Sum:
		return []dal.KeyValue{{Key: "sum", Value: sum(vs)}}
	case criteria.Min:
		return []dal.KeyValue{{Key: "min", Value: extreme(vs, -1)}}
	case criteria.Max:
		return []dal.KeyValue{{Key: "max", Value: extreme(vs, 1)}}
	case criteria.Stats:
		return []dal.KeyValue{
			{Key: "count", Value: len(vs)},
			{Key: "avg", Value: avg(vs)},
			{Key: "sum", Value: sum(vs)},
			{Key: "min", Value: extreme(vs, -1)},
			{Key: "max", Value: extreme(vs, 1)},
		}
	case criteria.ValueCount:
		var counts []dal.KeyValue
		index := map[string]int{}
		for _, v := range vs {
			key := text(v)
			i, ok := index[key]
			if !ok {
				i = len(counts)
				index[key] = i
				counts = append(counts, dal.KeyValue{Key: key, Value: 0})
			}
			counts[i].Value = counts[i].Value.(int) + 1
		}
		return []dal.KeyValue{{Key: "values", Value: counts}}
	}
	return nil
}

func sum(vs []any) float64 {
	total := 0.0
	for _, v := range vs {
		if n, ok := number(v); ok {
			total += n
		}
	}
	return total
}

func avg(vs []any) any {
	n := 0
	total := 0.0
	for _, v := range vs {
		if f, ok := number(v); ok {
			total += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return total / float64(n)
}

// extreme returns the smallest (dir -1) or largest (dir 1) value.
func extreme(vs []any, dir int) any {
	var best any
	for _, v := range vs {
		if best == nil || compare(v, best)*dir > 0 {
			best = v
		}
	}
	return best
}
