package sqlite

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// aggregate runs one GROUP BY query per aggregation over the rows matched by
// where. Paths may only cross to-one associations.
func (s *Store) aggregate(db *gorm.DB, comp *compiler, def *entity.Definition, from, where string, args []any, aggs []*criteria.Aggregation) ([]dal.AggregationResult, error) {
	out := make([]dal.AggregationResult, 0, len(aggs))
	for _, a := range aggs {
		res, err := s.aggregation(db, comp, def, from, where, args, a)
		if err != nil {
			return nil, fmt.Errorf("aggregation %q: %w", a.Name, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Store) aggregation(db *gorm.DB, comp *compiler, def *entity.Definition, from, where string, args []any, a *criteria.Aggregation) (dal.AggregationResult, error) {
	res := dal.AggregationResult{Name: a.Name}

	expr, field, err := comp.value(def, root, criteria.Unprefix(def.Name, a.Field), false)
	if err != nil {
		return res, err
	}
	groups := make([]string, len(a.GroupByFields))
	groupFields := make([]*entity.Field, len(a.GroupByFields))
	for i, g := range a.GroupByFields {
		if groups[i], groupFields[i], err = comp.value(def, root, criteria.Unprefix(def.Name, g), false); err != nil {
			return res, err
		}
	}

	var selects []string
	selects = append(selects, groups...)
	groupBy := append([]string(nil), groups...)
	switch a.Type {
	case criteria.ValueCount:
		selects = append(selects, expr, "COUNT(*)")
		where = where + " AND " + expr + " IS NOT NULL"
		groupBy = append(groupBy, expr)
	default:
		selects = append(selects, aggregateColumns(a.Type, expr)...)
	}

	query := "SELECT " + strings.Join(selects, ", ") + " FROM " + from + " WHERE " + where
	if len(groupBy) > 0 {
		query += " GROUP BY " + strings.Join(groupBy, ", ") + " ORDER BY " + strings.Join(groupBy, ", ")
	}
	rows, err := db.Raw(query, args...).Rows()
	if err != nil {
		return res, err
	}
	defer rows.Close()

	lastKey := ""
	for rows.Next() {
		vals, err := scan(rows, len(selects))
		if err != nil {
			return res, err
		}
		keys := make([]dal.KeyValue, len(groups))
		parts := make([]string, len(groups))
		for i := range groups {
			v, err := decode(groupFields[i], vals[i])
			if err != nil {
				return res, err
			}
			keys[i] = dal.KeyValue{Key: a.GroupByFields[i], Value: v}
			parts[i] = fmt.Sprint(v)
		}
		rest := vals[len(groups):]

		if a.Type != criteria.ValueCount {
			values, err := aggregateValues(a.Type, field, rest)
			if err != nil {
				return res, err
			}
			res.Buckets = append(res.Buckets, dal.Bucket{Keys: keys, Values: values})
			continue
		}

		key := strings.Join(parts, "\x00")
		if len(res.Buckets) == 0 || key != lastKey {
			res.Buckets = append(res.Buckets, dal.Bucket{Keys: keys, Values: []dal.KeyValue{{Key: "values", Value: []dal.KeyValue(nil)}}})
			lastKey = key
		}
		v, err := decode(field, rest[0])
		if err != nil {
			return res, err
		}
		b := &res.Buckets[len(res.Buckets)-1]
		counts := b.Values[0].Value.([]dal.KeyValue)
		b.Values[0].Value = append(counts, dal.KeyValue{Key: text(v), Value: toInt(rest[1])})
	}
	return res, rows.Err()
}

func aggregateColumns(t criteria.AggregationType, expr string) []string {
	switch t {
	case criteria.Count:
		return []string{"COUNT(" + expr + ")"}
	case criteria.Cardinality:
		return []string{"COUNT(DISTINCT " + expr + ")"}
	case criteria.Avg:
		return []string{"AVG(" + expr + ")"}
	case criteria.Sum:
		return []string{"TOTAL(" + expr + ")"}
	case criteria.Min:
		return []string{"MIN(" + expr + ")"}
	case criteria.Max:
		return []string{"MAX(" + expr + ")"}
	case criteria.Stats:
		return []string{"COUNT(" + expr + ")", "AVG(" + expr + ")", "TOTAL(" + expr + ")", "MIN(" + expr + ")", "MAX(" + expr + ")"}
	}
	return nil
}

func aggregateValues(t criteria.AggregationType, field *entity.Field, vals []any) ([]dal.KeyValue, error) {
	extreme := func(raw any) (any, error) { return decode(field, raw) }
	switch t {
	case criteria.Count:
		return []dal.KeyValue{{Key: "count", Value: toInt(vals[0])}}, nil
	case criteria.Cardinality:
		return []dal.KeyValue{{Key: "cardinality", Value: toInt(vals[0])}}, nil
	case criteria.Avg:
		return []dal.KeyValue{{Key: "avg", Value: vals[0]}}, nil
	case criteria.Sum:
		return []dal.KeyValue{{Key: "sum", Value: vals[0]}}, nil
	case criteria.Min, criteria.Max:
		v, err := extreme(vals[0])
		return []dal.KeyValue{{Key: string(t), Value: v}}, err
	case criteria.Stats:
		lo, err := extreme(vals[3])
		if err != nil {
			return nil, err
		}
		hi, err := extreme(vals[4])
		if err != nil {
			return nil, err
		}
		return []dal.KeyValue{
			{Key: "count", Value: toInt(vals[0])},
			{Key: "avg", Value: vals[1]},
			{Key: "sum", Value: vals[2]},
			{Key: "min", Value: lo},
			{Key: "max", Value: hi},
		}, nil
	}
	return nil, fmt.Errorf("unsupported aggregation %q", t)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func text(v any) string {
	switch v := v.(type) {
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
