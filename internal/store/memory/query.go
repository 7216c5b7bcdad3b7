package memory

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// query evaluates c against the rows of def. The caller holds the read lock.
func (s *Store) query(def *entity.Definition, c *criteria.Criteria) (*dal.SearchResult, error) {
	var matched []entity.Record
	for _, row := range s.tables[def.Name].all() {
		ok, err := s.matchAll(def, row, criteria.OperatorAnd, c.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	if len(c.Sorting) > 0 {
		var err error
		if matched, err = s.sort(def, matched, c.Sorting); err != nil {
			return nil, err
		}
	}

	aggs, err := s.aggregate(def, matched, c.AggregationList())
	if err != nil {
		return nil, err
	}

	res := &dal.SearchResult{Criteria: c, Aggregations: aggs}
	if c.TotalCountMode != criteria.TotalCountNone {
		res.Total = len(matched)
	}

	page := matched
	if c.Offset >= len(page) {
		page = nil
	} else {
		page = page[c.Offset:]
	}
	if c.Limit != nil && *c.Limit < len(page) {
		page = page[:*c.Limit]
	}
	res.Elements = make([]entity.Record, len(page))
	for i, row := range page {
		res.Elements[i] = clone(row)
	}
	return res, nil
}

// sort orders rows by the first value each sorting path reaches. Ties keep
// insertion order.
func (s *Store) sort(def *entity.Definition, rows []entity.Record, sortings []criteria.Sorting) ([]entity.Record, error) {
	type keyed struct {
		row  entity.Record
		keys []any
	}
	items := make([]keyed, len(rows))
	for i, row := range rows {
		items[i].row = row
		for _, srt := range sortings {
			vs, err := s.values(def, row, srt.Field)
			if err != nil {
				return nil, err
			}
			var v any
			if len(vs) > 0 {
				v = vs[0]
			}
			items[i].keys = append(items[i].keys, v)
		}
	}
	slices.SortStableFunc(items, func(a, b keyed) int {
		for n, srt := range sortings {
			d := compare(a.keys[n], b.keys[n])
			if srt.Direction == criteria.Descending {
				d = -d
			}
			if d != 0 {
				return d
			}
		}
		return 0
	})
	out := make([]entity.Record, len(items))
	for i, it := range items {
		out[i] = it.row
	}
	return out, nil
}

func clone(r entity.Record) entity.Record {
	out := make(entity.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (s *Store) matchAll(def *entity.Definition, row entity.Record, op criteria.Operator, filters []criteria.Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	for _, f := range filters {
		ok, err := s.match(def, row, f)
		if err != nil {
			return false, err
		}
		if op == criteria.OperatorOr && ok {
			return true, nil
		}
		if op != criteria.OperatorOr && !ok {
			return false, nil
		}
	}
	return op != criteria.OperatorOr, nil
}

// match reports whether row satisfies f. A path crossing a to-many
// association matches when any reached value does.
func (s *Store) match(def *entity.Definition, row entity.Record, f criteria.Filter) (bool, error) {
	switch f := f.(type) {
	case *criteria.Multi:
		return s.matchAll(def, row, f.Operator, f.Queries)
	case *criteria.Not:
		ok, err := s.matchAll(def, row, f.Operator, f.Queries)
		return !ok, err
	}

	field := f.Fields()[0]
	vs, err := s.values(def, row, criteria.Unprefix(def.Name, field))
	if err != nil {
		return false, err
	}
	switch f := f.(type) {
	case *criteria.Equals:
		if f.Value == nil {
			return len(vs) == 0 || slices.Contains(vs, nil), nil
		}
		want := text(f.Value)
		return slices.ContainsFunc(vs, func(v any) bool { return v != nil && text(v) == want }), nil
	case *criteria.EqualsAny:
		return slices.ContainsFunc(vs, func(v any) bool { return v != nil && slices.Contains(f.Values, text(v)) }), nil
	case *criteria.Contains:
		needle := strings.ToLower(f.Value)
		return slices.ContainsFunc(vs, func(v any) bool {
			return v != nil && strings.Contains(strings.ToLower(text(v)), needle)
		}), nil
	case *criteria.Range:
		return slices.ContainsFunc(vs, func(v any) bool { return inRange(v, f.Parameters) }), nil
	}
	return false, fmt.Errorf("unsupported filter %T", f)
}

func inRange(v any, params map[criteria.RangeOperator]float64) bool {
	n, ok := number(v)
	if !ok {
		return false
	}
	for op, bound := range params {
		switch op {
		case criteria.GT:
			ok = n > bound
		case criteria.GTE:
			ok = n >= bound
		case criteria.LT:
			ok = n < bound
		case criteria.LTE:
			ok = n <= bound
		}
		if !ok {
			return false
		}
	}
	return true
}

// values returns the values path reaches from row. Every segment but the
// last must name an association.
func (s *Store) values(def *entity.Definition, row entity.Record, path string) ([]any, error) {
	head, rest, nested := strings.Cut(path, ".")
	f := def.Field(head)
	if f == nil {
		return nil, fmt.Errorf("unknown field %s.%s", def.Name, head)
	}
	if !nested {
		if f.Kind.IsAssociation() {
			return nil, fmt.Errorf("field %s.%s is an association", def.Name, f.Name)
		}
		v, ok := row[f.Name]
		if !ok {
			return nil, nil
		}
		return []any{v}, nil
	}
	if !f.Kind.IsAssociation() && f.Kind != entity.KindTranslations {
		return nil, fmt.Errorf("field %s.%s is not an association", def.Name, f.Name)
	}
	target, err := s.provider.Definition(f.Reference)
	if err != nil {
		return nil, err
	}
	related, err := s.related(f, row)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, r := range related {
		vs, err := s.values(target, r, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

// related returns the rows the association f of row points at.
func (s *Store) related(f *entity.Field, row entity.Record) ([]entity.Record, error) {
	switch f.Kind {
	case entity.KindManyToOne, entity.KindOneToOne:
		fk := row[f.StorageKey]
		if fk == nil {
			return nil, nil
		}
		if r, ok := s.tables[f.Reference].get(fmt.Sprint(fk)); ok {
			return []entity.Record{r}, nil
		}
		return nil, nil
	case entity.KindOneToMany, entity.KindTranslations:
		var out []entity.Record
		for _, r := range s.tables[f.Reference].all() {
			if fmt.Sprint(r[f.ReferenceField]) == row.ID() {
				out = append(out, r)
			}
		}
		return out, nil
	case entity.KindManyToMany:
		var out []entity.Record
		for _, link := range s.tables[f.Mapping].all() {
			if fmt.Sprint(link[f.MappingLocal]) != row.ID() {
				continue
			}
			if r, ok := s.tables[f.Reference].get(fmt.Sprint(link[f.MappingReference])); ok {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("field %s is not an association", f.Name)
}

// text renders scalar values the way filter values arrive: as strings.
func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, !math.IsNaN(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// compare orders nil first, then numbers numerically, then everything else
// by its text.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		if x, ok := number(a); ok {
			if y, ok := number(b); ok {
				return cmp.Compare(x, y)
			}
		}
	}
	return strings.Compare(text(a), text(b))
}
