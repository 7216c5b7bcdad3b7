package criteria

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hanpama/dalgraph/internal/entity"
)

// Argument names understood by the parser.
const (
	ArgFirst         = "first"
	ArgAfter         = "after"
	ArgLast          = "last"
	ArgBefore        = "before"
	ArgID            = "id"
	ArgSortBy        = "sortBy"
	ArgSortDirection = "sortDirection"
	ArgQuery         = "query"
	ArgAggregations  = "aggregations"
)

// Query types accepted in the "type" key of a query argument.
const (
	QueryEquals    = "equals"
	QueryEqualsAny = "equalsAny"
	QueryContains  = "contains"
	QueryRange     = "range"
	QueryNot       = "not"
	QueryMulti     = "multi"
)

// Parser turns GraphQL field arguments into Criteria.
type Parser struct {
	provider entity.Provider
}

// NewParser returns a parser validating association paths against provider.
func NewParser(provider entity.Provider) *Parser {
	return &Parser{provider: provider}
}

// Parse builds the criteria for searching def with args. All problems found
// in query and aggregations are reported together as a *ValidationError.
func (p *Parser) Parse(args map[string]any, def *entity.Definition) (*Criteria, error) {
	c := New()
	c.TotalCountMode = TotalCountExact
	verr := &ValidationError{}

	p.parsePagination(args, c, verr)
	if id, ok := args[ArgID]; ok && id != nil {
		c.AddFilter(&Equals{Field: Prefix(def.Name, "id"), Value: id})
	}
	p.parseSorting(args, c, def, verr)
	if q, ok := args[ArgQuery]; ok && q != nil {
		if f := p.parseQuery(q, "/"+ArgQuery, def, verr); f != nil {
			c.AddFilter(f)
		}
	}
	if aggs, ok := args[ArgAggregations]; ok && aggs != nil {
		p.parseAggregations(aggs, c, def, verr)
	}

	if err := verr.errOrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parsePagination(args map[string]any, c *Criteria, verr *ValidationError) {
	if first, ok := args[ArgFirst]; ok && first != nil {
		limit, err := toInt(first)
		if err != nil || limit < 0 {
			verr.add("/"+ArgFirst, "expected a non-negative integer, got %v", first)
			return
		}
		c.SetLimit(limit)
		if after, ok := args[ArgAfter].(string); ok {
			offset, err := DecodeCursor(after)
			if err != nil {
				verr.add("/"+ArgAfter, "%v", err)
				return
			}
			c.Offset = max(offset, 0)
		}
		return
	}

	last, hasLast := args[ArgLast]
	before, hasBefore := args[ArgBefore].(string)
	if !hasLast || last == nil || !hasBefore {
		return
	}
	limit, err := toInt(last)
	if err != nil || limit < 0 {
		verr.add("/"+ArgLast, "expected a non-negative integer, got %v", last)
		return
	}
	end, err := DecodeCursor(before)
	if err != nil {
		verr.add("/"+ArgBefore, "%v", err)
		return
	}
	// The page ends at the before cursor even when fewer than last rows
	// precede it.
	if end < limit {
		limit = max(end, 0)
	}
	c.SetLimit(limit)
	c.Offset = max(end-limit, 0)
}

func (p *Parser) parseSorting(args map[string]any, c *Criteria, def *entity.Definition, verr *ValidationError) {
	raw, ok := args[ArgSortBy]
	if !ok || raw == nil {
		return
	}
	field, ok := raw.(string)
	if !ok || field == "" {
		verr.add("/"+ArgSortBy, "expected a field name")
		return
	}
	resolved, err := p.resolvePath(def, field)
	if err != nil {
		verr.add("/"+ArgSortBy, "%v", err)
		return
	}

	dir := Ascending
	if d, ok := args[ArgSortDirection].(string); ok && d != "" {
		switch Direction(strings.ToUpper(d)) {
		case Ascending:
		case Descending:
			dir = Descending
		default:
			verr.add("/"+ArgSortDirection, "unknown direction %q", d)
			return
		}
	}
	c.AddSorting(Sorting{Field: Unprefix(def.Name, resolved), Direction: dir})
}

func (p *Parser) parseQuery(raw any, path string, def *entity.Definition, verr *ValidationError) Filter {
	q, ok := raw.(map[string]any)
	if !ok {
		verr.add(path, "expected an object")
		return nil
	}
	typ, _ := q["type"].(string)
	if typ == "" {
		verr.add(path+"/type", "missing query type")
		return nil
	}

	switch typ {
	case QueryEquals, QueryEqualsAny, QueryContains:
		field, ok := p.queryField(q, path, def, verr)
		value, hasValue := q["value"]
		if !hasValue || (value == nil && typ != QueryEquals) {
			verr.add(path+"/value", "missing value for %s query", typ)
			return nil
		}
		if !ok {
			return nil
		}
		switch typ {
		case QueryEquals:
			return &Equals{Field: field, Value: value}
		case QueryEqualsAny:
			s := stringify(value)
			return &EqualsAny{Field: field, Values: strings.Split(s, "|")}
		default:
			return &Contains{Field: field, Value: stringify(value)}
		}

	case QueryRange:
		field, ok := p.queryField(q, path, def, verr)
		params, pok := p.rangeParameters(q["parameters"], path+"/parameters", verr)
		if !ok || !pok {
			return nil
		}
		return &Range{Field: field, Parameters: params}

	case QueryNot, QueryMulti:
		op := OperatorAnd
		if raw, ok := q["operator"].(string); ok && raw != "" {
			switch Operator(strings.ToUpper(raw)) {
			case OperatorAnd:
			case OperatorOr:
				op = OperatorOr
			default:
				verr.add(path+"/operator", "unknown operator %q", raw)
			}
		}
		list, ok := q["queries"].([]any)
		if !ok || len(list) == 0 {
			verr.add(path+"/queries", "%s query needs nested queries", typ)
			return nil
		}
		nested := make([]Filter, 0, len(list))
		for i, item := range list {
			if f := p.parseQuery(item, path+"/queries/"+strconv.Itoa(i), def, verr); f != nil {
				nested = append(nested, f)
			}
		}
		if len(nested) != len(list) {
			return nil
		}
		if typ == QueryNot {
			return &Not{Operator: op, Queries: nested}
		}
		return &Multi{Operator: op, Queries: nested}
	}

	verr.add(path+"/type", "unknown query type %q", typ)
	return nil
}

func (p *Parser) queryField(q map[string]any, path string, def *entity.Definition, verr *ValidationError) (string, bool) {
	field, _ := q["field"].(string)
	if field == "" {
		verr.add(path+"/field", "missing field")
		return "", false
	}
	resolved, err := p.resolvePath(def, field)
	if err != nil {
		verr.add(path+"/field", "%v", err)
		return "", false
	}
	return resolved, true
}

func (p *Parser) rangeParameters(raw any, path string, verr *ValidationError) (map[RangeOperator]float64, bool) {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		verr.add(path, "range query needs parameters")
		return nil, false
	}
	params := make(map[RangeOperator]float64, len(list))
	valid := true
	for i, item := range list {
		ipath := path + "/" + strconv.Itoa(i)
		m, ok := item.(map[string]any)
		if !ok {
			verr.add(ipath, "expected an object")
			valid = false
			continue
		}
		opRaw, _ := m["operator"].(string)
		op := RangeOperator(strings.ToLower(opRaw))
		switch op {
		case GT, GTE, LT, LTE:
		default:
			verr.add(ipath+"/operator", "unknown range operator %q", opRaw)
			valid = false
			continue
		}
		v, err := toFloat(m["value"])
		if err != nil {
			verr.add(ipath+"/value", "%v", err)
			valid = false
			continue
		}
		params[op] = v
	}
	return params, valid
}

func (p *Parser) parseAggregations(raw any, c *Criteria, def *entity.Definition, verr *ValidationError) {
	list, ok := raw.([]any)
	if !ok {
		verr.add("/"+ArgAggregations, "expected a list")
		return
	}
	for i, item := range list {
		path := "/" + ArgAggregations + "/" + strconv.Itoa(i)
		m, ok := item.(map[string]any)
		if !ok {
			verr.add(path, "expected an object")
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			verr.add(path+"/name", "missing aggregation name")
		}
		typ := AggregationType(stringify(m["type"]))
		if !typ.Valid() {
			verr.add(path+"/type", "unknown aggregation type %q", typ)
		}
		field, fok := p.queryField(m, path, def, verr)

		var groupBy []string
		if rawGroups, ok := m["groupByFields"].([]any); ok {
			for j, g := range rawGroups {
				gs, _ := g.(string)
				resolved, err := p.resolvePath(def, gs)
				if err != nil {
					verr.add(path+"/groupByFields/"+strconv.Itoa(j), "%v", err)
					fok = false
					continue
				}
				groupBy = append(groupBy, resolved)
			}
		}

		if name == "" || !typ.Valid() || !fok {
			continue
		}
		c.AddAggregation(&Aggregation{Name: name, Type: typ, Field: field, GroupByFields: groupBy})
	}
}

// resolvePath validates a possibly dotted field path against def and returns
// it prefixed with def's name, every segment spelled as its metadata name.
func (p *Parser) resolvePath(def *entity.Definition, path string) (string, error) {
	segments := strings.Split(Unprefix(def.Name, path), ".")
	out := make([]string, 0, len(segments)+1)
	out = append(out, def.Name)

	current := def
	for i, seg := range segments {
		f := current.Field(seg)
		if f == nil {
			return "", fmt.Errorf("field %q not found on entity %q", seg, current.Name)
		}
		out = append(out, f.Name)
		if i == len(segments)-1 {
			if !f.Kind.IsStored() {
				return "", fmt.Errorf("field %q on entity %q is not searchable", seg, current.Name)
			}
			break
		}
		if !f.Kind.IsAssociation() {
			return "", fmt.Errorf("field %q on entity %q is not an association", seg, current.Name)
		}
		next, err := p.provider.Definition(f.Reference)
		if err != nil {
			return "", err
		}
		current = next
	}
	return strings.Join(out, "."), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%v is not an integer", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("%v is not a number", v)
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
