package criteria

// Filter is one node of a filter expression. The concrete types are Equals,
// EqualsAny, Contains, Range, Not and Multi.
type Filter interface {
	// Fields returns every field path referenced by the filter.
	Fields() []string
	isFilter()
}

// Operator combines the queries of a Not or Multi filter.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// RangeOperator compares a field against a bound.
type RangeOperator string

const (
	GT  RangeOperator = "gt"
	GTE RangeOperator = "gte"
	LT  RangeOperator = "lt"
	LTE RangeOperator = "lte"
)

// Equals matches rows whose field equals Value. A nil Value matches NULL.
type Equals struct {
	Field string
	Value any
}

// EqualsAny matches rows whose field equals one of Values.
type EqualsAny struct {
	Field  string
	Values []string
}

// Contains matches rows whose field contains Value as a substring.
type Contains struct {
	Field string
	Value string
}

// Range matches rows whose field satisfies every bound in Parameters.
type Range struct {
	Field      string
	Parameters map[RangeOperator]float64
}

// Not negates the combination of Queries.
type Not struct {
	Operator Operator
	Queries  []Filter
}

// Multi combines Queries with Operator.
type Multi struct {
	Operator Operator
	Queries  []Filter
}

func (f *Equals) Fields() []string    { return []string{f.Field} }
func (f *EqualsAny) Fields() []string { return []string{f.Field} }
func (f *Contains) Fields() []string  { return []string{f.Field} }
func (f *Range) Fields() []string     { return []string{f.Field} }
func (f *Not) Fields() []string       { return nestedFields(f.Queries) }
func (f *Multi) Fields() []string     { return nestedFields(f.Queries) }

func (*Equals) isFilter()    {}
func (*EqualsAny) isFilter() {}
func (*Contains) isFilter()  {}
func (*Range) isFilter()     {}
func (*Not) isFilter()       {}
func (*Multi) isFilter()     {}

func nestedFields(queries []Filter) []string {
	var out []string
	for _, q := range queries {
		out = append(out, q.Fields()...)
	}
	return out
}
