// Package criteria describes entity searches independently of any storage:
// filters, sorting, pagination, aggregations and associations to eager-load.
package criteria

import (
	"sort"
	"strings"
)

// TotalCountMode tells executors how to compute SearchResult totals.
type TotalCountMode int

const (
	TotalCountNone TotalCountMode = iota
	TotalCountExact
	TotalCountNextPages
)

// Direction orders a Sorting.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// Sorting orders results by one field.
type Sorting struct {
	Field     string
	Direction Direction
}

// AggregationType names an aggregation function.
type AggregationType string

const (
	Avg         AggregationType = "avg"
	Cardinality AggregationType = "cardinality"
	Count       AggregationType = "count"
	Max         AggregationType = "max"
	Min         AggregationType = "min"
	Stats       AggregationType = "stats"
	Sum         AggregationType = "sum"
	ValueCount  AggregationType = "value_count"
)

// AggregationTypes lists every supported aggregation in declaration order.
var AggregationTypes = []AggregationType{Avg, Cardinality, Count, Max, Min, Stats, Sum, ValueCount}

// Valid reports whether t is a supported aggregation.
func (t AggregationType) Valid() bool {
	for _, known := range AggregationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Aggregation requests one aggregation over the matched rows.
type Aggregation struct {
	Name          string
	Type          AggregationType
	Field         string
	GroupByFields []string
}

// Criteria is a storage independent search request.
type Criteria struct {
	// Limit is nil when every row is requested.
	Limit          *int
	Offset         int
	TotalCountMode TotalCountMode
	// Filters are combined with AND.
	Filters []Filter
	Sorting []Sorting
	// Aggregations is keyed by name.
	Aggregations map[string]*Aggregation
	// Associations is keyed by "<entity>.<field>".
	Associations map[string]*Criteria

	aggregationOrder []string
}

// New returns empty criteria.
func New() *Criteria {
	return &Criteria{
		Aggregations: map[string]*Aggregation{},
		Associations: map[string]*Criteria{},
	}
}

// SetLimit sets the page size.
func (c *Criteria) SetLimit(limit int) *Criteria {
	c.Limit = &limit
	return c
}

// AddFilter appends filters to the AND-combined root list.
func (c *Criteria) AddFilter(filters ...Filter) *Criteria {
	c.Filters = append(c.Filters, filters...)
	return c
}

// AddSorting appends sortings.
func (c *Criteria) AddSorting(sortings ...Sorting) *Criteria {
	c.Sorting = append(c.Sorting, sortings...)
	return c
}

// AddAggregation registers a by name. A later aggregation with the same name
// replaces the earlier one but keeps its position.
func (c *Criteria) AddAggregation(a *Aggregation) *Criteria {
	if c.Aggregations == nil {
		c.Aggregations = map[string]*Aggregation{}
	}
	if _, exists := c.Aggregations[a.Name]; !exists {
		c.aggregationOrder = append(c.aggregationOrder, a.Name)
	}
	c.Aggregations[a.Name] = a
	return c
}

// AggregationList returns the aggregations in the order they were added.
func (c *Criteria) AggregationList() []*Aggregation {
	out := make([]*Aggregation, 0, len(c.Aggregations))
	seen := make(map[string]bool, len(c.Aggregations))
	for _, name := range c.aggregationOrder {
		if a, ok := c.Aggregations[name]; ok && !seen[name] {
			out = append(out, a)
			seen[name] = true
		}
	}
	// Aggregations set directly on the map have no recorded position.
	var rest []string
	for name := range c.Aggregations {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, c.Aggregations[name])
	}
	return out
}

// AddAssociation registers nested criteria for the association key
// "<entity>.<field>".
func (c *Criteria) AddAssociation(key string, nested *Criteria) *Criteria {
	if c.Associations == nil {
		c.Associations = map[string]*Criteria{}
	}
	c.Associations[key] = nested
	return c
}

// AssociationKeys returns the registered association keys sorted.
func (c *Criteria) AssociationKeys() []string {
	keys := make([]string, 0, len(c.Associations))
	for k := range c.Associations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Association returns the nested criteria for field of entity, if any.
func (c *Criteria) Association(entity, field string) (*Criteria, bool) {
	nested, ok := c.Associations[entity+"."+field]
	return nested, ok
}

// Prefix qualifies field with the entity name unless it already is.
func Prefix(entity, field string) string {
	if strings.HasPrefix(field, entity+".") {
		return field
	}
	return entity + "." + field
}

// Unprefix strips a leading "<entity>." from field.
func Unprefix(entity, field string) string {
	return strings.TrimPrefix(field, entity+".")
}
