package resolver

import (
	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// Connection is the value of a connection type: one page of a search.
type Connection struct {
	Total        int
	Edges        []*Edge
	PageInfo     *PageInfo
	Aggregations []*Aggregation
}

// Edge holds one record of a connection and its cursor.
type Edge struct {
	Node   entity.Record
	Cursor string
}

// PageInfo describes the position of a page. Cursors are empty for
// connections wrapping pre-loaded associations.
type PageInfo struct {
	StartCursor     string
	EndCursor       string
	HasNextPage     bool
	HasPreviousPage bool
}

type Aggregation struct {
	Name    string
	Buckets []*AggregationBucket
}

type AggregationBucket struct {
	Keys    []*AggregationKey
	Results []*AggregationResult
}

type AggregationKey struct {
	Field string
	Value any
}

type AggregationResult struct {
	Type   string
	Result any
}

// NewConnection maps a search result to its connection. Cursors encode the
// 1-based absolute row index.
func NewConnection(res *dal.SearchResult) *Connection {
	c := res.Criteria
	if c == nil {
		c = criteria.New()
	}
	return &Connection{
		Total:        res.Total,
		Edges:        newEdges(res.Elements, c.Offset),
		PageInfo:     newPageInfo(c, res.Total),
		Aggregations: newAggregations(res.Aggregations),
	}
}

// wrapCollection turns a loaded to-many association into a connection. It
// carries no total and no page position.
func wrapCollection(coll entity.Collection) *Connection {
	return &Connection{
		Edges:        newEdges(coll, 0),
		PageInfo:     &PageInfo{},
		Aggregations: []*Aggregation{},
	}
}

func newEdges(elements []entity.Record, offset int) []*Edge {
	edges := make([]*Edge, len(elements))
	for i, e := range elements {
		edges[i] = &Edge{Node: e, Cursor: criteria.EncodeCursor(offset + i + 1)}
	}
	return edges
}

func newPageInfo(c *criteria.Criteria, total int) *PageInfo {
	limit := total
	if c.Limit != nil {
		limit = *c.Limit
	}
	return &PageInfo{
		StartCursor:     criteria.EncodeCursor(c.Offset + 1),
		EndCursor:       criteria.EncodeCursor(c.Offset + limit),
		HasNextPage:     total > c.Offset+limit,
		HasPreviousPage: c.Offset > 0,
	}
}

func newAggregations(results []dal.AggregationResult) []*Aggregation {
	out := make([]*Aggregation, len(results))
	for i, r := range results {
		a := &Aggregation{Name: r.Name, Buckets: make([]*AggregationBucket, len(r.Buckets))}
		for j, b := range r.Buckets {
			a.Buckets[j] = newBucket(b)
		}
		out[i] = a
	}
	return out
}

// newBucket flattens nested value lists, such as the per-value counts of a
// value_count aggregation, into one result per entry.
func newBucket(b dal.Bucket) *AggregationBucket {
	out := &AggregationBucket{
		Keys:    make([]*AggregationKey, len(b.Keys)),
		Results: []*AggregationResult{},
	}
	for i, k := range b.Keys {
		out.Keys[i] = &AggregationKey{Field: k.Key, Value: k.Value}
	}
	for _, v := range b.Values {
		if nested, ok := v.Value.([]dal.KeyValue); ok {
			for _, n := range nested {
				out.Results = append(out.Results, &AggregationResult{Type: n.Key, Result: n.Value})
			}
			continue
		}
		out.Results = append(out.Results, &AggregationResult{Type: v.Key, Result: v.Value})
	}
	return out
}
