// Package dal defines the query executor contract the GraphQL layer runs
// entity searches and writes against, plus helpers shared by executors.
package dal

import (
	"context"
	"errors"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/entity"
)

var (
	// ErrNotFound is returned by writes addressing a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a create addresses an existing record.
	ErrConflict = errors.New("record already exists")
)

// Executor runs searches and writes for one storage backend.
type Executor interface {
	// Search returns the page selected by c with its associations loaded.
	Search(ctx context.Context, def *entity.Definition, c *criteria.Criteria) (*SearchResult, error)
	// Create writes new records, including nested association payloads, and
	// returns the ids of the top-level records in payload order.
	Create(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error)
	// Update changes existing records addressed by their primary keys.
	Update(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error)
	// Delete removes the records addressed by keys and returns their ids.
	Delete(ctx context.Context, def *entity.Definition, keys []map[string]any) ([]string, error)
}

// KeyValue is one entry of an ordered map.
type KeyValue struct {
	Key   string
	Value any
}

// Bucket is one group of an aggregation. Keys is empty when the aggregation
// is not grouped. A Value may itself be a []KeyValue, e.g. the per-value
// counts of a value_count aggregation.
type Bucket struct {
	Keys   []KeyValue
	Values []KeyValue
}

// AggregationResult is the raw outcome of one requested aggregation.
type AggregationResult struct {
	Name    string
	Buckets []Bucket
}

// SearchResult is one page of records.
type SearchResult struct {
	Criteria *criteria.Criteria
	// Total counts every matching record, ignoring pagination.
	Total        int
	Elements     []entity.Record
	Aggregations []AggregationResult
}

// Aggregation returns the result named name.
func (r *SearchResult) Aggregation(name string) (AggregationResult, bool) {
	for _, a := range r.Aggregations {
		if a.Name == name {
			return a, true
		}
	}
	return AggregationResult{}, false
}

// IDs returns the ids of the elements in order.
func (r *SearchResult) IDs() []string {
	out := make([]string, len(r.Elements))
	for i, e := range r.Elements {
		out[i] = e.ID()
	}
	return out
}
