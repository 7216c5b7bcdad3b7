// Package memory is an in-process dal.Executor keeping every entity in
// insertion-ordered maps. It evaluates the full criteria model and is the
// executor tests and demos run against.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// Store implements dal.Executor.
type Store struct {
	provider entity.Provider

	mu     sync.RWMutex
	tables map[string]*table
}

var _ dal.Executor = (*Store)(nil)

// New returns an empty store for the entities of provider.
func New(provider entity.Provider) *Store {
	return &Store{provider: provider, tables: map[string]*table{}}
}

type table struct {
	order []string
	rows  map[string]entity.Record
}

func (t *table) get(key string) (entity.Record, bool) {
	if t == nil {
		return nil, false
	}
	r, ok := t.rows[key]
	return r, ok
}

func (t *table) put(key string, row entity.Record) {
	if _, ok := t.rows[key]; !ok {
		t.order = append(t.order, key)
	}
	t.rows[key] = row
}

func (t *table) remove(key string) {
	if _, ok := t.rows[key]; !ok {
		return
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// all returns the rows in insertion order. Callers must not modify them.
func (t *table) all() []entity.Record {
	if t == nil {
		return nil
	}
	out := make([]entity.Record, len(t.order))
	for i, k := range t.order {
		out[i] = t.rows[k]
	}
	return out
}

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: map[string]entity.Record{}}
		s.tables[name] = t
	}
	return t
}

// Search runs c against def. Filtering, sorting, aggregation and
// pagination happen under the read lock; associations are loaded afterwards
// through nested searches.
func (s *Store) Search(ctx context.Context, def *entity.Definition, c *criteria.Criteria) (*dal.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c == nil {
		c = criteria.New()
	}

	s.mu.RLock()
	res, err := s.query(def, c)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", def.Name, err)
	}

	if err := dal.LoadAssociations(ctx, s, s.provider, def, res.Elements, c); err != nil {
		return nil, fmt.Errorf("search %s: %w", def.Name, err)
	}
	return res, nil
}

// Create writes payloads and their nested associations.
func (s *Store) Create(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return s.write(ctx, def, dal.WriteCreate, payloads)
}

// Update merges payloads into the records addressed by their primary keys.
func (s *Store) Update(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return s.write(ctx, def, dal.WriteUpdate, payloads)
}

func (s *Store) write(ctx context.Context, def *entity.Definition, op dal.WriteOp, payloads []map[string]any) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := dal.PlanWrites(s.provider, def, op, payloads)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, def.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.apply(plan); err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, def.Name, err)
	}
	return plan.IDs, nil
}

// apply stages every write of plan and commits only when all of them are
// valid.
func (s *Store) apply(plan *dal.Plan) error {
	type ref struct{ entity, key string }
	staged := map[ref]entity.Record{}
	var order []ref

	for _, w := range plan.Writes {
		r := ref{w.Entity.Name, dal.PrimaryKey(w.Entity, w.Row)}
		cur, exists := staged[r]
		if !exists {
			cur, exists = s.tables[r.entity].get(r.key)
		}
		switch {
		case w.Op == dal.WriteCreate && exists:
			return fmt.Errorf("%s %q: %w", r.entity, r.key, dal.ErrConflict)
		case w.Op == dal.WriteUpdate && !exists:
			return fmt.Errorf("%s %q: %w", r.entity, r.key, dal.ErrNotFound)
		}
		merged := make(entity.Record, len(cur)+len(w.Row))
		for k, v := range cur {
			merged[k] = v
		}
		for k, v := range w.Row {
			merged[k] = v
		}
		if _, seen := staged[r]; !seen {
			order = append(order, r)
		}
		staged[r] = merged
	}

	for _, r := range order {
		s.table(r.entity).put(r.key, staged[r])
	}
	return nil
}

// Delete removes the records addressed by keys together with the mapping
// rows pointing at them.
func (s *Store) Delete(ctx context.Context, def *entity.Definition, keys []map[string]any) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tables[def.Name]
	rowKeys := make([]string, len(keys))
	ids := make([]string, len(keys))
	for i, k := range keys {
		row := entity.Record{}
		for name, v := range k {
			f := def.Field(name)
			if f == nil {
				return nil, fmt.Errorf("delete %s: unknown field %q", def.Name, name)
			}
			row[f.Name] = v
		}
		rowKeys[i] = dal.PrimaryKey(def, row)
		existing, ok := t.get(rowKeys[i])
		if !ok {
			return nil, fmt.Errorf("delete %s %q: %w", def.Name, rowKeys[i], dal.ErrNotFound)
		}
		ids[i] = existing.ID()
	}

	for _, key := range rowKeys {
		t.remove(key)
	}
	s.unlinkMappings(def, ids)
	return ids, nil
}

func (s *Store) unlinkMappings(def *entity.Definition, ids []string) {
	gone := map[string]bool{}
	for _, id := range ids {
		gone[id] = true
	}
	for _, m := range s.provider.Definitions() {
		if !m.Mapping {
			continue
		}
		mt := s.tables[m.Name]
		if mt == nil {
			continue
		}
		for _, f := range m.Fields {
			if f.Kind != entity.KindFK || f.Reference != def.Name {
				continue
			}
			for _, row := range mt.all() {
				if gone[fmt.Sprint(row[f.Name])] {
					mt.remove(dal.PrimaryKey(m, row))
				}
			}
		}
	}
}

// Len returns the number of stored records of the named entity.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.tables[name]; t != nil {
		return len(t.order)
	}
	return 0
}
