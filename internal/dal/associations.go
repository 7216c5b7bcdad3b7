package dal

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/entity"
)

// LoadAssociations eager-loads the associations registered on c into records
// using exec.Search on the target entities. Nested associations are loaded by
// those searches in turn. Pagination of a to-many association applies per
// parent record.
func LoadAssociations(ctx context.Context, exec Executor, provider entity.Provider, def *entity.Definition, records []entity.Record, c *criteria.Criteria) error {
	if len(records) == 0 || len(c.Associations) == 0 {
		return nil
	}

	type plan struct {
		field  *entity.Field
		target *entity.Definition
		nested *criteria.Criteria
	}
	keys := c.AssociationKeys()
	plans := make([]plan, len(keys))
	for i, key := range keys {
		field := def.Field(criteria.Unprefix(def.Name, key))
		if field == nil || !field.Kind.IsAssociation() {
			return fmt.Errorf("association %q: no such association on %s", key, def.Name)
		}
		target, err := provider.Definition(field.Reference)
		if err != nil {
			return fmt.Errorf("association %s.%s: %w", def.Name, field.Name, err)
		}
		plans[i] = plan{field: field, target: target, nested: c.Associations[key]}
	}

	// Loads run concurrently; records are only written after all succeeded.
	assigns := make([]func(), len(plans))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range plans {
		g.Go(func() error {
			var err error
			switch p.field.Kind {
			case entity.KindManyToOne, entity.KindOneToOne:
				assigns[i], err = loadToOne(gctx, exec, p.field, p.target, records, p.nested)
			case entity.KindOneToMany:
				assigns[i], err = loadOneToMany(gctx, exec, p.field, p.target, records, p.nested)
			case entity.KindManyToMany:
				assigns[i], err = loadManyToMany(gctx, exec, provider, p.field, p.target, records, p.nested)
			}
			if err != nil {
				return fmt.Errorf("load %s.%s: %w", def.Name, p.field.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, assign := range assigns {
		if assign != nil {
			assign()
		}
	}
	return nil
}

// keyed returns criteria that select the rows of target whose field is one
// of values, keeping the filters, sorting and associations of nested.
func keyed(target *entity.Definition, field string, values []string, nested *criteria.Criteria) *criteria.Criteria {
	c := criteria.New()
	c.AddFilter(&criteria.EqualsAny{Field: criteria.Prefix(target.Name, field), Values: values})
	if nested != nil {
		c.AddFilter(nested.Filters...)
		c.AddSorting(nested.Sorting...)
		for _, k := range nested.AssociationKeys() {
			c.AddAssociation(k, nested.Associations[k])
		}
	}
	return c
}

func distinct(records []entity.Record, field string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// page applies the nested pagination to the rows of one parent.
func page(rows entity.Collection, nested *criteria.Criteria) entity.Collection {
	if nested == nil {
		return rows
	}
	if nested.Offset >= len(rows) {
		return entity.Collection{}
	}
	rows = rows[nested.Offset:]
	if nested.Limit != nil && *nested.Limit < len(rows) {
		rows = rows[:*nested.Limit]
	}
	return rows
}

func loadToOne(ctx context.Context, exec Executor, field *entity.Field, target *entity.Definition, records []entity.Record, nested *criteria.Criteria) (func(), error) {
	ids := distinct(records, field.StorageKey)
	byID := map[string]entity.Record{}
	if len(ids) > 0 {
		res, err := exec.Search(ctx, target, keyed(target, "id", ids, nested))
		if err != nil {
			return nil, err
		}
		for _, e := range res.Elements {
			byID[e.ID()] = e
		}
	}
	return func() {
		for _, r := range records {
			if rel, ok := byID[fmt.Sprint(r[field.StorageKey])]; ok {
				r[field.Name] = rel
			} else {
				r[field.Name] = nil
			}
		}
	}, nil
}

func loadOneToMany(ctx context.Context, exec Executor, field *entity.Field, target *entity.Definition, records []entity.Record, nested *criteria.Criteria) (func(), error) {
	ids := distinct(records, "id")
	grouped := map[string]entity.Collection{}
	if len(ids) > 0 {
		res, err := exec.Search(ctx, target, keyed(target, field.ReferenceField, ids, nested))
		if err != nil {
			return nil, err
		}
		for _, e := range res.Elements {
			parent := fmt.Sprint(e[field.ReferenceField])
			grouped[parent] = append(grouped[parent], e)
		}
	}
	return func() {
		for _, r := range records {
			r[field.Name] = page(grouped[r.ID()], nested)
		}
	}, nil
}

func loadManyToMany(ctx context.Context, exec Executor, provider entity.Provider, field *entity.Field, target *entity.Definition, records []entity.Record, nested *criteria.Criteria) (func(), error) {
	mapping, err := provider.Definition(field.Mapping)
	if err != nil {
		return nil, err
	}
	ids := distinct(records, "id")
	refsByParent := map[string][]string{}
	var targetIDs []string
	if len(ids) > 0 {
		links, err := exec.Search(ctx, mapping, keyed(mapping, field.MappingLocal, ids, nil))
		if err != nil {
			return nil, err
		}
		for _, l := range links.Elements {
			parent := fmt.Sprint(l[field.MappingLocal])
			ref := fmt.Sprint(l[field.MappingReference])
			refsByParent[parent] = append(refsByParent[parent], ref)
		}
		targetIDs = distinct(links.Elements, field.MappingReference)
	}

	// Search order decides the order of every parent's collection.
	var targets []entity.Record
	if len(targetIDs) > 0 {
		res, err := exec.Search(ctx, target, keyed(target, "id", targetIDs, nested))
		if err != nil {
			return nil, err
		}
		targets = res.Elements
	}

	return func() {
		for _, r := range records {
			linked := map[string]bool{}
			for _, ref := range refsByParent[r.ID()] {
				linked[ref] = true
			}
			var rows entity.Collection
			for _, e := range targets {
				if linked[e.ID()] {
					rows = append(rows, e)
				}
			}
			r[field.Name] = page(rows, nested)
		}
	}, nil
}
