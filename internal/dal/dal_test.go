package dal_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
)

type planned struct {
	op     dal.WriteOp
	entity string
}

func summary(p *dal.Plan) []planned {
	out := make([]planned, len(p.Writes))
	for i, w := range p.Writes {
		out[i] = planned{w.Op, w.Entity.Name}
	}
	return out
}

func TestPlanNestedCreate(t *testing.T) {
	reg := entitytest.Registry(t)
	product := entitytest.Definition(t, reg, "product")

	plan, err := dal.PlanWrites(reg, product, dal.WriteCreate, []map[string]any{{
		"name":         "Chair",
		"manufacturer": map[string]any{"name": "Acme"},
		"categories": []any{
			map[string]any{"id": "c1"},
			map[string]any{"name": "Garden"},
		},
	}})
	require.NoError(t, err)

	require.Equal(t, []planned{
		{dal.WriteCreate, "product_manufacturer"},
		{dal.WriteCreate, "product"},
		{dal.WriteUpsert, "product_category"},
		{dal.WriteCreate, "category"},
		{dal.WriteUpsert, "product_category"},
	}, summary(plan))

	maker := plan.Writes[0].Row
	row := plan.Writes[1].Row
	require.Len(t, plan.IDs, 1)
	require.Equal(t, plan.IDs[0], row["id"])
	require.NotEmpty(t, row["id"])
	require.Equal(t, maker["id"], row["manufacturerId"])
	require.Equal(t, true, row["active"])
	require.Equal(t, 0, row["stock"])
	require.NotNil(t, row["createdAt"])
	require.NotContains(t, row, "categories")

	require.Equal(t, entity.Record{"productId": row["id"], "categoryId": "c1"}, plan.Writes[2].Row)
	require.Equal(t, entity.Record{"productId": row["id"], "categoryId": plan.Writes[3].Row["id"]}, plan.Writes[4].Row)
}

func TestPlanUpdate(t *testing.T) {
	reg := entitytest.Registry(t)
	folder := entitytest.Definition(t, reg, "media_folder")

	plan, err := dal.PlanWrites(reg, folder, dal.WriteUpdate, []map[string]any{{
		"id":     "f1",
		"name":   "Renamed",
		"parent": map[string]any{"id": "root"},
		"media": []any{
			map[string]any{"id": "m1", "fileName": "a"},
			map[string]any{"fileName": "b"},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"f1"}, plan.IDs)
	require.Equal(t, []planned{
		{dal.WriteUpdate, "media_folder"},
		{dal.WriteUpsert, "media"},
		{dal.WriteCreate, "media"},
	}, summary(plan))

	require.Equal(t, entity.Record{"id": "f1", "name": "Renamed", "parentId": "root"}, plan.Writes[0].Row)
	require.Equal(t, "f1", plan.Writes[1].Row["mediaFolderId"])
	require.Equal(t, "f1", plan.Writes[2].Row["mediaFolderId"])

	plan, err = dal.PlanWrites(reg, folder, dal.WriteUpdate, []map[string]any{{"id": "f1", "parent": nil}})
	require.NoError(t, err)
	require.Equal(t, entity.Record{"id": "f1", "parentId": nil}, plan.Writes[0].Row)
}

func TestPlanErrors(t *testing.T) {
	reg := entitytest.Registry(t)
	product := entitytest.Definition(t, reg, "product")

	_, err := dal.PlanWrites(reg, product, dal.WriteCreate, []map[string]any{{"colour": "red"}})
	require.ErrorContains(t, err, `/0: unknown field "colour" on product`)

	_, err = dal.PlanWrites(reg, product, dal.WriteUpdate, []map[string]any{{"name": "x"}})
	require.ErrorContains(t, err, `missing primary key "id"`)

	_, err = dal.PlanWrites(reg, product, dal.WriteCreate, []map[string]any{{"categories": "c1"}})
	require.ErrorContains(t, err, "/0/categories: expected a list")

	_, err = dal.PlanWrites(reg, product, dal.WriteCreate, []map[string]any{{"manufacturer": map[string]any{"nope": 1}}})
	require.ErrorContains(t, err, `/0/manufacturer: unknown field "nope" on product_manufacturer`)
}

func TestPrimaryKey(t *testing.T) {
	reg := entitytest.Registry(t)
	require.Equal(t, "p1", dal.PrimaryKey(entitytest.Definition(t, reg, "product"), entity.Record{"id": "p1", "versionId": "v"}))
	require.Equal(t, "p1|c1", dal.PrimaryKey(entitytest.Definition(t, reg, "product_category"), entity.Record{"productId": "p1", "categoryId": "c1"}))
}

// tableExecutor serves searches from fixed rows and supports EqualsAny only.
type tableExecutor struct {
	mu       sync.Mutex
	rows     map[string][]entity.Record
	searched []string
}

func (e *tableExecutor) Search(_ context.Context, def *entity.Definition, c *criteria.Criteria) (*dal.SearchResult, error) {
	e.mu.Lock()
	e.searched = append(e.searched, def.Name)
	e.mu.Unlock()

	var out []entity.Record
	for _, r := range e.rows[def.Name] {
		keep := true
		for _, f := range c.Filters {
			in, ok := f.(*criteria.EqualsAny)
			if !ok {
				continue
			}
			v := r[criteria.Unprefix(def.Name, in.Field)]
			match := false
			for _, want := range in.Values {
				if v == want {
					match = true
				}
			}
			keep = keep && match
		}
		if keep {
			out = append(out, entity.Record(copyMap(r)))
		}
	}
	return &dal.SearchResult{Criteria: c, Total: len(out), Elements: out}, nil
}

func copyMap(r entity.Record) map[string]any {
	m := make(map[string]any, len(r))
	for k, v := range r {
		m[k] = v
	}
	return m
}

func (e *tableExecutor) Create(context.Context, *entity.Definition, []map[string]any) ([]string, error) {
	return nil, errors.New("read only")
}

func (e *tableExecutor) Update(context.Context, *entity.Definition, []map[string]any) ([]string, error) {
	return nil, errors.New("read only")
}

func (e *tableExecutor) Delete(context.Context, *entity.Definition, []map[string]any) ([]string, error) {
	return nil, errors.New("read only")
}

func TestLoadAssociations(t *testing.T) {
	reg := entitytest.Registry(t)
	product := entitytest.Definition(t, reg, "product")
	exec := &tableExecutor{rows: map[string][]entity.Record{
		"product_manufacturer": {{"id": "m1", "name": "Acme"}},
		"category":             {{"id": "c1", "name": "Chairs"}, {"id": "c2", "name": "Garden"}, {"id": "c3", "name": "Sale"}},
		"product_category": {
			{"productId": "p1", "categoryId": "c1"},
			{"productId": "p1", "categoryId": "c3"},
			{"productId": "p2", "categoryId": "c2"},
		},
	}}

	c := criteria.New()
	c.AddAssociation("product.manufacturer", criteria.New())
	cats := criteria.New()
	cats.SetLimit(1)
	c.AddAssociation("product.categories", cats)

	records := []entity.Record{
		{"id": "p1", "manufacturerId": "m1"},
		{"id": "p2", "manufacturerId": nil},
	}
	require.NoError(t, dal.LoadAssociations(context.Background(), exec, reg, product, records, c))

	require.Equal(t, entity.Record{"id": "m1", "name": "Acme"}, records[0]["manufacturer"])
	require.Nil(t, records[1]["manufacturer"])
	require.Equal(t, entity.Collection{{"id": "c1", "name": "Chairs"}}, records[0]["categories"])
	require.Equal(t, entity.Collection{{"id": "c2", "name": "Garden"}}, records[1]["categories"])

	c = criteria.New()
	c.AddAssociation("product.price", criteria.New())
	err := dal.LoadAssociations(context.Background(), exec, reg, product, records, c)
	require.ErrorContains(t, err, "no such association")
}

func TestInstrumentPublishes(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var started []events.DALStart
	var finished []events.DALFinish
	eventbus.Subscribe(func(_ context.Context, e events.DALStart) { started = append(started, e) })
	eventbus.Subscribe(func(_ context.Context, e events.DALFinish) { finished = append(finished, e) })

	reg := entitytest.Registry(t)
	exec := dal.Instrument(&tableExecutor{rows: map[string][]entity.Record{
		"category": {{"id": "c1"}, {"id": "c2"}},
	}})

	_, err := exec.Search(context.Background(), entitytest.Definition(t, reg, "category"), criteria.New())
	require.NoError(t, err)
	_, err = exec.Delete(context.Background(), entitytest.Definition(t, reg, "category"), nil)
	require.Error(t, err)

	require.Equal(t, []events.DALStart{{Operation: "search", Entity: "category"}, {Operation: "delete", Entity: "category"}}, started)
	require.Len(t, finished, 2)
	require.Equal(t, 2, finished[0].Rows)
	require.NoError(t, finished[0].Err)
	require.EqualError(t, finished[1].Err, "read only")
}
