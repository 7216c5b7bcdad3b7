package dal

import (
	"context"
	"time"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
)

// Instrument wraps exec so that every operation publishes events.DALStart
// and events.DALFinish on the global bus.
func Instrument(exec Executor) Executor {
	return &instrumented{next: exec}
}

type instrumented struct {
	next Executor
}

func (i *instrumented) Search(ctx context.Context, def *entity.Definition, c *criteria.Criteria) (*SearchResult, error) {
	finish := observe(ctx, "search", def.Name)
	res, err := i.next.Search(ctx, def, c)
	rows := 0
	if res != nil {
		rows = len(res.Elements)
	}
	finish(rows, err)
	return res, err
}

func (i *instrumented) Create(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	finish := observe(ctx, "create", def.Name)
	ids, err := i.next.Create(ctx, def, payloads)
	finish(len(ids), err)
	return ids, err
}

func (i *instrumented) Update(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	finish := observe(ctx, "update", def.Name)
	ids, err := i.next.Update(ctx, def, payloads)
	finish(len(ids), err)
	return ids, err
}

func (i *instrumented) Delete(ctx context.Context, def *entity.Definition, keys []map[string]any) ([]string, error) {
	finish := observe(ctx, "delete", def.Name)
	ids, err := i.next.Delete(ctx, def, keys)
	finish(len(ids), err)
	return ids, err
}

func observe(ctx context.Context, op, name string) func(rows int, err error) {
	start := time.Now()
	eventbus.Publish(ctx, events.DALStart{Operation: op, Entity: name})
	return func(rows int, err error) {
		eventbus.Publish(ctx, events.DALFinish{
			Operation: op,
			Entity:    name,
			Rows:      rows,
			Err:       err,
			Duration:  time.Since(start),
		})
	}
}
