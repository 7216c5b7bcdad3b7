// Package resolver is the default field resolver of generated schemas. Root
// fields run searches and writes against a dal.Executor; every other field
// reads the value its parent already holds.
package resolver

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/dalgraph/internal/apierr"
	"github.com/hanpama/dalgraph/internal/association"
	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/executor"
	"github.com/hanpama/dalgraph/internal/registry"
)

// Runtime implements executor.Runtime over a type registry and a query
// executor.
//   - Root fields are async. Query tasks of one depth run in parallel,
//     mutation tasks run one after another in document order.
//   - Nested fields are sync and never perform I/O. Associations were loaded
//     by the root search from the requested selection.
//   - Every failure reaches the executor as *apierr.QueryResolvingError.
type Runtime struct {
	reg          *registry.TypeRegistry
	exec         dal.Executor
	parser       *criteria.Parser
	associations *association.Resolver
	logger       *zap.Logger
}

var _ executor.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger reporting failed root fields.
func WithLogger(l *zap.Logger) Option { return func(r *Runtime) { r.logger = l } }

func New(reg *registry.TypeRegistry, exec dal.Executor, opts ...Option) *Runtime {
	parser := criteria.NewParser(reg.Provider())
	r := &Runtime{
		reg:          reg,
		exec:         exec,
		parser:       parser,
		associations: association.NewResolver(reg.Provider(), parser),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveSync reads field from source. Loaded to-many associations are
// wrapped as connections; their arguments are not applied.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	v, err := r.resolveSync(objectType, field, source)
	if err != nil {
		return nil, apierr.Boundary(err)
	}
	return v, nil
}

func (r *Runtime) resolveSync(objectType, field string, source any) (any, error) {
	switch src := source.(type) {
	case *Connection:
		switch field {
		case "total":
			return src.Total, nil
		case "edges":
			return src.Edges, nil
		case "pageInfo":
			return src.PageInfo, nil
		case "aggregations":
			return src.Aggregations, nil
		}
	case *Edge:
		switch field {
		case "node":
			return src.Node, nil
		case "cursor":
			return src.Cursor, nil
		}
	case *PageInfo:
		switch field {
		case "startCursor":
			return optional(src.StartCursor), nil
		case "endCursor":
			return optional(src.EndCursor), nil
		case "hasNextPage":
			return src.HasNextPage, nil
		case "hasPreviousPage":
			return src.HasPreviousPage, nil
		}
	case *Aggregation:
		switch field {
		case "name":
			return src.Name, nil
		case "buckets":
			return src.Buckets, nil
		}
	case *AggregationBucket:
		switch field {
		case "keys":
			return src.Keys, nil
		case "results":
			return src.Results, nil
		}
	case *AggregationKey:
		switch field {
		case "field":
			return src.Field, nil
		case "value":
			return src.Value, nil
		}
	case *AggregationResult:
		switch field {
		case "type":
			return src.Type, nil
		case "result":
			return src.Result, nil
		}
	case entity.Record:
		return r.recordField(objectType, field, src)
	case map[string]any:
		return wrap(src[field]), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("cannot resolve %s.%s on %T", objectType, field, source)
}

func (r *Runtime) recordField(objectType, field string, rec entity.Record) (any, error) {
	def, ok := r.reg.Entity(objectType)
	if !ok {
		return wrap(rec[field]), nil
	}
	get := def.Accessor(field)
	if get == nil {
		return nil, fmt.Errorf("unknown field %s.%s", objectType, field)
	}
	v, _ := get(rec)
	return wrap(v), nil
}

func wrap(v any) any {
	switch v := v.(type) {
	case entity.Collection:
		return wrapCollection(v)
	case []entity.Record:
		return wrapCollection(v)
	}
	return v
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// BatchResolveAsync resolves the root fields of one depth. Results keep the
// order of tasks.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))

	var g errgroup.Group
	for i, t := range tasks {
		if t.ObjectType == registry.MutationTypeName {
			continue
		}
		g.Go(func() error {
			results[i] = r.resolveTask(ctx, t)
			return nil
		})
	}
	for i, t := range tasks {
		if t.ObjectType == registry.MutationTypeName {
			results[i] = r.resolveTask(ctx, t)
		}
	}
	_ = g.Wait()
	return results
}

func (r *Runtime) resolveTask(ctx context.Context, t executor.AsyncResolveTask) executor.AsyncResolveResult {
	v, err := r.resolveRoot(ctx, t)
	if err != nil {
		r.logger.Debug("root field failed",
			zap.String("type", t.ObjectType),
			zap.String("field", t.Field),
			zap.Error(err))
		eventbus.Publish(ctx, events.ResolverError{ObjectType: t.ObjectType, Field: t.Field, Err: err})
		return executor.AsyncResolveResult{Error: apierr.Boundary(err)}
	}
	return executor.AsyncResolveResult{Value: v}
}

func (r *Runtime) resolveRoot(ctx context.Context, t executor.AsyncResolveTask) (any, error) {
	sel, err := association.FromAST(t.Selection, t.Fragments, t.Variables)
	if err != nil {
		return nil, err
	}

	b, ok := r.reg.Binding(t.ObjectType, t.Field)
	if !ok {
		if t.ObjectType == registry.MutationTypeName {
			if _, err := registry.ParseMutation(t.Field); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("no resolver for %s.%s", t.ObjectType, t.Field)
	}

	switch b.Shape {
	case registry.ShapeCustom:
		return b.Resolve(ctx, registry.Call{Args: t.Args, Selection: sel})
	case registry.ShapeConnection:
		res, err := r.search(ctx, b.Entity, t.Args, sel)
		if err != nil {
			return nil, err
		}
		return NewConnection(res), nil
	case registry.ShapeSingle:
		res, err := r.search(ctx, b.Entity, t.Args, sel)
		if err != nil {
			return nil, err
		}
		if len(res.Elements) == 0 {
			return nil, nil
		}
		return res.Elements[0], nil
	case registry.ShapeMutation:
		return r.mutate(ctx, b, t.Args, sel)
	}
	return nil, fmt.Errorf("unsupported root field %s.%s", t.ObjectType, t.Field)
}

func (r *Runtime) search(ctx context.Context, def *entity.Definition, args map[string]any, sel []*association.Selection) (*dal.SearchResult, error) {
	c, err := r.parser.Parse(args, def)
	if err != nil {
		return nil, err
	}
	if err := r.associations.AddAssociations(c, sel, def); err != nil {
		return nil, err
	}
	return r.exec.Search(ctx, def, c)
}

func (r *Runtime) mutate(ctx context.Context, b registry.Binding, args map[string]any, sel []*association.Selection) (any, error) {
	def := b.Entity
	payload := maps.Clone(args)
	if payload == nil {
		payload = map[string]any{}
	}

	var ids []string
	var err error
	switch b.Mutation.Action {
	case registry.ActionCreate:
		ids, err = r.exec.Create(ctx, def, []map[string]any{payload})
	case registry.ActionUpdate:
		ids, err = r.exec.Update(ctx, def, []map[string]any{payload})
	case registry.ActionDelete:
		ids, err = r.exec.Delete(ctx, def, []map[string]any{payload})
	default:
		return nil, fmt.Errorf("%w, got: %s", registry.ErrUnknownMutationAction, b.Mutation.Name())
	}
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s returned no id", b.Mutation.Name())
	}
	if b.Mutation.Action == registry.ActionDelete {
		return ids[0], nil
	}

	c := criteria.New().SetLimit(1)
	c.AddFilter(&criteria.Equals{Field: criteria.Prefix(def.Name, "id"), Value: ids[0]})
	if err := r.associations.AddAssociations(c, sel, def); err != nil {
		return nil, err
	}
	res, err := r.exec.Search(ctx, def, c)
	if err != nil {
		return nil, err
	}
	if len(res.Elements) == 0 {
		return nil, fmt.Errorf("%s %q: %w", def.Name, ids[0], dal.ErrNotFound)
	}
	return res.Elements[0], nil
}

// ResolveType is not supported: generated schemas have no abstract types.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return "", apierr.Boundary(fmt.Errorf("cannot resolve the concrete type of %s", abstractType))
}
