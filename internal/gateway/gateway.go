// Package gateway assembles the served GraphQL engine from entity metadata
// and keeps it current when the metadata changes.
package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hanpama/dalgraph/internal/actions"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/registry"
	"github.com/hanpama/dalgraph/internal/resolver"
	"github.com/hanpama/dalgraph/internal/server"
)

// Gateway holds the engine requests are served with. It implements
// server.Source.
type Gateway struct {
	provider *entity.Current
	exec     dal.Executor

	introspection bool
	actions       bool
	onReload      func(context.Context) error
	logger        *zap.Logger

	engine atomic.Pointer[server.Engine]
}

var _ server.Source = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger reporting failed root fields. Reloads are
// published as events.SchemaReload.
func WithLogger(l *zap.Logger) Option { return func(g *Gateway) { g.logger = l } }

// WithIntrospection toggles the __schema and __type fields. It is on by
// default.
func WithIntrospection(enable bool) Option { return func(g *Gateway) { g.introspection = enable } }

// WithActions toggles the built-in custom fields. They are on by default.
func WithActions(enable bool) Option { return func(g *Gateway) { g.actions = enable } }

// OnReload runs fn after new metadata is in place and before the new schema
// is served, e.g. to migrate storage. When fn fails the previous metadata
// is restored.
func OnReload(fn func(context.Context) error) Option {
	return func(g *Gateway) { g.onReload = fn }
}

// New builds the engine for the metadata provider currently holds. exec
// must read its metadata from provider so reloads reach it.
func New(provider *entity.Current, exec dal.Executor, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		provider:      provider,
		exec:          exec,
		introspection: true,
		actions:       true,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	engine, err := g.build(provider.Registry())
	if err != nil {
		return nil, err
	}
	g.engine.Store(engine)
	return g, nil
}

// Engine returns the engine in service.
func (g *Gateway) Engine() *server.Engine { return g.engine.Load() }

func (g *Gateway) build(reg *entity.Registry) (*server.Engine, error) {
	var opts []registry.Option
	opts = append(opts, registry.WithLogger(g.logger))
	if g.actions {
		queries, mutations := registry.NewFields(), registry.NewFields()
		if err := actions.Register(queries, mutations, reg, g.exec); err != nil {
			return nil, fmt.Errorf("register actions: %w", err)
		}
		opts = append(opts, registry.WithQueries(queries), registry.WithMutations(mutations))
	}
	types := registry.New(reg, opts...)
	sch, err := types.Schema()
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	rt := resolver.New(types, g.exec, resolver.WithLogger(g.logger))
	return server.NewEngine(rt, sch, g.introspection)
}

// Reload serves reg. On failure the previous schema stays in service.
func (g *Gateway) Reload(ctx context.Context, reg *entity.Registry) error {
	return g.reloadFrom(ctx, "api", reg)
}

func (g *Gateway) reloadFrom(ctx context.Context, source string, reg *entity.Registry) error {
	start := time.Now()
	err := g.reload(ctx, reg)
	g.report(ctx, source, len(reg.Definitions()), err, time.Since(start))
	return err
}

func (g *Gateway) reload(ctx context.Context, reg *entity.Registry) error {
	engine, err := g.build(reg)
	if err != nil {
		return err
	}
	prev := g.provider.Registry()
	g.provider.Store(reg)
	if g.onReload != nil {
		if err := g.onReload(ctx); err != nil {
			g.provider.Store(prev)
			return err
		}
	}
	g.engine.Store(engine)
	return nil
}

func (g *Gateway) report(ctx context.Context, source string, entities int, err error, d time.Duration) {
	eventbus.Publish(ctx, events.SchemaReload{Source: source, Entities: entities, Err: err, Duration: d})
}

// Watch reloads whenever the metadata file at path changes, until ctx is
// done.
func (g *Gateway) Watch(ctx context.Context, path string) error {
	return entity.Watch(ctx, path, func(reg *entity.Registry, err error) {
		if err != nil {
			g.report(ctx, path, 0, err, 0)
			return
		}
		_ = g.reloadFrom(ctx, path, reg)
	})
}
