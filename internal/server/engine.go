package server

import (
	"fmt"

	"github.com/hanpama/dalgraph/internal/executor"
	"github.com/hanpama/dalgraph/internal/introspection"
	"github.com/hanpama/dalgraph/internal/language"
	"github.com/hanpama/dalgraph/internal/schema"
)

// Engine is a schema together with the executor serving it. Engines are
// immutable; reloading metadata produces a new one.
type Engine struct {
	// Schema is the served schema without introspection types.
	Schema *schema.Schema
	// SDL is Schema rendered as GraphQL SDL.
	SDL string

	validation *language.ValidationSchema
	exec       *executor.Executor
}

// NewEngine prepares sch for serving with runtime. With introspection the
// __schema and __type fields are added on top of runtime.
func NewEngine(runtime executor.Runtime, sch *schema.Schema, introspect bool) (*Engine, error) {
	sdl := schema.Render(sch)
	validation, err := language.LoadValidationSchema("schema.graphql", sdl)
	if err != nil {
		return nil, fmt.Errorf("load validation schema: %w", err)
	}
	served := sch
	if introspect {
		runtime, served = introspection.Wrap(runtime, sch)
	}
	return &Engine{
		Schema:     sch,
		SDL:        sdl,
		validation: validation,
		exec:       executor.NewExecutor(runtime, served),
	}, nil
}

// Validate checks doc against the schema.
func (e *Engine) Validate(doc *language.QueryDocument) language.ErrorList {
	return language.Validate(e.validation, doc)
}

// Source supplies the engine a request is served with.
type Source interface {
	Engine() *Engine
}

type staticSource struct{ engine *Engine }

func (s staticSource) Engine() *Engine { return s.engine }

// Static returns a Source that always serves e.
func Static(e *Engine) Source { return staticSource{engine: e} }

// New creates a new GraphQL HTTP handler using the given runtime and schema.
func New(runtime executor.Runtime, sch *schema.Schema, opts ...Option) (*Handler, error) {
	op := newOptions(opts)
	engine, err := NewEngine(runtime, sch, op.Introspection)
	if err != nil {
		return nil, err
	}
	return &Handler{source: Static(engine), opt: op}, nil
}
