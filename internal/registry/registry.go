// Package registry generates the GraphQL schema of an entity catalog.
//
// Every entity gets an object type, an input type, a connection type and an
// edge type, each built at most once per TypeRegistry. Types are allocated
// and cached before their fields are populated, so self-referencing entities
// such as a category with a parent category resolve to the cached handle.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hanpama/dalgraph/internal/apierr"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/schema"
)

// Root type names.
const (
	QueryTypeName    = "Query"
	MutationTypeName = "Mutation"
)

type variant int

const (
	variantPlain variant = iota
	variantInput
	variantConnection
	variantEdge
)

type typeKey struct {
	entity  string
	variant variant
}

// Shape tells the resolver what a root field returns.
type Shape int

const (
	ShapeSingle Shape = iota
	ShapeConnection
	ShapeMutation
	ShapeCustom
)

// Binding maps a root field back to what it serves.
type Binding struct {
	Shape  Shape
	Entity *entity.Definition
	// Mutation is set for ShapeMutation.
	Mutation Mutation
	// Resolve is set for ShapeCustom. Its errors are *apierr.QueryResolvingError.
	Resolve func(ctx context.Context, call Call) (any, error)
}

// Option configures a TypeRegistry.
type Option func(*TypeRegistry)

// WithQueries adds custom fields to the Query root.
func WithQueries(fs *Fields) Option { return func(r *TypeRegistry) { r.queries = fs } }

// WithMutations adds custom fields to the Mutation root.
func WithMutations(fs *Fields) Option { return func(r *TypeRegistry) { r.mutations = fs } }

// WithLogger sets the logger reporting schema construction.
func WithLogger(l *zap.Logger) Option { return func(r *TypeRegistry) { r.logger = l } }

// TypeRegistry builds and owns the generated types of one provider.
type TypeRegistry struct {
	provider  entity.Provider
	queries   *Fields
	mutations *Fields
	logger    *zap.Logger
	title     cases.Caser

	mu           sync.Mutex
	types        map[typeKey]*schema.Type
	order        []*schema.Type
	entityByType map[string]*entity.Definition
	violations   []error

	once     sync.Once
	schema   *schema.Schema
	err      error
	bindings map[string]map[string]Binding
}

// New returns a registry for provider. Nothing is built until Schema or a
// type accessor is called.
func New(provider entity.Provider, opts ...Option) *TypeRegistry {
	r := &TypeRegistry{
		provider:     provider,
		logger:       zap.NewNop(),
		title:        cases.Title(language.English),
		types:        map[typeKey]*schema.Type{},
		entityByType: map[string]*entity.Definition{},
		bindings:     map[string]map[string]Binding{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provider returns the metadata the registry was built from.
func (r *TypeRegistry) Provider() entity.Provider { return r.provider }

// ObjectType returns the object type of def.
func (r *TypeRegistry) ObjectType(def *entity.Definition) *schema.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objectType(def)
}

// InputType returns the input type of def, with natural nullability.
func (r *TypeRegistry) InputType(def *entity.Definition) *schema.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputType(def)
}

// ConnectionType returns the connection type of def.
func (r *TypeRegistry) ConnectionType(def *entity.Definition) *schema.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectionType(def)
}

// EdgeType returns the edge type of def.
func (r *TypeRegistry) EdgeType(def *entity.Definition) *schema.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edgeType(def)
}

// CreateArgs returns the arguments of the create mutation of def. Required
// fields are non-null except ids, timestamps and translations, and provider
// defaults become argument defaults.
func (r *TypeRegistry) CreateArgs(def *entity.Definition) []*schema.InputValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createArgs(def)
}

// UpdateArgs returns the arguments of the update mutation of def. Primary
// keys other than versions are non-null.
func (r *TypeRegistry) UpdateArgs(def *entity.Definition) []*schema.InputValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateArgs(def)
}

// PrimaryKeyArgs returns one argument per primary key of def.
func (r *TypeRegistry) PrimaryKeyArgs(def *entity.Definition) []*schema.InputValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primaryKeyArgs(def)
}

// Entity maps a generated object type name back to its entity.
func (r *TypeRegistry) Entity(typeName string) (*entity.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.entityByType[typeName]
	return def, ok
}

// Binding reports what the root field rootType.field serves. It builds the
// schema if needed.
func (r *TypeRegistry) Binding(rootType, field string) (Binding, bool) {
	r.Schema()
	b, ok := r.bindings[rootType][field]
	return b, ok
}

// Query returns the Query root type of the built schema.
func (r *TypeRegistry) Query() (*schema.Type, error) {
	s, err := r.Schema()
	if err != nil {
		return nil, err
	}
	return s.Query(), nil
}

// Mutation returns the Mutation root type of the built schema, or nil when
// no entity is writable.
func (r *TypeRegistry) Mutation() (*schema.Type, error) {
	s, err := r.Schema()
	if err != nil {
		return nil, err
	}
	return s.Mutation(), nil
}

// Schema builds the complete schema once and returns the same instance on
// every call.
func (r *TypeRegistry) Schema() (*schema.Schema, error) {
	r.once.Do(func() {
		r.schema, r.err = r.build()
		if r.err != nil {
			r.logger.Error("schema construction failed", zap.Error(r.err))
			return
		}
		r.logger.Info("schema built", zap.Int("types", len(r.schema.Types)))
	})
	return r.schema, r.err
}

func (r *TypeRegistry) build() (*schema.Schema, error) {
	s := schema.NewSchema("").AddBuiltins()
	for _, t := range customTypes() {
		s.AddType(t)
	}

	query := schema.NewType(QueryTypeName, schema.TypeKindObject, "")
	mutation := schema.NewType(MutationTypeName, schema.TypeKindObject, "")

	r.mu.Lock()
	for _, def := range r.provider.Definitions() {
		if !def.Exposed() {
			continue
		}
		r.addQueryFields(query, def)
		r.addMutationFields(mutation, def)
	}
	r.mu.Unlock()

	var errs []error
	errs = append(errs, r.addCustomFields(s, query, r.queries)...)
	errs = append(errs, r.addCustomFields(s, mutation, r.mutations)...)

	r.mu.Lock()
	errs = append(errs, r.violations...)
	for _, t := range r.order {
		s.AddType(t)
	}
	r.mu.Unlock()

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	s.AddType(query).SetQueryType(QueryTypeName)
	if len(mutation.Fields) > 0 {
		s.AddType(mutation).SetMutationType(MutationTypeName)
	}
	return s, nil
}

func (r *TypeRegistry) bind(root string, field string, b Binding) error {
	if r.bindings[root] == nil {
		r.bindings[root] = map[string]Binding{}
	}
	if _, dup := r.bindings[root][field]; dup {
		return fmt.Errorf("%w: %s.%s", ErrDuplicateField, root, field)
	}
	r.bindings[root][field] = b
	return nil
}

func (r *TypeRegistry) addQueryFields(query *schema.Type, def *entity.Definition) {
	singular := schema.NewField(entity.FieldName(def.Name), "Fetches one "+r.describe(def)+" by its key", schema.NamedType(r.objectType(def).Name)).
		SetAsync(true)
	for _, arg := range r.primaryKeyArgs(def) {
		singular.AddArgument(arg)
	}
	plural := schema.NewField(entity.PluralFieldName(def.Name), "Searches "+r.describe(def)+" items", schema.NamedType(r.connectionType(def).Name)).
		SetAsync(true)
	for _, arg := range connectionArgs() {
		plural.AddArgument(arg)
	}

	for _, f := range []*schema.Field{singular, plural} {
		shape := ShapeSingle
		if f == plural {
			shape = ShapeConnection
		}
		if err := r.bind(QueryTypeName, f.Name, Binding{Shape: shape, Entity: def}); err != nil {
			r.violations = append(r.violations, err)
			continue
		}
		query.AddField(f)
	}
}

func (r *TypeRegistry) addMutationFields(mutation *schema.Type, def *entity.Definition) {
	object := schema.NamedType(r.objectType(def).Name)
	for _, action := range actions {
		m := Mutation{Action: action, Entity: def.Name}
		var f *schema.Field
		var args []*schema.InputValue
		switch action {
		case ActionCreate:
			f = schema.NewField(m.Name(), "Creates a "+r.describe(def), object)
			args = r.createArgs(def)
		case ActionUpdate:
			f = schema.NewField(m.Name(), "Updates a "+r.describe(def), object)
			args = r.updateArgs(def)
		case ActionDelete:
			f = schema.NewField(m.Name(), "Deletes a "+r.describe(def)+" and returns its id", schema.NamedType("ID"))
			args = r.primaryKeyArgs(def)
		}
		for _, arg := range args {
			f.AddArgument(arg)
		}
		f.SetAsync(true)
		if err := r.bind(MutationTypeName, f.Name, Binding{Shape: ShapeMutation, Entity: def, Mutation: m}); err != nil {
			r.violations = append(r.violations, err)
			continue
		}
		mutation.AddField(f)
	}
}

func (r *TypeRegistry) addCustomFields(s *schema.Schema, root *schema.Type, fs *Fields) []error {
	var errs []error
	for _, name := range fs.Names() {
		f, _ := fs.Get(name)
		if definer, ok := f.(TypeDefiner); ok {
			for _, t := range definer.DefineTypes(r) {
				if _, exists := s.Types[t.Name]; exists {
					errs = append(errs, fmt.Errorf("%w: type %s defined by %s", ErrDuplicateField, t.Name, name))
					continue
				}
				s.AddType(t)
			}
		}

		gf := schema.NewField(name, f.Description(), f.ReturnType(r)).SetAsync(true)
		for _, arg := range f.DefineArgs(r) {
			gf.AddArgument(arg)
		}
		if err := r.bind(root.Name, name, Binding{Shape: ShapeCustom, Resolve: boundary(f)}); err != nil {
			errs = append(errs, err)
			continue
		}
		root.AddField(gf)
	}
	return errs
}

// boundary wraps the resolver of f so every failure reaches clients as a
// query resolving error.
func boundary(f Field) func(ctx context.Context, call Call) (any, error) {
	return func(ctx context.Context, call Call) (any, error) {
		v, err := f.Resolve(ctx, call)
		if err != nil {
			return nil, apierr.Boundary(err)
		}
		return v, nil
	}
}

func (r *TypeRegistry) describe(def *entity.Definition) string {
	return r.title.String(strings.ReplaceAll(def.Name, "_", " "))
}

// cached returns the type stored under key, allocating it with alloc and
// populating it with fill on first use. The handle is cached before fill
// runs.
func (r *TypeRegistry) cached(key typeKey, alloc func() *schema.Type, fill func(*schema.Type)) *schema.Type {
	if t, ok := r.types[key]; ok {
		return t
	}
	t := alloc()
	r.types[key] = t
	r.order = append(r.order, t)
	fill(t)
	return t
}

func (r *TypeRegistry) objectType(def *entity.Definition) *schema.Type {
	return r.cached(typeKey{def.Name, variantPlain},
		func() *schema.Type {
			name := entity.TypeName(def.Name)
			r.entityByType[name] = def
			return schema.NewType(name, schema.TypeKindObject, "The "+r.describe(def)+" entity")
		},
		func(t *schema.Type) {
			for _, f := range def.Fields {
				ref := r.fieldType(def, f, false)
				if ref == nil {
					continue
				}
				gf := schema.NewField(f.GraphQLName(), "", ref)
				if f.Kind.IsToMany() {
					for _, arg := range connectionArgs() {
						gf.AddArgument(arg)
					}
				}
				t.AddField(gf)
			}
		})
}

func (r *TypeRegistry) inputType(def *entity.Definition) *schema.Type {
	return r.cached(typeKey{def.Name, variantInput},
		func() *schema.Type {
			return schema.NewType("Input"+entity.TypeName(def.Name), schema.TypeKindInputObject, "Input of a "+r.describe(def))
		},
		func(t *schema.Type) {
			for _, arg := range r.inputFields(def, nil, false) {
				t.AddInputField(arg)
			}
		})
}

func (r *TypeRegistry) connectionType(def *entity.Definition) *schema.Type {
	return r.cached(typeKey{def.Name, variantConnection},
		func() *schema.Type {
			return schema.NewType(entity.TypeName(def.Name)+"Connection", schema.TypeKindObject, "The result of a search over "+r.describe(def)+" items")
		},
		func(t *schema.Type) {
			edge := r.edgeType(def)
			t.AddField(schema.NewField("total", "The total of items found by the query", named("Int"))).
				AddField(schema.NewField("edges", "A list of the items", listOf(edge.Name))).
				AddField(schema.NewField("pageInfo", "Additional information for pagination", named(PageInfoType))).
				AddField(schema.NewField("aggregations", "The results of the requested aggregations", listOf(AggregationResultsType)))
		})
}

func (r *TypeRegistry) edgeType(def *entity.Definition) *schema.Type {
	return r.cached(typeKey{def.Name, variantEdge},
		func() *schema.Type {
			return schema.NewType(entity.TypeName(def.Name)+"Edge", schema.TypeKindObject, "Contains one "+r.describe(def)+" of a connection")
		},
		func(t *schema.Type) {
			t.AddField(schema.NewField("node", "The item of the edge", named(r.objectType(def).Name))).
				AddField(schema.NewField("cursor", "The cursor to the item of the edge", named("ID")))
		})
}

// fieldType maps a field to its GraphQL type. It returns nil for kinds that
// are not exposed and for associations whose target is unknown; the latter is
// recorded as a violation.
func (r *TypeRegistry) fieldType(def *entity.Definition, f *entity.Field, input bool) *schema.TypeRef {
	var ref *schema.TypeRef
	switch f.Kind {
	case entity.KindID, entity.KindVersion, entity.KindFK:
		ref = named("ID")
	case entity.KindBool:
		ref = named("Boolean")
	case entity.KindDate, entity.KindCreatedAt, entity.KindUpdatedAt:
		ref = named(DateScalar)
	case entity.KindInt:
		ref = named("Int")
	case entity.KindFloat:
		ref = named("Float")
	case entity.KindJSON:
		ref = named(JSONScalar)
	case entity.KindString, entity.KindLongText, entity.KindTranslated:
		ref = named("String")
	case entity.KindOneToMany, entity.KindManyToMany, entity.KindManyToOne, entity.KindOneToOne:
		target, err := r.provider.Definition(f.Reference)
		if err != nil {
			r.violations = append(r.violations, fmt.Errorf("%s.%s: unknown association target: %w", def.Name, f.Name, err))
			return nil
		}
		switch {
		case input && f.Kind.IsToMany():
			ref = listOf(r.inputType(target).Name)
		case input:
			ref = named(r.inputType(target).Name)
		case f.Kind.IsToMany():
			ref = named(r.connectionType(target).Name)
		default:
			ref = named(r.objectType(target).Name)
		}
	default:
		return nil
	}

	if !input && f.Required {
		return schema.NonNullType(ref)
	}
	return ref
}

// inputFields walks def like the object type does, with input types for
// associations. modify may adjust the nullability of each field.
func (r *TypeRegistry) inputFields(def *entity.Definition, modify func(*schema.TypeRef, *entity.Field) *schema.TypeRef, withDefaults bool) []*schema.InputValue {
	var defaults map[string]any
	if withDefaults {
		defaults = def.Defaults(false)
	}
	var out []*schema.InputValue
	for _, f := range def.Fields {
		ref := r.fieldType(def, f, true)
		if ref == nil {
			continue
		}
		if modify != nil {
			ref = modify(ref, f)
		}
		iv := schema.NewInputValue(f.GraphQLName(), "", ref)
		if v, ok := defaults[f.Name]; ok {
			iv.SetDefault(v)
		}
		out = append(out, iv)
	}
	return out
}

func (r *TypeRegistry) createArgs(def *entity.Definition) []*schema.InputValue {
	return r.inputFields(def, func(ref *schema.TypeRef, f *entity.Field) *schema.TypeRef {
		if !f.Required || ref.IsNonNull() {
			return ref
		}
		switch f.Kind {
		case entity.KindID, entity.KindVersion, entity.KindFK,
			entity.KindCreatedAt, entity.KindUpdatedAt, entity.KindTranslations:
			return ref
		}
		return schema.NonNullType(ref)
	}, true)
}

func (r *TypeRegistry) updateArgs(def *entity.Definition) []*schema.InputValue {
	return r.inputFields(def, func(ref *schema.TypeRef, f *entity.Field) *schema.TypeRef {
		if f.PrimaryKey && f.Kind != entity.KindVersion && !ref.IsNonNull() {
			return schema.NonNullType(ref)
		}
		return ref
	}, false)
}

func (r *TypeRegistry) primaryKeyArgs(def *entity.Definition) []*schema.InputValue {
	var out []*schema.InputValue
	for _, f := range def.PrimaryKeys() {
		ref := r.fieldType(def, f, true)
		if ref == nil {
			continue
		}
		if f.Kind != entity.KindVersion {
			ref = schema.NonNullType(ref)
		}
		out = append(out, schema.NewInputValue(f.GraphQLName(), "", ref))
	}
	return out
}
