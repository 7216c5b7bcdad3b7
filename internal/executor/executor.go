package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	language "github.com/hanpama/dalgraph/internal/language"
	schema "github.com/hanpama/dalgraph/internal/schema"
)

// Path locates a value in the response: field names and list indexes.
type Path []PathElement

type PathElement any

func (p Path) String() string {
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		}
	}
	return b.String()
}

func (p Path) append(elem PathElement) Path {
	return append(slices.Clip(p), elem)
}

// Executor runs operations of one schema against a Runtime.
type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// execution is the state of one ExecuteRequest call.
type execution struct {
	ctx       context.Context
	runtime   Runtime
	schema    *schema.Schema
	document  *language.QueryDocument
	variables map[string]any

	// pending holds the async fields of the depth being expanded.
	pending []pendingField
	errors  []GraphQLError
	// nulled holds the paths set to null by a Non-Null violation. Pending
	// fields below them are dropped.
	nulled map[string]struct{}
}

type pendingField struct {
	task   AsyncResolveTask
	path   Path
	typ    *schema.TypeRef
	fields []*language.Field
}

// pendingValue marks a response entry filled in once its batch resolves.
type pendingValue struct{}

// ExecuteRequest runs the named operation of document, or its only operation
// when operationName is empty. Validation is the caller's job. When ctx ends
// between depths the remaining fields fail with the context error.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	operation := selectOperation(document, operationName)
	if operation == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: "operation not found"}}}
	}
	variables, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	var root *schema.Type
	switch operation.Operation {
	case language.Query:
		root = e.schema.Query()
	case language.Mutation:
		root = e.schema.Mutation()
	case language.Subscription:
		root = e.schema.Subscription()
	default:
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("unsupported operation type: %s", operation.Operation)}}}
	}
	if root == nil {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf("schema has no %s type", operation.Operation)}}}
	}

	x := &execution{
		ctx:       ctx,
		runtime:   e.runtime,
		schema:    e.schema,
		document:  document,
		variables: variables,
		errors:    []GraphQLError{},
		nulled:    make(map[string]struct{}),
	}
	data := x.executeSelectionSet(root, operation.SelectionSet, initialValue, Path{})
	if data == nil {
		data = make(map[string]any)
	}
	for len(x.pending) > 0 {
		x.flush(data)
	}
	return &ExecutionResult{Data: data, Errors: x.errors}
}

// executeSelectionSet resolves the sync fields of selectionSet on value and
// queues the async ones. It returns nil when a Non-Null child below the root
// came back null.
func (x *execution) executeSelectionSet(objectType *schema.Type, selectionSet language.SelectionSet, value any, path Path) map[string]any {
	out := make(map[string]any)
	for _, group := range x.collectFields(objectType, selectionSet) {
		name := group.ResponseName
		first := group.Fields[0]
		if first.Name == "__typename" {
			out[name] = objectType.Name
			continue
		}
		def := objectType.Field(first.Name)
		if def == nil {
			x.addError(fmt.Sprintf("Cannot query field %q on type %q.", first.Name, objectType.Name), path.append(name))
			continue
		}
		v := x.executeField(objectType, def, value, group.Fields, path.append(name))
		if isNullish(v) {
			if def.Type.IsNonNull() && len(path) > 0 {
				return nil
			}
			v = nil
		}
		out[name] = v
	}
	return out
}

func (x *execution) executeField(objectType *schema.Type, def *schema.Field, source any, fields []*language.Field, path Path) any {
	args, ok := x.coerceArgumentValues(def, fields[0].Arguments, path)
	if !ok {
		return x.completeValue(def.Type, fields, nil, path)
	}
	if !def.Async {
		v, err := x.runtime.ResolveSync(x.ctx, objectType.Name, def.Name, source, args)
		if err != nil {
			x.addResolverError(err, path)
			v = nil
		}
		return x.completeValue(def.Type, fields, v, path)
	}
	x.pending = append(x.pending, pendingField{
		task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      def.Name,
			Source:     source,
			Args:       args,
			Selection:  mergeSelectionSets(fields),
			Fragments:  x.document.Fragments,
			Variables:  x.variables,
		},
		path:   path,
		typ:    def.Type,
		fields: fields,
	})
	return pendingValue{}
}

// flush resolves the pending fields of one depth in a single batch and
// writes the completed values into data. Fields found while completing are
// queued for the next flush.
func (x *execution) flush(data map[string]any) {
	live := make([]pendingField, 0, len(x.pending))
	for _, p := range x.pending {
		if !x.isNulled(p.path) {
			live = append(live, p)
		}
	}
	x.pending = nil
	if len(live) == 0 {
		return
	}

	var results []AsyncResolveResult
	if err := x.ctx.Err(); err != nil {
		results = make([]AsyncResolveResult, len(live))
		for i := range results {
			results[i].Error = err
		}
	} else {
		tasks := make([]AsyncResolveTask, len(live))
		for i, p := range live {
			tasks[i] = p.task
		}
		results = x.runtime.BatchResolveAsync(x.ctx, tasks)
		if len(results) != len(tasks) {
			err := fmt.Errorf("runtime returned %d results for %d fields", len(results), len(tasks))
			results = make([]AsyncResolveResult, len(tasks))
			for i := range results {
				results[i].Error = err
			}
		}
	}
	for i, p := range live {
		x.completePending(p, results[i], data)
	}
}

func (x *execution) completePending(p pendingField, res AsyncResolveResult, data map[string]any) {
	if x.isNulled(p.path) {
		return
	}
	var v any
	if res.Error != nil {
		x.addResolverError(res.Error, p.path)
	} else {
		v = x.completeValue(p.typ, p.fields, res.Value, p.path)
	}
	if isNullish(v) && p.typ.IsNonNull() {
		// The nearest nullable ancestor of an async field is its root field.
		root := rootField(p.path)
		setPath(data, root, nil)
		x.nulled[root.String()] = struct{}{}
		return
	}
	if isNullish(v) {
		v = nil
	}
	setPath(data, p.path, v)
}

func (x *execution) completeValue(typ *schema.TypeRef, fields []*language.Field, value any, path Path) any {
	if typ.IsNonNull() {
		if isNullish(value) {
			if !x.hasErrorAt(path) {
				x.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", path), path)
			}
			return nil
		}
		return x.completeValue(typ.Unwrap(), fields, value, path)
	}
	if isNullish(value) {
		return nil
	}
	if typ.IsList() {
		return x.completeList(typ, fields, value, path)
	}

	name := typ.BaseName()
	t := x.schema.Types[name]
	if t == nil {
		x.addError(fmt.Sprintf("Unknown type: %s", name), path)
		return nil
	}
	switch t.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := x.runtime.SerializeLeafValue(x.ctx, name, value)
		if err != nil {
			x.addResolverError(err, path)
			return nil
		}
		return v
	case schema.TypeKindObject:
		return x.executeSelectionSet(t, mergeSelectionSets(fields), value, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		concrete, err := x.runtime.ResolveType(x.ctx, name, value)
		if err != nil {
			x.addResolverError(err, path)
			return nil
		}
		ct := x.schema.Types[concrete]
		if ct == nil || ct.Kind != schema.TypeKindObject {
			x.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", name, concrete), path)
			return nil
		}
		return x.executeSelectionSet(ct, mergeSelectionSets(fields), value, path)
	default:
		x.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", t.Kind), path)
		return nil
	}
}

func (x *execution) completeList(typ *schema.TypeRef, fields []*language.Field, value any, path Path) any {
	items, ok := value.([]any)
	if !ok {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice {
			x.addError(fmt.Sprintf("Expected list value, got %T", value), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := typ.Unwrap()
	out := make([]any, len(items))
	for i, item := range items {
		v := x.completeValue(inner, fields, item, path.append(i))
		if isNullish(v) {
			if inner.IsNonNull() {
				return nil
			}
			v = nil
		}
		out[i] = v
	}
	return out
}

func (x *execution) isNulled(p Path) bool {
	if len(x.nulled) == 0 {
		return false
	}
	for i := 1; i <= len(p); i++ {
		if _, ok := x.nulled[p[:i].String()]; ok {
			return true
		}
	}
	return false
}

func (x *execution) addError(message string, path Path) {
	x.errors = append(x.errors, GraphQLError{Message: message, Path: path})
}

// addResolverError records err at path. Errors implementing
// Extensions() map[string]any keep their extensions.
func (x *execution) addResolverError(err error, path Path) {
	gqlErr := GraphQLError{Message: err.Error(), Path: path}
	var ext interface{ Extensions() map[string]any }
	if errors.As(err, &ext) {
		gqlErr.Extensions = ext.Extensions()
	}
	x.errors = append(x.errors, gqlErr)
}

func (x *execution) hasErrorAt(path Path) bool {
	for _, err := range x.errors {
		if slices.Equal(err.Path, path) {
			return true
		}
	}
	return false
}

func rootField(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

func selectOperation(document *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	switch {
	case t == nil:
		return nil
	case t.NonNull:
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	case t.NamedType != "":
		return schema.NamedType(t.NamedType)
	case t.Elem != nil:
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}

// setPath writes value at path in the response tree, creating the objects on
// the way.
func setPath(data map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	var cur any = data
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return
			}
			next, ok := m[e]
			if !ok || next == nil {
				next = make(map[string]any)
				m[e] = next
			}
			cur = next
		case int:
			list, ok := cur.([]any)
			if !ok || e >= len(list) {
				return
			}
			if list[e] == nil {
				list[e] = make(map[string]any)
			}
			cur = list[e]
		}
	}
	switch e := path[len(path)-1].(type) {
	case string:
		if m, ok := cur.(map[string]any); ok {
			m[e] = value
		}
	case int:
		if list, ok := cur.([]any); ok && e < len(list) {
			list[e] = value
		}
	}
}

func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish reports nil and typed nil values.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
