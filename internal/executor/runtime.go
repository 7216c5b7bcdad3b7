package executor

import (
	"context"

	language "github.com/hanpama/dalgraph/internal/language"
)

// Runtime resolves fields for the Executor.
//
// Errors returned from any method become located GraphQL errors; a failed
// Non-Null field nulls its nearest nullable ancestor. Implementations must be
// safe for concurrent operations and must not mutate source or args.
type Runtime interface {
	// ResolveSync reads a sync field from source. It is never called for async
	// fields. (nil, nil) yields null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves every async task of one depth. It returns one
	// result per task, results[i] belonging to tasks[i]. A failed task does
	// not affect the others.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType names the object type of value, a member of abstractType.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue turns a scalar or enum value into a JSON-safe value.
	// Enums serialize to their name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one async field waiting for its depth's batch.
type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
	// Selection is the merged sub-selection requested for the field. Runtimes
	// use it to plan eager loading of nested data.
	Selection language.SelectionSet
	// Fragments are the document's fragment definitions, needed to expand
	// fragment spreads inside Selection.
	Fragments language.FragmentDefinitionList
	// Variables are the operation's coerced variable values.
	Variables map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	Error error
}
