package executor

import (
	"context"
	"testing"

	language "github.com/hanpama/dalgraph/internal/language"
	schema "github.com/hanpama/dalgraph/internal/schema"
)

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// newSchema builds a schema with builtin scalars and the given root types.
func newSchema(query, mutation *schema.Type, additional ...*schema.Type) *schema.Schema {
	sch := schema.NewSchema("").AddBuiltins()
	if query != nil {
		sch.SetQueryType(query.Name).AddType(query)
	}
	if mutation != nil {
		sch.SetMutationType(mutation.Name).AddType(mutation)
	}
	for _, t := range additional {
		sch.AddType(t)
	}
	return sch
}

func newObjectType(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	for _, field := range fields {
		t.AddField(field)
	}
	return t
}

func asyncField(name string, typ *schema.TypeRef) *schema.Field {
	return schema.NewField(name, "", typ).SetAsync(true)
}

// sourceKey resolves a field by reading name from a map source.
func sourceKey(name string) MockResolver {
	return func(_ context.Context, src any, _ map[string]any) (any, error) {
		return src.(map[string]any)[name], nil
	}
}
