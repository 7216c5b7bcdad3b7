package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/language"
	"github.com/hanpama/dalgraph/internal/schema"
)

func filterSchema() *schema.Schema {
	sch := schema.NewSchema("")
	sch.AddType(schema.NewType("Dir", schema.TypeKindEnum, "").
		AddEnumValue(schema.NewEnumValue("ASC", "")).
		AddEnumValue(schema.NewEnumValue("DESC", "")))
	sch.AddType(schema.NewType("FilterInput", schema.TypeKindInputObject, "").
		AddInputField(schema.NewInputValue("required", "", schema.NonNullType(schema.NamedType("String")))).
		AddInputField(schema.NewInputValue("optional", "", schema.NamedType("Int"))).
		AddInputField(schema.NewInputValue("dir", "", schema.NamedType("Dir")).SetDefault("ASC")))
	return sch
}

func operation(t *testing.T, query string) *language.OperationDefinition {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return doc.Operations[0]
}

func TestCoerceVariableValues(t *testing.T) {
	sch := filterSchema()
	for _, tc := range []struct {
		name  string
		query string
		given map[string]any
		want  map[string]any
		err   string
	}{
		{
			name:  "input object with defaults",
			query: `query($f: FilterInput!) { x }`,
			given: map[string]any{"f": map[string]any{"required": "a"}},
			want:  map[string]any{"f": map[string]any{"required": "a", "dir": "ASC"}},
		},
		{
			name:  "missing required input field",
			query: `query($f: FilterInput!) { x }`,
			given: map[string]any{"f": map[string]any{"optional": 10}},
			err:   "required field 'required'",
		},
		{
			name:  "unknown input field",
			query: `query($f: FilterInput!) { x }`,
			given: map[string]any{"f": map[string]any{"required": "a", "other": 1}},
			err:   "field 'other' is not defined by input type 'FilterInput'",
		},
		{
			name:  "scalar mismatch",
			query: `query($n: Int!) { x }`,
			given: map[string]any{"n": "42"},
			err:   "cannot coerce",
		},
		{
			name:  "whole float to int",
			query: `query($n: Int) { x }`,
			given: map[string]any{"n": float64(42)},
			want:  map[string]any{"n": 42},
		},
		{
			name:  "dollar key",
			query: `query($n: Int) { x }`,
			given: map[string]any{"$n": 1},
			want:  map[string]any{"n": 1},
		},
		{
			name:  "definition default",
			query: `query($d: Dir = DESC, $n: Int) { x }`,
			given: map[string]any{},
			want:  map[string]any{"d": "DESC"},
		},
		{
			name:  "required not provided",
			query: `query($n: Int!) { x }`,
			given: map[string]any{},
			err:   "variable $n of required type Int! was not provided",
		},
		{
			name:  "explicit null for non-null",
			query: `query($n: Int!) { x }`,
			given: map[string]any{"n": nil},
			err:   "cannot be null",
		},
		{
			name:  "unknown enum value",
			query: `query($d: Dir) { x }`,
			given: map[string]any{"d": "UP"},
			err:   "value 'UP' does not exist in enum 'Dir'",
		},
		{
			name:  "single value into list",
			query: `query($ids: [ID!]) { x }`,
			given: map[string]any{"ids": 7},
			want:  map[string]any{"ids": []any{"7"}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := coerceVariableValues(sch, operation(t, tc.query), tc.given)
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLiteralSubstitutesNestedVariables(t *testing.T) {
	op := operation(t, `query { x(f: {required: $r, optional: $missing, list: [1, 2.5, $r]}) }`)
	arg := op.SelectionSet[0].(*language.Field).Arguments.ForName("f")

	got := literal(arg.Value, map[string]any{"r": "a"})
	assert.Equal(t, map[string]any{
		"required": "a",
		"list":     []any{1, 2.5, "a"},
	}, got)
}
