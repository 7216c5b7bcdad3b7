package introspection

import (
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	schema "github.com/hanpama/dalgraph/internal/schema"
)

// metaTypes are the __-prefixed types of the GraphQL prelude.
var metaTypes = sync.OnceValue(func() []*schema.Type {
	doc, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		panic("introspection: parse prelude: " + err.Error())
	}
	var types []*schema.Type
	for _, def := range doc.Definitions {
		if strings.HasPrefix(def.Name, "__") {
			types = append(types, schema.FromDefinition(def))
		}
	}
	return types
})

// extend returns a copy of sch holding the meta types, with __schema and
// __type added to its query type. sch is not modified.
func extend(sch *schema.Schema) *schema.Schema {
	out := *sch
	out.Types = make(map[string]*schema.Type, len(sch.Types)+len(metaTypes()))
	for name, t := range sch.Types {
		out.Types[name] = t
	}
	for _, t := range metaTypes() {
		out.Types[t.Name] = t
	}

	query := sch.Query()
	if query == nil {
		return &out
	}
	root := *query
	root.Fields = append(append([]*schema.Field(nil), query.Fields...),
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))),
	)
	out.Types[root.Name] = &root
	return &out
}
