package schema

import (
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// prelude holds the specified scalars and directives. Every schema shares
// these values, so Render recognizes them by identity.
var prelude = sync.OnceValue(func() *Schema {
	doc, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		panic("schema: parse prelude: " + err.Error())
	}
	s := NewSchema("")
	for _, def := range doc.Definitions {
		if def.Kind == ast.Scalar {
			s.AddType(buildDefinition(def, false))
		}
	}
	for _, dir := range doc.Directives {
		s.AddDirective(buildDirective(dir))
	}
	return s
})

// AddBuiltins registers the specified scalars and directives. Render omits
// them.
func (s *Schema) AddBuiltins() *Schema {
	p := prelude()
	for _, t := range p.Types {
		s.AddType(t)
	}
	for _, d := range p.Directives {
		s.AddDirective(d)
	}
	return s
}

func isBuiltinType(t *Type) bool { return prelude().Types[t.Name] == t }

func isBuiltinDirective(d *Directive) bool { return prelude().Directives[d.Name] == d }
