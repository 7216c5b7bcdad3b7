package schema

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Render prints s as SDL. Types and directives are sorted by name and the
// specified builtins are left out, so the output is stable across runs.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	p := &printer{s: s}
	p.schemaBlock()
	for _, name := range slices.Sorted(maps.Keys(s.Types)) {
		if t := s.Types[name]; !isBuiltinType(t) {
			p.typeDef(t)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(s.Directives)) {
		if d := s.Directives[name]; !isBuiltinDirective(d) {
			p.directiveDef(d)
		}
	}
	return strings.TrimRight(p.b.String(), "\n") + "\n"
}

type printer struct {
	s *Schema
	b strings.Builder
}

func (p *printer) printf(format string, args ...any) { fmt.Fprintf(&p.b, format, args...) }

// schemaBlock is written only when a root type is not named after its
// operation.
func (p *printer) schemaBlock() {
	roots := [][3]string{
		{"query", "Query", p.s.QueryType},
		{"mutation", "Mutation", p.s.MutationType},
		{"subscription", "Subscription", p.s.SubscriptionType},
	}
	conventional := true
	for _, r := range roots {
		if r[2] != "" && r[2] != r[1] {
			conventional = false
		}
	}
	if conventional {
		return
	}
	p.b.WriteString("schema {\n")
	for _, r := range roots {
		if r[2] != "" {
			p.printf("  %s: %s\n", r[0], r[2])
		}
	}
	p.b.WriteString("}\n\n")
}

func (p *printer) description(indent, desc string) {
	if desc == "" {
		return
	}
	p.printf("%s\"\"\"\n%s%s\n%s\"\"\"\n", indent, indent, strings.ReplaceAll(desc, `"""`, `\"""`), indent)
}

func (p *printer) typeDef(t *Type) {
	p.description("", t.Description)
	switch t.Kind {
	case TypeKindScalar:
		p.printf("scalar %s", t.Name)
		if t.SpecifiedByURL != nil {
			p.printf(" @specifiedBy(url: %s)", strconv.Quote(*t.SpecifiedByURL))
		}
		p.b.WriteString("\n\n")
	case TypeKindUnion:
		p.printf("union %s = %s\n\n", t.Name, strings.Join(t.PossibleTypes, " | "))
	case TypeKindEnum:
		p.printf("enum %s {\n", t.Name)
		for _, v := range t.EnumValues {
			p.description("  ", v.Description)
			p.printf("  %s%s\n", v.Name, deprecated(v.IsDeprecated, v.DeprecationReason))
		}
		p.b.WriteString("}\n\n")
	case TypeKindInputObject:
		p.printf("input %s", t.Name)
		if t.OneOf {
			p.b.WriteString(" @oneOf")
		}
		p.b.WriteString(" {\n")
		for _, f := range t.InputFields {
			p.description("  ", f.Description)
			p.printf("  %s\n", p.inputValue(f))
		}
		p.b.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type"
		if t.Kind == TypeKindInterface {
			keyword = "interface"
		}
		p.printf("%s %s", keyword, t.Name)
		if len(t.Interfaces) > 0 {
			p.printf(" implements %s", strings.Join(t.Interfaces, " & "))
		}
		p.b.WriteString(" {\n")
		for _, f := range t.Fields {
			p.description("  ", f.Description)
			p.printf("  %s%s: %s%s\n", f.Name, p.arguments(f.Arguments), f.Type, deprecated(f.IsDeprecated, f.DeprecationReason))
		}
		p.b.WriteString("}\n\n")
	}
}

func (p *printer) directiveDef(d *Directive) {
	p.description("", d.Description)
	p.printf("directive @%s%s", d.Name, p.arguments(d.Arguments))
	if d.IsRepeatable {
		p.b.WriteString(" repeatable")
	}
	p.printf(" on %s\n\n", strings.Join(d.Locations, " | "))
}

func (p *printer) arguments(args []*InputValue) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = p.inputValue(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (p *printer) inputValue(v *InputValue) string {
	out := v.Name + ": " + v.Type.String()
	if v.DefaultValue != nil {
		out += " = " + RenderDefault(p.s, v.Type, v.DefaultValue)
	}
	return out + deprecated(v.IsDeprecated, v.DeprecationReason)
}

func deprecated(is bool, reason string) string {
	switch {
	case !is:
		return ""
	case reason == "":
		return " @deprecated"
	}
	return " @deprecated(reason: " + strconv.Quote(reason) + ")"
}

// RenderValue prints a Go value as a GraphQL literal. Map keys are sorted.
func RenderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		return renderList(v, func(item any) string { return RenderValue(item) })
	case map[string]any:
		return renderObject(v, func(_ string, item any) string { return RenderValue(item) })
	}
	// ints, bools and unquoted enum names
	return fmt.Sprint(value)
}

// RenderDefault prints a default value of type t. Strings bound to an enum
// print as enum names and input object fields follow their own types.
func RenderDefault(s *Schema, t *TypeRef, value any) string {
	if s == nil || t == nil || value == nil {
		return RenderValue(value)
	}
	switch t.Kind {
	case TypeRefKindNonNull:
		return RenderDefault(s, t.OfType, value)
	case TypeRefKindList:
		items, ok := value.([]any)
		if !ok {
			return RenderDefault(s, t.OfType, value)
		}
		return renderList(items, func(item any) string { return RenderDefault(s, t.OfType, item) })
	}

	def := s.Types[t.Named]
	switch {
	case def == nil:
	case def.Kind == TypeKindEnum:
		if name, ok := value.(string); ok {
			return name
		}
	case def.Kind == TypeKindInputObject:
		if fields, ok := value.(map[string]any); ok {
			return renderObject(fields, func(name string, item any) string {
				var ft *TypeRef
				if f := def.InputField(name); f != nil {
					ft = f.Type
				}
				return RenderDefault(s, ft, item)
			})
		}
	}
	return RenderValue(value)
}

func renderList(items []any, render func(any) string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = render(item)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func renderObject(fields map[string]any, render func(string, any) string) string {
	parts := make([]string, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		parts = append(parts, name+": "+render(name, fields[name]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
