// Package introspection answers the __schema and __type fields of a schema.
package introspection

import (
	"context"
	"slices"
	"strings"

	executor "github.com/hanpama/dalgraph/internal/executor"
	schema "github.com/hanpama/dalgraph/internal/schema"
)

// Wrap extends sch with the introspection types and root fields. The returned
// runtime answers fields of schema metadata values and delegates everything
// else to base.
func Wrap(base executor.Runtime, sch *schema.Schema) (executor.Runtime, *schema.Schema) {
	return &runtime{Runtime: base, sch: sch}, extend(sch)
}

type runtime struct {
	executor.Runtime
	sch *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if objectType == r.sch.QueryType {
		switch field {
		case "__schema":
			return r.sch, nil
		case "__type":
			name, _ := args["name"].(string)
			if t, ok := r.sch.Types[name]; ok {
				return t, nil
			}
			return nil, nil
		}
	}
	if v, ok := r.meta(source, field, args); ok {
		return v, nil
	}
	return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
}

func (r *runtime) meta(source any, field string, args map[string]any) (any, bool) {
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, args)
	case *schema.TypeRef:
		if src.Kind == schema.TypeRefKindNamed {
			if t, ok := r.sch.Types[src.Named]; ok {
				return r.typeField(t, field, args)
			}
			return nil, true
		}
		switch field {
		case "kind":
			return string(src.Kind), true
		case "ofType":
			return src.OfType, true
		}
		return nil, true
	case *schema.Field:
		switch field {
		case "name":
			return src.Name, true
		case "description":
			return optional(src.Description), true
		case "args":
			return visible(src.Arguments, args, inputDeprecated), true
		case "type":
			return src.Type, true
		case "isDeprecated":
			return src.IsDeprecated, true
		case "deprecationReason":
			return reason(src.IsDeprecated, src.DeprecationReason), true
		}
	case *schema.InputValue:
		switch field {
		case "name":
			return src.Name, true
		case "description":
			return optional(src.Description), true
		case "type":
			return src.Type, true
		case "defaultValue":
			if src.DefaultValue == nil {
				return nil, true
			}
			return schema.RenderDefault(r.sch, src.Type, src.DefaultValue), true
		case "isDeprecated":
			return src.IsDeprecated, true
		case "deprecationReason":
			return reason(src.IsDeprecated, src.DeprecationReason), true
		}
	case *schema.EnumValue:
		switch field {
		case "name":
			return src.Name, true
		case "description":
			return optional(src.Description), true
		case "isDeprecated":
			return src.IsDeprecated, true
		case "deprecationReason":
			return reason(src.IsDeprecated, src.DeprecationReason), true
		}
	case *schema.Directive:
		switch field {
		case "name":
			return src.Name, true
		case "description":
			return optional(src.Description), true
		case "isRepeatable":
			return src.IsRepeatable, true
		case "locations":
			return slices.Clone(src.Locations), true
		case "args":
			return visible(src.Arguments, args, inputDeprecated), true
		}
	}
	return nil, false
}

func (r *runtime) schemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "types":
		types := make([]*schema.Type, 0, len(sch.Types))
		for _, t := range sch.Types {
			types = append(types, t)
		}
		slices.SortFunc(types, func(a, b *schema.Type) int { return strings.Compare(a.Name, b.Name) })
		return types, true
	case "queryType":
		return r.named(sch.QueryType), true
	case "mutationType":
		return r.named(sch.MutationType), true
	case "subscriptionType":
		return r.named(sch.SubscriptionType), true
	case "directives":
		dirs := make([]*schema.Directive, 0, len(sch.Directives))
		for _, d := range sch.Directives {
			dirs = append(dirs, d)
		}
		slices.SortFunc(dirs, func(a, b *schema.Directive) int { return strings.Compare(a.Name, b.Name) })
		return dirs, true
	case "description":
		return optional(sch.Description), true
	}
	return nil, false
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) (any, bool) {
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return t.OneOf, true
	case "ofType":
		return nil, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return visible(t.Fields, args, func(f *schema.Field) bool { return f.IsDeprecated }), true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return r.types(t.Interfaces), true
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, true
		}
		return r.types(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		return visible(t.EnumValues, args, func(v *schema.EnumValue) bool { return v.IsDeprecated }), true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return visible(t.InputFields, args, inputDeprecated), true
	}
	return nil, false
}

func (r *runtime) named(name string) any {
	if t, ok := r.sch.Types[name]; ok {
		return t
	}
	return nil
}

func (r *runtime) types(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t, ok := r.sch.Types[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// visible keeps definition order and drops deprecated items unless the
// includeDeprecated argument is true.
func visible[T any](items []T, args map[string]any, deprecated func(T) bool) []T {
	include, _ := args["includeDeprecated"].(bool)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if include || !deprecated(item) {
			out = append(out, item)
		}
	}
	return out
}

func inputDeprecated(v *schema.InputValue) bool { return v.IsDeprecated }

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func reason(deprecated bool, r string) any {
	if !deprecated {
		return nil
	}
	return r
}
