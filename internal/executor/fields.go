package executor

import (
	language "github.com/hanpama/dalgraph/internal/language"
	schema "github.com/hanpama/dalgraph/internal/schema"
)

// fieldGroup is the set of field nodes sharing one response name.
type fieldGroup struct {
	ResponseName string
	Fields       []*language.Field
}

// collectFields groups the fields selected on objectType in document order,
// expanding fragments and applying @skip and @include.
func (x *execution) collectFields(objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	c := collector{x: x, objectType: objectType, index: make(map[string]int), visited: make(map[string]bool)}
	c.collect(selectionSet)
	return c.groups
}

type collector struct {
	x          *execution
	objectType *schema.Type
	groups     []fieldGroup
	index      map[string]int
	visited    map[string]bool
}

func (c *collector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !c.x.included(sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			if i, ok := c.index[name]; ok {
				c.groups[i].Fields = append(c.groups[i].Fields, sel)
				continue
			}
			c.index[name] = len(c.groups)
			c.groups = append(c.groups, fieldGroup{ResponseName: name, Fields: []*language.Field{sel}})

		case *language.InlineFragment:
			if !c.x.included(sel.Directives) || !c.applies(sel.TypeCondition) {
				continue
			}
			c.collect(sel.SelectionSet)

		case *language.FragmentSpread:
			if !c.x.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			frag := c.x.document.Fragments.ForName(sel.Name)
			if frag == nil || !c.applies(frag.TypeCondition) || !c.x.included(frag.Directives) {
				continue
			}
			c.collect(frag.SelectionSet)
		}
	}
}

func (c *collector) applies(typeCondition string) bool {
	return typeCondition == "" || typeCondition == c.objectType.Name
}

// included evaluates @skip(if:) and @include(if:).
func (x *execution) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && x.directiveFlag(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !x.directiveFlag(d) {
		return false
	}
	return true
}

func (x *execution) directiveFlag(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, _ := valueFromASTWithVars(arg.Value, x.variables).(bool)
	return v
}
