package association

import (
	"fmt"

	"github.com/hanpama/dalgraph/internal/language"
)

// Selection is one requested field with its arguments and sub-selections.
// Children keep document order with duplicate names merged.
type Selection struct {
	Name     string
	Args     map[string]any
	Children []*Selection
}

// Child returns the sub-selection with the given name.
func (s *Selection) Child(name string) *Selection {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FromAST flattens a selection set into selections keyed by field name.
// Fragment spreads and inline fragments are expanded and @skip/@include are
// honored. Aliased fields are merged under their field name.
func FromAST(set language.SelectionSet, fragments language.FragmentDefinitionList, vars map[string]any) ([]*Selection, error) {
	b := &builder{fragments: fragments, vars: vars}
	root := &Selection{}
	if err := b.collect(root, set, map[string]bool{}); err != nil {
		return nil, err
	}
	return root.Children, nil
}

type builder struct {
	fragments language.FragmentDefinitionList
	vars      map[string]any
}

func (b *builder) collect(parent *Selection, set language.SelectionSet, visited map[string]bool) error {
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			if !b.included(s.Directives) {
				continue
			}
			args := make(map[string]any, len(s.Arguments))
			for _, a := range s.Arguments {
				v, err := a.Value.Value(b.vars)
				if err != nil {
					return fmt.Errorf("argument %s.%s: %w", s.Name, a.Name, err)
				}
				args[a.Name] = v
			}
			child := parent.Child(s.Name)
			if child == nil {
				child = &Selection{Name: s.Name, Args: args}
				parent.Children = append(parent.Children, child)
			} else {
				for k, v := range args {
					child.Args[k] = v
				}
			}
			if err := b.collect(child, s.SelectionSet, visited); err != nil {
				return err
			}

		case *language.InlineFragment:
			if !b.included(s.Directives) {
				continue
			}
			if err := b.collect(parent, s.SelectionSet, visited); err != nil {
				return err
			}

		case *language.FragmentSpread:
			if visited[s.Name] || !b.included(s.Directives) {
				continue
			}
			def := b.fragments.ForName(s.Name)
			if def == nil {
				return fmt.Errorf("unknown fragment %q", s.Name)
			}
			visited[s.Name] = true
			err := b.collect(parent, def.SelectionSet, visited)
			delete(visited, s.Name)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && b.condition(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !b.condition(d) {
		return false
	}
	return true
}

func (b *builder) condition(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, err := arg.Value.Value(b.vars)
	if err != nil {
		return false
	}
	on, _ := v.(bool)
	return on
}
