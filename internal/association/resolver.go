// Package association turns the requested selection of an entity field into
// nested criteria describing which associations to eager-load.
package association

import (
	"errors"
	"fmt"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/entity"
)

// ErrAssociationNotFound matches every *NotFoundError.
var ErrAssociationNotFound = errors.New("association not found")

// NotFoundError is returned when a selection with sub-selections names no
// association of the entity.
type NotFoundError struct {
	Entity string
	Field  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Association %q on Entity %q not found", e.Field, e.Entity)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrAssociationNotFound }

// wrapperFields are envelope fields of connections and aggregations. They are
// traversed with the entity of their parent.
var wrapperFields = map[string]bool{
	"edges":        true,
	"node":         true,
	"pageInfo":     true,
	"aggregations": true,
	"results":      true,
	"buckets":      true,
	"keys":         true,
}

// Resolver adds association criteria for every selected association.
type Resolver struct {
	provider entity.Provider
	parser   *criteria.Parser
}

// NewResolver returns a resolver parsing nested arguments with parser.
func NewResolver(provider entity.Provider, parser *criteria.Parser) *Resolver {
	return &Resolver{provider: provider, parser: parser}
}

// AddAssociations registers nested criteria on c for every association in
// sel. Leaf selections are ignored.
func (r *Resolver) AddAssociations(c *criteria.Criteria, sel []*Selection, def *entity.Definition) error {
	for _, s := range sel {
		if len(s.Children) == 0 {
			continue
		}
		field := def.Field(s.Name)
		if field == nil && wrapperFields[s.Name] {
			if err := r.AddAssociations(c, s.Children, def); err != nil {
				return err
			}
			continue
		}
		if field == nil || !field.Kind.IsAssociation() {
			return &NotFoundError{Entity: def.Name, Field: s.Name}
		}

		target, err := r.provider.Definition(field.Reference)
		if err != nil {
			return fmt.Errorf("association %s.%s: %w", def.Name, field.Name, err)
		}
		nested, err := r.parser.Parse(s.Args, target)
		if err != nil {
			return err
		}
		if err := r.AddAssociations(nested, s.Children, target); err != nil {
			return err
		}
		c.AddAssociation(def.Name+"."+field.Name, nested)
	}
	return nil
}
