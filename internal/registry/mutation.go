package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/dalgraph/internal/entity"
)

// ErrUnknownMutationAction is returned for a mutation name without a known
// action prefix.
var ErrUnknownMutationAction = errors.New("mutation without valid action prefix")

// Action is the write a generated mutation performs.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var actions = []Action{ActionCreate, ActionUpdate, ActionDelete}

// Mutation identifies a generated mutation field.
type Mutation struct {
	Action Action
	Entity string
}

// Name is the GraphQL field name of m.
func (m Mutation) Name() string {
	return FormatMutation(m.Action, m.Entity)
}

// FormatMutation returns "<action><EntityPascalCase>", e.g. "createProductManufacturer".
func FormatMutation(action Action, entityName string) string {
	return string(action) + entity.TypeName(entityName)
}

// ParseMutation reverses FormatMutation.
func ParseMutation(name string) (Mutation, error) {
	for _, a := range actions {
		rest, ok := strings.CutPrefix(name, string(a))
		if !ok || rest == "" {
			continue
		}
		return Mutation{Action: a, Entity: entity.StorageName(rest)}, nil
	}
	return Mutation{}, fmt.Errorf("%w, got: %s", ErrUnknownMutationAction, name)
}
