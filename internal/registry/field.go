package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanpama/dalgraph/internal/association"
	"github.com/hanpama/dalgraph/internal/schema"
)

// ErrDuplicateField is returned when two root fields share a name.
var ErrDuplicateField = errors.New("duplicate field")

// Call is one invocation of a custom field.
type Call struct {
	Args map[string]any
	// Selection is the requested sub-selection of the field.
	Selection []*association.Selection
}

// Field is an operation added to the Query or Mutation root next to the
// generated entity fields.
//
// ReturnType and DefineArgs run while the schema is built and may use the
// registry's type accessors, but must not call Schema.
type Field interface {
	Description() string
	ReturnType(r *TypeRegistry) *schema.TypeRef
	DefineArgs(r *TypeRegistry) []*schema.InputValue
	Resolve(ctx context.Context, call Call) (any, error)
}

// TypeDefiner is implemented by fields that need named types of their own.
type TypeDefiner interface {
	DefineTypes(r *TypeRegistry) []*schema.Type
}

// Fields is an ordered set of named custom fields.
type Fields struct {
	names  []string
	byName map[string]Field
}

func NewFields() *Fields {
	return &Fields{byName: map[string]Field{}}
}

// Add registers f under name.
func (fs *Fields) Add(name string, f Field) error {
	if _, dup := fs.byName[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateField, name)
	}
	fs.names = append(fs.names, name)
	fs.byName[name] = f
	return nil
}

// Names lists the registered names in insertion order.
func (fs *Fields) Names() []string {
	if fs == nil {
		return nil
	}
	return append([]string(nil), fs.names...)
}

func (fs *Fields) Get(name string) (Field, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.byName[name]
	return f, ok
}

func (fs *Fields) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.names)
}
