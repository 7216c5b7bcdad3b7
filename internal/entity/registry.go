package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity is returned when an entity name is not registered.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidDefinition wraps metadata that cannot be served.
	ErrInvalidDefinition = errors.New("invalid entity definition")
)

// Provider supplies entity metadata.
type Provider interface {
	// Definitions lists every known entity in a stable order.
	Definitions() []*Definition
	// Definition returns the metadata of one entity.
	Definition(name string) (*Definition, error)
}

// Registry is an immutable Provider built from a set of definitions.
type Registry struct {
	ordered []*Definition
	byName  map[string]*Definition
}

// NewRegistry validates the definitions against each other.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: entity without name", ErrInvalidDefinition)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: entity %q declared twice", ErrInvalidDefinition, d.Name)
		}
		r.byName[d.Name] = d
		r.ordered = append(r.ordered, d)
	}
	var errs []error
	for _, d := range r.ordered {
		errs = append(errs, r.validate(d)...)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Definition(name string) (*Definition, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return d, nil
}

func (r *Registry) validate(d *Definition) []error {
	var errs []error
	fail := func(f *Field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s.%s: %s", ErrInvalidDefinition, d.Name, f.Name, fmt.Sprintf(format, args...)))
	}
	seen := map[string]bool{}
	for _, f := range d.Fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%w: %s: field without name", ErrInvalidDefinition, d.Name))
			continue
		}
		if seen[f.Name] {
			fail(f, "declared twice")
		}
		seen[f.Name] = true
		if !f.Kind.Valid() {
			fail(f, "unknown kind %q", f.Kind)
			continue
		}
		if !f.Kind.IsAssociation() && f.Kind != KindTranslations {
			continue
		}
		target, ok := r.byName[f.Reference]
		if !ok {
			fail(f, "references unknown entity %q", f.Reference)
			continue
		}
		switch f.Kind {
		case KindManyToOne, KindOneToOne:
			if f.StorageKey == "" || d.Field(f.StorageKey) == nil {
				fail(f, "storage key %q is not a field of %s", f.StorageKey, d.Name)
			}
		case KindOneToMany, KindTranslations:
			if f.ReferenceField == "" || target.Field(f.ReferenceField) == nil {
				fail(f, "reference field %q is not a field of %s", f.ReferenceField, target.Name)
			}
		case KindManyToMany:
			mapping, ok := r.byName[f.Mapping]
			if !ok {
				fail(f, "mapping entity %q is unknown", f.Mapping)
				continue
			}
			if mapping.Field(f.MappingLocal) == nil || mapping.Field(f.MappingReference) == nil {
				fail(f, "mapping fields %q and %q must exist on %s", f.MappingLocal, f.MappingReference, mapping.Name)
			}
		}
	}
	if !d.Mapping && d.Field("id") == nil {
		errs = append(errs, fmt.Errorf("%w: %s: entity needs an id field", ErrInvalidDefinition, d.Name))
	}
	return errs
}
