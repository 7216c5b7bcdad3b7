package entity

import (
	"strings"
)

// Record is a single entity value keyed by field name. Associations that were
// loaded hold a Record (to-one) or a Collection (to-many).
type Record map[string]any

// ID returns the record's "id" value as a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Collection is the loaded value of a to-many association.
type Collection []Record

// Accessor reads one field of a record.
type Accessor func(Record) (any, bool)

// Definition is the metadata of one entity.
type Definition struct {
	// Name is the snake_case storage name, e.g. "product_manufacturer".
	Name string
	// Fields keeps declaration order.
	Fields []*Field
	// Mapping marks a pure join entity without its own identity.
	Mapping bool

	byName    map[string]*Field
	accessors map[string]Accessor
}

// NewDefinition indexes fields by their metadata and GraphQL names and builds
// the accessor table.
func NewDefinition(name string, fields []*Field, mapping bool) *Definition {
	d := &Definition{
		Name:      name,
		Fields:    fields,
		Mapping:   mapping,
		byName:    make(map[string]*Field, len(fields)*2),
		accessors: make(map[string]Accessor, len(fields)*2),
	}
	for _, f := range fields {
		key := f.Name
		get := func(r Record) (any, bool) {
			v, ok := r[key]
			return v, ok
		}
		d.byName[f.Name] = f
		d.accessors[f.Name] = get
		if alias := f.GraphQLName(); alias != f.Name {
			if _, taken := d.byName[alias]; !taken {
				d.byName[alias] = f
				d.accessors[alias] = get
			}
		}
	}
	return d
}

// Field looks a field up by metadata name or GraphQL name.
func (d *Definition) Field(name string) *Field {
	return d.byName[name]
}

// Accessor returns the getter for a field, or nil if the entity has no such
// field.
func (d *Definition) Accessor(name string) Accessor {
	return d.accessors[name]
}

// PrimaryKeys returns the primary key fields in declaration order.
func (d *Definition) PrimaryKeys() []*Field {
	var out []*Field
	for _, f := range d.Fields {
		if f.PrimaryKey {
			out = append(out, f)
		}
	}
	return out
}

// Associations returns the association fields in declaration order.
func (d *Definition) Associations() []*Field {
	var out []*Field
	for _, f := range d.Fields {
		if f.Kind.IsAssociation() {
			out = append(out, f)
		}
	}
	return out
}

// StoredFields returns the fields persisted in the entity's own row.
func (d *Definition) StoredFields() []*Field {
	var out []*Field
	for _, f := range d.Fields {
		if f.Kind.IsStored() {
			out = append(out, f)
		}
	}
	return out
}

// IsTranslation reports whether d holds translated values of another entity.
func (d *Definition) IsTranslation() bool {
	return strings.HasSuffix(d.Name, "_translation")
}

// Exposed reports whether d gets its own root fields.
func (d *Definition) Exposed() bool {
	return !d.Mapping && !d.IsTranslation()
}

// Defaults returns the values applied to fields omitted from a write. Rows
// that already exist get none.
func (d *Definition) Defaults(exists bool) map[string]any {
	out := map[string]any{}
	if exists {
		return out
	}
	for _, f := range d.Fields {
		if f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}
