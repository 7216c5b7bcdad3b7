package entity

import "slices"

// Kind classifies an entity field. It decides the GraphQL type of the field,
// how executors store it and whether it is an association.
type Kind string

const (
	KindID           Kind = "id"
	KindVersion      Kind = "version"
	KindFK           Kind = "fk"
	KindString       Kind = "string"
	KindLongText     Kind = "longtext"
	KindTranslated   Kind = "translated"
	KindBool         Kind = "bool"
	KindInt          Kind = "int"
	KindFloat        Kind = "float"
	KindDate         Kind = "date"
	KindCreatedAt    Kind = "created_at"
	KindUpdatedAt    Kind = "updated_at"
	KindJSON         Kind = "json"
	KindManyToOne    Kind = "many_to_one"
	KindOneToOne     Kind = "one_to_one"
	KindOneToMany    Kind = "one_to_many"
	KindManyToMany   Kind = "many_to_many"
	KindTranslations Kind = "translations"
	KindStruct       Kind = "struct"
)

var kinds = []Kind{
	KindID, KindVersion, KindFK,
	KindString, KindLongText, KindTranslated,
	KindBool, KindInt, KindFloat,
	KindDate, KindCreatedAt, KindUpdatedAt,
	KindJSON,
	KindManyToOne, KindOneToOne, KindOneToMany, KindManyToMany,
	KindTranslations, KindStruct,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return slices.Contains(kinds, k) }

// IsAssociation reports whether the field points at another entity.
func (k Kind) IsAssociation() bool {
	switch k {
	case KindManyToOne, KindOneToOne, KindOneToMany, KindManyToMany:
		return true
	}
	return false
}

// IsToMany reports whether the association yields a collection.
func (k Kind) IsToMany() bool { return k == KindOneToMany || k == KindManyToMany }

// IsToOne reports whether the association yields a single record.
func (k Kind) IsToOne() bool { return k == KindManyToOne || k == KindOneToOne }

// IsStored reports whether values of the kind live in the entity's own row.
func (k Kind) IsStored() bool {
	switch k {
	case KindManyToOne, KindOneToOne, KindOneToMany, KindManyToMany, KindTranslations, KindStruct:
		return false
	}
	return true
}

// IsDate reports whether the kind carries a timestamp.
func (k Kind) IsDate() bool {
	return k == KindDate || k == KindCreatedAt || k == KindUpdatedAt
}

// Field describes one property of an entity.
type Field struct {
	Name       string `yaml:"name"`
	Kind       Kind   `yaml:"kind"`
	Required   bool   `yaml:"required,omitempty"`
	PrimaryKey bool   `yaml:"primaryKey,omitempty"`

	// Reference names the target entity of an association or foreign key.
	Reference string `yaml:"reference,omitempty"`
	// StorageKey is the foreign key field on this entity backing a
	// many_to_one or one_to_one association.
	StorageKey string `yaml:"storageKey,omitempty"`
	// ReferenceField is the foreign key field on the target entity backing a
	// one_to_many association.
	ReferenceField string `yaml:"referenceField,omitempty"`

	// Mapping, MappingLocal and MappingReference describe the join entity of
	// a many_to_many association.
	Mapping          string `yaml:"mapping,omitempty"`
	MappingLocal     string `yaml:"mappingLocal,omitempty"`
	MappingReference string `yaml:"mappingReference,omitempty"`

	// Default is applied on create when the payload omits the field.
	Default any `yaml:"default,omitempty"`
}

// GraphQLName is the field name exposed in the generated schema.
func (f *Field) GraphQLName() string { return FieldName(f.Name) }
