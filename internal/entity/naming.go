package entity

import (
	"github.com/go-openapi/inflect"
)

// TypeName is the GraphQL object type name of an entity: "product_manufacturer"
// becomes "ProductManufacturer".
func TypeName(entity string) string {
	return inflect.Camelize(entity)
}

// FieldName is the camel-cased form used for singular root fields and entity
// properties.
func FieldName(name string) string {
	if name == "" {
		return ""
	}
	return inflect.CamelizeDownFirst(name)
}

// PluralFieldName is the name of the connection root field. Entities whose
// plural equals the singular get a "List" suffix so both fields can coexist.
func PluralFieldName(entity string) string {
	singular := FieldName(entity)
	plural := inflect.Pluralize(singular)
	if plural == singular {
		return singular + "List"
	}
	return plural
}

// StorageName maps a camel- or Pascal-cased entity name back to its
// snake_case storage name.
func StorageName(name string) string {
	return inflect.Underscore(name)
}
