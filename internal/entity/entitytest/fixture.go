// Package entitytest provides a small catalog of entities shared by tests.
package entitytest

import (
	"testing"

	"github.com/hanpama/dalgraph/internal/entity"
)

// YAML describes products with a manufacturer, categories in a tree, a
// product/category mapping, product translations and media in folders.
const YAML = `
entities:
  - name: product
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: versionId, kind: version, primaryKey: true}
      - {name: name, kind: string, required: true}
      - {name: description, kind: longtext}
      - {name: active, kind: bool, default: true}
      - {name: stock, kind: int, required: true, default: 0}
      - {name: price, kind: float}
      - {name: releaseDate, kind: date}
      - {name: customFields, kind: json}
      - {name: createdAt, kind: created_at, required: true}
      - {name: updatedAt, kind: updated_at}
      - {name: manufacturerId, kind: fk, reference: product_manufacturer}
      - {name: manufacturer, kind: many_to_one, reference: product_manufacturer, storageKey: manufacturerId}
      - {name: categories, kind: many_to_many, reference: category, mapping: product_category, mappingLocal: productId, mappingReference: categoryId}
      - {name: translations, kind: translations, reference: product_translation, referenceField: productId, required: true}
  - name: product_manufacturer
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: name, kind: translated, required: true}
      - {name: link, kind: string}
      - {name: products, kind: one_to_many, reference: product, referenceField: manufacturerId}
  - name: category
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: name, kind: string, required: true}
      - {name: position, kind: int}
      - {name: parentId, kind: fk, reference: category}
      - {name: parent, kind: many_to_one, reference: category, storageKey: parentId}
      - {name: children, kind: one_to_many, reference: category, referenceField: parentId}
      - {name: products, kind: many_to_many, reference: product, mapping: product_category, mappingLocal: categoryId, mappingReference: productId}
  - name: product_category
    mapping: true
    fields:
      - {name: productId, kind: fk, reference: product, primaryKey: true, required: true}
      - {name: categoryId, kind: fk, reference: category, primaryKey: true, required: true}
  - name: product_translation
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: productId, kind: fk, reference: product, required: true}
      - {name: language, kind: string, required: true}
      - {name: name, kind: string}
  - name: media
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: fileName, kind: string}
      - {name: fileExtension, kind: string}
      - {name: mediaFolderId, kind: fk, reference: media_folder}
      - {name: mediaFolder, kind: many_to_one, reference: media_folder, storageKey: mediaFolderId}
  - name: media_folder
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: name, kind: string, required: true}
      - {name: parentId, kind: fk, reference: media_folder}
      - {name: parent, kind: many_to_one, reference: media_folder, storageKey: parentId}
      - {name: media, kind: one_to_many, reference: media, referenceField: mediaFolderId}
`

// Registry parses YAML and fails the test on error.
func Registry(t testing.TB) *entity.Registry {
	t.Helper()
	reg, err := entity.Parse([]byte(YAML))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return reg
}

// Definition returns one fixture entity.
func Definition(t testing.TB, reg entity.Provider, name string) *entity.Definition {
	t.Helper()
	def, err := reg.Definition(name)
	if err != nil {
		t.Fatalf("fixture entity %s: %v", name, err)
	}
	return def
}
