package entity

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of an entity metadata file.
//
//	entities:
//	  - name: product
//	    fields:
//	      - {name: id, kind: id, primaryKey: true, required: true}
//	      - {name: name, kind: string, required: true}
type document struct {
	Entities []struct {
		Name    string   `yaml:"name"`
		Mapping bool     `yaml:"mapping,omitempty"`
		Fields  []*Field `yaml:"fields"`
	} `yaml:"entities"`
}

// Parse decodes entity metadata and builds a validated Registry. Unknown keys
// are rejected so typos surface at startup.
func Parse(data []byte) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode entity metadata: %w", err)
	}
	defs := make([]*Definition, 0, len(doc.Entities))
	for _, e := range doc.Entities {
		defs = append(defs, NewDefinition(e.Name, e.Fields, e.Mapping))
	}
	return NewRegistry(defs...)
}

// LoadFile reads and parses the metadata file at path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
