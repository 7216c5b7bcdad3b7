package dal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hanpama/dalgraph/internal/entity"
)

// WriteOp says how a planned row is persisted.
type WriteOp int

const (
	// WriteCreate inserts a new row. The row must not exist yet.
	WriteCreate WriteOp = iota
	// WriteUpdate merges the row into an existing one.
	WriteUpdate
	// WriteUpsert merges the row into an existing one or inserts it.
	WriteUpsert
)

func (op WriteOp) String() string {
	switch op {
	case WriteCreate:
		return "create"
	case WriteUpdate:
		return "update"
	case WriteUpsert:
		return "upsert"
	}
	return fmt.Sprintf("WriteOp(%d)", int(op))
}

// Write is one row of a Plan. Row is keyed by metadata field names and holds
// stored fields only.
type Write struct {
	Op     WriteOp
	Entity *entity.Definition
	Row    entity.Record
}

// Plan is the flat, ordered form of nested write payloads. Rows referenced
// through a foreign key come before the rows referencing them.
type Plan struct {
	// IDs are the ids of the top-level rows in payload order.
	IDs    []string
	Writes []Write
}

// PlanWrites flattens payloads for def into per-entity writes. Payload keys
// may be metadata or GraphQL field names. op is WriteCreate or WriteUpdate
// and applies to the top-level rows; nested rows are created when they carry
// no id and upserted otherwise. A nested object holding nothing but an id
// only links the existing row.
func PlanWrites(provider entity.Provider, def *entity.Definition, op WriteOp, payloads []map[string]any) (*Plan, error) {
	p := &planner{provider: provider, now: time.Now().UTC().Format(time.RFC3339)}
	plan := &Plan{IDs: make([]string, 0, len(payloads))}
	for i, payload := range payloads {
		id, err := p.row(def, op, payload, fmt.Sprintf("/%d", i))
		if err != nil {
			return nil, err
		}
		plan.IDs = append(plan.IDs, id)
	}
	plan.Writes = p.writes
	return plan, nil
}

// PrimaryKey renders the primary key of row as a single string. Version
// fields are not part of the key.
func PrimaryKey(def *entity.Definition, row entity.Record) string {
	var parts []string
	for _, f := range def.PrimaryKeys() {
		if f.Kind == entity.KindVersion {
			continue
		}
		v := row[f.Name]
		if v == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "|")
}

type planner struct {
	provider entity.Provider
	now      string
	writes   []Write
}

type nested struct {
	field *entity.Field
	value any
}

func (p *planner) row(def *entity.Definition, op WriteOp, payload map[string]any, path string) (string, error) {
	row := entity.Record{}
	related := map[*entity.Field]any{}
	for key, v := range payload {
		f := def.Field(key)
		if f == nil {
			return "", fmt.Errorf("%s: unknown field %q on %s", path, key, def.Name)
		}
		switch {
		case f.Kind.IsAssociation() || f.Kind == entity.KindTranslations:
			related[f] = v
		case f.Kind == entity.KindStruct:
			return "", fmt.Errorf("%s/%s: field is not writable", path, f.Name)
		default:
			row[f.Name] = v
		}
	}
	var assoc []nested
	for _, f := range def.Fields {
		if v, ok := related[f]; ok {
			assoc = append(assoc, nested{field: f, value: v})
		}
	}

	hasID := def.Field("id") != nil
	switch op {
	case WriteCreate:
		for k, v := range def.Defaults(false) {
			if _, set := row[k]; !set {
				row[k] = v
			}
		}
		if hasID && row["id"] == nil {
			row["id"] = uuid.NewString()
		}
		p.stamp(def, row, entity.KindCreatedAt)
	default:
		for _, f := range def.PrimaryKeys() {
			if f.Kind != entity.KindVersion && row[f.Name] == nil {
				return "", fmt.Errorf("%s: missing primary key %q for %s", path, f.Name, def.Name)
			}
		}
		p.stamp(def, row, entity.KindUpdatedAt)
	}
	id := ""
	if hasID {
		id = fmt.Sprint(row["id"])
	}

	// To-one targets first so the foreign key can point at them.
	for _, a := range assoc {
		if !a.field.Kind.IsToOne() {
			continue
		}
		fpath := path + "/" + a.field.Name
		if a.value == nil {
			row[a.field.StorageKey] = nil
			continue
		}
		child, ok := a.value.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s: expected an object, got %T", fpath, a.value)
		}
		target, err := p.provider.Definition(a.field.Reference)
		if err != nil {
			return "", fmt.Errorf("%s: %w", fpath, err)
		}
		childID, err := p.nested(target, child, fpath)
		if err != nil {
			return "", err
		}
		row[a.field.StorageKey] = childID
	}

	p.writes = append(p.writes, Write{Op: op, Entity: def, Row: row})

	for _, a := range assoc {
		if a.field.Kind.IsToOne() || a.value == nil {
			continue
		}
		fpath := path + "/" + a.field.Name
		children, err := objects(a.value, fpath)
		if err != nil {
			return "", err
		}
		target, err := p.provider.Definition(a.field.Reference)
		if err != nil {
			return "", fmt.Errorf("%s: %w", fpath, err)
		}
		switch a.field.Kind {
		case entity.KindOneToMany, entity.KindTranslations:
			for i, child := range children {
				withRef := make(map[string]any, len(child)+1)
				for k, v := range child {
					withRef[k] = v
				}
				withRef[a.field.ReferenceField] = id
				if _, err := p.upsertOrCreate(target, withRef, fmt.Sprintf("%s/%d", fpath, i)); err != nil {
					return "", err
				}
			}
		case entity.KindManyToMany:
			mapping, err := p.provider.Definition(a.field.Mapping)
			if err != nil {
				return "", fmt.Errorf("%s: %w", fpath, err)
			}
			for i, child := range children {
				childID, err := p.nested(target, child, fmt.Sprintf("%s/%d", fpath, i))
				if err != nil {
					return "", err
				}
				p.writes = append(p.writes, Write{Op: WriteUpsert, Entity: mapping, Row: entity.Record{
					a.field.MappingLocal:     id,
					a.field.MappingReference: childID,
				}})
			}
		}
	}
	return id, nil
}

// nested writes a related row unless child only names an existing one, and
// returns the row's id.
func (p *planner) nested(target *entity.Definition, child map[string]any, path string) (string, error) {
	if id, ok := onlyID(child); ok {
		return id, nil
	}
	return p.upsertOrCreate(target, child, path)
}

func (p *planner) upsertOrCreate(target *entity.Definition, child map[string]any, path string) (string, error) {
	if child["id"] != nil {
		return p.row(target, WriteUpsert, child, path)
	}
	return p.row(target, WriteCreate, child, path)
}

func (p *planner) stamp(def *entity.Definition, row entity.Record, kind entity.Kind) {
	for _, f := range def.Fields {
		if f.Kind == kind && row[f.Name] == nil {
			row[f.Name] = p.now
		}
	}
}

func onlyID(m map[string]any) (string, bool) {
	if len(m) != 1 || m["id"] == nil {
		return "", false
	}
	return fmt.Sprint(m["id"]), true
}

func objects(v any, path string) ([]map[string]any, error) {
	switch list := v.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s/%d: expected an object, got %T", path, i, item)
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: expected a list, got %T", path, v)
}
