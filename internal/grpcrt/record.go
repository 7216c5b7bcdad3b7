package grpcrt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/dalgraph/internal/entity"
)

// recordCodec converts entity records to record messages and back.
// Associations are carried as nested messages, explicit nulls in the
// null_fields list.
type recordCodec struct {
	reg      Registry
	provider entity.Provider
}

// checkWritable rejects payload keys a record message cannot carry.
func (c *recordCodec) checkWritable(def *entity.Definition, payload map[string]any) error {
	for key, v := range payload {
		f := def.Field(key)
		if f == nil {
			return fmt.Errorf("unknown field %q on %s", key, def.Name)
		}
		if f.Kind == entity.KindStruct {
			return fmt.Errorf("field %s.%s is not writable", def.Name, f.Name)
		}
		if v == nil || (!f.Kind.IsAssociation() && f.Kind != entity.KindTranslations) {
			continue
		}
		target, err := c.provider.Definition(f.Reference)
		if err != nil {
			return err
		}
		var children []map[string]any
		if child, ok := asMap(v); ok {
			children = []map[string]any{child}
		} else if list, ok := asMaps(v); ok {
			children = list
		}
		for _, child := range children {
			if err := c.checkWritable(target, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// encode writes rec into msg. Keys may be metadata or GraphQL field names;
// keys that are not entity fields are dropped.
func (c *recordCodec) encode(def *entity.Definition, rec map[string]any, msg protoreflect.Message) error {
	var nulls protoreflect.List
	for _, f := range def.Fields {
		fd := c.reg.RecordField(def.Name, f.Name)
		if fd == nil {
			continue
		}
		v, ok := lookup(rec, f)
		if !ok {
			continue
		}
		if v == nil {
			if nulls == nil {
				nulls = msg.Mutable(msg.Descriptor().Fields().ByName(FieldNullFields)).List()
			}
			nulls.Append(protoreflect.ValueOfString(f.Name))
			continue
		}
		if err := c.encodeField(def, f, fd, v, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *recordCodec) encodeField(def *entity.Definition, f *entity.Field, fd protoreflect.FieldDescriptor, v any, msg protoreflect.Message) error {
	if fd.Kind() != protoreflect.MessageKind {
		pv, err := scalarValue(fd.Kind(), v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
		}
		msg.Set(fd, pv)
		return nil
	}

	target, err := c.provider.Definition(f.Reference)
	if err != nil {
		return err
	}
	nested := msg.NewField(fd)
	if f.Kind.IsToOne() {
		child, ok := asMap(v)
		if !ok {
			return fmt.Errorf("%s.%s: expected an object, got %T", def.Name, f.Name, v)
		}
		if err := c.encode(target, child, nested.Message()); err != nil {
			return err
		}
		msg.Set(fd, nested)
		return nil
	}

	children, ok := asMaps(v)
	if !ok {
		return fmt.Errorf("%s.%s: expected a list of objects, got %T", def.Name, f.Name, v)
	}
	coll := nested.Message()
	items := coll.Mutable(coll.Descriptor().Fields().ByName(FieldItems)).List()
	for _, child := range children {
		el := items.NewElement()
		if err := c.encode(target, child, el.Message()); err != nil {
			return err
		}
		items.Append(el)
	}
	msg.Set(fd, nested)
	return nil
}

// decode reads msg back into a record keyed by metadata field names.
func (c *recordCodec) decode(def *entity.Definition, msg protoreflect.Message) (entity.Record, error) {
	rec := entity.Record{}
	for _, f := range def.Fields {
		fd := c.reg.RecordField(def.Name, f.Name)
		if fd == nil || !msg.Has(fd) {
			continue
		}
		v := msg.Get(fd)
		if fd.Kind() != protoreflect.MessageKind {
			gv, err := goValue(fd.Kind(), v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, f.Name, err)
			}
			rec[f.Name] = gv
			continue
		}

		target, err := c.provider.Definition(f.Reference)
		if err != nil {
			return nil, err
		}
		if f.Kind.IsToOne() {
			child, err := c.decode(target, v.Message())
			if err != nil {
				return nil, err
			}
			rec[f.Name] = child
			continue
		}
		coll := v.Message()
		items := coll.Get(coll.Descriptor().Fields().ByName(FieldItems)).List()
		out := make(entity.Collection, 0, items.Len())
		for i := 0; i < items.Len(); i++ {
			child, err := c.decode(target, items.Get(i).Message())
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
		rec[f.Name] = out
	}

	nulls := msg.Get(msg.Descriptor().Fields().ByName(FieldNullFields)).List()
	for i := 0; i < nulls.Len(); i++ {
		rec[nulls.Get(i).String()] = nil
	}
	return rec, nil
}

func lookup(rec map[string]any, f *entity.Field) (any, bool) {
	if v, ok := rec[f.Name]; ok {
		return v, true
	}
	if alias := f.GraphQLName(); alias != f.Name {
		v, ok := rec[alias]
		return v, ok
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case entity.Record:
		return v, true
	case map[string]any:
		return v, true
	}
	return nil, false
}

func asMaps(v any) ([]map[string]any, bool) {
	var out []map[string]any
	switch v := v.(type) {
	case entity.Collection:
		for _, r := range v {
			out = append(out, r)
		}
	case []entity.Record:
		for _, r := range v {
			out = append(out, r)
		}
	case []map[string]any:
		out = v
	case []any:
		for _, el := range v {
			m, ok := asMap(el)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
	default:
		return nil, false
	}
	return out, true
}

func scalarValue(kind protoreflect.Kind, v any) (protoreflect.Value, error) {
	switch kind {
	case protoreflect.StringKind:
		switch v := v.(type) {
		case string:
			return protoreflect.ValueOfString(v), nil
		case time.Time:
			return protoreflect.ValueOfString(v.Format(time.RFC3339)), nil
		case float64:
			return protoreflect.ValueOfString(strconv.FormatFloat(v, 'f', -1, 64)), nil
		}
		return protoreflect.ValueOfString(fmt.Sprint(v)), nil
	case protoreflect.Int64Kind:
		switch v := v.(type) {
		case int:
			return protoreflect.ValueOfInt64(int64(v)), nil
		case int32:
			return protoreflect.ValueOfInt64(int64(v)), nil
		case int64:
			return protoreflect.ValueOfInt64(v), nil
		case float64:
			if v == math.Trunc(v) {
				return protoreflect.ValueOfInt64(int64(v)), nil
			}
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return protoreflect.ValueOfInt64(n), nil
			}
		}
	case protoreflect.DoubleKind:
		switch v := v.(type) {
		case float64:
			return protoreflect.ValueOfFloat64(v), nil
		case float32:
			return protoreflect.ValueOfFloat64(float64(v)), nil
		case int:
			return protoreflect.ValueOfFloat64(float64(v)), nil
		case int64:
			return protoreflect.ValueOfFloat64(float64(v)), nil
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return protoreflect.ValueOfFloat64(f), nil
			}
		}
	case protoreflect.BoolKind:
		if b, ok := v.(bool); ok {
			return protoreflect.ValueOfBool(b), nil
		}
	case protoreflect.BytesKind:
		if raw, ok := v.(json.RawMessage); ok {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return protoreflect.Value{}, err
			}
			v = decoded
		}
		b, err := EncodeJSON(v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes(b), nil
	}
	return protoreflect.Value{}, fmt.Errorf("cannot encode %T as %s", v, kind)
}

func goValue(kind protoreflect.Kind, v protoreflect.Value) (any, error) {
	switch kind {
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.Int64Kind:
		return int(v.Int()), nil
	case protoreflect.DoubleKind:
		return v.Float(), nil
	case protoreflect.BoolKind:
		return v.Bool(), nil
	case protoreflect.BytesKind:
		return DecodeJSON(v.Bytes())
	}
	return nil, fmt.Errorf("unsupported field kind %s", kind)
}
