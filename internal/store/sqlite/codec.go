package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hanpama/dalgraph/internal/entity"
)

// encode converts a record value to its column representation.
func encode(f *entity.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case entity.KindBool:
		switch b := v.(type) {
		case bool:
			if b {
				return 1, nil
			}
			return 0, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, err
			}
			return encode(f, parsed)
		}
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	case entity.KindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return v, nil
}

// decode converts a scanned column value back to the record representation
// the memory store would hold.
func decode(f *entity.Field, raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil, nil
	}
	switch f.Kind {
	case entity.KindBool:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("%s: expected an integer, got %T", f.Name, raw)
		}
		return n != 0, nil
	case entity.KindInt:
		switch n := raw.(type) {
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		}
	case entity.KindFloat:
		switch n := raw.(type) {
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case entity.KindJSON:
		s, ok := raw.(string)
		if !ok {
			return raw, nil
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return v, nil
	}
	return raw, nil
}

// argument converts a filter value, which arrives as text, to the column
// representation of f so SQLite compares like with like.
func argument(f *entity.Field, v any) any {
	s, ok := v.(string)
	if !ok {
		enc, err := encode(f, v)
		if err != nil {
			return v
		}
		return enc
	}
	switch f.Kind {
	case entity.KindBool:
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				return 1
			}
			return 0
		}
	case entity.KindInt, entity.KindFloat:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	}
	return s
}
