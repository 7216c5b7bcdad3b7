package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hanpama/dalgraph/internal/registry"
)

// SerializeLeafValue coerces stored values to the JSON form of their scalar.
// Aggregation keys and results are String fields and receive their text.
func (r *Runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch typeName {
	case registry.DateScalar:
		return serializeDate(value)
	case registry.JSONScalar:
		return serializeJSON(value)
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "Boolean":
		return serializeBool(value)
	case "String", "ID":
		return text(value), nil
	}
	// Enums and scalars contributed by custom fields.
	switch v := value.(type) {
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	}
	return value, nil
}

func serializeDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339), nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("Date cannot represent %q: %w", v, err)
		}
		return t.Format(time.RFC3339), nil
	}
	return nil, fmt.Errorf("Date cannot represent %T", value)
}

func serializeJSON(value any) (any, error) {
	switch v := value.(type) {
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("JSON cannot represent value: %w", err)
		}
		return out, nil
	case string, bool, float64, int, int64, map[string]any, []any:
		return v, nil
	}
	// Round-trip anything else so the response only holds JSON values.
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("JSON cannot represent %T: %w", value, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func serializeInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return nil, fmt.Errorf("Int cannot represent %v", value)
}

func serializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("Float cannot represent %v", value)
}

func serializeBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("Boolean cannot represent %v", value)
}

func text(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	}
	return fmt.Sprint(value)
}
