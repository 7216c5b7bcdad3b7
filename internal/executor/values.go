package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	language "github.com/hanpama/dalgraph/internal/language"
	schema "github.com/hanpama/dalgraph/internal/schema"
)

// coerceVariableValues coerces the request variables against the variable
// definitions of operation. Variables may be keyed with or without "$".
func coerceVariableValues(sch *schema.Schema, operation *language.OperationDefinition, given map[string]any) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		name, t := def.Variable, def.Type
		v, ok := lookupVariable(given, name)
		if !ok {
			switch {
			case def.DefaultValue != nil:
				v = literal(def.DefaultValue, nil)
			case t.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t)
			default:
				continue
			}
		}
		if v == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t)
		}
		cv, err := coerceValue(sch, v, typeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %w", name, t, err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func lookupVariable(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	v, ok := vars[strings.TrimPrefix(name, "$")]
	return v, ok
}

// coerceArgumentValues coerces the arguments given to def. Problems are
// recorded at path; ok is false when any argument is missing or invalid and
// the field must not be resolved.
func (x *execution) coerceArgumentValues(def *schema.Field, arguments language.ArgumentList, path Path) (coerced map[string]any, ok bool) {
	coerced = make(map[string]any, len(def.Arguments))
	ok = true
	for _, argDef := range def.Arguments {
		arg := arguments.ForName(argDef.Name)
		if arg != nil && arg.Value != nil && arg.Value.Kind == language.Variable {
			if _, ok := lookupVariable(x.variables, arg.Value.Raw); !ok {
				arg = nil
			}
		}
		if arg == nil {
			if argDef.DefaultValue != nil {
				coerced[argDef.Name] = argDef.DefaultValue
			} else if argDef.Type.IsNonNull() {
				x.addError(fmt.Sprintf("argument %q of required type was not provided", argDef.Name), path)
				ok = false
			}
			continue
		}
		v, err := coerceValue(x.schema, valueFromASTWithVars(arg.Value, x.variables), argDef.Type)
		if err != nil {
			x.addError(fmt.Sprintf("argument %q cannot be coerced: %v", argDef.Name, err), path)
			ok = false
			continue
		}
		coerced[argDef.Name] = v
	}
	return coerced, ok
}

// valueFromASTWithVars converts an argument literal to a Go value,
// substituting variables at any depth. Object fields bound to an unset
// variable are left out so they read as absent.
func valueFromASTWithVars(value *language.Value, vars map[string]any) any {
	return literal(value, vars)
}

func literal(value *language.Value, vars map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		v, _ := lookupVariable(vars, value.Raw)
		return v
	case language.IntValue:
		if n, err := strconv.Atoi(value.Raw); err == nil {
			return n
		}
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.FloatValue:
		f, _ := strconv.ParseFloat(value.Raw, 64)
		return f
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = literal(c.Value, vars)
		}
		return out
	case language.ObjectValue:
		out := make(map[string]any, len(value.Children))
		for _, c := range value.Children {
			if c.Value != nil && c.Value.Kind == language.Variable {
				if _, ok := lookupVariable(vars, c.Value.Raw); !ok {
					continue
				}
			}
			out[c.Name] = literal(c.Value, vars)
		}
		return out
	}
	return nil
}

var builtinScalars = map[string]func(any) (any, error){
	"Int":     coerceInt,
	"Float":   coerceFloat,
	"String":  coerceString,
	"Boolean": coerceBoolean,
	"ID":      coerceID,
}

// coerceValue coerces value to t. Input objects and enums are checked against
// sch; custom scalars pass through.
func coerceValue(sch *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	if t.IsNonNull() {
		if value == nil {
			return nil, fmt.Errorf("cannot provide null for non-null type")
		}
		return coerceValue(sch, value, t.Unwrap())
	}
	if value == nil {
		return nil, nil
	}
	if t.IsList() {
		return coerceList(sch, value, t.Unwrap())
	}

	name := t.BaseName()
	if coerce, ok := builtinScalars[name]; ok {
		return coerce(value)
	}
	var def *schema.Type
	if sch != nil {
		def = sch.Types[name]
	}
	switch {
	case def == nil:
		return value, nil
	case def.Kind == schema.TypeKindInputObject:
		return coerceInputObject(sch, def, value)
	case def.Kind == schema.TypeKindEnum:
		return coerceEnum(def, value)
	}
	return value, nil
}

func coerceInputObject(sch *schema.Schema, def *schema.Type, value any) (any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object for input type '%s', got %T", def.Name, value)
	}
	for name := range in {
		if def.InputField(name) == nil {
			return nil, fmt.Errorf("field '%s' is not defined by input type '%s'", name, def.Name)
		}
	}
	out := make(map[string]any, len(def.InputFields))
	for _, field := range def.InputFields {
		v, ok := in[field.Name]
		if !ok {
			if field.DefaultValue != nil {
				out[field.Name] = field.DefaultValue
			} else if field.Type.IsNonNull() {
				return nil, fmt.Errorf("required field '%s' of input type '%s' was not provided", field.Name, def.Name)
			}
			continue
		}
		cv, err := coerceValue(sch, v, field.Type)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", field.Name, err)
		}
		out[field.Name] = cv
	}
	return out, nil
}

func coerceEnum(def *schema.Type, value any) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected an enum value of '%s', got %T", def.Name, value)
	}
	for _, ev := range def.EnumValues {
		if ev.Name == name {
			return name, nil
		}
	}
	return nil, fmt.Errorf("value '%s' does not exist in enum '%s'", name, def.Name)
}

// coerceList coerces every item of value. A single value becomes a list of
// one.
func coerceList(sch *schema.Schema, value any, item *schema.TypeRef) (any, error) {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	out := make([]any, len(items))
	for i, v := range items {
		cv, err := coerceValue(sch, v, item)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

func coerceInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= math.MaxInt32 {
			return int(v), nil
		}
	case float32:
		if float64(v) == math.Trunc(float64(v)) {
			return int(v), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to int", value, value)
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to float", value, value)
}

func coerceString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return fmt.Sprint(value), nil
}

func coerceBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", value, value)
}

func coerceID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to ID", value, value)
}
