package criteria

import (
	"fmt"
	"strings"
)

// Violation is one problem found in search arguments.
type Violation struct {
	// Path points at the offending argument, e.g. "/query/queries/1/field".
	Path    string
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// ValidationError collects every Violation found while parsing one set of
// arguments.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid search arguments: " + strings.Join(parts, "; ")
}

// Extensions exposes the violations to GraphQL clients.
func (e *ValidationError) Extensions() map[string]any {
	list := make([]any, len(e.Violations))
	for i, v := range e.Violations {
		list[i] = map[string]any{"path": v.Path, "message": v.Message}
	}
	return map[string]any{"violations": list}
}

func (e *ValidationError) add(path, format string, args ...any) {
	e.Violations = append(e.Violations, Violation{Path: path, Message: fmt.Sprintf(format, args...)})
}

// errOrNil returns e as an error only when it holds violations.
func (e *ValidationError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}
