package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadValidationSchema loads SDL together with the GraphQL prelude.
func LoadValidationSchema(name, sdl string) (*ValidationSchema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
}

// Validate runs the specified validation rules over doc.
func Validate(sch *ValidationSchema, doc *QueryDocument) ErrorList {
	return validator.ValidateWithRules(sch, doc, nil)
}

// AsError converts err into a located GraphQL error when possible.
func AsError(err error) *Error {
	if gqlErr, ok := err.(*gqlerror.Error); ok {
		return gqlErr
	}
	return gqlerror.Wrap(err)
}
