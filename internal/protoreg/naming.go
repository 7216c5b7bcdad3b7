package protoreg

import (
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/grpcrt"
)

func nameRecord(entityName string) protoreflect.Name {
	return protoreflect.Name(entity.TypeName(entityName) + "Record")
}

func nameCollection(entityName string) protoreflect.Name {
	return protoreflect.Name(entity.TypeName(entityName) + "Collection")
}

func nameMethod(op grpcrt.Operation, entityName string) protoreflect.Name {
	return protoreflect.Name(string(op) + entity.TypeName(entityName))
}

func nameSearchRequest(entityName string) protoreflect.Name {
	return protoreflect.Name(string(nameMethod(grpcrt.OpSearch, entityName)) + "Request")
}

func nameSearchResponse(entityName string) protoreflect.Name {
	return protoreflect.Name(string(nameMethod(grpcrt.OpSearch, entityName)) + "Response")
}

func nameWriteRequest(entityName string) protoreflect.Name {
	return protoreflect.Name("Write" + entity.TypeName(entityName) + "Request")
}

const nameWriteResponse protoreflect.Name = "WriteResponse"

func nameProtoField(fieldName string) protoreflect.Name {
	return protoreflect.Name(snakeCase(fieldName))
}

// snakeCase converts camelCase names to snake_case and leaves snake_case
// names unchanged.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
