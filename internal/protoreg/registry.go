package protoreg

import (
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/dalgraph/internal/grpcrt"
)

// Registry holds the descriptors built for one entity catalog.
type Registry struct {
	file         protoreflect.FileDescriptor
	service      protoreflect.ServiceDescriptor
	records      map[string]protoreflect.MessageDescriptor
	recordFields map[[2]string]protoreflect.FieldDescriptor
	methods      map[methodKey]protoreflect.MethodDescriptor
	operations   map[protoreflect.FullName]methodKey
}

var _ grpcrt.Registry = (*Registry)(nil)

// File returns the generated file descriptor.
func (r *Registry) File() protoreflect.FileDescriptor { return r.file }

func (r *Registry) Service() protoreflect.ServiceDescriptor { return r.service }

func (r *Registry) Method(entity string, op grpcrt.Operation) protoreflect.MethodDescriptor {
	return r.methods[methodKey{entity: entity, op: op}]
}

func (r *Registry) Operation(method protoreflect.FullName) (string, grpcrt.Operation, bool) {
	key, ok := r.operations[method]
	return key.entity, key.op, ok
}

func (r *Registry) Record(entity string) protoreflect.MessageDescriptor {
	return r.records[entity]
}

func (r *Registry) RecordField(entity, field string) protoreflect.FieldDescriptor {
	return r.recordFields[[2]string{entity, field}]
}
