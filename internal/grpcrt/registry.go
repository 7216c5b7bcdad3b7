package grpcrt

import "google.golang.org/protobuf/reflect/protoreflect"

// ServiceName is the full name of the gRPC service a remote executor serves.
const ServiceName protoreflect.FullName = "dalgraph.executor.v1.EntityExecutor"

// Operation is one executor call. The service has one method per entity
// and operation, e.g. SearchProduct.
type Operation string

const (
	OpSearch Operation = "Search"
	OpCreate Operation = "Create"
	OpUpdate Operation = "Update"
	OpDelete Operation = "Delete"
)

// Operations lists every operation in method declaration order.
var Operations = []Operation{OpSearch, OpCreate, OpUpdate, OpDelete}

// Names of the fields of the service messages.
const (
	// FieldNullFields lists the record fields explicitly set to null.
	FieldNullFields protoreflect.Name = "null_fields"
	// FieldItems holds the records of a collection message.
	FieldItems protoreflect.Name = "items"
	// FieldCriteria holds the msgpack encoded search criteria.
	FieldCriteria protoreflect.Name = "criteria"
	FieldTotal    protoreflect.Name = "total"
	FieldRecords  protoreflect.Name = "records"
	// FieldAggregations holds the msgpack encoded aggregation results.
	FieldAggregations protoreflect.Name = "aggregations"
	FieldIDs          protoreflect.Name = "ids"
)

// Registry resolves the descriptors of the service built for one entity
// catalog.
type Registry interface {
	// Service returns the EntityExecutor service descriptor.
	Service() protoreflect.ServiceDescriptor
	// Method returns the method serving op for entity, or nil.
	Method(entity string, op Operation) protoreflect.MethodDescriptor
	// Operation reverses Method.
	Operation(method protoreflect.FullName) (entity string, op Operation, ok bool)
	// Record returns the record message of entity, or nil.
	Record(entity string) protoreflect.MessageDescriptor
	// RecordField returns the record message field carrying the entity field
	// with the given metadata name, or nil when it is not transported.
	RecordField(entity, field string) protoreflect.FieldDescriptor
}

// gRPC metadata keys sent with every call.
const (
	MetadataService   = "x-dalgraph-service"
	MetadataRequestID = "x-dalgraph-request-id"
)
