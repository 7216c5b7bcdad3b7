// Package protoreg builds the gRPC service descriptors remote executors are
// reached through. Every entity gets a record message with one field per
// entity field and four methods: Search, Create, Update and Delete.
package protoreg

import (
	"fmt"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/grpcrt"
)

// FilePath is the path of the generated proto file.
const FilePath = "dalgraph/executor/v1/executor.proto"

// Build creates the service descriptors for every entity of provider.
func Build(provider entity.Provider) (*Registry, error) {
	defs := provider.Definitions()
	b := &builder{
		file:         protobuilder.NewFile(FilePath),
		records:      make(map[string]*protobuilder.MessageBuilder, len(defs)),
		collections:  make(map[string]*protobuilder.MessageBuilder, len(defs)),
		recordFields: make(map[[2]protoreflect.Name]string),
		methods:      make(map[protoreflect.Name]methodKey),
	}
	b.file.SetPackageName(grpcrt.ServiceName.Parent())
	b.file.SetSyntax(protoreflect.Proto3)
	b.service = protobuilder.NewService(grpcrt.ServiceName.Name())
	b.service.SetComments(comment("EntityExecutor runs searches and writes for the entities of one catalog."))
	b.file.AddService(b.service)

	// Pass 1: declare record and collection messages so associations can
	// reference any entity, including their own.
	for _, def := range defs {
		b.addRecordMessage(def)
	}
	// Pass 2: record fields
	for _, def := range defs {
		if err := b.addRecordFields(def); err != nil {
			return nil, err
		}
	}
	// Pass 3: request and response messages and methods
	b.addWriteResponse()
	for _, def := range defs {
		b.addMethods(def)
	}

	fd, err := b.file.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", FilePath, err)
	}
	return b.registry(fd, defs), nil
}

type methodKey struct {
	entity string
	op     grpcrt.Operation
}

type builder struct {
	file    *protobuilder.FileBuilder
	service *protobuilder.ServiceBuilder

	records       map[string]*protobuilder.MessageBuilder
	collections   map[string]*protobuilder.MessageBuilder
	writeResponse *protobuilder.MessageBuilder

	// [record message, proto field] -> entity field
	recordFields map[[2]protoreflect.Name]string
	// method name -> entity and operation
	methods map[protoreflect.Name]methodKey
}

func (b *builder) addRecordMessage(def *entity.Definition) {
	mb := protobuilder.NewMessage(nameRecord(def.Name))
	mb.SetComments(comment(fmt.Sprintf("%sRecord is one %s row with its loaded associations.", entity.TypeName(def.Name), def.Name)))
	b.records[def.Name] = mb
	b.file.AddMessage(mb)

	cb := protobuilder.NewMessage(nameCollection(def.Name))
	items := protobuilder.NewField(grpcrt.FieldItems, protobuilder.FieldTypeMessage(mb))
	items.SetRepeated()
	items.SetNumber(1)
	cb.AddField(items)
	b.collections[def.Name] = cb
	b.file.AddMessage(cb)
}

func (b *builder) addRecordFields(def *entity.Definition) error {
	mb := b.records[def.Name]
	fieldBuilders := make([]*protobuilder.FieldBuilder, 0, len(def.Fields)+1)
	taken := map[protoreflect.Name]string{grpcrt.FieldNullFields: ""}

	for _, f := range def.Fields {
		rt, ok := b.resolveField(f)
		if !ok {
			continue
		}
		fieldName := nameProtoField(f.Name)
		if other, dup := taken[fieldName]; dup {
			return fmt.Errorf("entity %s: fields %q and %q both map to proto field %s", def.Name, other, f.Name, fieldName)
		}
		taken[fieldName] = f.Name

		fb := protobuilder.NewField(fieldName, rt.fieldType)
		fb.SetComments(comment(string(f.Kind)))
		if rt.isOptional {
			fb.SetOptional()
		}
		mb.AddField(fb)
		fieldBuilders = append(fieldBuilders, fb)
		b.recordFields[[2]protoreflect.Name{mb.Name(), fieldName}] = f.Name
	}

	nulls := protobuilder.NewField(grpcrt.FieldNullFields, protobuilder.FieldTypeScalar(protoreflect.StringKind))
	nulls.SetComments(comment("Names of the fields explicitly set to null."))
	nulls.SetRepeated()
	mb.AddField(nulls)
	fieldBuilders = append(fieldBuilders, nulls)

	allocateFieldNumbers(fieldBuilders)
	return nil
}

func (b *builder) addWriteResponse() {
	mb := protobuilder.NewMessage(nameWriteResponse)
	ids := protobuilder.NewField(grpcrt.FieldIDs, protobuilder.FieldTypeScalar(protoreflect.StringKind))
	ids.SetRepeated()
	ids.SetNumber(1)
	mb.AddField(ids)
	b.writeResponse = mb
	b.file.AddMessage(mb)
}

func (b *builder) addMethods(def *entity.Definition) {
	record := b.records[def.Name]

	searchRequest := protobuilder.NewMessage(nameSearchRequest(def.Name))
	crit := protobuilder.NewField(grpcrt.FieldCriteria, protobuilder.FieldTypeScalar(protoreflect.BytesKind))
	crit.SetNumber(1)
	searchRequest.AddField(crit)
	b.file.AddMessage(searchRequest)

	searchResponse := protobuilder.NewMessage(nameSearchResponse(def.Name))
	total := protobuilder.NewField(grpcrt.FieldTotal, protobuilder.FieldTypeScalar(protoreflect.Int64Kind))
	total.SetNumber(1)
	records := protobuilder.NewField(grpcrt.FieldRecords, protobuilder.FieldTypeMessage(record))
	records.SetRepeated()
	records.SetNumber(2)
	aggs := protobuilder.NewField(grpcrt.FieldAggregations, protobuilder.FieldTypeScalar(protoreflect.BytesKind))
	aggs.SetNumber(3)
	searchResponse.AddField(total)
	searchResponse.AddField(records)
	searchResponse.AddField(aggs)
	b.file.AddMessage(searchResponse)

	writeRequest := protobuilder.NewMessage(nameWriteRequest(def.Name))
	payloads := protobuilder.NewField(grpcrt.FieldRecords, protobuilder.FieldTypeMessage(record))
	payloads.SetRepeated()
	payloads.SetNumber(1)
	writeRequest.AddField(payloads)
	b.file.AddMessage(writeRequest)

	for _, op := range grpcrt.Operations {
		req, res := writeRequest, b.writeResponse
		if op == grpcrt.OpSearch {
			req, res = searchRequest, searchResponse
		}
		name := nameMethod(op, def.Name)
		methodBuilder := protobuilder.NewMethod(
			name,
			protobuilder.RpcTypeMessage(req, false),
			protobuilder.RpcTypeMessage(res, false),
		)
		b.service.AddMethod(methodBuilder)
		b.methods[name] = methodKey{entity: def.Name, op: op}
	}
}

func (b *builder) registry(fd protoreflect.FileDescriptor, defs []*entity.Definition) *Registry {
	reg := &Registry{
		file:         fd,
		service:      fd.Services().ByName(grpcrt.ServiceName.Name()),
		records:      make(map[string]protoreflect.MessageDescriptor, len(defs)),
		recordFields: make(map[[2]string]protoreflect.FieldDescriptor),
		methods:      make(map[methodKey]protoreflect.MethodDescriptor),
		operations:   make(map[protoreflect.FullName]methodKey),
	}
	for _, def := range defs {
		md := fd.Messages().ByName(nameRecord(def.Name))
		reg.records[def.Name] = md
		fields := md.Fields()
		for i := 0; i < fields.Len(); i++ {
			field := fields.Get(i)
			if name, ok := b.recordFields[[2]protoreflect.Name{md.Name(), field.Name()}]; ok {
				reg.recordFields[[2]string{def.Name, name}] = field
			}
		}
	}
	methods := reg.service.Methods()
	for i := 0; i < methods.Len(); i++ {
		method := methods.Get(i)
		key := b.methods[method.Name()]
		reg.methods[key] = method
		reg.operations[method.FullName()] = key
	}
	return reg
}
