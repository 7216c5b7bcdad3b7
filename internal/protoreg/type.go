package protoreg

import (
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/dalgraph/internal/entity"
)

// scalarKinds maps stored entity kinds to the proto kind carrying them. JSON
// values travel msgpack encoded.
var scalarKinds = map[entity.Kind]protoreflect.Kind{
	entity.KindID:         protoreflect.StringKind,
	entity.KindVersion:    protoreflect.StringKind,
	entity.KindFK:         protoreflect.StringKind,
	entity.KindString:     protoreflect.StringKind,
	entity.KindLongText:   protoreflect.StringKind,
	entity.KindTranslated: protoreflect.StringKind,
	entity.KindDate:       protoreflect.StringKind,
	entity.KindCreatedAt:  protoreflect.StringKind,
	entity.KindUpdatedAt:  protoreflect.StringKind,
	entity.KindBool:       protoreflect.BoolKind,
	entity.KindInt:        protoreflect.Int64Kind,
	entity.KindFloat:      protoreflect.DoubleKind,
	entity.KindJSON:       protoreflect.BytesKind,
}

type resolvedType struct {
	isOptional bool
	fieldType  *protobuilder.FieldType
}

// resolveField returns the proto type of an entity field. ok is false for
// fields that are not transported.
func (b *builder) resolveField(f *entity.Field) (resolvedType, bool) {
	if k, ok := scalarKinds[f.Kind]; ok {
		return resolvedType{isOptional: true, fieldType: protobuilder.FieldTypeScalar(k)}, true
	}
	switch {
	case f.Kind.IsToOne():
		if mb, ok := b.records[f.Reference]; ok {
			return resolvedType{fieldType: protobuilder.FieldTypeMessage(mb)}, true
		}
	case f.Kind.IsToMany(), f.Kind == entity.KindTranslations:
		if mb, ok := b.collections[f.Reference]; ok {
			return resolvedType{fieldType: protobuilder.FieldTypeMessage(mb)}, true
		}
	}
	return resolvedType{}, false
}
