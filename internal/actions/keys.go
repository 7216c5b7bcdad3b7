// Package actions provides the custom root fields served next to the
// generated entity fields: access key generation and media housekeeping.
package actions

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"

	"github.com/hanpama/dalgraph/internal/registry"
	"github.com/hanpama/dalgraph/internal/schema"
)

// Access key prefixes.
const (
	IntegrationKeyPrefix  = "SWIA"
	UserKeyPrefix         = "SWUA"
	SalesChannelKeyPrefix = "SWSC"
)

// Object types returned by the key fields.
const (
	IntegrationAccessKeyType = "IntegrationAccessKey"
	KeyPairType              = "KeyPair"
)

var symbols = strings.NewReplacer("-", "", "_", "")

// AccessKey returns a new access key starting with prefix.
func AccessKey(prefix string) string {
	id := uuid.New()
	return prefix + strings.ToUpper(symbols.Replace(base64.RawURLEncoding.EncodeToString(id[:])))
}

// SecretAccessKey returns a new random secret.
func SecretAccessKey() string {
	a, b := uuid.New(), uuid.New()
	return base64.RawURLEncoding.EncodeToString(append(a[:], b[:]...))
}

// keyPair returns an access key with its secret.
type keyPair struct {
	typeName    string
	prefix      string
	description string
}

func (k keyPair) Description() string { return k.description }

func (k keyPair) ReturnType(*registry.TypeRegistry) *schema.TypeRef {
	return schema.NonNullType(schema.NamedType(k.typeName))
}

func (k keyPair) DefineArgs(*registry.TypeRegistry) []*schema.InputValue { return nil }

func (k keyPair) DefineTypes(*registry.TypeRegistry) []*schema.Type {
	return []*schema.Type{
		schema.NewType(k.typeName, schema.TypeKindObject, "").
			AddField(schema.NewField("accessKey", "", schema.NonNullType(schema.NamedType("ID")))).
			AddField(schema.NewField("secretAccessKey", "", schema.NonNullType(schema.NamedType("ID")))),
	}
}

func (k keyPair) Resolve(context.Context, registry.Call) (any, error) {
	return map[string]any{
		"accessKey":       AccessKey(k.prefix),
		"secretAccessKey": SecretAccessKey(),
	}, nil
}

// IntegrationKey generates access keys for integrations.
func IntegrationKey() registry.Field {
	return keyPair{
		typeName:    IntegrationAccessKeyType,
		prefix:      IntegrationKeyPrefix,
		description: "Generates access keys for integrations.",
	}
}

// UserKey generates access keys for users.
func UserKey() registry.Field {
	return keyPair{
		typeName:    KeyPairType,
		prefix:      UserKeyPrefix,
		description: "Generates the access keys for a user.",
	}
}

type salesChannelKey struct{}

// SalesChannelKey generates the access key of a sales channel.
func SalesChannelKey() registry.Field { return salesChannelKey{} }

func (salesChannelKey) Description() string {
	return "Generates the access key for a sales channel."
}

func (salesChannelKey) ReturnType(*registry.TypeRegistry) *schema.TypeRef {
	return schema.NonNullType(schema.NamedType("ID"))
}

func (salesChannelKey) DefineArgs(*registry.TypeRegistry) []*schema.InputValue { return nil }

func (salesChannelKey) Resolve(context.Context, registry.Call) (any, error) {
	return AccessKey(SalesChannelKeyPrefix), nil
}
