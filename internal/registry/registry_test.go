package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/apierr"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/language"
	"github.com/hanpama/dalgraph/internal/registry"
	"github.com/hanpama/dalgraph/internal/schema"
)

// argSignature renders arguments as "name: Type = default" for comparison.
func argSignature(args []*schema.InputValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Name + ": " + typeString(a.Type)
		if a.DefaultValue != nil {
			out[i] += " = " + schema.RenderValue(a.DefaultValue)
		}
	}
	return out
}

func typeString(t *schema.TypeRef) string {
	switch {
	case t.IsNonNull():
		return typeString(t.OfType) + "!"
	case t.IsList():
		return "[" + typeString(t.OfType) + "]"
	}
	return t.Named
}

func fieldSignature(t *schema.Type) []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name + ": " + typeString(f.Type)
	}
	return out
}

func TestObjectTypeIsMemoized(t *testing.T) {
	reg := entitytest.Registry(t)
	r := registry.New(reg)
	product := entitytest.Definition(t, reg, "product")

	obj := r.ObjectType(product)
	require.Same(t, obj, r.ObjectType(product))

	conn := r.ConnectionType(product)
	require.Same(t, conn, r.ConnectionType(product))
	require.Same(t, r.EdgeType(product), r.EdgeType(product))
	require.Equal(t, "Product", r.EdgeType(product).Field("node").Type.Named)
	require.Same(t, obj, r.ObjectType(product))

	s1, err := r.Schema()
	require.NoError(t, err)
	s2, _ := r.Schema()
	require.Same(t, s1, s2)
	require.Same(t, obj, s1.Types["Product"])
}

func TestSelfReference(t *testing.T) {
	reg := entitytest.Registry(t)
	r := registry.New(reg)
	category := r.ObjectType(entitytest.Definition(t, reg, "category"))

	require.Equal(t, "Category", category.Field("parent").Type.Named)
	require.Equal(t, "CategoryConnection", category.Field("children").Type.Named)
	require.Len(t, category.Field("children").Arguments, 8)
}

func TestObjectFields(t *testing.T) {
	reg := entitytest.Registry(t)
	r := registry.New(reg)

	want := []string{
		"id: ID!",
		"versionId: ID",
		"name: String!",
		"description: String",
		"active: Boolean",
		"stock: Int!",
		"price: Float",
		"releaseDate: Date",
		"customFields: JSON",
		"createdAt: Date!",
		"updatedAt: Date",
		"manufacturerId: ID",
		"manufacturer: ProductManufacturer",
		"categories: CategoryConnection",
	}
	got := fieldSignature(r.ObjectType(entitytest.Definition(t, reg, "product")))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("product fields (-want +got):\n%s", diff)
	}

	conn := fieldSignature(r.ConnectionType(entitytest.Definition(t, reg, "product")))
	require.Equal(t, []string{"total: Int", "edges: [ProductEdge]", "pageInfo: PageInfo", "aggregations: [AggregationResults]"}, conn)
}

func TestMutationArguments(t *testing.T) {
	reg := entitytest.Registry(t)
	r := registry.New(reg)
	product := entitytest.Definition(t, reg, "product")

	create := []string{
		"id: ID",
		"versionId: ID",
		"name: String!",
		"description: String",
		"active: Boolean = true",
		"stock: Int! = 0",
		"price: Float",
		"releaseDate: Date",
		"customFields: JSON",
		"createdAt: Date",
		"updatedAt: Date",
		"manufacturerId: ID",
		"manufacturer: InputProductManufacturer",
		"categories: [InputCategory]",
	}
	if diff := cmp.Diff(create, argSignature(r.CreateArgs(product))); diff != "" {
		t.Fatalf("create args (-want +got):\n%s", diff)
	}

	update := argSignature(r.UpdateArgs(product))
	require.Equal(t, "id: ID!", update[0])
	require.Equal(t, "versionId: ID", update[1])
	require.Equal(t, "name: String", update[2])
	require.Equal(t, "stock: Int", update[5])

	require.Equal(t, []string{"id: ID!", "versionId: ID"}, argSignature(r.PrimaryKeyArgs(product)))

	input := r.InputType(product)
	require.Equal(t, "InputProduct", input.Name)
	require.Equal(t, "name", input.InputFields[2].Name)
	require.False(t, input.InputFields[2].Type.IsNonNull())
}

func TestRootFields(t *testing.T) {
	reg := entitytest.Registry(t)
	r := registry.New(reg)

	query, err := r.Query()
	require.NoError(t, err)
	var names []string
	for _, f := range query.Fields {
		names = append(names, f.Name)
		require.True(t, f.Async, f.Name)
	}
	require.Equal(t, []string{
		"product", "products",
		"productManufacturer", "productManufacturers",
		"category", "categories",
		"media", "mediaList",
		"mediaFolder", "mediaFolders",
	}, names)

	mutation, err := r.Mutation()
	require.NoError(t, err)
	require.Len(t, mutation.Fields, 15)
	require.Equal(t, "createProduct", mutation.Fields[0].Name)
	require.Equal(t, "ID", mutation.Field("deleteProduct").Type.Named)
	require.Equal(t, []string{"id: ID!", "versionId: ID"}, argSignature(mutation.Field("deleteProduct").Arguments))

	b, ok := r.Binding(registry.QueryTypeName, "mediaList")
	require.True(t, ok)
	require.Equal(t, registry.ShapeConnection, b.Shape)
	require.Equal(t, "media", b.Entity.Name)

	b, ok = r.Binding(registry.MutationTypeName, "updateMediaFolder")
	require.True(t, ok)
	require.Equal(t, registry.Mutation{Action: registry.ActionUpdate, Entity: "media_folder"}, b.Mutation)

	def, ok := r.Entity("ProductManufacturer")
	require.True(t, ok)
	require.Equal(t, "product_manufacturer", def.Name)
	_, ok = r.Entity("ProductConnection")
	require.False(t, ok)
}

func TestRenderedSchemaLoads(t *testing.T) {
	r := registry.New(entitytest.Registry(t))
	s, err := r.Schema()
	require.NoError(t, err)

	sdl := schema.Render(s)
	require.Contains(t, sdl, "type ProductConnection {")
	require.Contains(t, sdl, "input InputProduct {")
	require.NotContains(t, sdl, "ProductCategory")
	require.NotContains(t, sdl, "ProductTranslation")

	_, err = language.LoadValidationSchema("generated.graphql", sdl)
	require.NoError(t, err)
}

func TestMutationNames(t *testing.T) {
	for _, name := range []string{"product", "product_manufacturer", "media", "media_folder"} {
		for _, action := range []registry.Action{registry.ActionCreate, registry.ActionUpdate, registry.ActionDelete} {
			m, err := registry.ParseMutation(registry.FormatMutation(action, name))
			require.NoError(t, err)
			require.Equal(t, registry.Mutation{Action: action, Entity: name}, m)
		}
	}
	require.Equal(t, "deleteProductManufacturer", registry.FormatMutation(registry.ActionDelete, "product_manufacturer"))

	_, err := registry.ParseMutation("upsertProduct")
	require.ErrorIs(t, err, registry.ErrUnknownMutationAction)
	_, err = registry.ParseMutation("create")
	require.ErrorIs(t, err, registry.ErrUnknownMutationAction)
}

type echoField struct {
	fail bool
}

func (echoField) Description() string { return "Echoes its input" }

func (echoField) ReturnType(*registry.TypeRegistry) *schema.TypeRef {
	return schema.NonNullType(schema.NamedType("Echo"))
}

func (echoField) DefineArgs(*registry.TypeRegistry) []*schema.InputValue {
	return []*schema.InputValue{schema.NewInputValue("text", "", schema.NonNullType(schema.NamedType("String")))}
}

func (f echoField) DefineTypes(*registry.TypeRegistry) []*schema.Type {
	if f.fail {
		return nil
	}
	return []*schema.Type{
		schema.NewType("Echo", schema.TypeKindObject, "").AddField(schema.NewField("text", "", schema.NamedType("String"))),
	}
}

func (f echoField) Resolve(_ context.Context, call registry.Call) (any, error) {
	if f.fail {
		return nil, errors.New("echo is broken")
	}
	return map[string]any{"text": call.Args["text"]}, nil
}

func TestCustomFields(t *testing.T) {
	queries := registry.NewFields()
	require.NoError(t, queries.Add("echo", echoField{}))
	require.ErrorIs(t, queries.Add("echo", echoField{}), registry.ErrDuplicateField)
	mutations := registry.NewFields()
	require.NoError(t, mutations.Add("breakEcho", echoField{fail: true}))

	r := registry.New(entitytest.Registry(t), registry.WithQueries(queries), registry.WithMutations(mutations))
	s, err := r.Schema()
	require.NoError(t, err)
	require.Equal(t, "Echo!", typeString(s.Query().Field("echo").Type))
	require.NotNil(t, s.Types["Echo"])

	b, ok := r.Binding(registry.QueryTypeName, "echo")
	require.True(t, ok)
	require.Equal(t, registry.ShapeCustom, b.Shape)
	v, err := b.Resolve(context.Background(), registry.Call{Args: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"text": "hi"}, v)

	b, _ = r.Binding(registry.MutationTypeName, "breakEcho")
	_, err = b.Resolve(context.Background(), registry.Call{})
	var qre *apierr.QueryResolvingError
	require.ErrorAs(t, err, &qre)
	require.Equal(t, "echo is broken", qre.Message)
}

func TestCustomFieldCollision(t *testing.T) {
	queries := registry.NewFields()
	require.NoError(t, queries.Add("product", echoField{}))
	mutations := registry.NewFields()
	require.NoError(t, mutations.Add("deleteMedia", echoField{fail: true}))

	_, err := registry.New(entitytest.Registry(t), registry.WithQueries(queries), registry.WithMutations(mutations)).Schema()
	require.ErrorIs(t, err, registry.ErrDuplicateField)
	require.ErrorContains(t, err, "Query.product")
	require.ErrorContains(t, err, "Mutation.deleteMedia")
}

// looseProvider skips the reference checks entity.NewRegistry performs.
type looseProvider []*entity.Definition

func (p looseProvider) Definitions() []*entity.Definition { return p }

func (p looseProvider) Definition(name string) (*entity.Definition, error) {
	for _, d := range p {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, entity.ErrUnknownEntity
}

func TestUnknownAssociationTarget(t *testing.T) {
	p := looseProvider{entity.NewDefinition("order", []*entity.Field{
		{Name: "id", Kind: entity.KindID, PrimaryKey: true},
		{Name: "customer", Kind: entity.KindManyToOne, Reference: "customer", StorageKey: "customerId"},
	}, false)}

	_, err := registry.New(p).Schema()
	require.ErrorIs(t, err, entity.ErrUnknownEntity)
	require.True(t, strings.Contains(err.Error(), "order.customer"))
}
