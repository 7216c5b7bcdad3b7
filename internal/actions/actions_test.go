package actions_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/actions"
	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/executor"
	"github.com/hanpama/dalgraph/internal/language"
	"github.com/hanpama/dalgraph/internal/registry"
	"github.com/hanpama/dalgraph/internal/resolver"
	"github.com/hanpama/dalgraph/internal/store/memory"
)

type harness struct {
	meta  *entity.Registry
	store *memory.Store
	exec  *executor.Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	meta := entitytest.Registry(t)
	store := memory.New(meta)
	ctx := context.Background()

	_, err := store.Create(ctx, entitytest.Definition(t, meta, "media_folder"), []map[string]any{
		{"id": "f1", "name": "Root"},
		{"id": "f2", "name": "Photos", "parentId": "f1"},
		{"id": "f3", "name": "Holidays", "parentId": "f2"},
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, entitytest.Definition(t, meta, "media"), []map[string]any{
		{"id": "a", "fileName": "photo", "fileExtension": "jpg", "mediaFolderId": "f2"},
		{"id": "b", "fileName": "photo_(1)", "fileExtension": "jpg", "mediaFolderId": "f2"},
		{"id": "c", "fileName": "photo", "fileExtension": "png"},
		{"id": "d", "fileName": "logo", "fileExtension": "svg", "mediaFolderId": "f1"},
	})
	require.NoError(t, err)

	queries, mutations := registry.NewFields(), registry.NewFields()
	require.NoError(t, actions.Register(queries, mutations, meta, store))
	reg := registry.New(meta, registry.WithQueries(queries), registry.WithMutations(mutations))
	sch, err := reg.Schema()
	require.NoError(t, err)
	return &harness{meta: meta, store: store, exec: executor.NewExecutor(resolver.New(reg, store), sch)}
}

func (h *harness) run(t *testing.T, query string, vars map[string]any) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return h.exec.ExecuteRequest(context.Background(), doc, "", vars, nil)
}

func (h *harness) media(t *testing.T, id string) entity.Record {
	t.Helper()
	c := criteria.New()
	c.AddFilter(&criteria.Equals{Field: "media.id", Value: id})
	res, err := h.store.Search(context.Background(), entitytest.Definition(t, h.meta, "media"), c)
	require.NoError(t, err)
	require.Len(t, res.Elements, 1)
	return res.Elements[0]
}

func requireData(t *testing.T, res *executor.ExecutionResult, want string) {
	t.Helper()
	require.Empty(t, res.Errors)
	got, err := json.Marshal(res.Data)
	require.NoError(t, err)
	require.JSONEq(t, want, string(got))
}

func TestGenerateKeys(t *testing.T) {
	h := newHarness(t)

	res := h.run(t, `{
		a: generateIntegrationKey { accessKey secretAccessKey }
		b: generateIntegrationKey { accessKey secretAccessKey }
		user: generateUserKey { accessKey secretAccessKey }
		salesChannel: generateSalesChannelKey
	}`, nil)
	require.Empty(t, res.Errors)

	data := res.Data.(map[string]any)
	a := data["a"].(map[string]any)
	b := data["b"].(map[string]any)
	require.True(t, strings.HasPrefix(a["accessKey"].(string), actions.IntegrationKeyPrefix))
	require.Equal(t, strings.ToUpper(a["accessKey"].(string)), a["accessKey"])
	require.NotEqual(t, a["accessKey"], b["accessKey"])
	require.NotEqual(t, a["secretAccessKey"], b["secretAccessKey"])
	require.NotEmpty(t, a["secretAccessKey"])

	user := data["user"].(map[string]any)
	require.True(t, strings.HasPrefix(user["accessKey"].(string), actions.UserKeyPrefix))
	require.True(t, strings.HasPrefix(data["salesChannel"].(string), actions.SalesChannelKeyPrefix))
}

func TestProvideFileName(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		vars     map[string]any
		fileName string
	}{
		{"free name", map[string]any{"name": "banner", "ext": "jpg"}, "banner"},
		{"other extension", map[string]any{"name": "logo", "ext": "png"}, "logo"},
		{"taken", map[string]any{"name": "logo", "ext": "svg"}, "logo_(1)"},
		{"first free suffix", map[string]any{"name": "photo", "ext": "jpg"}, "photo_(2)"},
		{"own name", map[string]any{"name": "logo", "ext": "svg", "media": "d"}, "logo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(t, `query($name: String!, $ext: String!, $media: ID) {
				provideFileName(fileName: $name, fileExtension: $ext, mediaId: $media)
			}`, tt.vars)
			requireData(t, res, `{"provideFileName": "`+tt.fileName+`"}`)
		})
	}
}

func TestRenameMedia(t *testing.T) {
	h := newHarness(t)

	res := h.run(t, `mutation {
		renameMedia(mediaId: "c", fileName: "picture") { fileName fileExtension mediaFolder { name } }
	}`, nil)
	requireData(t, res, `{"renameMedia": {"fileName": "picture", "fileExtension": "png", "mediaFolder": null}}`)
	require.Equal(t, "picture", h.media(t, "c")["fileName"])

	res = h.run(t, `mutation {
		renameMedia(mediaId: "a", fileName: "holiday") { id mediaFolder { name parent { name } } }
	}`, nil)
	requireData(t, res, `{"renameMedia": {"id": "a", "mediaFolder": {"name": "Photos", "parent": {"name": "Root"}}}}`)
}

func TestRenameMediaFailures(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name    string
		query   string
		message string
	}{
		{"duplicate", `mutation { renameMedia(mediaId: "a", fileName: "photo_(1)") { id } }`, "already taken"},
		{"empty", `mutation { renameMedia(mediaId: "a", fileName: "  ") { id } }`, "must not be empty"},
		{"missing", `mutation { renameMedia(mediaId: "zzz", fileName: "x") { id } }`, "zzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(t, tt.query, nil)
			require.Len(t, res.Errors, 1)
			require.Equal(t, executor.Path{"renameMedia"}, res.Errors[0].Path)
			require.Contains(t, res.Errors[0].Message, tt.message)
		})
	}
	require.Equal(t, "photo", h.media(t, "a")["fileName"])
}

func TestDissolveMediaFolder(t *testing.T) {
	h := newHarness(t)

	res := h.run(t, `mutation { dissolveMediaFolder(mediaFolderId: "f2") }`, nil)
	requireData(t, res, `{"dissolveMediaFolder": "f2"}`)

	require.Equal(t, "f1", h.media(t, "a")["mediaFolderId"])
	require.Equal(t, "f1", h.media(t, "b")["mediaFolderId"])
	require.Equal(t, 2, h.store.Len("media_folder"))

	res = h.run(t, `{ mediaFolder(id: "f3") { parentId } }`, nil)
	requireData(t, res, `{"mediaFolder": {"parentId": "f1"}}`)

	res = h.run(t, `mutation { dissolveMediaFolder(mediaFolderId: "f1") }`, nil)
	requireData(t, res, `{"dissolveMediaFolder": "f1"}`)
	require.Nil(t, h.media(t, "d")["mediaFolderId"])

	res = h.run(t, `mutation { dissolveMediaFolder(mediaFolderId: "f1") }`, nil)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0].Message, "f1")
}

func TestRegisterWithoutMedia(t *testing.T) {
	meta, err := entity.Parse([]byte(`
entities:
  - name: tag
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: name, kind: string}
`))
	require.NoError(t, err)

	queries, mutations := registry.NewFields(), registry.NewFields()
	require.NoError(t, actions.Register(queries, mutations, meta, memory.New(meta)))
	require.Equal(t, []string{"generateIntegrationKey", "generateUserKey", "generateSalesChannelKey"}, queries.Names())
	require.Zero(t, mutations.Len())
}
