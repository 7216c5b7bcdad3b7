package gateway_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/eventbus"
	"github.com/hanpama/dalgraph/internal/events"
	"github.com/hanpama/dalgraph/internal/gateway"
	"github.com/hanpama/dalgraph/internal/server"
	"github.com/hanpama/dalgraph/internal/store/memory"
)

const withTags = entitytest.YAML + `
  - name: tag
    fields:
      - {name: id, kind: id, primaryKey: true, required: true}
      - {name: label, kind: string}
`

func post(t *testing.T, h http.Handler, query string) string {
	t.Helper()
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(query))
	req.Header.Set("Content-Type", "application/graphql")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return strings.TrimSpace(w.Body.String())
}

func TestGatewayServesEntitiesAndActions(t *testing.T) {
	current := entity.NewCurrent(entitytest.Registry(t))
	store := memory.New(current)
	g, err := gateway.New(current, store)
	require.NoError(t, err)
	h := server.NewWithSource(g)

	body := post(t, h, `mutation { createCategory(id: "c1", name: "Chairs") { id name } }`)
	require.JSONEq(t, `{"data": {"createCategory": {"id": "c1", "name": "Chairs"}}}`, body)

	body = post(t, h, `{ provideFileName(fileName: "a", fileExtension: "png") }`)
	require.JSONEq(t, `{"data": {"provideFileName": "a"}}`, body)

	require.Contains(t, g.Engine().SDL, "type Category {")
	require.Contains(t, g.Engine().SDL, "generateIntegrationKey: IntegrationAccessKey!")
}

func TestGatewayWithoutActions(t *testing.T) {
	current := entity.NewCurrent(entitytest.Registry(t))
	g, err := gateway.New(current, memory.New(current), gateway.WithActions(false), gateway.WithIntrospection(false))
	require.NoError(t, err)
	require.NotContains(t, g.Engine().SDL, "generateIntegrationKey")
}

func TestGatewayReload(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var reloads []events.SchemaReload
	eventbus.Subscribe(func(_ context.Context, e events.SchemaReload) { reloads = append(reloads, e) })

	current := entity.NewCurrent(entitytest.Registry(t))
	store := memory.New(current)
	migrations := 0
	fail := false
	g, err := gateway.New(current, store, gateway.OnReload(func(context.Context) error {
		if fail {
			return errors.New("migration failed")
		}
		migrations++
		return nil
	}))
	require.NoError(t, err)
	h := server.NewWithSource(g)
	before := g.Engine()

	body := post(t, h, `{ tags { total } }`)
	require.Contains(t, body, `Cannot query field \"tags\" on type \"Query\"`)

	next, err := entity.Parse([]byte(withTags))
	require.NoError(t, err)
	require.NoError(t, g.Reload(context.Background(), next))
	require.Equal(t, 1, migrations)
	require.Same(t, next, current.Registry())
	require.NotSame(t, before, g.Engine())

	body = post(t, h, `mutation { createTag(id: "t1", label: "new") { label } }`)
	require.JSONEq(t, `{"data": {"createTag": {"label": "new"}}}`, body)

	fail = true
	reduced, err := entity.Parse([]byte(entitytest.YAML))
	require.NoError(t, err)
	require.EqualError(t, g.Reload(context.Background(), reduced), "migration failed")
	require.Same(t, next, current.Registry())
	body = post(t, h, `{ tag(id: "t1") { label } }`)
	require.JSONEq(t, `{"data": {"tag": {"label": "new"}}}`, body)

	require.Len(t, reloads, 2)
	require.NoError(t, reloads[0].Err)
	require.Equal(t, 8, reloads[0].Entities)
	require.EqualError(t, reloads[1].Err, "migration failed")
}

func TestGatewayWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(entitytest.YAML), 0o644))
	reg, err := entity.LoadFile(path)
	require.NoError(t, err)

	current := entity.NewCurrent(reg)
	g, err := gateway.New(current, memory.New(current))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx, path) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(withTags), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(g.Engine().SDL, "type Tag {")
	}, 5*time.Second, 20*time.Millisecond)
}
