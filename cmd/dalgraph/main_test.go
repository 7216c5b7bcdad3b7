package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hanpama/dalgraph/internal/config"
	"github.com/hanpama/dalgraph/internal/entity/entitytest"
	"github.com/hanpama/dalgraph/internal/metrics"
	"github.com/hanpama/dalgraph/internal/protoreg"
	"github.com/hanpama/dalgraph/internal/server"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"dalgraph"}, args...))
	return out.String(), err
}

func TestPrintSchema(t *testing.T) {
	entities := writeFile(t, "entities.yaml", entitytest.YAML)

	out, err := run(t, "print-schema", "--entities", entities)
	require.NoError(t, err)
	require.Contains(t, out, "type Product {")
	require.Contains(t, out, "generateIntegrationKey: IntegrationAccessKey!")
	require.NotContains(t, out, "__schema")

	out, err = run(t, "print-schema", "--entities", entities, "--actions=false")
	require.NoError(t, err)
	require.NotContains(t, out, "generateIntegrationKey")

	sdl := filepath.Join(t.TempDir(), "schema.graphql")
	_, err = run(t, "print-schema", "--entities", entities, "--out", sdl)
	require.NoError(t, err)
	written, err := os.ReadFile(sdl)
	require.NoError(t, err)
	require.Contains(t, string(written), "type Product {")
}

func TestPrintSchemaMissingEntities(t *testing.T) {
	_, err := run(t, "print-schema", "--entities", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestCompileProto(t *testing.T) {
	entities := writeFile(t, "entities.yaml", entitytest.YAML)

	out, err := run(t, "compile-proto", "--entities", entities)
	require.NoError(t, err)
	require.Contains(t, out, "service EntityExecutor")

	dir := t.TempDir()
	_, err = run(t, "compile-proto", "--entities", entities, "--out", dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, protoreg.FilePath))
	require.NoError(t, err)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "dalgraph.yaml", `
entities: shop.yaml
server:
  addr: ":9000"
  pretty: true
store:
  kind: sqlite
`)
	cmd := serveCommand()
	var got *config.Config
	cmd.Action = func(_ context.Context, c *cli.Command) error {
		var err error
		got, err = loadConfig(c)
		return err
	}
	err := cmd.Run(context.Background(), []string{
		"serve", "--config", path,
		"--addr", ":7000",
		"--store", "memory",
		"--timeout", "3s",
		"--cors", "https://a.example.com", "--cors", "https://b.example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "shop.yaml", got.Entities)
	require.Equal(t, ":7000", got.Server.Addr)
	require.True(t, got.Server.Pretty)
	require.Equal(t, config.StoreMemory, got.Store.Kind)
	require.Equal(t, 3*time.Second, got.Server.Timeout.Std())
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, got.Server.CORS)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := run(t, "serve", "--store", "remote")
	require.ErrorContains(t, err, "store.endpoints is required")
}

func TestServeWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Entities = writeFile(t, "entities.yaml", entitytest.YAML)
	cfg.Store.Kind = config.StoreSQLite
	cfg.Store.SQLiteDSN = filepath.Join(t.TempDir(), "dalgraph.db")

	g, closeStore, err := newGateway(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closeStore()) })

	mux := server.NewWithSource(g, serverOptions(cfg, metrics.New())...).Mux(cfg.Server.Path)

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`mutation { createCategory(id: "c1", name: "Chairs") { id name } }`))
	req.Header.Set("Content-Type", "application/graphql")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data": {"createCategory": {"id": "c1", "name": "Chairs"}}}`, w.Body.String())

	req = httptest.NewRequest("POST", "/graphql", strings.NewReader(`query=x`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	for _, path := range []string{"/schema.graphql", "/playground", "/metrics"} {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}
