package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hanpama/dalgraph/internal/config"
	"github.com/hanpama/dalgraph/internal/entity"
	"github.com/hanpama/dalgraph/internal/gateway"
	"github.com/hanpama/dalgraph/internal/protoreg"
	"github.com/hanpama/dalgraph/internal/store/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}
	if err := newApp().Run(ctx, args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "dalgraph",
		Usage: "GraphQL API generated from entity metadata",
		Commands: []*cli.Command{
			serveCommand(),
			serveExecutorCommand(),
			printSchemaCommand(),
			compileProtoCommand(),
		},
	}
}

// commonFlags are shared by every command. Flags keep parse state, so each
// command gets its own instances.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "YAML configuration file", Sources: cli.EnvVars("DALGRAPH_CONFIG")},
		&cli.StringFlag{Name: "entities", Usage: "entity metadata YAML file (default: entities.yaml)"},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "store", Usage: "query executor: memory, sqlite or remote"},
		&cli.StringFlag{Name: "sqlite-dsn", Usage: "sqlite database for --store=sqlite"},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the GraphQL HTTP server",
		Flags: append(append(commonFlags(), storeFlags()...),
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (default: :8080)"},
			&cli.StringSliceFlag{Name: "executor-endpoint", Usage: "EntityExecutor endpoint for --store=remote. Repeatable"},
			&cli.StringFlag{Name: "otel-endpoint", Usage: "OTLP collector endpoint"},
			&cli.BoolFlag{Name: "watch", Usage: "reload the schema when the entities file changes"},
			&cli.BoolFlag{Name: "playground", Usage: "serve the GraphQL playground (default: true)"},
			&cli.BoolFlag{Name: "pretty", Usage: "indent JSON responses"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-request timeout (default: 10s)"},
			&cli.StringSliceFlag{Name: "cors", Usage: "allowed CORS origin. Repeatable"},
			&cli.StringSliceFlag{Name: "metadata-header", Usage: "HTTP header forwarded to the remote executor. Repeatable"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func serveExecutorCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-executor",
		Usage: "Serve the EntityExecutor gRPC service over a local store",
		Flags: append(append(commonFlags(), storeFlags()...),
			&cli.StringFlag{Name: "addr", Usage: "gRPC listen address (default: :9090)"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.Executor.Addr = c.String("addr")
			}
			if cfg.Store.Kind == config.StoreRemote {
				return fmt.Errorf("serve-executor needs a local store, got %q", cfg.Store.Kind)
			}
			return serveExecutor(ctx, cfg)
		},
	}
}

func printSchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "print-schema",
		Usage: "Print the generated GraphQL schema",
		Flags: append(commonFlags(),
			&cli.BoolFlag{Name: "actions", Value: true, Usage: "include the built-in custom fields"},
			&cli.StringFlag{Name: "out", Usage: "write the schema to this file instead of stdout"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			reg, err := entity.LoadFile(cfg.Entities)
			if err != nil {
				return err
			}
			current := entity.NewCurrent(reg)
			g, err := gateway.New(current, memory.New(current),
				gateway.WithActions(c.Bool("actions")),
				gateway.WithIntrospection(false))
			if err != nil {
				return err
			}
			if out := c.String("out"); out != "" {
				return os.WriteFile(out, []byte(g.Engine().SDL), 0o644)
			}
			_, err = fmt.Fprint(c.Root().Writer, g.Engine().SDL)
			return err
		},
	}
}

func compileProtoCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile-proto",
		Usage: "Print the EntityExecutor service definition",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "out", Usage: "write the .proto file under this directory instead of stdout"},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			reg, err := entity.LoadFile(cfg.Entities)
			if err != nil {
				return err
			}
			services, err := protoreg.Build(reg)
			if err != nil {
				return fmt.Errorf("protoreg build: %w", err)
			}
			if out := c.String("out"); out != "" {
				return protoreg.Render(services, out)
			}
			return protoreg.Print(services, c.Root().Writer)
		},
	}
}

// loadConfig reads --config when given and applies the flags that were set
// on top of it.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	list := func(name string, dst *[]string) {
		if c.IsSet(name) {
			*dst = c.StringSlice(name)
		}
	}
	flag := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}
	str("entities", &cfg.Entities)
	str("log-level", &cfg.Log.Level)
	str("store", &cfg.Store.Kind)
	str("sqlite-dsn", &cfg.Store.SQLiteDSN)
	str("otel-endpoint", &cfg.OTel.Endpoint)
	list("executor-endpoint", &cfg.Store.Endpoints)
	list("cors", &cfg.Server.CORS)
	list("metadata-header", &cfg.Server.MetadataHeaders)
	flag("watch", &cfg.Watch)
	flag("playground", &cfg.Server.Playground)
	flag("pretty", &cfg.Server.Pretty)
	if c.Name == "serve" {
		str("addr", &cfg.Server.Addr)
	}
	if c.IsSet("timeout") {
		cfg.Server.Timeout = config.Duration(c.Duration("timeout"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
