// Package config loads the dalgraph configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRemote = "remote"
)

// Config is the complete process configuration.
type Config struct {
	// Entities is the path of the entity metadata YAML file.
	Entities string `yaml:"entities"`
	// Watch reloads the schema when Entities changes.
	Watch bool `yaml:"watch"`

	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Executor ExecutorConfig `yaml:"executor"`
	Log      LogConfig      `yaml:"log"`
	OTel     OTelConfig     `yaml:"otel"`
}

// ServerConfig configures the GraphQL HTTP server.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	Path            string   `yaml:"path"`
	Timeout         Duration `yaml:"timeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
	Pretty          bool     `yaml:"pretty"`
	Playground      bool     `yaml:"playground"`
	Introspection   bool     `yaml:"introspection"`
	Actions         bool     `yaml:"actions"`
	Metrics         bool     `yaml:"metrics"`
	CORS            []string `yaml:"cors"`
	MetadataHeaders []string `yaml:"metadataHeaders"`
}

// StoreConfig selects the query executor.
type StoreConfig struct {
	Kind       string   `yaml:"kind"`
	SQLiteDSN  string   `yaml:"sqliteDSN"`
	Endpoints  []string `yaml:"endpoints"`
	RPCTimeout Duration `yaml:"rpcTimeout"`
}

// ExecutorConfig configures the gRPC executor server.
type ExecutorConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// OTelConfig enables trace export when Endpoint is set.
type OTelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Duration is a time.Duration written as a Go duration string such as "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Entities: "entities.yaml",
		Server: ServerConfig{
			Addr:          ":8080",
			Path:          "/graphql",
			Timeout:       Duration(10 * time.Second),
			MaxBodyBytes:  1 << 20,
			Playground:    true,
			Introspection: true,
			Actions:       true,
			Metrics:       true,
		},
		Store: StoreConfig{
			Kind:       StoreMemory,
			SQLiteDSN:  "file:dalgraph.db",
			RPCTimeout: Duration(5 * time.Second),
		},
		Executor: ExecutorConfig{Addr: ":9090"},
		Log:      LogConfig{Level: "info"},
		OTel:     OTelConfig{Service: "dalgraph"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.Entities == "" {
		errs = append(errs, errors.New("entities is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Path == "" || c.Server.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, errors.New("server.timeout must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.maxBodyBytes must not be negative"))
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLiteDSN == "" {
			errs = append(errs, errors.New("store.sqliteDSN is required for the sqlite store"))
		}
	case StoreRemote:
		if len(c.Store.Endpoints) == 0 {
			errs = append(errs, errors.New("store.endpoints is required for the remote store"))
		}
		if c.Watch {
			errs = append(errs, errors.New("watch is not supported with the remote store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q must be one of memory, sqlite, remote", c.Store.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
