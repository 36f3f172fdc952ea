// Package config loads the chat server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/branchchat/tot"
	yaml "go.yaml.in/yaml/v2"
)

// Environment variables that override file values.
const (
	EnvAddr     = "BRANCHCHAT_ADDR"
	EnvStoreDSN = "BRANCHCHAT_STORE_DSN"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Emitter modes.
const (
	EmitterNone = "none"
	EmitterLog  = "log"
	EmitterJSON = "json"
)

// Config is the full server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Models        ModelsConfig        `yaml:"models"`
	Search        tot.SearchConfig    `yaml:"search"`
	SearchLimits  tot.SearchLimits    `yaml:"search_limits"`
	Engine        EngineConfig        `yaml:"engine"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects where completed searches are persisted.
type StoreConfig struct {
	// Driver is one of memory, sqlite or mysql.
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite and a go-sql-driver DSN for mysql.
	DSN string `yaml:"dsn"`
}

// ModelsConfig holds "provider/model" specs per role. Empty roles use
// Default.
type ModelsConfig struct {
	Default     string `yaml:"default"`
	Reasoner    string `yaml:"reasoner"`
	Evaluator   string `yaml:"evaluator"`
	Synthesizer string `yaml:"synthesizer"`
	ThinkLonger string `yaml:"think_longer"`
	Summary     string `yaml:"summary"`
	Research    string `yaml:"research"`
}

// Or returns spec, or Default when spec is empty.
func (m ModelsConfig) Or(spec string) string {
	if spec == "" {
		return m.Default
	}
	return spec
}

// EngineConfig tunes the search engine.
type EngineConfig struct {
	// MaxConcurrentCalls bounds in-flight oracle calls per fan-out.
	// Zero means unbounded.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// ObservabilityConfig selects search event and metrics sinks.
type ObservabilityConfig struct {
	Emitter string `yaml:"emitter"`
	Tracing bool   `yaml:"tracing"`
	Metrics bool   `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Store:  StoreConfig{Driver: DriverMemory},
		Models: ModelsConfig{Default: "openai/gpt-4o-mini"},
		Search:       tot.DefaultSearchConfig(),
		SearchLimits: tot.DefaultSearchLimits(),
		Observability: ObservabilityConfig{
			Emitter: EmitterLog,
			Metrics: true,
		},
	}
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if v, ok := os.LookupEnv(EnvAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := os.LookupEnv(EnvStoreDSN); ok && v != "" {
		cfg.Store.DSN = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverMySQL:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Models.Default == "" {
		return errors.New("models.default is required")
	}
	if c.Engine.MaxConcurrentCalls < 0 {
		return errors.New("engine.max_concurrent_calls must not be negative")
	}
	switch c.Observability.Emitter {
	case EmitterNone, EmitterLog, EmitterJSON:
	default:
		return fmt.Errorf("unknown observability.emitter %q", c.Observability.Emitter)
	}
	if c.SearchLimits.MaxBeamWidth < 0 || c.SearchLimits.MaxDepth < 0 {
		return errors.New("search_limits must not be negative")
	}
	if err := c.Search.ValidateWithin(c.SearchLimits); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}
