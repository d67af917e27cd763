// Package config loads restq configuration from YAML or TOML files with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/restq/internal/querysql"
	"github.com/roach88/restq/internal/service"
)

// Environment variables that override file settings.
const (
	EnvDatabaseDriver = "RESTQ_DATABASE_DRIVER"
	EnvDatabaseDSN    = "RESTQ_DATABASE_DSN"
	EnvSchema         = "RESTQ_SCHEMA"
	EnvNATSURL        = "RESTQ_NATS_URL"
	EnvNATSPrefix     = "RESTQ_NATS_PREFIX"
)

// Defaults.
const (
	DefaultDriver = "sqlite3"
	DefaultDSN    = "restq.db"
	DefaultSchema = "schema.cue"
)

type Config struct {
	Database  Database          `yaml:"database" toml:"database"`
	Schema    string            `yaml:"schema" toml:"schema"` // CUE model schema path
	NATS      NATS              `yaml:"nats" toml:"nats"`
	Resources []service.Options `yaml:"resources" toml:"resources"`
}

type Database struct {
	Driver string `yaml:"driver" toml:"driver"` // RESTQ_DATABASE_DRIVER (default "sqlite3")
	DSN    string `yaml:"dsn" toml:"dsn"`       // RESTQ_DATABASE_DSN (default "restq.db")
}

type NATS struct {
	URL    string `yaml:"url" toml:"url"`       // RESTQ_NATS_URL (optional, empty = no events)
	Prefix string `yaml:"prefix" toml:"prefix"` // RESTQ_NATS_PREFIX (default "restq")
}

// Load reads the file at path, applies environment overrides and defaults
// and validates the result. An empty path loads from the environment only.
// Relative schema and SQLite paths in a file are resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, c); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		c.resolvePaths(filepath.Dir(path))
	}

	c.Database.Driver = envOrDefault(EnvDatabaseDriver, orDefault(c.Database.Driver, DefaultDriver))
	c.Database.DSN = envOrDefault(EnvDatabaseDSN, orDefault(c.Database.DSN, DefaultDSN))
	c.Schema = envOrDefault(EnvSchema, orDefault(c.Schema, DefaultSchema))
	c.NATS.URL = envOrDefault(EnvNATSURL, c.NATS.URL)
	c.NATS.Prefix = envOrDefault(EnvNATSPrefix, c.NATS.Prefix)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decode(path string, data []byte, c *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse YAML: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown field %q", undecoded[0].String())
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", ext)
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if c.Schema != "" && !filepath.IsAbs(c.Schema) {
		c.Schema = filepath.Join(dir, c.Schema)
	}
	if d, err := querysql.ParseDialect(orDefault(c.Database.Driver, DefaultDriver)); err == nil && d == querysql.SQLite {
		dsn := c.Database.DSN
		if dsn != "" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !filepath.IsAbs(dsn) {
			c.Database.DSN = filepath.Join(dir, dsn)
		}
	}
}

// Validate checks the driver and the resource entries.
func (c *Config) Validate() error {
	if _, err := querysql.ParseDialect(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if r.Model == "" {
			return fmt.Errorf("resources[%d]: model is required", i)
		}
		if seen[r.Model] {
			return fmt.Errorf("resources[%d]: duplicate resource for model %q", i, r.Model)
		}
		seen[r.Model] = true
		if r.Paginate.Default < 0 || r.Paginate.Max < 0 {
			return fmt.Errorf("resources[%d]: paginate values must not be negative", i)
		}
		if r.Paginate.Max > 0 && r.Paginate.Default > r.Paginate.Max {
			return fmt.Errorf("resources[%d]: paginate.default %d exceeds paginate.max %d", i, r.Paginate.Default, r.Paginate.Max)
		}
	}
	return nil
}

// Resource returns the configured options for model. Models without an
// entry get Options{Model: model}.
func (c *Config) Resource(model string) service.Options {
	for _, r := range c.Resources {
		if r.Model == model {
			return r
		}
	}
	return service.Options{Model: model}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
