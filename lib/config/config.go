// Copyright 2026 The Dynstatic Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/learningequality/dynstatic/lib/finder"
	"github.com/learningequality/dynstatic/lib/storage"
)

// EnvConfig names the configuration file for [Load].
const EnvConfig = "DYNSTATIC_CONFIG"

// EnvDeveloperMode turns on Autorefresh in [Default] when set to a
// true value.
const EnvDeveloperMode = "DYNSTATIC_DEVELOPER_MODE"

// DefaultImmutableFileTest matches a semantic version or a 32 hex digit
// hash anywhere in a URL.
const DefaultImmutableFileTest = `((0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)|[a-f0-9]{32})`

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for deployed servers and devices.
	Production Environment = "production"
)

// Duration is a time.Duration written as a Go duration string
// ("120s", "10m") in configuration files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler, which both the
// YAML and JSON decoders use for scalar strings.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the master configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment" json:"environment"`

	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Static   StaticConfig   `yaml:"static" json:"static"`
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains the settings an environment section may change.
type Overrides struct {
	Logging *LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty"`
	Static  *StaticOverrides `yaml:"static,omitempty" json:"static,omitempty"`
}

// StaticOverrides mirrors StaticConfig with optional fields. Locations
// replace the base list when non-empty.
type StaticOverrides struct {
	Prefix            string            `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	StaticRoots       []string          `yaml:"static_roots,omitempty" json:"static_roots,omitempty"`
	Locations         []finder.Location `yaml:"locations,omitempty" json:"locations,omitempty"`
	MaxAge            *Duration         `yaml:"max_age,omitempty" json:"max_age,omitempty"`
	ImmutableFileTest *string           `yaml:"immutable_file_test,omitempty" json:"immutable_file_test,omitempty"`
	Autorefresh       *bool             `yaml:"autorefresh,omitempty" json:"autorefresh,omitempty"`
	AllowAllOrigins   *bool             `yaml:"allow_all_origins,omitempty" json:"allow_all_origins,omitempty"`
	IndexFile         *string           `yaml:"index_file,omitempty" json:"index_file,omitempty"`
}

// ServerConfig configures the HTTP listener and the wrapped
// application.
type ServerConfig struct {
	// Address is the TCP listen address.
	// Default: 127.0.0.1:8080
	Address string `yaml:"address" json:"address"`

	// Upstream is the base URL of the application requests are
	// proxied to when no static file matches. Empty answers them
	// with 404.
	Upstream string `yaml:"upstream" json:"upstream"`

	// Metrics exposes Prometheus metrics at /metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is text, json, or auto (text on a terminal).
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// StaticConfig configures the static middleware.
type StaticConfig struct {
	// Prefix is the URL prefix whose files are all found through
	// StaticRoots. Must end in "/". Empty disables it.
	Prefix string `yaml:"prefix" json:"prefix"`

	// StaticRoots are searched in order for paths under Prefix.
	StaticRoots []string `yaml:"static_roots" json:"static_roots"`

	// Locations are the dynamic (prefix, root) pairs.
	Locations []finder.Location `yaml:"locations" json:"locations"`

	// AddFiles are directories registered eagerly at startup.
	AddFiles []AddFilesEntry `yaml:"add_files" json:"add_files"`

	// MaxAge is the Cache-Control max-age for mutable files. Negative
	// omits Cache-Control.
	// Default: 120s
	MaxAge Duration `yaml:"max_age" json:"max_age"`

	// ImmutableFileTest is a regular expression over URL paths.
	// Matching files are cached for ten years. Empty disables.
	ImmutableFileTest string `yaml:"immutable_file_test" json:"immutable_file_test"`

	// Autorefresh bypasses the resolution cache.
	// Default: from DYNSTATIC_DEVELOPER_MODE
	Autorefresh bool `yaml:"autorefresh" json:"autorefresh"`

	// AllowAllOrigins adds Access-Control-Allow-Origin: *.
	// Default: true
	AllowAllOrigins bool `yaml:"allow_all_origins" json:"allow_all_origins"`

	// IndexFile is served for directory URLs of AddFiles roots.
	// Default: index.html
	IndexFile string `yaml:"index_file" json:"index_file"`
}

// AddFilesEntry registers every file under Directory at URL Prefix.
type AddFilesEntry struct {
	Directory string `yaml:"directory" json:"directory"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

// ProviderConfig selects the document provider. At most one of Socket
// and Catalog may be set; with neither, every root is a filesystem
// path.
type ProviderConfig struct {
	// Socket is the Unix socket of a remote provider.
	Socket string `yaml:"socket" json:"socket"`

	// Catalog is a catalog database opened in-process.
	Catalog string `yaml:"catalog" json:"catalog"`

	// Authority overrides the catalog's document authority.
	Authority string `yaml:"authority" json:"authority"`
}

// Default returns the default configuration. Load and LoadFile decode
// the file over it.
func Default() *Config {
	developerMode, _ := strconv.ParseBool(os.Getenv(EnvDeveloperMode))
	return &Config{
		Environment: Production,
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Static: StaticConfig{
			MaxAge:            Duration(120 * time.Second),
			ImmutableFileTest: DefaultImmutableFileTest,
			Autorefresh:       developerMode,
			AllowAllOrigins:   true,
			IndexFile:         "index.html",
		},
	}
}

// Load loads configuration from the DYNSTATIC_CONFIG environment
// variable. If it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your dynstatic config file, or use --config flag", EnvConfig)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	cfg.decodeRoots()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}

	if static := overrides.Static; static != nil {
		if static.Prefix != "" {
			c.Static.Prefix = static.Prefix
		}
		if len(static.StaticRoots) > 0 {
			c.Static.StaticRoots = static.StaticRoots
		}
		if len(static.Locations) > 0 {
			c.Static.Locations = static.Locations
		}
		if static.MaxAge != nil {
			c.Static.MaxAge = *static.MaxAge
		}
		if static.ImmutableFileTest != nil {
			c.Static.ImmutableFileTest = *static.ImmutableFileTest
		}
		if static.Autorefresh != nil {
			c.Static.Autorefresh = *static.Autorefresh
		}
		if static.AllowAllOrigins != nil {
			c.Static.AllowAllOrigins = *static.AllowAllOrigins
		}
		if static.IndexFile != nil {
			c.Static.IndexFile = *static.IndexFile
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in roots
// and paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":           os.Getenv("HOME"),
		"DYNSTATIC_ROOT": os.Getenv("DYNSTATIC_ROOT"),
	}

	for i := range c.Static.StaticRoots {
		c.Static.StaticRoots[i] = expandVars(c.Static.StaticRoots[i], vars)
	}
	for i := range c.Static.Locations {
		c.Static.Locations[i].Root = expandVars(c.Static.Locations[i].Root, vars)
	}
	for i := range c.Static.AddFiles {
		c.Static.AddFiles[i].Directory = expandVars(c.Static.AddFiles[i].Directory, vars)
	}
	c.Provider.Socket = expandVars(c.Provider.Socket, vars)
	c.Provider.Catalog = expandVars(c.Provider.Catalog, vars)
}

func (c *Config) decodeRoots() {
	for i := range c.Static.StaticRoots {
		c.Static.StaticRoots[i] = storage.DecodeRoot(c.Static.StaticRoots[i])
	}
	for i := range c.Static.Locations {
		c.Static.Locations[i].Root = storage.DecodeRoot(c.Static.Locations[i].Root)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ImmutableFileTest compiles Static.ImmutableFileTest. An empty
// expression yields nil.
func (c *Config) ImmutableFileTest() (*regexp.Regexp, error) {
	if c.Static.ImmutableFileTest == "" {
		return nil, nil
	}
	return regexp.Compile(c.Static.ImmutableFileTest)
}

// LogLevel returns Logging.Level as a slog.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.Upstream != "" {
		upstream, err := url.Parse(c.Server.Upstream)
		if err != nil || upstream.Scheme == "" || upstream.Host == "" {
			errs = append(errs, fmt.Errorf("server.upstream %q is not an absolute URL", c.Server.Upstream))
		}
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !contains([]string{"auto", "text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: auto, text, json"))
	}

	if c.Static.Prefix != "" && !strings.HasSuffix(c.Static.Prefix, "/") {
		errs = append(errs, fmt.Errorf("static.prefix %q must end in '/'", c.Static.Prefix))
	}
	if _, err := c.ImmutableFileTest(); err != nil {
		errs = append(errs, fmt.Errorf("static.immutable_file_test: %w", err))
	}
	for i, root := range c.Static.StaticRoots {
		if root == "" {
			errs = append(errs, fmt.Errorf("static.static_roots[%d] is empty", i))
		}
	}
	for i, location := range c.Static.Locations {
		if location.Root == "" {
			errs = append(errs, fmt.Errorf("static.locations[%d] (prefix %q) has no root", i, location.Prefix))
		}
	}
	for i, entry := range c.Static.AddFiles {
		if entry.Directory == "" {
			errs = append(errs, fmt.Errorf("static.add_files[%d] has no directory", i))
		}
	}

	if c.Provider.Socket != "" && c.Provider.Catalog != "" {
		errs = append(errs, errors.New("provider.socket and provider.catalog are mutually exclusive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
