package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
)

// Config is the root configuration document.
type Config struct {
	System     SystemConfig            `yaml:"system"`
	Modules    map[string]ModuleConfig `yaml:"modules"`
	Storage    StorageConfig           `yaml:"storage"`
	Logging    LoggingConfig           `yaml:"logging"`
	Auth       AuthConfig              `yaml:"auth"`
	PluginsDir string                  `yaml:"pluginsDir"`
}

// SystemConfig identifies the deployment.
type SystemConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
}

// ModuleConfig is one module's free-form section. Only "enabled" is
// interpreted here; everything else passes through to the module's
// schema validation.
type ModuleConfig struct {
	Enabled  bool
	Settings map[string]any
}

// UnmarshalYAML keeps the section free-form while lifting the enabled
// flag out. A module section without the flag is enabled.
func (m *ModuleConfig) UnmarshalYAML(node *yaml.Node) error {
	raw := make(map[string]any)
	if err := node.Decode(&raw); err != nil {
		return err
	}
	m.Enabled = true
	if v, ok := raw["enabled"].(bool); ok {
		m.Enabled = v
	}
	delete(raw, "enabled")
	m.Settings = raw
	return nil
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Engine  string         `yaml:"engine"`
	Options StorageOptions `yaml:"options"`
}

// StorageOptions carries backend-specific settings.
type StorageOptions struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	FilePath    string `yaml:"filePath"`
	MaxFileSize int    `yaml:"maxFileSize"`
	MaxFiles    int    `yaml:"maxFiles"`
}

// AuthConfig parameterizes the HTTP security gates.
type AuthConfig struct {
	Secret               string   `yaml:"secret"`
	Issuer               string   `yaml:"issuer"`
	APIKeys              []string `yaml:"apiKeys"`
	PublicPaths          []string `yaml:"publicPaths"`
	MaxRequestsPerMinute int      `yaml:"maxRequestsPerMinute"`
}

// Environments, engines, and logging enums accepted by Validate.
var (
	environments = map[string]bool{"development": true, "staging": true, "production": true}
	engines      = map[string]bool{"memory": true, "file": true, "sqlite": true, "database": true}
	logLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats   = map[string]bool{"json": true, "console": true}
)

// Load reads, decodes, defaults, and validates the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oerrors.Configf("failed to read config file %s: %v", path, err)
	}
	return Parse(raw)
}

// Parse decodes, defaults, and validates raw YAML.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, oerrors.Configf("invalid config: %v", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.System.Name == "" {
		c.System.Name = "opspilot"
	}
	if c.System.Environment == "" {
		c.System.Environment = "development"
	}
	if c.System.Port == 0 {
		c.System.Port = 8080
	}
	if c.Storage.Engine == "" {
		c.Storage.Engine = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Auth.MaxRequestsPerMinute == 0 {
		c.Auth.MaxRequestsPerMinute = 120
	}
}

// Validate enforces the enum fields and cross-field requirements.
func (c *Config) Validate() error {
	if !environments[c.System.Environment] {
		return oerrors.Configf("unknown environment %q (expected development, staging, or production)", c.System.Environment)
	}
	if c.System.Port < 1 || c.System.Port > 65535 {
		return oerrors.Configf("port %d is out of range", c.System.Port)
	}
	if !engines[c.Storage.Engine] {
		return oerrors.Configf("unknown storage engine %q (expected memory, file, sqlite, or database)", c.Storage.Engine)
	}
	if c.Storage.Engine != "memory" && c.Storage.Options.Path == "" {
		return oerrors.Configf("storage engine %q requires options.path", c.Storage.Engine)
	}
	if !logLevels[c.Logging.Level] {
		return oerrors.Configf("unknown log level %q", c.Logging.Level)
	}
	if !logFormats[c.Logging.Format] {
		return oerrors.Configf("unknown log format %q (expected json or console)", c.Logging.Format)
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return oerrors.Configf("logging output %q requires filePath", c.Logging.Output)
	}
	return nil
}

// ModuleConfigs converts the module sections into the kernel's shape.
func (c *Config) ModuleConfigs() map[string]module.Config {
	out := make(map[string]module.Config, len(c.Modules))
	for id, mc := range c.Modules {
		out[id] = module.Config{Enabled: mc.Enabled, Settings: mc.Settings}
	}
	return out
}
