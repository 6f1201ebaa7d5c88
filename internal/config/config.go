// Package config loads and validates the Architect configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Architect.
type Config struct {
	Project ProjectConfig `yaml:"project"`
	Plugins PluginsConfig `yaml:"plugins"`
	Foreman ForemanConfig `yaml:"foreman"`
	LLM     LLMConfig     `yaml:"llm"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ProjectConfig identifies the project tree the subsystem is confined to.
type ProjectConfig struct {
	// Root is the directory all plugin I/O must stay inside.
	// Defaults to the current working directory.
	Root string `yaml:"root"`

	// PluginDir is the directory plugins are discovered in.
	// Defaults to <root>/PLUGINS.
	PluginDir string `yaml:"plugin_dir"`
}

// PluginsConfig controls plugin execution limits.
type PluginsConfig struct {
	// RegistryFile is the integrity record file, relative to PluginDir
	// unless absolute.
	RegistryFile string `yaml:"registry_file"`

	// Timeout is the wall-clock limit per plugin execution.
	Timeout time.Duration `yaml:"timeout"`

	// MaxInputSize is the input file size ceiling in bytes.
	MaxInputSize int64 `yaml:"max_input_size"`

	// OutputCap is the per-stream captured output ceiling in bytes.
	OutputCap int64 `yaml:"output_cap"`

	// EnvAllowlist lists environment variables passed through to plugins.
	EnvAllowlist []string `yaml:"env_allowlist"`

	// Entries contains per-plugin option values, validated against the
	// plugin's manifest schema when one is present.
	Entries map[string]map[string]any `yaml:"entries"`
}

// ForemanConfig holds the compliance rules applied to generated diagrams.
type ForemanConfig struct {
	OrgName         string `yaml:"org_name"`
	PreferredCloud  string `yaml:"preferred_cloud"`
	RequireSecurity bool   `yaml:"require_security_layer"`
	RequireBranding bool   `yaml:"require_branding"`
	RequireDataFlow bool   `yaml:"require_data_flow"`
	BrandColor      string `yaml:"brand_color"`
}

// LLMConfig configures the diagram generation collaborator.
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// AuditConfig configures the security event store.
type AuditConfig struct {
	// DatabasePath is the SQLite file holding security events.
	// Defaults to <root>/.architect/audit.db.
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file read.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Project.Root == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Project.Root = wd
		} else {
			cfg.Project.Root = "."
		}
	}
	if cfg.Project.PluginDir == "" {
		cfg.Project.PluginDir = filepath.Join(cfg.Project.Root, "PLUGINS")
	}
	if cfg.Plugins.RegistryFile == "" {
		cfg.Plugins.RegistryFile = ".plugin_hashes.json"
	}
	if cfg.Plugins.Timeout == 0 {
		cfg.Plugins.Timeout = 30 * time.Second
	}
	if cfg.Plugins.MaxInputSize == 0 {
		cfg.Plugins.MaxInputSize = 10 * 1024 * 1024
	}
	if cfg.Plugins.OutputCap == 0 {
		cfg.Plugins.OutputCap = 1024 * 1024
	}
	if len(cfg.Plugins.EnvAllowlist) == 0 {
		cfg.Plugins.EnvAllowlist = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"}
	}
	if cfg.Foreman.OrgName == "" {
		cfg.Foreman.OrgName = "BlueFalconInk LLC"
	}
	if cfg.Foreman.PreferredCloud == "" {
		cfg.Foreman.PreferredCloud = "GCP"
	}
	if cfg.Foreman.BrandColor == "" {
		cfg.Foreman.BrandColor = "#1E40AF"
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Audit.DatabasePath == "" {
		cfg.Audit.DatabasePath = filepath.Join(cfg.Project.Root, ".architect", "audit.db")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// RegistryPath resolves the integrity registry file location.
func (c *Config) RegistryPath() string {
	if filepath.IsAbs(c.Plugins.RegistryFile) {
		return c.Plugins.RegistryFile
	}
	return filepath.Join(c.Project.PluginDir, c.Plugins.RegistryFile)
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	info, err := os.Stat(c.Project.Root)
	if err != nil {
		return fmt.Errorf("project root %q: %w", c.Project.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %q is not a directory", c.Project.Root)
	}
	if c.Plugins.Timeout < 0 {
		return fmt.Errorf("plugins.timeout must not be negative")
	}
	if c.Plugins.MaxInputSize < 0 {
		return fmt.Errorf("plugins.max_input_size must not be negative")
	}
	if c.Plugins.OutputCap < 0 {
		return fmt.Errorf("plugins.output_cap must not be negative")
	}
	return nil
}
