package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "architect.yaml")
	content := "project:\n  root: " + dir + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Project.PluginDir != filepath.Join(dir, "PLUGINS") {
		t.Errorf("expected default plugin dir, got %q", cfg.Project.PluginDir)
	}
	if cfg.Plugins.Timeout != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %v", cfg.Plugins.Timeout)
	}
	if cfg.Plugins.MaxInputSize != 10*1024*1024 {
		t.Errorf("expected 10MB input ceiling, got %d", cfg.Plugins.MaxInputSize)
	}
	if cfg.Plugins.OutputCap != 1024*1024 {
		t.Errorf("expected 1MB output cap, got %d", cfg.Plugins.OutputCap)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARCHITECT_TEST_ROOT", dir)

	path := filepath.Join(dir, "architect.yaml")
	content := "project:\n  root: ${ARCHITECT_TEST_ROOT}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project.Root != dir {
		t.Errorf("expected root %q, got %q", dir, cfg.Project.Root)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRegistryPath(t *testing.T) {
	cfg := Default()
	cfg.Project.PluginDir = filepath.Join("proj", "PLUGINS")
	cfg.Plugins.RegistryFile = ".plugin_hashes.json"
	if got := cfg.RegistryPath(); got != filepath.Join("proj", "PLUGINS", ".plugin_hashes.json") {
		t.Errorf("unexpected registry path %q", got)
	}

	abs := filepath.Join(t.TempDir(), "hashes.json")
	cfg.Plugins.RegistryFile = abs
	if got := cfg.RegistryPath(); got != abs {
		t.Errorf("absolute registry file should win, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Project.Root = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.Project.Root = filepath.Join(cfg.Project.Root, "does-not-exist")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing project root")
	}

	cfg = Default()
	cfg.Project.Root = t.TempDir()
	cfg.Plugins.Timeout = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
