// Package main provides the CLI entry point for Architect.
//
// Architect runs converter plugins inside a guarded pipeline: every
// plugin file is hash-verified against a local integrity registry,
// every input and output path is resolved and confined to the project
// root, and execution happens in a process group with a hard timeout
// and capped output capture.
//
// # Basic Usage
//
// Run a plugin:
//
//	architect plugins run csv_converter --input data.txt --output out.csv
//
// Re-register plugin hashes after a deliberate update:
//
//	architect plugins rehash
//
// Verify every registered plugin:
//
//	architect plugins verify
//
// Generate an architecture diagram for the project:
//
//	architect diagram generate
//
// # Environment Variables
//
//   - ARCHITECT_CONFIG: Path to configuration file (default: architect.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for diagram generation
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bluefalconink/architect/internal/config"
	"github.com/bluefalconink/architect/internal/observability"
	"github.com/bluefalconink/architect/internal/plugins"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

// Exit codes reported by "plugins run" and "plugins verify" so scripts
// and CI can branch on the failure class without parsing output.
const (
	exitOK            = 0
	exitIntegrity     = 1
	exitPathViolation = 2
	exitRuntime       = 3
	exitNotFound      = 4
)

const defaultConfigName = "architect.yaml"

// main is the entry point for the Architect CLI.
func main() {
	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "architect",
		Short: "Architect - Guarded plugin execution and architecture diagrams",
		Long: `Architect executes converter plugins behind integrity and path gates,
keeps a tamper-evident audit trail, and generates compliance-checked
architecture diagrams for the project.

Plugin directory: <project root>/PLUGINS
Integrity registry: <plugin dir>/.plugin_hashes.json`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
		// Errors are printed by main with a mapped exit code.
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildPluginsCmd(),
		buildDiagramCmd(),
		buildAuditCmd(),
		buildStatusCmd(),
	)

	return rootCmd
}

// resolveConfigPath honors the ARCHITECT_CONFIG environment variable when
// the flag carries the default value.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) == "" || path == defaultConfigName {
		if env := strings.TrimSpace(os.Getenv("ARCHITECT_CONFIG")); env != "" {
			return env
		}
		return defaultConfigName
	}
	return path
}

// loadConfig reads the configuration file, falling back to built-in
// defaults when the default config file does not exist. A missing file
// named explicitly is still an error.
func loadConfig(path string) (*config.Config, error) {
	resolved := resolveConfigPath(path)
	cfg, err := config.Load(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && resolved == defaultConfigName {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	installLogging(cfg)
	return cfg, nil
}

// installLogging replaces the default slog logger with the configured
// redacting logger. Logs go to stderr so plugin output on stdout stays
// machine-readable.
func installLogging(cfg *config.Config) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Install()
}

// exitCodeFor maps a pipeline failure to its process exit code.
// Non-pipeline errors (bad flags, unreadable config) exit 1.
func exitCodeFor(err error) int {
	switch plugins.KindOf(err) {
	case plugins.FailureNotFound:
		return exitNotFound
	case plugins.FailureIntegrity:
		return exitIntegrity
	case plugins.FailurePathViolation, plugins.FailureInputTooLarge:
		return exitPathViolation
	case plugins.FailureTimeout, plugins.FailureRuntime, plugins.FailureInvalidOptions:
		return exitRuntime
	}
	return 1
}
