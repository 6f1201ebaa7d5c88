package main

import (
	"time"

	"github.com/spf13/cobra"
)

// =============================================================================
// Plugin Commands
// =============================================================================

// buildPluginsCmd creates the "plugins" command group for the guarded
// execution pipeline.
func buildPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Run and manage converter plugins",
		Long: `Run converter plugins through the guarded execution pipeline.

Every run re-verifies the plugin's SHA-256 hash against the integrity
registry, confines input and output paths to the project root, and
executes the plugin in its own process group with a hard timeout.

Exit codes:
  0  success
  1  integrity failure (hash mismatch, unregistered, or missing file)
  2  path violation (escape attempt, oversize input, bad file type)
  3  runtime failure or timeout
  4  plugin not found`,
	}
	cmd.AddCommand(
		buildPluginsRunCmd(),
		buildPluginsListCmd(),
		buildPluginsRehashCmd(),
		buildPluginsVerifyCmd(),
	)
	return cmd
}

func buildPluginsRunCmd() *cobra.Command {
	var (
		configPath string
		inputPath  string
		outputPath string
		options    []string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run [plugin]",
		Short: "Run a plugin against an input file",
		Long: `Run a plugin from the plugin directory against an input file.

The plugin is named by its file stem: "csv_converter" matches
PLUGINS/csv_converter.py or any other extension.

Examples:
  architect plugins run csv_converter --input data.txt --output out.csv
  architect plugins run json_converter -i data.txt -o out.json --opt delimiter=';'
  architect plugins run slow_converter -i big.txt -o out.txt --timeout 2m

Arguments after -- are passed to the plugin verbatim:
  architect plugins run csv_converter -i in.txt -o out.csv -- --strict`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsRun(cmd, configPath, args[0], inputPath, outputPath, options, args[1:], timeout)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file (must be inside the project root)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (must be inside the project root)")
	cmd.Flags().StringArrayVar(&options, "opt", nil, "Plugin option (key=value), validated against the plugin manifest")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Execution timeout override (default from config)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func buildPluginsListCmd() *cobra.Command {
	var configPath string
	var showAll bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their registration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPluginsList(cmd, configPath, showAll)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Show manifest details")
	return cmd
}

func buildPluginsRehashCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "rehash [plugin]",
		Short: "Re-register plugin hashes",
		Long: `Recompute and store the SHA-256 hash of one plugin, or of every
plugin in the plugin directory when no name is given. A full rehash also
drops registry records for plugins no longer on disk.

Run this after deliberately adding or updating a plugin. A plugin whose
hash changed without a rehash is refused at run time.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runPluginsRehash(cmd, configPath, name)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}

func buildPluginsVerifyCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "verify [plugin]",
		Short: "Verify plugins against the integrity registry",
		Long: `Verify one plugin, or every plugin in the plugin directory, against
its registered hash. Unregistered files, missing files, and hash
mismatches all fail.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return runPluginsVerify(cmd, configPath, name)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}
