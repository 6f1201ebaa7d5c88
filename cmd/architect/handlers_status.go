package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// Status Command Handler
// =============================================================================

// runStatus handles the status command.
func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	pipe, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Architect Status")
	fmt.Fprintln(out, "================")
	fmt.Fprintf(out, "Project root:   %s\n", cfg.Project.Root)
	fmt.Fprintf(out, "Plugin dir:     %s\n", cfg.Project.PluginDir)
	fmt.Fprintf(out, "Registry:       %s\n", cfg.RegistryPath())
	fmt.Fprintf(out, "Audit store:    %s\n", cfg.Audit.DatabasePath)
	fmt.Fprintf(out, "Timeout:        %s\n", cfg.Plugins.Timeout)
	fmt.Fprintf(out, "Max input size: %d bytes\n", cfg.Plugins.MaxInputSize)
	fmt.Fprintf(out, "Output cap:     %d bytes per stream\n", cfg.Plugins.OutputCap)
	fmt.Fprintf(out, "Metrics:        %v\n", cfg.Metrics.Enabled)

	descriptors, err := pipe.loader.List()
	if err != nil {
		return fmt.Errorf("plugin discovery failed: %w", err)
	}

	results, err := pipe.loader.VerifyAll(cmd.Context())
	if err != nil {
		return err
	}
	var failing int
	for _, vErr := range results {
		if vErr != nil {
			failing++
		}
	}

	fmt.Fprintf(out, "\nPlugins:        %d discovered, %d checked", len(descriptors), len(results))
	if failing > 0 {
		fmt.Fprintf(out, ", %d FAILING verification", failing)
	}
	fmt.Fprintln(out)
	return nil
}
