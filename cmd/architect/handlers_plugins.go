package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluefalconink/architect/internal/plugins"
)

// =============================================================================
// Plugin Command Handlers
// =============================================================================

// runPluginsRun handles the plugins run command.
func runPluginsRun(cmd *cobra.Command, configPath, plugin, inputPath, outputPath string, optionArgs, extraArgs []string, timeout time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	flagOptions, err := parseOptionArgs(optionArgs)
	if err != nil {
		return err
	}
	var configured map[string]any
	if entry, ok := cfg.Plugins.Entries[plugin]; ok {
		configured = entry
	}

	pipe, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	report, runErr := pipe.loader.Run(cmd.Context(), plugins.Request{
		Plugin:     plugin,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Options:    mergeOptions(configured, flagOptions),
		ExtraArgs:  extraArgs,
		Timeout:    timeout,
	})

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if report != nil && report.Result != nil {
		if report.Result.Stdout != "" {
			fmt.Fprint(out, report.Result.Stdout)
		}
		if report.Result.Stderr != "" {
			fmt.Fprint(errOut, report.Result.Stderr)
		}
		if report.Result.Truncated {
			fmt.Fprintln(errOut, "warning: plugin output was truncated")
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(errOut, "Plugin %s completed in %s (run %s)\n",
		report.Plugin, report.Result.Duration.Round(time.Millisecond), report.RunID)
	return nil
}

// runPluginsList handles the plugins list command.
func runPluginsList(cmd *cobra.Command, configPath string, showAll bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	pipe, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	descriptors, err := pipe.loader.List()
	if err != nil {
		return fmt.Errorf("plugin discovery failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(descriptors) == 0 {
		fmt.Fprintf(out, "No plugins found in %s\n", cfg.Project.PluginDir)
		return nil
	}

	verified, err := pipe.loader.VerifyAll(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Plugins in %s (%d):\n\n", cfg.Project.PluginDir, len(descriptors))
	for _, desc := range descriptors {
		status := "verified"
		if vErr, ok := verified[desc.Name]; ok && vErr != nil {
			status = vErr.Error()
		}
		fmt.Fprintf(out, "  %s [%s]\n", desc.Name, status)
		if showAll {
			fmt.Fprintf(out, "    Path: %s\n", desc.Path)
			if desc.Manifest != nil {
				if desc.Manifest.Description != "" {
					fmt.Fprintf(out, "    %s\n", desc.Manifest.Description)
				}
				if desc.Manifest.Version != "" {
					fmt.Fprintf(out, "    Version: %s\n", desc.Manifest.Version)
				}
			}
		}
	}

	return nil
}

// runPluginsRehash handles the plugins rehash command.
func runPluginsRehash(cmd *cobra.Command, configPath, name string) error {
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
	if name != "" {
		digest, err := pipe.loader.RehashPlugin(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Registered %s  %s\n", name, digest[:12])
		return nil
	}

	hashes, err := pipe.loader.Rehash(cmd.Context())
	if err != nil {
		return fmt.Errorf("rehash failed: %w", err)
	}

	if len(hashes) == 0 {
		fmt.Fprintf(out, "No plugins found in %s\n", cfg.Project.PluginDir)
		return nil
	}

	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "Registered %d plugins:\n", len(names))
	for _, name := range names {
		fmt.Fprintf(out, "  %s  %s\n", hashes[name][:12], name)
	}
	return nil
}

// runPluginsVerify handles the plugins verify command. Any failure,
// including unregistered files present in the plugin directory, makes
// the command exit nonzero.
func runPluginsVerify(cmd *cobra.Command, configPath, name string) error {
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
	if name != "" {
		if err := pipe.loader.VerifyPlugin(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Fprintf(out, "ok  %s\n", name)
		return nil
	}

	results, err := pipe.loader.VerifyAll(cmd.Context())
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No plugins registered for %s\n", cfg.Project.PluginDir)
		return nil
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed int
	for _, name := range names {
		if vErr := results[name]; vErr != nil {
			failed++
			fmt.Fprintf(out, "  FAIL  %s: %v\n", name, vErr)
		} else {
			fmt.Fprintf(out, "  ok    %s\n", name)
		}
	}

	if failed > 0 {
		return &plugins.RunError{
			Kind: plugins.FailureIntegrity,
			Err:  fmt.Errorf("%d of %d plugins failed verification", failed, len(results)),
		}
	}
	fmt.Fprintf(out, "All %d plugins verified.\n", len(results))
	return nil
}
