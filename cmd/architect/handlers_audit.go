package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluefalconink/architect/internal/security"
)

// =============================================================================
// Audit Command Handlers
// =============================================================================

// runAuditEvents handles the audit events command.
func runAuditEvents(cmd *cobra.Command, configPath, eventType, severity, plugin, runID string, limit int, asJSON bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := security.Open(cfg.Audit.DatabasePath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()

	events, err := store.Recent(cmd.Context(), security.QueryFilter{
		Type:     eventType,
		Severity: severity,
		Plugin:   plugin,
		RunID:    runID,
	}, limit)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(out)
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		return nil
	}

	printEvents(out, events)
	return nil
}

func printEvents(out io.Writer, events []security.Event) {
	fmt.Fprintf(out, "Events (%d):\n\n", len(events))
	for _, event := range events {
		fmt.Fprintf(out, "  %s  %-8s  %s\n",
			event.CreatedAt.Format(time.RFC3339), event.Severity, event.Type)
		if event.Plugin != "" {
			fmt.Fprintf(out, "    Plugin: %s\n", event.Plugin)
		}
		if event.RunID != "" {
			fmt.Fprintf(out, "    Run: %s\n", event.RunID)
		}
		if event.Path != "" {
			fmt.Fprintf(out, "    Path: %s\n", event.Path)
		}
		if event.Detail != "" {
			fmt.Fprintf(out, "    %s\n", event.Detail)
		}
	}
}

// runAuditPermissions handles the audit permissions command.
func runAuditPermissions(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	findings := security.CheckPermissions(security.PermissionTargets{
		PluginDir:    cfg.Project.PluginDir,
		RegistryPath: cfg.RegistryPath(),
		ConfigPath:   resolveConfigPath(configPath),
		AuditDBPath:  cfg.Audit.DatabasePath,
	})

	fmt.Fprint(cmd.OutOrStdout(), security.RenderFindings(findings))
	if security.HasCritical(findings) {
		return fmt.Errorf("critical permission problems found")
	}
	return nil
}
