package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Audit Commands
// =============================================================================

// buildAuditCmd creates the "audit" command group over the security
// event store.
func buildAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the security event log",
		Long: `Inspect persisted security events: plugin runs, integrity failures,
path violations, timeouts, and output truncations.

Events are stored in a local SQLite database (audit.database_path).`,
	}
	cmd.AddCommand(
		buildAuditEventsCmd(),
		buildAuditPermissionsCmd(),
	)
	return cmd
}

func buildAuditPermissionsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Check permissions on the pipeline's trust anchors",
		Long: `Check filesystem permissions and symlink status of the plugin
directory, integrity registry, config file, and audit database.

A world-writable plugin directory lets any local user swap a plugin
between rehash and run, which defeats hash verification. Critical
findings make the command exit nonzero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditPermissions(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	return cmd
}

func buildAuditEventsCmd() *cobra.Command {
	var (
		configPath string
		eventType  string
		severity   string
		plugin     string
		runID      string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent security events",
		Long: `List recent security events, newest first.

Examples:
  architect audit events
  architect audit events --severity critical
  architect audit events --plugin csv_converter --limit 10
  architect audit events --run 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditEvents(cmd, configPath, eventType, severity, plugin, runID, limit, asJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&eventType, "type", "", "Filter by event type (e.g. integrity.failure)")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity (info, warning, critical)")
	cmd.Flags().StringVar(&plugin, "plugin", "", "Filter by plugin name")
	cmd.Flags().StringVar(&runID, "run", "", "Filter by run ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit events as JSON lines")
	return cmd
}
