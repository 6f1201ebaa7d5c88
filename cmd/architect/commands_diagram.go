package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Diagram Commands
// =============================================================================

// buildDiagramCmd creates the "diagram" command group.
func buildDiagramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Generate and audit architecture diagrams",
		Long: `Generate Mermaid architecture diagrams from the project tree and
audit them against the organization's building code (cloud provider
policy, security boundaries, branding, data flow).

Generation requires ANTHROPIC_API_KEY (or llm.api_key in the config).`,
	}
	cmd.AddCommand(
		buildDiagramGenerateCmd(),
		buildDiagramAuditCmd(),
	)
	return cmd
}

func buildDiagramGenerateCmd() *cobra.Command {
	var (
		configPath  string
		project     string
		scanDir     string
		outputPath  string
		maxAttempts int
		printOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an architecture diagram for the project",
		Long: `Scan the project tree, generate a Mermaid architecture diagram, and
audit it against the building code. When the audit finds critical
violations the diagram is sent back for remediation, up to the attempt
limit.

Examples:
  architect diagram generate
  architect diagram generate --project "Payment Service" --out docs/architecture.md
  architect diagram generate --print`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagramGenerate(cmd, configPath, project, scanDir, outputPath, maxAttempts, printOnly)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project name used in the document (default: root directory name)")
	cmd.Flags().StringVar(&scanDir, "dir", "", "Directory to scan (default: project root)")
	cmd.Flags().StringVar(&outputPath, "out", "architecture.md", "Output document path, relative to the project root")
	cmd.Flags().IntVar(&maxAttempts, "attempts", 3, "Maximum generation attempts including remediation rounds")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the document to stdout instead of writing a file")
	return cmd
}

func buildDiagramAuditCmd() *cobra.Command {
	var (
		configPath string
		project    string
	)
	cmd := &cobra.Command{
		Use:   "audit [file]",
		Short: "Audit an existing diagram against the building code",
		Long: `Audit a Mermaid diagram (or a Markdown document containing one)
against the configured building code. Critical violations fail the
audit; warnings are reported but do not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagramAudit(cmd, configPath, project, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to YAML configuration file")
	cmd.Flags().StringVar(&project, "project", "", "Project name used in the report")
	return cmd
}
