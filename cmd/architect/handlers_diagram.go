package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bluefalconink/architect/internal/diagram"
	"github.com/bluefalconink/architect/internal/foreman"
	"github.com/bluefalconink/architect/internal/pathguard"
)

// =============================================================================
// Diagram Command Handlers
// =============================================================================

// runDiagramGenerate handles the diagram generate command.
func runDiagramGenerate(cmd *cobra.Command, configPath, project, scanDir, outputPath string, maxAttempts int, printOnly bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if scanDir == "" {
		scanDir = cfg.Project.Root
	}
	if project == "" {
		project = filepath.Base(cfg.Project.Root)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	genOpts := []diagram.Option{}
	if cfg.Metrics.Enabled {
		genOpts = append(genOpts, diagram.WithMetrics(newMetrics()))
	}
	gen, err := diagram.NewGenerator(cfg.LLM, cfg.Foreman, genOpts...)
	if err != nil {
		return err
	}

	auditor := foreman.New(cfg.Foreman)
	errOut := cmd.ErrOrStderr()

	fmt.Fprintf(errOut, "Scanning %s...\n", scanDir)
	mermaid, err := gen.Generate(cmd.Context(), project, scanDir)
	if err != nil {
		return fmt.Errorf("diagram generation failed: %w", err)
	}

	report := auditor.Audit(project, mermaid)
	for attempt := 1; !report.Passed() && attempt < maxAttempts; attempt++ {
		fmt.Fprintf(errOut, "Audit found %d critical violations, remediating (attempt %d of %d)...\n",
			report.CriticalCount(), attempt+1, maxAttempts)
		mermaid, err = gen.Remediate(cmd.Context(), mermaid, report.Render())
		if err != nil {
			return fmt.Errorf("diagram remediation failed: %w", err)
		}
		report = auditor.Audit(project, mermaid)
	}

	fmt.Fprint(errOut, report.Render())
	if !report.Passed() {
		return fmt.Errorf("diagram failed the building code audit after %d attempts", maxAttempts)
	}

	doc := diagram.FormatDocument(mermaid, project, cfg.Foreman)
	out := cmd.OutOrStdout()
	if printOnly {
		fmt.Fprint(out, doc)
		return nil
	}

	// The document is written through the path guard so a hostile
	// --out value cannot land outside the project root.
	guard, err := pathguard.New(cfg.Project.Root)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(cfg.Project.Root, outputPath)
	}
	resolved, err := guard.ResolveOutput(outputPath)
	if err != nil {
		return fmt.Errorf("output path refused: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	fmt.Fprintf(errOut, "Wrote %s\n", resolved)
	return nil
}

// runDiagramAudit handles the diagram audit command.
func runDiagramAudit(cmd *cobra.Command, configPath, project, file string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if project == "" {
		project = filepath.Base(cfg.Project.Root)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read diagram: %w", err)
	}

	mermaid := diagram.ExtractMermaid(string(content))
	if mermaid == "" {
		return fmt.Errorf("no Mermaid diagram found in %s", file)
	}

	report := foreman.New(cfg.Foreman).Audit(project, mermaid)
	fmt.Fprint(cmd.OutOrStdout(), report.Render())
	if !report.Passed() {
		return fmt.Errorf("diagram failed the building code audit")
	}
	return nil
}
