// Package foreman audits generated architecture diagrams against the
// organization's building code: approved cloud provider, explicit security
// boundary, branding, and visible data flow.
package foreman

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bluefalconink/architect/internal/config"
)

// Violation levels.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelNote     = "NOTE"
)

// Violation is a single compliance finding.
type Violation struct {
	Level       string
	Category    string
	Message     string
	Remediation string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s", v.Level, v.Category, v.Message)
}

// Report is the outcome of one audit.
type Report struct {
	Project    string
	Violations []Violation
}

// CriticalCount returns the number of critical violations.
func (r *Report) CriticalCount() int {
	return r.countLevel(LevelCritical)
}

// WarningCount returns the number of warning violations.
func (r *Report) WarningCount() int {
	return r.countLevel(LevelWarning)
}

// Passed reports whether the diagram cleared inspection. Warnings do not
// fail a build; criticals do.
func (r *Report) Passed() bool {
	return r.CriticalCount() == 0
}

func (r *Report) countLevel(level string) int {
	count := 0
	for _, v := range r.Violations {
		if v.Level == level {
			count++
		}
	}
	return count
}

// Render formats the inspection report for terminal output and for the
// remediation pipeline.
func (r *Report) Render() string {
	var b strings.Builder
	status := "Passed"
	if !r.Passed() {
		status = "Failed Inspection"
	}

	fmt.Fprintf(&b, "Foreman Inspection Report\n\n")
	fmt.Fprintf(&b, "Project: %s\n", r.Project)
	fmt.Fprintf(&b, "Status: %s\n", status)
	fmt.Fprintf(&b, "Violations: %d Critical | %d Warnings | %d Notes\n\n",
		r.CriticalCount(), r.WarningCount(), r.countLevel(LevelNote))

	if len(r.Violations) == 0 {
		b.WriteString("All standards met. Architecture is compliant.\n")
		return b.String()
	}

	b.WriteString("Findings:\n\n")
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "- %s\n", v)
		if v.Remediation != "" {
			fmt.Fprintf(&b, "  Remediation: %s\n", v.Remediation)
		}
	}
	return b.String()
}

// Auditor runs the building-code checks against diagram text.
type Auditor struct {
	cfg config.ForemanConfig
}

// New creates an Auditor for the given building code.
func New(cfg config.ForemanConfig) *Auditor {
	return &Auditor{cfg: cfg}
}

// providerBlocklist maps each approved provider to the vendor terms that
// must not appear alongside it.
var providerBlocklist = map[string][]string{
	"AWS":   {"Azure", "Google Cloud", "GCP", "DigitalOcean", "Heroku"},
	"Azure": {"AWS", "Amazon", "Google Cloud", "GCP", "DigitalOcean"},
	"GCP":   {"AWS", "Amazon", "Azure", "DigitalOcean", "Heroku"},
}

var securityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`subgraph\s+Security`),
	regexp.MustCompile(`subgraph\s+.*[Ss]ecurity`),
	regexp.MustCompile(`Cloud Armor`),
	regexp.MustCompile(`Firewall`),
	regexp.MustCompile(`WAF`),
	regexp.MustCompile(`Load Balancer`),
	regexp.MustCompile(`IAP`),
	regexp.MustCompile(`Identity.Aware.Proxy`),
}

var flowPatterns = []string{"-->", "==>", "-.->", "-->>"}

// Audit checks one diagram and returns the inspection report.
func (a *Auditor) Audit(project, diagram string) *Report {
	report := &Report{Project: project}
	report.Violations = append(report.Violations, a.checkMermaidValidity(diagram)...)
	report.Violations = append(report.Violations, a.checkCloudProvider(diagram)...)
	report.Violations = append(report.Violations, a.checkSecurityLayer(diagram)...)
	report.Violations = append(report.Violations, a.checkBranding(diagram)...)
	report.Violations = append(report.Violations, a.checkDataFlow(diagram)...)
	return report
}

func (a *Auditor) checkMermaidValidity(diagram string) []Violation {
	if strings.Contains(diagram, "```mermaid") ||
		strings.Contains(diagram, "graph ") ||
		strings.Contains(diagram, "flowchart ") {
		return nil
	}
	return []Violation{{
		Level:       LevelCritical,
		Category:    "Syntax",
		Message:     "No valid Mermaid diagram syntax detected.",
		Remediation: "Ensure the diagram starts with a Mermaid diagram type (graph, flowchart, C4Context, etc.).",
	}}
}

func (a *Auditor) checkCloudProvider(diagram string) []Violation {
	preferred := a.cfg.PreferredCloud
	if preferred == "" {
		preferred = "GCP"
	}

	var violations []Violation
	lower := strings.ToLower(diagram)
	for _, provider := range providerBlocklist[preferred] {
		if strings.Contains(lower, strings.ToLower(provider)) {
			violations = append(violations, Violation{
				Level:       LevelCritical,
				Category:    "Cloud Provider",
				Message:     fmt.Sprintf("Found '%s' components in a %s-mandated project.", provider, preferred),
				Remediation: fmt.Sprintf("Replace all %s references with equivalent %s services.", provider, preferred),
			})
		}
	}
	return violations
}

func (a *Auditor) checkSecurityLayer(diagram string) []Violation {
	if !a.cfg.RequireSecurity {
		return nil
	}

	var violations []Violation
	hasSecurity := false
	for _, pattern := range securityPatterns {
		if pattern.MatchString(diagram) {
			hasSecurity = true
			break
		}
	}
	if !hasSecurity {
		violations = append(violations, Violation{
			Level:       LevelCritical,
			Category:    "Security",
			Message:     "No explicit 'Security' boundary found in architecture.",
			Remediation: `Add a 'subgraph SecuritySG ["Security"]' block containing Cloud Armor, Load Balancer, or firewall components.`,
		})
	}

	// Public endpoints need armor or a load balancer in front.
	if strings.Contains(diagram, "Public") || strings.Contains(diagram, "Internet") {
		protectionTerms := []string{"Cloud Armor", "Load Balancer", "WAF", "ALB", "IAP"}
		hasProtection := false
		for _, term := range protectionTerms {
			if strings.Contains(diagram, term) {
				hasProtection = true
				break
			}
		}
		if !hasProtection {
			violations = append(violations, Violation{
				Level:       LevelWarning,
				Category:    "Security",
				Message:     "Public-facing endpoints detected without Cloud Armor or Load Balancer protection.",
				Remediation: "Add Cloud Armor and/or a Load Balancer between public traffic and application services.",
			})
		}
	}

	return violations
}

func (a *Auditor) checkBranding(diagram string) []Violation {
	if !a.cfg.RequireBranding {
		return nil
	}

	var violations []Violation
	orgName := a.cfg.OrgName
	if orgName == "" {
		orgName = "BlueFalconInk LLC"
	}

	if !strings.Contains(diagram, orgName) && !strings.Contains(diagram, "BlueFalcon") {
		violations = append(violations, Violation{
			Level:       LevelCritical,
			Category:    "Branding - Organization",
			Message:     fmt.Sprintf("Diagram is missing %s branding elements.", orgName),
			Remediation: fmt.Sprintf("Add '%s' as a title or annotation in the diagram.", orgName),
		})
	}

	if !strings.Contains(diagram, "Architect AI Pro") {
		violations = append(violations, Violation{
			Level:       LevelWarning,
			Category:    "Branding - Tool Attribution",
			Message:     "Diagram is missing Architect AI Pro attribution.",
			Remediation: `Add '%% Generated by Architect AI Pro | BlueFalconInk LLC' as a comment and include a FOOTER node.`,
		})
	}

	color := a.cfg.BrandColor
	if color == "" {
		color = "#1E40AF"
	}
	if !strings.Contains(diagram, color) && !strings.Contains(diagram, strings.ToLower(color)) {
		violations = append(violations, Violation{
			Level:       LevelWarning,
			Category:    "Branding - Color Identity",
			Message:     fmt.Sprintf("Diagram is missing the %s brand color (%s).", orgName, color),
			Remediation: fmt.Sprintf("Apply 'style SecuritySG fill:%s,color:#BFDBFE' to the Security subgraph.", color),
		})
	}

	return violations
}

func (a *Auditor) checkDataFlow(diagram string) []Violation {
	if !a.cfg.RequireDataFlow {
		return nil
	}
	for _, pattern := range flowPatterns {
		if strings.Contains(diagram, pattern) {
			return nil
		}
	}
	return []Violation{{
		Level:       LevelWarning,
		Category:    "Data Flow",
		Message:     "No data flow connections detected in the diagram.",
		Remediation: "Add directional arrows (-->, ==>) to show data flow between components.",
	}}
}
