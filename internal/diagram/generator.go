package diagram

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bluefalconink/architect/internal/config"
	"github.com/bluefalconink/architect/internal/observability"
)

const defaultMaxTokens = 8192

// Generator produces Mermaid architecture diagrams from repository scans
// using the Anthropic Messages API.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	foreman   config.ForemanConfig
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMetrics enables LLM request instrumentation.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(g *Generator) {
		g.metrics = metrics
	}
}

// NewGenerator creates a Generator. The API key is required; model and
// token limits fall back to sensible defaults.
func NewGenerator(llm config.LLMConfig, foreman config.ForemanConfig, opts ...Option) (*Generator, error) {
	if llm.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	model := llm.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := int64(llm.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	g := &Generator{
		client:    anthropic.NewClient(option.WithAPIKey(llm.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		foreman:   foreman,
		logger:    slog.Default().With("component", "diagram.generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate scans the repository and asks the model for a compliant
// Mermaid diagram. The returned string is the bare Mermaid code without
// fencing.
func (g *Generator) Generate(ctx context.Context, project, scanDir string) (string, error) {
	scan, err := Scan(scanDir)
	if err != nil {
		return "", err
	}
	g.logger.Info("repository scanned", "project", project, "files", len(scan.Files))

	userPrompt := buildUserPrompt(project, scan)
	return g.complete(ctx, userPrompt)
}

// Remediate asks the model to fix a diagram that failed the foreman
// audit, preserving everything that does not conflict with the findings.
func (g *Generator) Remediate(ctx context.Context, currentDiagram, violations string) (string, error) {
	userPrompt := buildRemediationPrompt(currentDiagram, violations, g.foreman)
	return g.complete(ctx, userPrompt)
}

func (g *Generator) complete(ctx context.Context, userPrompt string) (string, error) {
	start := time.Now()
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: buildSystemPrompt(g.foreman)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if g.metrics != nil {
		g.metrics.RecordLLMRequest("anthropic", g.model, status, duration.Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("generate diagram: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("generate diagram: empty model response")
	}

	mermaid := ExtractMermaid(text.String())
	if mermaid == "" {
		return "", fmt.Errorf("generate diagram: no mermaid content in response")
	}
	return mermaid, nil
}

func buildSystemPrompt(foreman config.ForemanConfig) string {
	org := foreman.OrgName
	if org == "" {
		org = "BlueFalconInk LLC"
	}
	cloud := foreman.PreferredCloud
	if cloud == "" {
		cloud = "GCP"
	}

	var rules strings.Builder
	if foreman.RequireSecurity {
		rules.WriteString("- MUST include a `subgraph Security` block.\n")
		rules.WriteString("- All public endpoints MUST route through a Load Balancer or Cloud Armor.\n")
	}
	if foreman.RequireBranding {
		fmt.Fprintf(&rules, "- Diagram title MUST include '%s'.\n", org)
		fmt.Fprintf(&rules, "- Apply the brand color %s to the Security subgraph.\n", foreman.BrandColor)
	}
	if foreman.RequireDataFlow {
		rules.WriteString("- Show data flow arrows with descriptive labels.\n")
	}
	fmt.Fprintf(&rules, "- Only use %s services. No mixing cloud providers.\n", cloud)

	return fmt.Sprintf(`You are Architect AI Pro, the official architecture diagram generator for %s.

You analyze source code repositories and produce accurate Mermaid.js
architecture diagrams that follow the %s building code.

BUILDING CODE:
- Preferred Cloud: %s

COMPLIANCE RULES:
%s
OUTPUT REQUIREMENTS:
1. Output ONLY a valid Mermaid.js code block fenced with the mermaid language identifier.
2. The diagram MUST be a graph TD or flowchart TD layout.
3. Use subgraph blocks to group related components.
4. Include a comment at the top: %%%% Generated by Architect AI Pro | %s
5. Keep the diagram readable with no more than 40 nodes.
6. Identify the ACTUAL architecture from the source code. Do not invent services.

DO NOT include any explanation or text outside the mermaid code block.`,
		org, org, cloud, rules.String(), org)
}

func buildUserPrompt(project string, scan *ScanResult) string {
	return fmt.Sprintf(`Analyze the following repository and generate its architecture diagram.

REPOSITORY: %s

FILE TREE:
`+"```"+`
%s
`+"```"+`

KEY FILE CONTENTS:
%s

Based on this codebase, generate a comprehensive Mermaid.js architecture
diagram showing the system's components, data flows, external
integrations, and security boundaries.`, project, scan.Tree, scan.renderContext())
}

func buildRemediationPrompt(currentDiagram, violations string, foreman config.ForemanConfig) string {
	org := foreman.OrgName
	if org == "" {
		org = "BlueFalconInk LLC"
	}
	cloud := foreman.PreferredCloud
	if cloud == "" {
		cloud = "GCP"
	}

	return fmt.Sprintf(`The following architecture diagram FAILED the %s compliance audit.

CURRENT DIAGRAM:
`+"```mermaid"+`
%s
`+"```"+`

VIOLATIONS DETECTED:
%s

REMEDIATION INSTRUCTIONS:
1. Fix ALL violations listed above.
2. Do NOT remove existing logic unless it directly conflicts with standards.
3. Ensure valid Mermaid.js syntax that renders on GitHub.
4. Replace non-standard cloud references with %s equivalents.
5. Include '%s' in the diagram title.
6. Add comment: %%%% Remediated by Architect AI Pro Foreman

Output ONLY the corrected Mermaid.js code block. No explanations.`,
		org, currentDiagram, violations, cloud, org)
}

var mermaidFence = regexp.MustCompile("(?s)```mermaid\\s*\\n(.*?)```")

// ExtractMermaid pulls the Mermaid code out of a model response. It
// prefers a fenced block, then falls back to bare diagram content.
func ExtractMermaid(text string) string {
	if match := mermaidFence.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}

	for _, prefix := range []string{"graph ", "flowchart ", "sequenceDiagram", "classDiagram", "erDiagram"} {
		if idx := strings.Index(text, prefix); idx >= 0 {
			end := strings.Index(text[idx:], "```")
			if end == -1 {
				return strings.TrimSpace(text[idx:])
			}
			return strings.TrimSpace(text[idx : idx+end])
		}
	}
	return strings.TrimSpace(text)
}

// FormatDocument wraps generated Mermaid code in the architecture
// document written to docs/architecture.md.
func FormatDocument(mermaid, project string, foreman config.ForemanConfig) string {
	org := foreman.OrgName
	if org == "" {
		org = "BlueFalconInk LLC"
	}
	cloud := foreman.PreferredCloud
	if cloud == "" {
		cloud = "GCP"
	}

	return fmt.Sprintf(`# Architecture Diagram: %s

> Auto-generated by Architect AI Pro for %s
> Last updated: %s

`+"```mermaid"+`
%s
`+"```"+`

---

## Building Code Compliance

| Standard | Requirement |
|----------|-------------|
| Cloud Provider | %s |
| Security Boundary | Required |
| Branding | Required |

---

*Generated by Architect AI Pro, %s Standard*
`, project, org, time.Now().UTC().Format("2006-01-02 15:04 UTC"), mermaid, cloud, org)
}
