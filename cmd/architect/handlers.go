package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bluefalconink/architect/internal/config"
	"github.com/bluefalconink/architect/internal/integrity"
	"github.com/bluefalconink/architect/internal/observability"
	"github.com/bluefalconink/architect/internal/pathguard"
	"github.com/bluefalconink/architect/internal/plugins"
	"github.com/bluefalconink/architect/internal/sandbox"
	"github.com/bluefalconink/architect/internal/security"
)

// pipeline bundles the wired execution stack for one CLI invocation.
type pipeline struct {
	loader *plugins.Loader
	audit  *security.Store
}

// Close releases the audit store.
func (p *pipeline) Close() {
	if p.audit != nil {
		_ = p.audit.Close()
	}
}

// newPipeline constructs the full gate stack from configuration:
// integrity registry, path guard, sandbox runner, audit store, loader.
func newPipeline(cfg *config.Config) (*pipeline, error) {
	registry, err := integrity.NewRegistry(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("open integrity registry: %w", err)
	}

	guard, err := pathguard.New(cfg.Project.Root,
		pathguard.WithMaxFileSize(cfg.Plugins.MaxInputSize))
	if err != nil {
		return nil, fmt.Errorf("initialize path guard: %w", err)
	}

	runner := sandbox.NewRunner(cfg.Project.Root,
		sandbox.WithEnvAllowlist(cfg.Plugins.EnvAllowlist),
		sandbox.WithOutputCap(cfg.Plugins.OutputCap))

	store, err := security.Open(cfg.Audit.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	opts := []plugins.Option{
		plugins.WithTimeout(cfg.Plugins.Timeout),
		plugins.WithAuditStore(store),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, plugins.WithMetrics(newMetrics()))
	}

	loader := plugins.NewLoader(cfg.Project.PluginDir, registry, guard, runner, opts...)
	return &pipeline{loader: loader, audit: store}, nil
}

// Metrics register against the default Prometheus registry, so they are
// created at most once per process.
var (
	metricsOnce   sync.Once
	sharedMetrics *observability.Metrics
)

func newMetrics() *observability.Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = observability.NewMetrics()
	})
	return sharedMetrics
}

// parseOptionArgs converts repeated key=value flags into a plugin option
// map. Values that parse as JSON keep their JSON type; everything else
// stays a string.
func parseOptionArgs(items []string) (map[string]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]any)
	for _, item := range items {
		key, value, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			out[key] = parsed
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func parseKeyValue(item string) (string, string, error) {
	parts := strings.SplitN(item, "=", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return "", "", fmt.Errorf("invalid option %q, expected key=value", item)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// mergeOptions overlays flag options on top of configured per-plugin
// entries. Flags win.
func mergeOptions(configured map[string]any, flags map[string]any) map[string]any {
	if len(configured) == 0 {
		return flags
	}
	out := make(map[string]any, len(configured)+len(flags))
	for k, v := range configured {
		out[k] = v
	}
	for k, v := range flags {
		out[k] = v
	}
	return out
}
