// Package plugins orchestrates the secure execution pipeline for
// converter plugins: discovery, integrity verification, path containment,
// and sandboxed launch. Every gate is re-evaluated on every run; nothing
// about a previous validation is trusted.
package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bluefalconink/architect/internal/integrity"
	"github.com/bluefalconink/architect/internal/observability"
	"github.com/bluefalconink/architect/internal/pathguard"
	"github.com/bluefalconink/architect/internal/sandbox"
	"github.com/bluefalconink/architect/internal/security"
)

// Request describes one plugin invocation.
type Request struct {
	Plugin     string
	InputPath  string
	OutputPath string

	// Options are validated against the plugin's manifest schema and
	// passed to the plugin as a single --options JSON argument.
	Options map[string]any

	// ExtraArgs are appended verbatim after the standard arguments.
	ExtraArgs []string

	// Timeout overrides the loader default when positive.
	Timeout time.Duration
}

// Report is the outcome of a completed (or refused) run.
type Report struct {
	RunID      string
	Plugin     string
	InputPath  string
	OutputPath string
	Result     *sandbox.Result
}

// Loader wires the pipeline gates together.
type Loader struct {
	pluginDir string
	registry  *integrity.Registry
	guard     *pathguard.Guard
	runner    *sandbox.Runner
	timeout   time.Duration
	audit     *security.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout sets the default execution timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Loader) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// WithAuditStore enables persistent security event recording.
func WithAuditStore(store *security.Store) Option {
	return func(l *Loader) {
		l.audit = store
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(l *Loader) {
		l.metrics = metrics
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Loader over the plugin directory.
func NewLoader(pluginDir string, registry *integrity.Registry, guard *pathguard.Guard, runner *sandbox.Runner, opts ...Option) *Loader {
	l := &Loader{
		pluginDir: pluginDir,
		registry:  registry,
		guard:     guard,
		runner:    runner,
		timeout:   sandbox.DefaultTimeout,
		logger:    slog.Default().With("component", "plugins.loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// List returns the discovered plugins.
func (l *Loader) List() ([]Descriptor, error) {
	return Discover(l.pluginDir)
}

// Run executes one plugin through the full gate sequence. Gates short
// circuit: a failed gate refuses the run before any process is spawned.
// The returned Report carries the run ID even on refusal so audit events
// can be correlated.
func (l *Loader) Run(ctx context.Context, req Request) (*Report, error) {
	runID := uuid.New().String()
	ctx = observability.AddRunID(ctx, runID)
	ctx = observability.AddPlugin(ctx, req.Plugin)

	report := &Report{RunID: runID, Plugin: req.Plugin}
	logger := l.logger.With("run_id", runID, "plugin", req.Plugin)

	// Gate 1: the plugin must exist in the plugin directory.
	descriptor, err := Find(l.pluginDir, req.Plugin)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("plugin not found")
			return report, failure(FailureNotFound, req.Plugin, err)
		}
		return report, err
	}

	// Gate 2: the plugin file must hash to its registered digest.
	if err := l.registry.Verify(descriptor.Name, descriptor.Path); err != nil {
		reason := integrityReason(err)
		logger.Error("integrity verification failed", "reason", reason, "error", err)
		l.recordEvent(ctx, security.Event{
			Type:     security.EventIntegrityFailure,
			Severity: security.SeverityCritical,
			RunID:    runID,
			Plugin:   descriptor.Name,
			Path:     descriptor.Path,
			Detail:   err.Error(),
			Metadata: map[string]any{"reason": reason},
		})
		if l.metrics != nil {
			l.metrics.RecordIntegrityFailure(descriptor.Name, reason)
		}
		return report, failure(FailureIntegrity, descriptor.Name, err)
	}

	// Gate 3: input path containment and size ceiling.
	inputPath, err := l.guard.ResolveInput(req.InputPath)
	if err != nil {
		return report, l.refusePath(ctx, logger, report, descriptor.Name, req.InputPath, err)
	}
	report.InputPath = inputPath

	// Gate 4: output path containment.
	outputPath, err := l.guard.ResolveOutput(req.OutputPath)
	if err != nil {
		return report, l.refusePath(ctx, logger, report, descriptor.Name, req.OutputPath, err)
	}
	report.OutputPath = outputPath

	// Gate 5: options must satisfy the manifest schema when one exists.
	args := []string{"--input", inputPath, "--output", outputPath}
	if len(req.Options) > 0 {
		if descriptor.Manifest != nil {
			if err := descriptor.Manifest.ValidateOptions(req.Options); err != nil {
				logger.Warn("plugin options rejected", "error", err)
				return report, failure(FailureInvalidOptions, descriptor.Name, err)
			}
		}
		encoded, err := json.Marshal(req.Options)
		if err != nil {
			return report, failure(FailureInvalidOptions, descriptor.Name, fmt.Errorf("encode options: %w", err))
		}
		args = append(args, "--options", string(encoded))
	}
	args = append(args, req.ExtraArgs...)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}

	logger.Info("executing plugin", "input", inputPath, "output", outputPath, "timeout", timeout)
	result, err := l.runner.Run(ctx, descriptor.Path, args, timeout)
	if err != nil {
		return report, failure(FailureRuntime, descriptor.Name, err)
	}
	report.Result = result

	status := "success"
	switch {
	case result.TimedOut:
		status = "timeout"
	case result.ExitCode != 0:
		status = "error"
	}
	if l.metrics != nil {
		l.metrics.RecordPluginExecution(descriptor.Name, status, result.Duration.Seconds())
		if result.Truncated {
			l.metrics.RecordOutputTruncation(descriptor.Name)
		}
	}
	if result.Truncated {
		l.recordEvent(ctx, security.Event{
			Type:     security.EventOutputTruncated,
			Severity: security.SeverityWarning,
			RunID:    runID,
			Plugin:   descriptor.Name,
		})
	}

	if result.TimedOut {
		logger.Error("plugin timed out", "timeout", timeout)
		l.recordEvent(ctx, security.Event{
			Type:     security.EventTimeout,
			Severity: security.SeverityWarning,
			RunID:    runID,
			Plugin:   descriptor.Name,
			Detail:   fmt.Sprintf("killed after %s", timeout),
		})
		return report, failure(FailureTimeout, descriptor.Name, fmt.Errorf("killed after %s", timeout))
	}

	l.recordEvent(ctx, security.Event{
		Type:   security.EventPluginRun,
		RunID:  runID,
		Plugin: descriptor.Name,
		Path:   inputPath,
		Metadata: map[string]any{
			"exit_code":   result.ExitCode,
			"duration_ms": result.Duration.Milliseconds(),
			"output":      outputPath,
		},
	})

	if result.ExitCode != 0 {
		logger.Warn("plugin exited nonzero", "exit_code", result.ExitCode)
		return report, failure(FailureRuntime, descriptor.Name, fmt.Errorf("exit code %d", result.ExitCode))
	}

	logger.Info("plugin completed", "duration_ms", result.Duration.Milliseconds())
	return report, nil
}

// Rehash re-registers every discovered plugin, replacing stored digests.
// Returns the digests keyed by plugin name.
func (l *Loader) Rehash(ctx context.Context) (map[string]string, error) {
	descriptors, err := Discover(l.pluginDir)
	if err != nil {
		return nil, err
	}

	digests := make(map[string]string, len(descriptors))
	for _, descriptor := range descriptors {
		digest, err := l.registry.Register(descriptor.Name, descriptor.Path)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", descriptor.Name, err)
		}
		digests[descriptor.Name] = digest
		l.recordEvent(ctx, security.Event{
			Type:   security.EventPluginRegistered,
			Plugin: descriptor.Name,
			Path:   descriptor.Path,
			Metadata: map[string]any{
				"algorithm": integrity.Algorithm,
				"digest":    digest,
			},
		})
	}

	// Drop records for plugins that no longer exist on disk.
	present := make(map[string]bool, len(descriptors))
	for _, descriptor := range descriptors {
		present[descriptor.Name] = true
	}
	for _, name := range l.registry.Names() {
		if !present[name] {
			if err := l.registry.Remove(name); err != nil {
				return nil, fmt.Errorf("remove stale record %s: %w", name, err)
			}
		}
	}

	l.logger.Info("plugin registry rebuilt", "count", len(digests))
	return digests, nil
}

// RehashPlugin re-registers one plugin by name and returns its digest.
func (l *Loader) RehashPlugin(ctx context.Context, name string) (string, error) {
	descriptor, err := Find(l.pluginDir, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", failure(FailureNotFound, name, err)
		}
		return "", err
	}

	digest, err := l.registry.Register(descriptor.Name, descriptor.Path)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", descriptor.Name, err)
	}
	l.recordEvent(ctx, security.Event{
		Type:   security.EventPluginRegistered,
		Plugin: descriptor.Name,
		Path:   descriptor.Path,
		Metadata: map[string]any{
			"algorithm": integrity.Algorithm,
			"digest":    digest,
		},
	})
	l.logger.Info("plugin registered", "plugin", descriptor.Name, "digest", digest)
	return digest, nil
}

// VerifyPlugin checks one plugin by name against its registered digest.
func (l *Loader) VerifyPlugin(ctx context.Context, name string) error {
	descriptor, err := Find(l.pluginDir, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A record whose file vanished is an integrity failure, not
			// an unknown plugin.
			if _, ok := l.registry.Lookup(name); ok {
				err = fmt.Errorf("%w: %s", integrity.ErrPluginFileNotFound, name)
			} else {
				return failure(FailureNotFound, name, err)
			}
		} else {
			return err
		}
	}

	verifyErr := err
	if verifyErr == nil {
		verifyErr = l.registry.Verify(descriptor.Name, descriptor.Path)
	}
	if verifyErr == nil {
		return nil
	}

	l.recordEvent(ctx, security.Event{
		Type:     security.EventIntegrityFailure,
		Severity: security.SeverityCritical,
		Plugin:   name,
		Path:     descriptor.Path,
		Detail:   verifyErr.Error(),
		Metadata: map[string]any{"reason": integrityReason(verifyErr)},
	})
	if l.metrics != nil {
		l.metrics.RecordIntegrityFailure(name, integrityReason(verifyErr))
	}
	return failure(FailureIntegrity, name, verifyErr)
}

// VerifyAll checks every discovered plugin against the registry and every
// record against the directory. The result maps plugin name to nil on
// success or the verification error.
func (l *Loader) VerifyAll(ctx context.Context) (map[string]error, error) {
	descriptors, err := Discover(l.pluginDir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(descriptors))
	for _, descriptor := range descriptors {
		files[descriptor.Name] = descriptor.Path
	}

	results := l.registry.VerifyAll(files)
	for name, verifyErr := range results {
		if verifyErr == nil {
			continue
		}
		l.recordEvent(ctx, security.Event{
			Type:     security.EventIntegrityFailure,
			Severity: security.SeverityCritical,
			Plugin:   name,
			Path:     files[name],
			Detail:   verifyErr.Error(),
			Metadata: map[string]any{"reason": integrityReason(verifyErr)},
		})
		if l.metrics != nil {
			l.metrics.RecordIntegrityFailure(name, integrityReason(verifyErr))
		}
	}
	return results, nil
}

// refusePath maps a path guard rejection to a pipeline failure and
// records it.
func (l *Loader) refusePath(ctx context.Context, logger *slog.Logger, report *Report, plugin, path string, err error) error {
	kind := FailurePathViolation
	violation := "outside_root"
	severity := security.SeverityCritical
	switch {
	case errors.Is(err, pathguard.ErrInputTooLarge):
		kind = FailureInputTooLarge
		violation = "too_large"
		severity = security.SeverityWarning
	case errors.Is(err, pathguard.ErrNotFound):
		violation = "not_found"
		severity = security.SeverityWarning
	case errors.Is(err, pathguard.ErrNotRegular):
		violation = "not_regular"
	}

	logger.Warn("path rejected", "path", path, "violation", violation, "error", err)
	l.recordEvent(ctx, security.Event{
		Type:     security.EventPathViolation,
		Severity: severity,
		RunID:    report.RunID,
		Plugin:   plugin,
		Path:     path,
		Detail:   err.Error(),
		Metadata: map[string]any{"violation": violation},
	})
	if l.metrics != nil {
		l.metrics.RecordPathViolation(violation)
	}
	return failure(kind, plugin, err)
}

func (l *Loader) recordEvent(ctx context.Context, event security.Event) {
	if l.audit == nil {
		return
	}
	l.audit.Record(ctx, event)
}

func integrityReason(err error) string {
	switch {
	case errors.Is(err, integrity.ErrHashMismatch):
		return "mismatch"
	case errors.Is(err, integrity.ErrMissingRecord):
		return "missing_record"
	case errors.Is(err, integrity.ErrPluginFileNotFound):
		return "missing_file"
	default:
		return "error"
	}
}
