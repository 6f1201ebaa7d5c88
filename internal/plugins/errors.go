package plugins

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a plugin run was refused or failed. Callers
// map kinds to exit codes and audit severities.
type FailureKind string

const (
	FailureNotFound       FailureKind = "plugin_not_found"
	FailureIntegrity      FailureKind = "integrity_failure"
	FailurePathViolation  FailureKind = "path_violation"
	FailureInputTooLarge  FailureKind = "input_too_large"
	FailureInvalidOptions FailureKind = "invalid_options"
	FailureTimeout        FailureKind = "timed_out"
	FailureRuntime        FailureKind = "runtime_failure"
)

// RunError wraps a pipeline failure with its classification and the
// plugin it concerns.
type RunError struct {
	Kind   FailureKind
	Plugin string
	Err    error
}

func (e *RunError) Error() string {
	subject := "pipeline"
	if e.Plugin != "" {
		subject = "plugin " + e.Plugin
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", subject, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", subject, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or empty when err is not a
// pipeline failure.
func KindOf(err error) FailureKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return ""
}

func failure(kind FailureKind, plugin string, err error) *RunError {
	return &RunError{Kind: kind, Plugin: plugin, Err: err}
}
