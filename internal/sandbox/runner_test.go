package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a unix shell")
	}
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "ok.sh", `echo hello; echo oops >&2; exit 3`)

	r := NewRunner(dir)
	result, err := r.Run(context.Background(), script, nil, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if got := strings.TrimSpace(result.Stdout); got != "hello" {
		t.Errorf("Stdout = %q, want %q", got, "hello")
	}
	if got := strings.TrimSpace(result.Stderr); got != "oops" {
		t.Errorf("Stderr = %q, want %q", got, "oops")
	}
	if result.TimedOut {
		t.Error("TimedOut = true for a fast process")
	}
	if result.Truncated {
		t.Error("Truncated = true for small output")
	}
}

func TestRunKillsProcessOnTimeout(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "sleep.sh", `sleep 30`)

	r := NewRunner(dir)
	start := time.Now()
	result, err := r.Run(context.Background(), script, nil, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("TimedOut = false, want true")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timed-out run took %v, expected prompt termination", elapsed)
	}
	if result.ExitCode == 0 {
		t.Error("ExitCode = 0 for a killed process")
	}
}

func TestRunKillsForkedChildren(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "survivor")
	// The background child sleeps past the deadline and would create the
	// marker if it survived the group kill.
	script := writeScript(t, dir, "fork.sh",
		`(sleep 2; touch `+marker+`) & sleep 30`)

	r := NewRunner(dir)
	result, err := r.Run(context.Background(), script, nil, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("TimedOut = false, want true")
	}
	time.Sleep(3 * time.Second)
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("forked child survived the timeout kill")
	}
}

func TestRunTruncatesOversizeOutput(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "noisy.sh", `i=0
while [ $i -lt 100 ]; do printf 'xxxxxxxxxx'; i=$((i+1)); done`)

	r := NewRunner(dir, WithOutputCap(64))
	result, err := r.Run(context.Background(), script, nil, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if len(result.Stdout) != 64 {
		t.Errorf("len(Stdout) = %d, want 64", len(result.Stdout))
	}
}

func TestRunStripsEnvironment(t *testing.T) {
	requireUnix(t)
	t.Setenv("ARCHITECT_SECRET_TOKEN", "hunter2")
	dir := t.TempDir()
	script := writeScript(t, dir, "env.sh", `printf '%s' "$ARCHITECT_SECRET_TOKEN"`)

	r := NewRunner(dir)
	result, err := r.Run(context.Background(), script, nil, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "" {
		t.Errorf("secret leaked into child environment: %q", result.Stdout)
	}
}

func TestRunAllowlistedEnvPassesThrough(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	t.Setenv("TMPDIR", "/tmp/architect-test")
	script := writeScript(t, dir, "env.sh", `printf '%s' "$TMPDIR"`)

	r := NewRunner(dir)
	result, err := r.Run(context.Background(), script, nil, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "/tmp/architect-test" {
		t.Errorf("TMPDIR = %q, want %q", result.Stdout, "/tmp/architect-test")
	}
}

func TestRunSetsWorkingDirectory(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	script := writeScript(t, dir, "pwd.sh", `pwd`)

	r := NewRunner(resolved)
	result, err := r.Run(context.Background(), script, nil, time.Minute)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(result.Stdout); got != resolved {
		t.Errorf("working directory = %q, want %q", got, resolved)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(dir)
	if _, err := r.Run(context.Background(), filepath.Join(dir, "absent"), nil, time.Minute); err == nil {
		t.Fatal("Run succeeded for a missing executable")
	}
}

func TestCappedBufferBoundary(t *testing.T) {
	b := newCappedBuffer(4)
	if _, err := b.Write([]byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Truncated() {
		t.Error("Truncated = true at exactly the cap")
	}
	if _, err := b.Write([]byte("e")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !b.Truncated() {
		t.Error("Truncated = false past the cap")
	}
	if b.String() != "abcd" {
		t.Errorf("String() = %q, want %q", b.String(), "abcd")
	}
}
