package plugins

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bluefalconink/architect/internal/integrity"
	"github.com/bluefalconink/architect/internal/pathguard"
	"github.com/bluefalconink/architect/internal/sandbox"
	"github.com/bluefalconink/architect/internal/security"
)

type loaderFixture struct {
	root      string
	pluginDir string
	loader    *Loader
	registry  *integrity.Registry
	guard     *pathguard.Guard
	runner    *sandbox.Runner
}

func newLoaderFixture(t *testing.T, guardOpts ...pathguard.Option) *loaderFixture {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a unix shell")
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	pluginDir := filepath.Join(root, "PLUGINS")
	if err := os.Mkdir(pluginDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	registry, err := integrity.NewRegistry(filepath.Join(pluginDir, ".plugin_hashes.json"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	guard, err := pathguard.New(root, guardOpts...)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	runner := sandbox.NewRunner(root)

	return &loaderFixture{
		root:      root,
		pluginDir: pluginDir,
		loader:    NewLoader(pluginDir, registry, guard, runner),
		registry:  registry,
		guard:     guard,
		runner:    runner,
	}
}

// enableAudit rebuilds the fixture's loader with a SQLite audit store and
// returns the store for event assertions.
func (f *loaderFixture) enableAudit(t *testing.T) *security.Store {
	t.Helper()
	store, err := security.Open(filepath.Join(f.root, "audit.db"))
	if err != nil {
		t.Fatalf("security.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	f.loader = NewLoader(f.pluginDir, f.registry, f.guard, f.runner, WithAuditStore(store))
	return store
}

func (f *loaderFixture) writePlugin(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(f.pluginDir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	return path
}

func (f *loaderFixture) writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

// copyBody is a minimal converter: it copies --input to --output.
const copyBody = `in=""; out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --input) in="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cat "$in" > "$out"`

func TestRunHappyPath(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "copy.sh", copyBody)
	input := f.writeInput(t, "input.txt", "payload")
	output := filepath.Join(f.root, "output.txt")

	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	report, err := f.loader.Run(context.Background(), Request{
		Plugin:     "copy",
		InputPath:  input,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Error("RunID was not assigned")
	}
	if report.Result == nil || report.Result.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", report.Result)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("output = %q, want %q", data, "payload")
	}
}

func TestRunRefusesTamperedPluginWithoutSpawning(t *testing.T) {
	f := newLoaderFixture(t)
	marker := filepath.Join(f.root, "executed")
	f.writePlugin(t, "toucher.sh", "touch "+marker)
	input := f.writeInput(t, "input.txt", "x")

	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	// Tamper after registration.
	f.writePlugin(t, "toucher.sh", "touch "+marker+" # changed")

	_, err := f.loader.Run(context.Background(), Request{
		Plugin:     "toucher",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailureIntegrity {
		t.Fatalf("failure kind = %q, want %q (err: %v)", KindOf(err), FailureIntegrity, err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Fatal("tampered plugin was executed")
	}
}

func TestRunUnknownPlugin(t *testing.T) {
	f := newLoaderFixture(t)
	input := f.writeInput(t, "input.txt", "x")

	_, err := f.loader.Run(context.Background(), Request{
		Plugin:     "ghost",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailureNotFound {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailureNotFound)
	}
}

func TestRunRejectsInputOutsideRoot(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "copy.sh", copyBody)
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := f.loader.Run(context.Background(), Request{
		Plugin:     "copy",
		InputPath:  outside,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailurePathViolation {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailurePathViolation)
	}
}

func TestRunRejectsOversizeInput(t *testing.T) {
	f := newLoaderFixture(t, pathguard.WithMaxFileSize(8))
	f.writePlugin(t, "copy.sh", copyBody)
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	input := f.writeInput(t, "big.txt", "123456789")

	_, err := f.loader.Run(context.Background(), Request{
		Plugin:     "copy",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailureInputTooLarge {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailureInputTooLarge)
	}
}

func TestRunTimeout(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "slow.sh", "sleep 30")
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	input := f.writeInput(t, "input.txt", "x")

	report, err := f.loader.Run(context.Background(), Request{
		Plugin:     "slow",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
		Timeout:    200 * time.Millisecond,
	})
	if KindOf(err) != FailureTimeout {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailureTimeout)
	}
	if report.Result == nil || !report.Result.TimedOut {
		t.Fatalf("report does not mark the run as timed out: %+v", report.Result)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "fail.sh", "echo broken >&2; exit 7")
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	input := f.writeInput(t, "input.txt", "x")

	report, err := f.loader.Run(context.Background(), Request{
		Plugin:     "fail",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailureRuntime {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailureRuntime)
	}
	if report.Result == nil || report.Result.ExitCode != 7 {
		t.Fatalf("exit code not reported: %+v", report.Result)
	}
	if !strings.Contains(report.Result.Stderr, "broken") {
		t.Errorf("stderr = %q, want it to contain %q", report.Result.Stderr, "broken")
	}
}

func TestRunValidatesOptionsAgainstManifest(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "convert.sh", copyBody)
	manifest := `{
		"id": "convert",
		"optionSchema": {
			"type": "object",
			"additionalProperties": false,
			"properties": {"delimiter": {"type": "string"}}
		}
	}`
	if err := os.WriteFile(filepath.Join(f.pluginDir, "convert.plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	input := f.writeInput(t, "input.txt", "x")

	_, err := f.loader.Run(context.Background(), Request{
		Plugin:     "convert",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
		Options:    map[string]any{"unknown": true},
	})
	if KindOf(err) != FailureInvalidOptions {
		t.Fatalf("failure kind = %q, want %q", KindOf(err), FailureInvalidOptions)
	}

	if _, err := f.loader.Run(context.Background(), Request{
		Plugin:     "convert",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
		Options:    map[string]any{"delimiter": ";"},
	}); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}
}

func TestRunRecordsIntegrityFailureEvent(t *testing.T) {
	f := newLoaderFixture(t)
	store := f.enableAudit(t)
	f.writePlugin(t, "conv.sh", copyBody)
	input := f.writeInput(t, "input.txt", "x")
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	// Tamper after registration.
	f.writePlugin(t, "conv.sh", copyBody+"\n# changed")

	report, err := f.loader.Run(context.Background(), Request{
		Plugin:     "conv",
		InputPath:  input,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailureIntegrity {
		t.Fatalf("failure kind = %q, want %q (err: %v)", KindOf(err), FailureIntegrity, err)
	}

	events, err := store.Recent(context.Background(), security.QueryFilter{Type: security.EventIntegrityFailure}, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d integrity events, want 1", len(events))
	}
	event := events[0]
	if event.RunID != report.RunID {
		t.Errorf("event run_id = %q, want %q", event.RunID, report.RunID)
	}
	if event.Plugin != "conv" {
		t.Errorf("event plugin = %q, want %q", event.Plugin, "conv")
	}
	if event.Severity != security.SeverityCritical {
		t.Errorf("event severity = %q, want %q", event.Severity, security.SeverityCritical)
	}
}

func TestRunRecordsPathViolationEvent(t *testing.T) {
	f := newLoaderFixture(t)
	store := f.enableAudit(t)
	f.writePlugin(t, "conv.sh", copyBody)
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	report, err := f.loader.Run(context.Background(), Request{
		Plugin:     "conv",
		InputPath:  outside,
		OutputPath: filepath.Join(f.root, "out.txt"),
	})
	if KindOf(err) != FailurePathViolation {
		t.Fatalf("failure kind = %q, want %q (err: %v)", KindOf(err), FailurePathViolation, err)
	}

	events, err := store.Recent(context.Background(), security.QueryFilter{RunID: report.RunID}, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events for run, want 1", len(events))
	}
	event := events[0]
	if event.Type != security.EventPathViolation {
		t.Errorf("event type = %q, want %q", event.Type, security.EventPathViolation)
	}
	if event.Path != outside {
		t.Errorf("event path = %q, want %q", event.Path, outside)
	}
	if event.Metadata["violation"] != "outside_root" {
		t.Errorf("event violation = %v, want %q", event.Metadata["violation"], "outside_root")
	}
}

func TestVerifyAllReportsTamperAndStrays(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "good.sh", "exit 0")
	f.writePlugin(t, "bad.sh", "exit 0")
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	f.writePlugin(t, "bad.sh", "exit 1")
	f.writePlugin(t, "stray.sh", "exit 0")

	results, err := f.loader.VerifyAll(context.Background())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if results["good"] != nil {
		t.Errorf("good: unexpected error %v", results["good"])
	}
	if results["bad"] == nil {
		t.Error("bad: tampering was not detected")
	}
	if results["stray"] == nil {
		t.Error("stray: unregistered plugin passed verification")
	}
}

func TestRehashDropsStaleRecords(t *testing.T) {
	f := newLoaderFixture(t)
	gone := f.writePlugin(t, "gone.sh", "exit 0")
	if _, err := f.loader.Rehash(context.Background()); err != nil {
		t.Fatalf("Rehash: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatalf("remove: %v", err)
	}
	digests, err := f.loader.Rehash(context.Background())
	if err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	if _, ok := digests["gone"]; ok {
		t.Error("deleted plugin still present after rehash")
	}
	if _, ok := f.registry.Lookup("gone"); ok {
		t.Error("stale registry record survived rehash")
	}
}

func TestRehashPluginRegistersOne(t *testing.T) {
	f := newLoaderFixture(t)
	f.writePlugin(t, "alpha.sh", "exit 0")
	f.writePlugin(t, "beta.sh", "exit 0")

	digest, err := f.loader.RehashPlugin(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("RehashPlugin: %v", err)
	}
	if len(digest) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(digest))
	}
	if _, ok := f.registry.Lookup("alpha"); !ok {
		t.Error("alpha was not registered")
	}
	if _, ok := f.registry.Lookup("beta"); ok {
		t.Error("beta was registered by a single-plugin rehash")
	}
}

func TestRehashPluginUnknown(t *testing.T) {
	f := newLoaderFixture(t)
	_, err := f.loader.RehashPlugin(context.Background(), "missing")
	if KindOf(err) != FailureNotFound {
		t.Fatalf("KindOf(err) = %q, want %q (err: %v)", KindOf(err), FailureNotFound, err)
	}
}

func TestVerifyPlugin(t *testing.T) {
	f := newLoaderFixture(t)
	path := f.writePlugin(t, "conv.sh", "exit 0")
	if _, err := f.loader.RehashPlugin(context.Background(), "conv"); err != nil {
		t.Fatalf("RehashPlugin: %v", err)
	}

	if err := f.loader.VerifyPlugin(context.Background(), "conv"); err != nil {
		t.Fatalf("VerifyPlugin on a clean plugin: %v", err)
	}

	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	err := f.loader.VerifyPlugin(context.Background(), "conv")
	if KindOf(err) != FailureIntegrity {
		t.Fatalf("KindOf(err) = %q, want %q (err: %v)", KindOf(err), FailureIntegrity, err)
	}
}

func TestVerifyPluginMissingFile(t *testing.T) {
	f := newLoaderFixture(t)
	path := f.writePlugin(t, "conv.sh", "exit 0")
	if _, err := f.loader.RehashPlugin(context.Background(), "conv"); err != nil {
		t.Fatalf("RehashPlugin: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	err := f.loader.VerifyPlugin(context.Background(), "conv")
	if KindOf(err) != FailureIntegrity {
		t.Fatalf("KindOf(err) = %q, want %q (err: %v)", KindOf(err), FailureIntegrity, err)
	}
}
