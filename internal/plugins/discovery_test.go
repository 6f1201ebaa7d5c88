package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePlugin(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	return path
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "csv_to_json.py")
	writePlugin(t, dir, "render")
	writePlugin(t, dir, ".plugin_hashes.json")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePlugin(t, filepath.Join(dir, "nested"), "hidden_plugin")

	descriptors, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("len(descriptors) = %d, want 2", len(descriptors))
	}
	if descriptors[0].Name != "csv_to_json" {
		t.Errorf("descriptors[0].Name = %q, want csv_to_json", descriptors[0].Name)
	}
	if descriptors[1].Name != "render" {
		t.Errorf("descriptors[1].Name = %q, want render", descriptors[1].Name)
	}
}

func TestDiscoverSkipsManifestFiles(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "csv_to_json.py")
	manifest := `{"id": "csv-to-json", "optionSchema": {"type": "object"}}`
	if err := os.WriteFile(filepath.Join(dir, "csv_to_json.plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	descriptors, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("len(descriptors) = %d, want 1", len(descriptors))
	}
	if descriptors[0].Manifest == nil {
		t.Fatal("sidecar manifest was not attached")
	}
	if descriptors[0].Manifest.ID != "csv-to-json" {
		t.Errorf("Manifest.ID = %q, want csv-to-json", descriptors[0].Manifest.ID)
	}
}

func TestDiscoverRejectsNameCollision(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "conv.py")
	writePlugin(t, dir, "conv.sh")

	_, err := Discover(dir)
	if !errors.Is(err, ErrNameCollision) {
		t.Fatalf("Discover error = %v, want ErrNameCollision", err)
	}
	for _, file := range []string{"conv.py", "conv.sh"} {
		if !strings.Contains(err.Error(), file) {
			t.Errorf("error %q does not name %s", err, file)
		}
	}
}

func TestDiscoverRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "broken.py")
	if err := os.WriteFile(filepath.Join(dir, "broken.plugin.json"), []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := Discover(dir); err == nil {
		t.Fatal("Discover accepted an invalid manifest")
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "csv_to_json.py")

	byStem, err := Find(dir, "csv_to_json")
	if err != nil {
		t.Fatalf("Find by stem: %v", err)
	}
	byFile, err := Find(dir, "csv_to_json.py")
	if err != nil {
		t.Fatalf("Find by filename: %v", err)
	}
	if byStem.Path != byFile.Path {
		t.Errorf("stem and filename lookups disagree: %q vs %q", byStem.Path, byFile.Path)
	}

	_, err = Find(dir, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("Discover succeeded for a missing directory")
	}
}
