// Package pluginsdk defines the manifest contract for converter plugins.
// A plugin is an executable accompanied by an optional manifest file that
// names it, documents the formats it converts, and declares a JSON Schema
// for the extra options it accepts.
package pluginsdk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestSuffix is appended to a plugin's base name to locate its
// manifest, so "csv_to_json" is described by "csv_to_json.plugin.json".
const ManifestSuffix = ".plugin.json"

// Manifest describes a converter plugin and its option schema.
type Manifest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	Description   string          `json:"description,omitempty"`
	Version       string          `json:"version,omitempty"`
	InputFormats  []string        `json:"inputFormats,omitempty"`
	OutputFormats []string        `json:"outputFormats,omitempty"`
	OptionSchema  json.RawMessage `json:"optionSchema,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// ManifestPath returns the manifest filename for the plugin file at
// pluginPath, produced by swapping the extension for ManifestSuffix.
func ManifestPath(pluginPath string) string {
	return strings.TrimSuffix(pluginPath, filepath.Ext(pluginPath)) + ManifestSuffix
}

func DecodeManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &manifest, nil
}

func DecodeManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return DecodeManifest(data)
}

func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("manifest is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("manifest id is required")
	}
	return nil
}
