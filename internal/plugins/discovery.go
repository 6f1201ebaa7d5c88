package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bluefalconink/architect/pkg/pluginsdk"
)

// ErrNotFound reports that no plugin file matched the requested name.
var ErrNotFound = errors.New("plugin not found")

// ErrNameCollision reports that two plugin files resolve to the same
// plugin name, so hashes and lookups would be ambiguous.
var ErrNameCollision = errors.New("plugin name collision")

// Descriptor identifies one discovered plugin file. Manifest is nil when
// the plugin ships without one.
type Descriptor struct {
	Name     string
	Path     string
	Manifest *pluginsdk.Manifest
}

// Discover enumerates plugin files directly under dir, sorted by name.
// Hidden files and manifest files are skipped; subdirectories are not
// descended into. Discovery runs fresh on every call so a swapped file
// is seen immediately. Two files sharing a stem, like conv.py and
// conv.sh, make the name ambiguous and fail discovery with
// ErrNameCollision.
func Discover(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(entries))
	paths := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, pluginsdk.ManifestSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat plugin %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		path := filepath.Join(dir, name)
		descriptor := Descriptor{Name: pluginName(name), Path: path}
		if existing, ok := paths[descriptor.Name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both resolve to %q",
				ErrNameCollision, filepath.Base(existing), name, descriptor.Name)
		}
		paths[descriptor.Name] = path
		if manifest, err := loadManifest(path); err != nil {
			return nil, err
		} else if manifest != nil {
			descriptor.Manifest = manifest
		}
		descriptors = append(descriptors, descriptor)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors, nil
}

// Find resolves a plugin by name. The name matches either the file's
// base name without extension or the exact file name.
func Find(dir, name string) (Descriptor, error) {
	descriptors, err := Discover(dir)
	if err != nil {
		return Descriptor{}, err
	}
	for _, descriptor := range descriptors {
		if descriptor.Name == name || filepath.Base(descriptor.Path) == name {
			return descriptor, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// loadManifest reads the sidecar manifest for a plugin file if one
// exists. A present but invalid manifest is an error; silence is not.
func loadManifest(pluginPath string) (*pluginsdk.Manifest, error) {
	manifestPath := pluginsdk.ManifestPath(pluginPath)
	if _, err := os.Stat(manifestPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat manifest %s: %w", manifestPath, err)
	}
	manifest, err := pluginsdk.DecodeManifestFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", manifestPath, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", manifestPath, err)
	}
	return manifest, nil
}

func pluginName(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return strings.TrimSuffix(filename, ext)
	}
	return filename
}
