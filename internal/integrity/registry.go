// Package integrity maintains the trusted content-hash registry for
// converter plugins. The registry is the subsystem's trust anchor: a plugin
// only executes when its current on-disk bytes hash to the digest recorded
// at registration time.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Algorithm is the only digest algorithm the registry supports.
const Algorithm = "sha256"

// Verification failure causes. Verify fails closed: any read error or
// absent record is a failure, never an implicit pass.
var (
	ErrMissingRecord      = errors.New("plugin has no integrity record")
	ErrHashMismatch       = errors.New("plugin content does not match integrity record")
	ErrPluginFileNotFound = errors.New("plugin file not found")
)

// Record is one persisted integrity entry.
type Record struct {
	Algorithm    string    `json:"algorithm"`
	Digest       string    `json:"digest"`
	RegisteredAt time.Time `json:"registered_at"`
}

// document is the on-disk shape of the registry file.
type document struct {
	Version string            `json:"version"`
	Records map[string]Record `json:"records"`
}

const documentVersion = "1"

// Registry holds integrity records for plugins and persists them as a
// single versioned JSON document. It is read-mostly: Verify never writes,
// Register rewrites the whole file atomically.
type Registry struct {
	path    string
	mu      sync.RWMutex
	records map[string]Record
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry loads (or initializes) the registry persisted at path.
// A missing file yields an empty registry; a corrupt file is an error, not
// a silent reset, since the record set is the trust anchor.
func NewRegistry(path string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:    path,
		records: make(map[string]Record),
		logger:  slog.Default().With("component", "integrity.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.logger.Debug("no registry file, starting empty", "path", path)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if doc.Records != nil {
		r.records = doc.Records
	}
	r.logger.Debug("loaded integrity registry", "path", path, "records", len(r.records))
	return r, nil
}

// Path returns the registry file location.
func (r *Registry) Path() string {
	return r.path
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the record for a plugin name.
func (r *Registry) Lookup(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	return rec, ok
}

// Register hashes the plugin file's current bytes and persists the record,
// overwriting any prior entry. This is an explicit operator action; nothing
// in the execution path calls it.
func (r *Registry) Register(name, pluginPath string) (string, error) {
	digest, err := HashFile(pluginPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPluginFileNotFound, name)
		}
		return "", fmt.Errorf("hash plugin %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[name] = Record{
		Algorithm:    Algorithm,
		Digest:       digest,
		RegisteredAt: time.Now().UTC(),
	}
	if err := r.persistLocked(); err != nil {
		return "", err
	}

	r.logger.Info("registered plugin hash", "plugin", name, "digest", digest)
	return digest, nil
}

// Remove deletes a record and persists the change.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[name]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingRecord, name)
	}
	delete(r.records, name)
	return r.persistLocked()
}

// Verify recomputes the digest of the plugin's current bytes and compares
// it against the stored record.
func (r *Registry) Verify(name, pluginPath string) error {
	r.mu.RLock()
	rec, ok := r.records[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRecord, name)
	}

	actual, err := HashFile(pluginPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrPluginFileNotFound, name)
		}
		// Unreadable plugin is a verification failure, not a pass.
		return fmt.Errorf("%w: %s: %v", ErrHashMismatch, name, err)
	}

	if !digestsEqual(rec.Digest, actual) {
		r.logger.Warn("plugin hash mismatch",
			"plugin", name,
			"expected", rec.Digest,
			"actual", actual)
		return fmt.Errorf("%w: %s", ErrHashMismatch, name)
	}
	return nil
}

// VerifyAll checks every known record against the plugin files named in
// files (name → path), and reports files that have no record. The result
// maps plugin name to nil (ok) or the verification failure.
func (r *Registry) VerifyAll(files map[string]string) map[string]error {
	results := make(map[string]error)

	for _, name := range r.Names() {
		path, ok := files[name]
		if !ok {
			results[name] = fmt.Errorf("%w: %s", ErrPluginFileNotFound, name)
			continue
		}
		results[name] = r.Verify(name, path)
	}

	for name := range files {
		if _, seen := results[name]; !seen {
			results[name] = fmt.Errorf("%w: %s", ErrMissingRecord, name)
		}
	}

	return results
}

// persistLocked rewrites the registry file atomically. Callers hold r.mu.
func (r *Registry) persistLocked() error {
	doc := document{Version: documentVersion, Records: r.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the registry.
	tmp, err := os.CreateTemp(dir, ".plugin_hashes-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// HashFile computes the SHA-256 hex digest of a file's raw bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// digestsEqual compares two hex digests in constant time. Secrecy is not
// the concern; the comparison stays branch-free so the check is auditable.
func digestsEqual(expected, actual string) bool {
	e, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	a, err := hex.DecodeString(actual)
	if err != nil {
		return false
	}
	if len(e) != len(a) {
		return false
	}
	return subtle.ConstantTimeCompare(e, a) == 1
}
