// Package pathguard confines filesystem paths to an authorized project
// root. Every input and output path a plugin touches passes through here
// before any process is spawned.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path validation failures.
var (
	ErrOutsideRoot   = errors.New("path resolves outside the project root")
	ErrNotFound      = errors.New("path does not exist")
	ErrInputTooLarge = errors.New("input file exceeds the size limit")
	ErrNotRegular    = errors.New("path is not a regular file")
)

// DefaultMaxFileSize is the input size ceiling applied when no override is
// configured (10 MB, matching the plugin contract).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Guard validates paths against a canonicalized root directory.
type Guard struct {
	root        string
	maxFileSize int64
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxFileSize overrides the input size ceiling.
func WithMaxFileSize(limit int64) Option {
	return func(g *Guard) {
		g.maxFileSize = limit
	}
}

// New creates a Guard for the given root. The root is canonicalized once
// here; it must exist.
func New(root string, opts ...Option) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("absolutize root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root %s: %w", root, err)
	}

	g := &Guard{
		root:        canonical,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Root returns the canonical root directory.
func (g *Guard) Root() string {
	return g.root
}

// ResolveInput canonicalizes an input path and verifies it is a regular
// file inside the root and under the size ceiling. Returns the canonical
// path to hand to the child process in place of the caller's string.
func (g *Guard) ResolveInput(path string) (string, error) {
	canonical, err := g.resolveExisting(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if info.Size() > g.maxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes (limit %d)",
			ErrInputTooLarge, path, info.Size(), g.maxFileSize)
	}
	return canonical, nil
}

// ResolveOutput canonicalizes an intended output path. The file itself
// need not exist, but its parent directory must exist and resolve inside
// the root; a plugin's declared destination is never trusted blindly.
func (g *Guard) ResolveOutput(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolutize %s: %w", path, err)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: output directory %s", ErrNotFound, filepath.Dir(path))
		}
		return "", fmt.Errorf("canonicalize output directory: %w", err)
	}
	if !g.contains(parent) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	canonical := filepath.Join(parent, filepath.Base(abs))

	// If the output file already exists it may itself be a symlink that
	// escapes the root; resolve and re-check.
	if target, err := filepath.EvalSymlinks(canonical); err == nil {
		if !g.contains(target) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
		}
		canonical = target
	}

	return canonical, nil
}

// resolveExisting canonicalizes a path that must exist and checks root
// containment. Symlinks are fully resolved before the containment check,
// so a link pointing outside the root fails even when the link itself
// lives inside it.
func (g *Guard) resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolutize %s: %w", path, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	if !g.contains(canonical) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return canonical, nil
}

// contains reports whether a canonical path is the root or a descendant.
func (g *Guard) contains(canonical string) bool {
	if canonical == g.root {
		return true
	}
	rel, err := filepath.Rel(g.root, canonical)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
