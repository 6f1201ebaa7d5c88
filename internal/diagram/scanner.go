// Package diagram generates Mermaid architecture diagrams for a project:
// a bounded scan of the source tree feeds an LLM that drafts the diagram,
// which the foreman package then audits.
package diagram

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scan bounds. Large repositories are sampled, not exhausted, so the
// prompt stays within model context limits.
const (
	MaxFileSize     = 50_000
	MaxFilesToScan  = 80
	MaxContextChars = 120_000
)

var codeExtensions = map[string]bool{
	".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".go": true, ".rs": true, ".java": true, ".kt": true, ".cs": true,
	".rb": true, ".php": true, ".swift": true, ".dart": true,
	".vue": true, ".svelte": true,
}

var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true,
}

var infraFiles = map[string]bool{
	"Dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true,
	"Makefile": true, "Procfile": true, "serverless.yml": true,
	"serverless.yaml": true, "vercel.json": true, "netlify.toml": true,
	"fly.toml": true, "render.yaml": true, "cloudbuild.yaml": true,
	"appspec.yml": true,
}

var manifestFiles = map[string]bool{
	"requirements.txt": true, "pyproject.toml": true, "cargo.toml": true,
	"go.mod": true, "go.sum": true,
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".next": true,
	".nuxt": true, "dist": true, "build": true, "out": true, ".venv": true,
	"venv": true, "env": true, ".tox": true, "vendor": true,
	".terraform": true, "coverage": true, ".nyc_output": true, ".cache": true,
}

// ScanResult holds the sampled repository context.
type ScanResult struct {
	Tree  string
	Files map[string]string
}

// Scan walks the repository under root, collecting a file tree plus the
// contents of architecture-relevant files within the scan bounds.
func Scan(root string) (*ScanResult, error) {
	rootPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}

	var treeLines []string
	files := make(map[string]string)
	filesScanned := 0
	totalChars := 0

	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel != "." && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			depth := 0
			name := "."
			if rel != "." {
				depth = strings.Count(rel, string(filepath.Separator)) + 1
				name = d.Name()
			}
			treeLines = append(treeLines, strings.Repeat("  ", depth)+name+"/")
			return nil
		}

		depth := strings.Count(rel, string(filepath.Separator)) + 1
		treeLines = append(treeLines, strings.Repeat("  ", depth)+d.Name())

		if !shouldRead(d.Name()) {
			return nil
		}
		if filesScanned >= MaxFilesToScan {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > MaxFileSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content := string(data)
		if totalChars+len(content) > MaxContextChars {
			remaining := MaxContextChars - totalChars
			if remaining <= 500 {
				return nil
			}
			content = content[:remaining] + "\n... [truncated]"
		}
		files[filepath.ToSlash(rel)] = content
		totalChars += len(content)
		filesScanned++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}

	return &ScanResult{
		Tree:  strings.Join(treeLines, "\n"),
		Files: files,
	}, nil
}

func shouldRead(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	lower := strings.ToLower(name)
	switch {
	case codeExtensions[ext], configExtensions[ext]:
		return true
	case infraFiles[name], manifestFiles[lower]:
		return true
	case lower == "readme.md", lower == "readme.rst", lower == "readme.txt":
		return true
	case strings.HasPrefix(lower, "package"):
		return true
	case ext == ".tf" || ext == ".tfvars" || ext == ".hcl":
		return true
	}
	return false
}

// renderContext flattens the scan result into prompt text with files in
// deterministic order.
func (s *ScanResult) renderContext() string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", name, s.Files[name])
	}
	return b.String()
}
