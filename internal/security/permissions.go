package security

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Finding is one filesystem permission problem that weakens the
// pipeline's guarantees.
type Finding struct {
	CheckID     string `json:"check_id"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation"`
}

// PermissionTargets names the paths the permission check inspects.
type PermissionTargets struct {
	// PluginDir is the directory plugins execute from. Writable-by-others
	// here lets an attacker swap plugin files between rehash and run.
	PluginDir string

	// RegistryPath is the integrity record file. Writable-by-others here
	// lets an attacker re-register a tampered hash.
	RegistryPath string

	// ConfigPath is the configuration file, which may carry an API key.
	ConfigPath string

	// AuditDBPath is the security event database.
	AuditDBPath string
}

// CheckPermissions inspects the permission bits and symlink status of
// the pipeline's trust anchors. A hash registry is only as strong as
// the file permissions around it.
func CheckPermissions(targets PermissionTargets) []Finding {
	var findings []Finding
	findings = append(findings, checkTrustedDir(targets.PluginDir, "plugin directory")...)
	findings = append(findings, checkTrustedFile(targets.RegistryPath, "integrity registry", "fs.registry")...)
	findings = append(findings, checkSecretFile(targets.ConfigPath, "config file", "fs.config")...)
	findings = append(findings, checkTrustedFile(targets.AuditDBPath, "audit database", "fs.audit_db")...)
	return findings
}

func checkTrustedDir(path, description string) []Finding {
	if path == "" {
		return nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}

	var findings []Finding
	if info.Mode()&os.ModeSymlink != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs.plugin_dir_symlink",
			Severity:    SeverityWarning,
			Title:       fmt.Sprintf("%s is a symlink", description),
			Detail:      fmt.Sprintf("The %s at %s is a symbolic link, so its contents are controlled by whoever controls the target.", description, path),
			Remediation: "Use a real directory for executable plugins.",
		})
	}

	mode := info.Mode().Perm()
	if mode&0o002 != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs.plugin_dir_world_writable",
			Severity:    SeverityCritical,
			Title:       fmt.Sprintf("%s is world-writable", description),
			Detail:      fmt.Sprintf("The %s at %s has permissions %o. Any user can replace a plugin after it was registered.", description, path, mode),
			Remediation: fmt.Sprintf("Run: chmod o-w %s", path),
		})
	}
	if mode&0o020 != 0 {
		findings = append(findings, Finding{
			CheckID:     "fs.plugin_dir_group_writable",
			Severity:    SeverityWarning,
			Title:       fmt.Sprintf("%s is group-writable", description),
			Detail:      fmt.Sprintf("The %s at %s has permissions %o, allowing group members to replace plugins.", description, path, mode),
			Remediation: fmt.Sprintf("Run: chmod g-w %s", path),
		})
	}

	if info.IsDir() {
		_ = filepath.WalkDir(path, func(filePath string, d fs.DirEntry, err error) error {
			if err != nil || filePath == path {
				return nil
			}
			fileInfo, err := d.Info()
			if err != nil {
				return nil
			}
			if fileInfo.Mode()&os.ModeSymlink != 0 {
				findings = append(findings, Finding{
					CheckID:     "fs.symlink_in_plugin_dir",
					Severity:    SeverityWarning,
					Title:       "Symlink inside the plugin directory",
					Detail:      fmt.Sprintf("The path %s is a symbolic link. Hash verification reads the target, which can change independently.", filePath),
					Remediation: "Replace the symlink with a real file and rehash.",
				})
			}
			if fileInfo.Mode().Perm()&0o002 != 0 {
				findings = append(findings, Finding{
					CheckID:     "fs.plugin_world_writable",
					Severity:    SeverityCritical,
					Title:       "Plugin file is world-writable",
					Detail:      fmt.Sprintf("The file %s has permissions %o. Any user can modify it between verification and execution.", filePath, fileInfo.Mode().Perm()),
					Remediation: fmt.Sprintf("Run: chmod o-w %s", filePath),
				})
			}
			return nil
		})
	}

	return findings
}

func checkTrustedFile(path, description, checkPrefix string) []Finding {
	if path == "" {
		return nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}

	var findings []Finding
	if info.Mode()&os.ModeSymlink != 0 {
		findings = append(findings, Finding{
			CheckID:     checkPrefix + "_symlink",
			Severity:    SeverityWarning,
			Title:       fmt.Sprintf("%s is a symlink", description),
			Detail:      fmt.Sprintf("The %s at %s is a symbolic link.", description, path),
			Remediation: "Use a real file.",
		})
	}
	mode := info.Mode().Perm()
	if mode&0o002 != 0 {
		findings = append(findings, Finding{
			CheckID:     checkPrefix + "_world_writable",
			Severity:    SeverityCritical,
			Title:       fmt.Sprintf("%s is world-writable", description),
			Detail:      fmt.Sprintf("The %s at %s has permissions %o. Any user can rewrite it.", description, path, mode),
			Remediation: fmt.Sprintf("Run: chmod o-w %s", path),
		})
	}
	if mode&0o020 != 0 {
		findings = append(findings, Finding{
			CheckID:     checkPrefix + "_group_writable",
			Severity:    SeverityWarning,
			Title:       fmt.Sprintf("%s is group-writable", description),
			Detail:      fmt.Sprintf("The %s at %s has permissions %o.", description, path, mode),
			Remediation: fmt.Sprintf("Run: chmod g-w %s", path),
		})
	}
	return findings
}

// checkSecretFile additionally flags readable-by-others, since the
// config file may carry an API key.
func checkSecretFile(path, description, checkPrefix string) []Finding {
	findings := checkTrustedFile(path, description, checkPrefix)
	if path == "" {
		return findings
	}
	info, err := os.Lstat(path)
	if err != nil {
		return findings
	}
	mode := info.Mode().Perm()
	if mode&0o004 != 0 {
		findings = append(findings, Finding{
			CheckID:     checkPrefix + "_world_readable",
			Severity:    SeverityWarning,
			Title:       fmt.Sprintf("%s is world-readable", description),
			Detail:      fmt.Sprintf("The %s at %s has permissions %o and may contain an API key.", description, path, mode),
			Remediation: fmt.Sprintf("Run: chmod 600 %s", path),
		})
	}
	return findings
}

// RenderFindings formats findings for terminal output.
func RenderFindings(findings []Finding) string {
	if len(findings) == 0 {
		return "No permission problems found.\n"
	}
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(f.Severity), f.Title)
		fmt.Fprintf(&b, "    %s\n", f.Detail)
		fmt.Fprintf(&b, "    Fix: %s\n", f.Remediation)
	}
	return b.String()
}

// HasCritical reports whether any finding is critical.
func HasCritical(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
