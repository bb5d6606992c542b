package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// systemDirs are directory names that must never appear in any path we
// report or delete. The check is component-wise and case-insensitive, so
// `c:\windows\temp` and `/mnt/c/Windows/Temp` are both rejected. These are
// names unambiguous enough to match anywhere in a path; Unix system roots
// are handled separately by absolute prefix in protectedRoots.
var systemDirs = []string{
	"Windows",
	"Program Files",
	"Program Files (x86)",
	"ProgramData",
	"$Recycle.Bin",
	"System Volume Information",
	"Recovery",
	"MSOCache",
	"System32",
	"SysWOW64",
}

// protectedRoots are absolute Unix/macOS system directories. Anything at or
// directly under one of these is rejected. Matched by prefix, not by
// component, so a user's ~/dev or ~/etc folder is unaffected.
var protectedRoots = []string{
	"/bin",
	"/boot",
	"/dev",
	"/etc",
	"/lib",
	"/lib64",
	"/proc",
	"/root",
	"/sbin",
	"/sys",
	"/usr",
	"/var",
	"/System",
	"/Library/System",
}

// allowedUnderProtected carves user-writable temp trees back out of the
// protected roots. /var/folders is macOS's per-user temp location.
var allowedUnderProtected = []string{
	"/var/tmp",
	"/var/folders",
}

// skipWalkDirs are well-known heavy directories that the scanner reports as
// whole cleanup targets and therefore never descends into.
var skipWalkDirs = []string{
	"node_modules",
	".git",
	".hg",
	".svn",
	"target",
	".gradle",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".venv",
	"venv",
	".next",
	".nuxt",
	".turbo",
	".parcel-cache",
}

// IsSystemPath reports whether any component of path case-insensitively
// matches a protected system directory name. It is a pure predicate over an
// immutable table and cannot be disabled by configuration.
func IsSystemPath(path string) bool {
	if path == "" {
		return false
	}
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, component := range strings.Split(normalized, "/") {
		if component == "" || component == "." || component == ".." {
			continue
		}
		if strings.HasSuffix(component, ":") {
			// Drive letter on Windows, not a directory name.
			continue
		}
		for _, sys := range systemDirs {
			if strings.EqualFold(component, sys) {
				return true
			}
		}
	}
	for _, allowed := range allowedUnderProtected {
		if normalized == allowed || strings.HasPrefix(normalized, allowed+"/") {
			return false
		}
	}
	for _, root := range protectedRoots {
		if normalized == root || strings.HasPrefix(normalized, root+"/") {
			return true
		}
	}
	return false
}

// ShouldSkipWalk reports whether a directory name belongs to the skip-list of
// directories the scanner treats as opaque targets.
func ShouldSkipWalk(name string) bool {
	for _, skip := range skipWalkDirs {
		if strings.EqualFold(name, skip) {
			return true
		}
	}
	return false
}

// SkipWalkDirs returns a copy of the skip-list for callers that enumerate it.
func SkipWalkDirs() []string {
	out := make([]string, len(skipWalkDirs))
	copy(out, skipWalkDirs)
	return out
}

// ValidateGlobPattern validates that a user-supplied exclusion pattern is
// safe and syntactically valid.
func ValidateGlobPattern(pattern string) error {
	if strings.Contains(pattern, "..") {
		return fmt.Errorf("glob pattern contains directory traversal: %s", pattern)
	}
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return nil
}

// MatchesAny reports whether path matches any of the given glob patterns.
// Patterns are tried against the full slash-normalized path, the base name,
// and each individual component, so `*.log` and `Screenshots` style
// exclusions both behave the way users expect during traversal.
func MatchesAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return false
	}
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, normalized); ok {
			return true
		}
		for _, component := range strings.Split(normalized, "/") {
			if component == "" {
				continue
			}
			if ok, _ := filepath.Match(pattern, component); ok {
				return true
			}
		}
	}
	return false
}
