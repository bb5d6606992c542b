// Package project classifies directories as software projects and decides
// whether a project has seen recent activity. The build category only ever
// touches artifacts inside projects this package calls inactive.
package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fenilsonani/reclaim/internal/security"
	"go.uber.org/zap"
)

// Type identifies the ecosystem a project belongs to.
type Type string

const (
	Node   Type = "node"
	Rust   Type = "rust"
	Go     Type = "go"
	DotNet Type = "dotnet"
	Python Type = "python"
	Java   Type = "java"
	PHP    Type = "php"
	Ruby   Type = "ruby"
)

// markerFiles maps a project type to the manifest files that identify it.
// DotNet is handled separately because its markers are matched by extension.
var markerFiles = map[Type][]string{
	Node:   {"package.json"},
	Rust:   {"Cargo.toml"},
	Go:     {"go.mod"},
	Python: {"pyproject.toml", "requirements.txt"},
	Java:   {"build.gradle", "pom.xml"},
	PHP:    {"composer.json"},
	Ruby:   {"Gemfile"},
}

// activityFiles are manifest and lock files whose modification time counts
// as project activity.
var activityFiles = []string{
	"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"Cargo.toml", "Cargo.lock",
	"go.mod", "go.sum",
	"requirements.txt", "pyproject.toml", "poetry.lock",
	"build.gradle", "pom.xml",
	"composer.json", "composer.lock",
	"Gemfile", "Gemfile.lock",
}

// sourceExtensions is the allow-list of extensions sampled when looking for
// recently touched source files.
var sourceExtensions = map[string]bool{
	".rs": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".go": true, ".java": true, ".rb": true, ".php": true,
	".c": true, ".cpp": true, ".h": true, ".cs": true,
}

// maxSourceSample bounds how many direct children are statted when sampling
// source-file activity, keeping detection cheap on huge directories.
const maxSourceSample = 100

// maxRootDepth bounds the project-root discovery walk.
const maxRootDepth = 5

// Detector classifies project directories. Activity results are cached per
// (root, threshold) because build scans consult the same roots repeatedly.
type Detector struct {
	logger *zap.Logger

	mu    sync.Mutex
	cache map[activityKey]bool
}

type activityKey struct {
	root          string
	thresholdDays int
}

// NewDetector creates a Detector. A nil logger is replaced with a no-op.
func NewDetector(logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		logger: logger,
		cache:  make(map[activityKey]bool),
	}
}

// Detect reports the project type of dir, or false if dir is not a
// recognized project root.
func Detect(dir string) (Type, bool) {
	for _, typ := range []Type{Node, Rust, Go, Python, Java, PHP, Ruby} {
		for _, marker := range markerFiles[typ] {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return typ, true
			}
		}
	}

	// .NET markers are extension-based (*.csproj, *.sln in direct children).
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".csproj") || strings.HasSuffix(name, ".sln") {
			return DotNet, true
		}
	}

	return "", false
}

// IsInactive reports whether the project at root has been idle for at least
// thresholdDays. Any error while collecting activity evidence classifies the
// project as active: when in doubt, nothing gets deleted.
func (d *Detector) IsInactive(root string, thresholdDays int) bool {
	if _, ok := Detect(root); !ok {
		// Not a project; the build category never touches it either way.
		return false
	}

	key := activityKey{root: root, thresholdDays: thresholdDays}

	d.mu.Lock()
	if cached, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return cached
	}
	d.mu.Unlock()

	inactive := d.computeInactive(root, thresholdDays)

	d.mu.Lock()
	d.cache[key] = inactive
	d.mu.Unlock()

	return inactive
}

// InvalidateCache drops all cached activity classifications.
func (d *Detector) InvalidateCache() {
	d.mu.Lock()
	d.cache = make(map[activityKey]bool)
	d.mu.Unlock()
}

func (d *Detector) computeInactive(root string, thresholdDays int) bool {
	cutoff := time.Now().Add(-time.Duration(thresholdDays) * 24 * time.Hour)

	modifiedSince := func(path string) bool {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		return info.ModTime().After(cutoff)
	}

	// Version-control activity: index and HEAD mtimes stand in for commits
	// and staging without needing a git library.
	if modifiedSince(filepath.Join(root, ".git", "index")) {
		return false
	}
	if modifiedSince(filepath.Join(root, ".git", "HEAD")) {
		return false
	}

	for _, name := range activityFiles {
		if modifiedSince(filepath.Join(root, name)) {
			return false
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		d.logger.Warn("cannot read project root, assuming active",
			zap.String("root", root), zap.Error(err))
		return false
	}

	sampled := 0
	for _, entry := range entries {
		if sampled >= maxSourceSample {
			break
		}
		if entry.IsDir() {
			continue
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		sampled++
		if modifiedSince(filepath.Join(root, entry.Name())) {
			return false
		}
	}

	return true
}

// FindRoots walks a tree looking for project roots. The walk is bounded in
// depth, never follows symlinks, skips artifact and system directories, and
// does not report projects nested inside an already-found project.
func (d *Detector) FindRoots(root string, excludePatterns []string) []string {
	if _, ok := Detect(root); ok {
		return []string{root}
	}

	var roots []string

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return nil // never traverse through links
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root {
			name := entry.Name()
			if security.ShouldSkipWalk(name) || security.IsSystemPath(path) {
				return filepath.SkipDir
			}
			if security.MatchesAny(excludePatterns, path) {
				return filepath.SkipDir
			}
			if depthBelow(root, path) > maxRootDepth {
				return filepath.SkipDir
			}
		}

		for _, found := range roots {
			if isUnder(found, path) {
				return filepath.SkipDir // subproject of a found root
			}
		}

		if _, ok := Detect(path); ok && path != root {
			roots = append(roots, path)
			return filepath.SkipDir
		}
		return nil
	})

	return roots
}

func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func isUnder(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
