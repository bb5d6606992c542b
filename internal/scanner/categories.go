package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Category is one of the closed set of cleanup targets. Adding a variant
// means extending the switch in categorySpec, which is exhaustive on
// purpose.
type Category string

const (
	CategoryCache      Category = "cache"
	CategoryTemp       Category = "temp"
	CategoryTrash      Category = "trash"
	CategoryBuild      Category = "build"
	CategoryDownloads  Category = "downloads"
	CategoryLarge      Category = "large"
	CategoryOld        Category = "old"
	CategoryEmpty      Category = "empty"
	CategoryDuplicates Category = "duplicates"
)

// AllCategories lists every variant in display order.
func AllCategories() []Category {
	return []Category{
		CategoryCache, CategoryTemp, CategoryTrash, CategoryBuild,
		CategoryDownloads, CategoryLarge, CategoryOld, CategoryEmpty,
		CategoryDuplicates,
	}
}

// ParseCategory validates a user-supplied category name.
func ParseCategory(name string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllCategories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", name)
}

// profile describes how one category scans: which entries match and how deep
// the walk may go. Matching never implies deletion; every match still
// passes the cleaner's own gates.
type profile struct {
	// maxDepth bounds traversal below each root.
	maxDepth int
	// fixedRoots pins a category to specific directories. Categories whose
	// only predicate is age would otherwise match every old file under an
	// arbitrary root.
	fixedRoots []string
	// extraRoots are scanned in addition to the caller's roots. Package
	// manager caches live in well-known places outside typical scan roots.
	extraRoots []string
	// rootIsItem reports the walk root itself as one whole-directory item.
	rootIsItem bool
	// dirNames, when set, marks whole directories as items (their sizes
	// computed recursively) instead of individual files.
	dirNames map[string]bool
	// extensions and suffixes match file names case-insensitively.
	extensions map[string]bool
	suffixes   []string
	// minAge and minSize are filled from config at scan time.
	minAge  time.Duration
	minSize int64
	// matchEmpty selects zero-byte files and empty directories.
	matchEmpty bool
}

var cacheDirNames = map[string]bool{
	".cache":        true,
	"cache":         true,
	"caches":        true,
	"code cache":    true,
	"gpucache":      true,
	"shadercache":   true,
	"cachestorage":  true,
	"thumbnails":    true,
	"crash dumps":   true,
	"crash reports": true,
	"webcache":      true,
	".npm":          true,
	".pnpm-store":   true,
}

// packageCacheDirs lists the package manager cache locations under a home
// directory. Nonexistent entries are skipped at scan time, so the macOS
// Library paths are harmless on Linux and vice versa.
func packageCacheDirs(home string) []string {
	rel := []string{
		".npm",
		".yarn/cache",
		".cache/yarn",
		".pnpm-store",
		".cache/pip",
		"Library/Caches/pip",
		".gem/cache",
		".cargo/registry/cache",
		".cache/go-build",
		"Library/Caches/go-build",
		".m2/repository",
		".gradle/caches",
		".composer/cache",
		".cache/composer",
		"Library/Caches/Homebrew",
		"Library/Caches/CocoaPods",
	}
	dirs := make([]string, 0, len(rel))
	for _, r := range rel {
		dirs = append(dirs, filepath.Join(home, filepath.FromSlash(r)))
	}
	return dirs
}

var buildDirNames = map[string]bool{
	"node_modules":  true,
	"target":        true,
	"dist":          true,
	"build":         true,
	"out":           true,
	".next":         true,
	".nuxt":         true,
	".turbo":        true,
	"__pycache__":   true,
	".pytest_cache": true,
	"obj":           true,
	".gradle":       true,
	"coverage":      true,
}

var tempExtensions = map[string]bool{
	".tmp":        true,
	".temp":       true,
	".swp":        true,
	".swo":        true,
	".bak":        true,
	".old":        true,
	".dmp":        true,
	".chk":        true,
	".part":       true,
	".partial":    true,
	".crdownload": true,
}

// categoryProfile returns the scan parameters for a category. The switch is
// exhaustive over the closed set; duplicates has no walk profile because it
// runs as its own pass. Trash and downloads are pinned to their own
// directories via env.
func categoryProfile(c Category, th thresholds, env categoryEnv) (profile, bool) {
	switch c {
	case CategoryCache:
		return profile{
			maxDepth:   12,
			dirNames:   cacheDirNames,
			extraRoots: env.packageCacheDirs,
			minAge:     th.minAge,
		}, true
	case CategoryTemp:
		return profile{
			maxDepth:   10,
			extensions: tempExtensions,
			suffixes:   []string{"~"},
			minAge:     th.minAge,
		}, true
	case CategoryTrash:
		return profile{
			maxDepth:   6,
			fixedRoots: env.trashDirs,
			minAge:     th.minAge,
		}, true
	case CategoryBuild:
		return profile{
			maxDepth: 8,
			dirNames: buildDirNames,
		}, true
	case CategoryDownloads:
		return profile{
			maxDepth:   4,
			fixedRoots: env.downloadDirs,
			minAge:     th.minAge,
		}, true
	case CategoryLarge:
		return profile{
			maxDepth: 16,
			minSize:  th.minSize,
		}, true
	case CategoryOld:
		return profile{
			maxDepth: 16,
			minAge:   th.oldAge,
		}, true
	case CategoryEmpty:
		return profile{
			maxDepth:   16,
			matchEmpty: true,
		}, true
	case CategoryDuplicates:
		return profile{}, false
	}
	return profile{}, false
}

// categoryEnv carries the per-user directories that location-bound
// categories scan instead of the caller's roots.
type categoryEnv struct {
	trashDirs        []string
	downloadDirs     []string
	packageCacheDirs []string
}

// thresholds is the per-scan numeric configuration in resolved units.
type thresholds struct {
	minAge     time.Duration // default deletion age gate
	oldAge     time.Duration // stricter gate for the "old" category
	minSize    int64         // bytes, "large" gate
	projectAge time.Duration // inactivity gate for build artifacts
}

func (sp profile) matchesDir(name string) bool {
	if sp.dirNames == nil {
		return false
	}
	return sp.dirNames[strings.ToLower(name)]
}

func (sp profile) matchesFile(name string, size int64, modTime, now time.Time) bool {
	if sp.matchEmpty {
		return size == 0
	}
	if sp.minSize > 0 && size < sp.minSize {
		return false
	}
	if sp.minAge > 0 && now.Sub(modTime) < sp.minAge {
		return false
	}
	if sp.extensions == nil && len(sp.suffixes) == 0 {
		// Age or size alone decides for threshold-only categories.
		return sp.minSize > 0 || sp.minAge > 0
	}

	lower := strings.ToLower(name)
	if sp.extensions[filepath.Ext(lower)] {
		return true
	}
	for _, suffix := range sp.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
