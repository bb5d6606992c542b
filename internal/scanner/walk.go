package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/cache"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/signature"
)

// walker runs one category over one root. Per-entry failures are logged
// and skipped so a single unreadable directory never sinks the scan.
type walker struct {
	category Category
	profile  profile
	exclude  []string
	detector projectDetector
	cached   map[string]cache.Entry
	th       thresholds
	logger   *zap.Logger
	now      time.Time

	// hits counts entries reused from the cache; dirEntries collects fresh
	// directory aggregates for the store to persist after the scan.
	hits       int
	dirEntries []cache.Entry
}

type projectDetector interface {
	IsInactive(root string, thresholdDays int) bool
}

func (w *walker) walk(ctx context.Context, root string) ([]Item, error) {
	var items []Item

	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Warn("walk error", zap.String("path", path), zap.Error(err))
			return nil
		}

		// System paths are never entered, whatever the category asks for.
		if security.IsSystemPath(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.logger.Warn("stat failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		// Links are reported by Lstat semantics and never followed.
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if d.IsDir() && depth > w.profile.maxDepth {
			return filepath.SkipDir
		}

		if security.MatchesAny(w.exclude, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return w.visitDir(path, info, root, &items)
		}
		w.visitFile(path, info, &items)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return items, err
	}
	return items, ctx.Err()
}

func (w *walker) visitDir(path string, info os.FileInfo, root string, items *[]Item) error {
	name := filepath.Base(path)

	atRoot := path == filepath.Clean(root)
	if (w.profile.matchesDir(name) && !atRoot) || (w.profile.rootIsItem && atRoot) {
		if w.category == CategoryBuild && !w.buildArtifactRemovable(path) {
			return filepath.SkipDir
		}
		size, newest := w.dirAggregate(path, info)
		// A recently touched cache directory is in use; leave the whole
		// subtree alone.
		if w.profile.minAge > 0 && w.now.Sub(newest) < w.profile.minAge {
			return filepath.SkipDir
		}
		*items = append(*items, Item{
			Path:     path,
			Size:     size,
			Category: w.category,
			ModTime:  newest,
			IsDir:    true,
		})
		// The whole directory is one item; nothing inside is listed twice.
		return filepath.SkipDir
	}

	if security.ShouldSkipWalk(name) {
		return filepath.SkipDir
	}

	if w.profile.matchEmpty && isEmptyDir(path) {
		*items = append(*items, Item{
			Path:     path,
			Category: w.category,
			ModTime:  info.ModTime(),
			IsDir:    true,
		})
		return filepath.SkipDir
	}
	return nil
}

func (w *walker) visitFile(path string, info os.FileInfo, items *[]Item) {
	if w.profile.dirNames != nil {
		// Directory-shaped categories only report directories.
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	// A signature match against a record of this category keeps the cached
	// classification; the match predicates only run for new or changed files.
	if e, ok := w.cached[signature.NormalizePath(path)]; ok && !e.IsDir &&
		e.Category == string(w.category) &&
		e.Signature.Size == info.Size() && e.Signature.ModTime.Equal(info.ModTime()) {
		w.hits++
	} else if !w.profile.matchesFile(filepath.Base(path), info.Size(), info.ModTime(), w.now) {
		return
	}
	*items = append(*items, Item{
		Path:     path,
		Size:     info.Size(),
		Category: w.category,
		ModTime:  info.ModTime(),
		Locked:   probeLocked(path),
	})
}

// buildArtifactRemovable reports whether a build artifact directory belongs
// to a project that has gone quiet. The owning project is the artifact's
// parent; an active project keeps its artifacts.
func (w *walker) buildArtifactRemovable(artifactDir string) bool {
	if w.detector == nil {
		return false
	}
	projectRoot := filepath.Dir(artifactDir)
	days := int(w.th.projectAge.Hours() / 24)
	return w.detector.IsInactive(projectRoot, days)
}

// dirAggregate returns the recursive byte total and newest mtime of a
// matched directory, reusing the cached aggregate when the directory's own
// mtime is unchanged. Fresh aggregates are queued for the store.
func (w *walker) dirAggregate(path string, info os.FileInfo) (int64, time.Time) {
	norm := signature.NormalizePath(path)
	if e, ok := w.cached[norm]; ok && e.IsDir && e.Signature.ModTime.Equal(info.ModTime()) {
		w.hits++
		return e.DirTotalSize, e.DirNewest
	}

	size, newest := dirStats(path)
	w.dirEntries = append(w.dirEntries, cache.Entry{
		Signature: signature.Signature{
			Path:    norm,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		},
		Category:     string(w.category),
		IsDir:        true,
		DirTotalSize: size,
		DirNewest:    newest,
		LastVerified: time.Now(),
	})
	return size, newest
}

// dirStats computes the recursive byte total and newest mtime of a tree.
// Unreadable children count as zero.
func dirStats(dir string) (int64, time.Time) {
	var (
		total  int64
		newest time.Time
	)
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	return total, newest
}

func isEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}

// probeLocked makes an advisory write-open probe. A failure to open for
// writing flags the item so the cleaner can skip or retry it; the probe is
// a hint only and is re-run at deletion time.
func probeLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return !os.IsNotExist(err)
	}
	f.Close()
	return false
}
