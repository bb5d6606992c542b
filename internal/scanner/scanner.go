// Package scanner finds cleanup candidates under a set of roots, one
// category at a time, and feeds the scan cache so repeat scans stay cheap.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/cache"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/platform"
	"github.com/fenilsonani/reclaim/internal/project"
	"github.com/fenilsonani/reclaim/internal/signature"
)

const maxWorkers = 8

// Item is one cleanup candidate. Matching an item never deletes anything;
// the cleaner applies its own gates before touching the path.
type Item struct {
	Path     string
	Size     int64
	Category Category
	ModTime  time.Time
	IsDir    bool
	Locked   bool
}

// CategoryTotal aggregates one category's findings.
type CategoryTotal struct {
	Count int
	Size  int64
}

// Result is a finished scan. Items are sorted by path, so two scans over
// unchanged directories produce identical results.
type Result struct {
	Items      []Item
	TotalSize  int64
	ByCategory map[Category]CategoryTotal
	Duration   time.Duration
	CacheHits  int
}

// CacheStore is the slice of the scan cache the scanner needs. A nil store
// means every scan is a cold scan.
type CacheStore interface {
	CheckBatch(paths []string) (map[string]cache.Status, error)
	Lookup(normPath string) (cache.Entry, bool, error)
	EntriesByCategory(categories []string) (map[string]cache.Entry, error)
	UpsertBatch(entries []cache.Entry) error
	StartSession(categories []string) (int64, error)
	FinishSession(id int64, total, newFiles, changed, removed int) error
}

// Scanner walks roots for cleanup candidates.
type Scanner struct {
	cfg      *config.Config
	store    CacheStore
	detector *project.Detector
	env      categoryEnv
	logger   *zap.Logger
}

// New creates a scanner. store may be nil; logger may be nil.
func New(cfg *config.Config, store CacheStore, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.GetDefault()
	}
	return &Scanner{
		cfg:      cfg,
		store:    store,
		detector: project.NewDetector(logger),
		env:      defaultCategoryEnv(),
		logger:   logger,
	}
}

func defaultCategoryEnv() categoryEnv {
	info, err := platform.GetInfo()
	if err != nil {
		return categoryEnv{}
	}
	env := categoryEnv{
		trashDirs: []string{
			filepath.Join(info.HomeDir, ".local", "share", "Trash", "files"),
			filepath.Join(info.HomeDir, ".Trash"),
		},
		packageCacheDirs: packageCacheDirs(info.HomeDir),
	}
	for _, dir := range info.UserDirs {
		if filepath.Base(dir) == "Downloads" {
			env.downloadDirs = append(env.downloadDirs, dir)
		}
	}
	return env
}

// Scan walks every root for every requested category. Worker goroutines
// take one (root, category) job each; cancellation is honored between
// directory entries.
func (s *Scanner) Scan(ctx context.Context, roots []string, categories []Category) (*Result, error) {
	start := time.Now()
	th := s.thresholds()
	cached := s.preloadCache(categories)

	type job struct {
		root     string
		category Category
		profile  profile
	}
	var jobs []job
	runDuplicates := false
	for _, c := range categories {
		if c == CategoryDuplicates {
			runDuplicates = true
			continue
		}
		sp, ok := categoryProfile(c, th, s.env)
		if !ok {
			continue
		}
		categoryRoots := roots
		if len(sp.fixedRoots) > 0 {
			categoryRoots = sp.fixedRoots
		}
		for _, root := range categoryRoots {
			if _, err := os.Stat(root); err != nil {
				continue
			}
			jobs = append(jobs, job{root: root, category: c, profile: sp})
		}
		// Extra roots are themselves the cleanup target, so the walk
		// reports each one as a single whole-directory item.
		for _, root := range sp.extraRoots {
			if _, err := os.Stat(root); err != nil {
				continue
			}
			rooted := sp
			rooted.rootIsItem = true
			jobs = append(jobs, job{root: root, category: c, profile: rooted})
		}
	}

	var (
		mu         sync.Mutex
		items      []Item
		hits       int
		dirEntries []cache.Entry
		firstErr   error
	)
	jobCh := make(chan job)
	var wg sync.WaitGroup

	workers := min(maxWorkers, max(1, len(jobs)))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				w := &walker{
					category: j.category,
					profile:  j.profile,
					exclude:  s.cfg.ExcludePatterns,
					detector: s.detector,
					cached:   cached,
					th:       th,
					logger:   s.logger,
					now:      start,
				}
				found, err := w.walk(ctx, j.root)
				mu.Lock()
				items = append(items, found...)
				hits += w.hits
				dirEntries = append(dirEntries, w.dirEntries...)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobCh)
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if runDuplicates {
		dupes, err := s.scanDuplicates(ctx, roots, th)
		if err != nil {
			return nil, err
		}
		items = append(items, dupes...)
	}

	result := buildResult(items)
	result.Duration = time.Since(start)
	result.CacheHits = hits
	s.syncCache(categories, result, dirEntries)
	return result, nil
}

// preloadCache pulls the cached records for the requested categories into
// memory so the walk can reuse matching entries without touching the
// database per entry. A failed preload means a cold scan.
func (s *Scanner) preloadCache(categories []Category) map[string]cache.Entry {
	if s.store == nil {
		return nil
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	entries, err := s.store.EntriesByCategory(names)
	if err != nil {
		s.logger.Warn("cache preload failed, scanning cold", zap.Error(err))
		return nil
	}
	return entries
}

func (s *Scanner) thresholds() thresholds {
	return thresholds{
		minAge:     time.Duration(s.cfg.Thresholds.MinAgeDays) * 24 * time.Hour,
		oldAge:     time.Duration(s.cfg.Thresholds.MinAgeDays) * 6 * 24 * time.Hour,
		minSize:    s.cfg.MinSizeBytes(),
		projectAge: time.Duration(s.cfg.Thresholds.ProjectAgeDays) * 24 * time.Hour,
	}
}

func buildResult(items []Item) *Result {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Path != items[j].Path {
			return items[i].Path < items[j].Path
		}
		return items[i].Category < items[j].Category
	})

	result := &Result{
		Items:      items,
		ByCategory: make(map[Category]CategoryTotal),
	}
	for _, item := range items {
		result.TotalSize += item.Size
		total := result.ByCategory[item.Category]
		total.Count++
		total.Size += item.Size
		result.ByCategory[item.Category] = total
	}
	return result
}

// syncCache records the scan in the store. Every failure here is advisory:
// it is logged and the scan result stands on its own.
func (s *Scanner) syncCache(categories []Category, result *Result, dirEntries []cache.Entry) {
	if s.store == nil {
		return
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	sessionID, err := s.store.StartSession(names)
	if err != nil {
		s.logger.Warn("cache session start failed, continuing uncached", zap.Error(err))
		sessionID = 0
	}

	paths := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		if !item.IsDir {
			paths = append(paths, item.Path)
		}
	}

	statuses, err := s.store.CheckBatch(paths)
	if err != nil {
		s.logger.Warn("cache check failed, continuing uncached", zap.Error(err))
		statuses = nil
	}

	var fresh, changed int
	entries := make([]cache.Entry, 0, len(result.Items)+len(dirEntries))
	for _, item := range result.Items {
		if item.IsDir {
			// Directory aggregates are recorded by the walk itself, keyed
			// by the directory's own signature.
			continue
		}
		norm := signature.NormalizePath(item.Path)
		switch statuses[norm] {
		case cache.StatusNew:
			fresh++
		case cache.StatusModified:
			changed++
		}
		entries = append(entries, cache.Entry{
			Signature: signature.Signature{
				Path:    norm,
				Size:    item.Size,
				ModTime: item.ModTime,
			},
			Category:     string(item.Category),
			LastVerified: time.Now(),
		})
	}
	entries = append(entries, dirEntries...)

	if err := s.store.UpsertBatch(entries); err != nil {
		s.logger.Warn("cache write failed, scan result unaffected", zap.Error(err))
	}
	if sessionID != 0 {
		if err := s.store.FinishSession(sessionID, len(entries), fresh, changed, 0); err != nil {
			s.logger.Warn("cache session finish failed", zap.Error(err))
		}
	}
}
