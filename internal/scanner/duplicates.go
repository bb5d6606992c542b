package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/cache"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/signature"
)

// Files below this size are not worth deduplicating.
const minDuplicateSize = 1024

// scanDuplicates is the explicit duplicate pass: group candidate files by
// size, hash only the groups with more than one member, and report every
// copy except the newest. Cached hashes are reused for files whose size
// and mtime have not changed.
func (s *Scanner) scanDuplicates(ctx context.Context, roots []string, th thresholds) ([]Item, error) {
	candidates, err := s.collectDuplicateCandidates(ctx, roots)
	if err != nil {
		return nil, err
	}

	bySize := make(map[int64][]Item)
	for _, c := range candidates {
		bySize[c.Size] = append(bySize[c.Size], c)
	}

	var items []Item
	for _, group := range bySize {
		if len(group) < 2 {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		byHash := make(map[string][]Item)
		for _, item := range group {
			hash, err := s.hashFor(item)
			if err != nil {
				s.logger.Warn("hash failed, file excluded from duplicate pass",
					zap.String("path", item.Path), zap.Error(err))
				continue
			}
			byHash[hash] = append(byHash[hash], item)
		}

		for _, same := range byHash {
			if len(same) < 2 {
				continue
			}
			// Keep the newest copy; everything older is a candidate.
			sort.Slice(same, func(i, j int) bool {
				return same[i].ModTime.After(same[j].ModTime)
			})
			items = append(items, same[1:]...)
		}
	}
	return items, nil
}

func (s *Scanner) collectDuplicateCandidates(ctx context.Context, roots []string) ([]Item, error) {
	var candidates []Item
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				s.logger.Warn("walk error", zap.String("path", path), zap.Error(err))
				return nil
			}
			if security.IsSystemPath(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if security.ShouldSkipWalk(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if security.MatchesAny(s.cfg.ExcludePatterns, path) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0 {
				return nil
			}
			if info.Size() < minDuplicateSize {
				return nil
			}
			candidates = append(candidates, Item{
				Path:     path,
				Size:     info.Size(),
				Category: CategoryDuplicates,
				ModTime:  info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

// hashFor returns the content hash for an item, reusing the cached hash
// when the file's signature still matches.
func (s *Scanner) hashFor(item Item) (string, error) {
	if s.store != nil {
		norm := signature.NormalizePath(item.Path)
		if entry, found, err := s.store.Lookup(norm); err == nil && found &&
			entry.Signature.ContentHash != "" &&
			entry.Signature.Size == item.Size &&
			entry.Signature.ModTime.Equal(item.ModTime) {
			return entry.Signature.ContentHash, nil
		}
	}

	hash, err := signature.HashFile(item.Path)
	if err != nil {
		return "", err
	}

	if s.store != nil {
		sig := signature.Signature{
			Path:        signature.NormalizePath(item.Path),
			Size:        item.Size,
			ModTime:     item.ModTime,
			ContentHash: hash,
		}
		entry := cache.Entry{Signature: sig, Category: string(CategoryDuplicates), LastVerified: time.Now()}
		if err := s.store.UpsertBatch([]cache.Entry{entry}); err != nil {
			s.logger.Warn("cache write failed for hash", zap.String("path", item.Path), zap.Error(err))
		}
	}
	return hash, nil
}
