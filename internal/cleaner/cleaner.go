// Package cleaner deletes scan results safely: every path is re-verified
// at deletion time, system paths and symlinks are refused outright, and
// removals default to the trash so they stay reversible.
package cleaner

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/history"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/security"
	"github.com/fenilsonani/reclaim/internal/signature"
	"github.com/fenilsonani/reclaim/internal/trash"
)

// Outcome is the result of one deletion attempt.
type Outcome int

const (
	// OutcomePending is the zero value: the item was never handed to a
	// worker, which happens when the run is cancelled mid-batch.
	OutcomePending Outcome = iota
	OutcomeDeleted
	OutcomeSkippedMissing
	OutcomeSkippedLocked
	OutcomeSkippedPermission
	OutcomeSkippedSystem
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeSkippedMissing:
		return "skipped (missing)"
	case OutcomeSkippedLocked:
		return "skipped (locked)"
	case OutcomeSkippedPermission:
		return "skipped (permission)"
	case OutcomeSkippedSystem:
		return "skipped (protected)"
	default:
		return "failed"
	}
}

// Options controls one clean run.
type Options struct {
	Permanent  bool // bypass the trash and remove outright
	DryRun     bool // report what would happen, touch nothing
	SkipLocked bool // skip locked files instead of failing on them
	MaxRetries int  // extra attempts for locked files; 0 means none
}

// ItemResult is the per-item outcome.
type ItemResult struct {
	Item      scanner.Item
	Outcome   Outcome
	TrashName string // name under the trash's files/, empty for permanent
	Err       error
}

// Result summarizes a clean run.
type Result struct {
	Items      []ItemResult
	FreedBytes int64
	Deleted    int
	Skipped    int
	Failed     int
	DryRun     bool
}

const cleanWorkers = 4

var retryBackoff = 150 * time.Millisecond

// Cleaner deletes items produced by the scanner.
type Cleaner struct {
	trash  *trash.Trash
	logger *zap.Logger
}

// New creates a Cleaner. The trash handle may be nil only when every run
// uses Options.Permanent.
func New(tr *trash.Trash, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{trash: tr, logger: logger}
}

// Clean processes every item and never aborts the batch: one failure is
// one failed record. The same path listed twice is attempted once.
// Records are appended to session in item order when a session is given.
func (c *Cleaner) Clean(ctx context.Context, items []scanner.Item, opts Options, session *history.Session) (*Result, error) {
	unique := dedupe(items)
	results := make([]ItemResult, len(unique))

	var wg sync.WaitGroup
	idxCh := make(chan int)

	workers := min(cleanWorkers, max(1, len(unique)))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxCh {
				results[idx] = c.cleanOne(unique[idx], opts)
			}
		}()
	}

	for i := range unique {
		if ctx.Err() != nil {
			break
		}
		select {
		case idxCh <- i:
		case <-ctx.Done():
		}
	}
	close(idxCh)
	wg.Wait()

	// Slots never fed to a worker stay pending. They were not touched, so
	// they carry no result and produce no history record.
	result := &Result{Items: make([]ItemResult, 0, len(results)), DryRun: opts.DryRun}
	for _, r := range results {
		if r.Outcome == OutcomePending {
			continue
		}
		result.Items = append(result.Items, r)
		switch r.Outcome {
		case OutcomeDeleted:
			result.Deleted++
			result.FreedBytes += r.Item.Size
		case OutcomeFailed:
			result.Failed++
		default:
			result.Skipped++
		}
		if session != nil {
			session.Add(recordFor(r, opts))
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func dedupe(items []scanner.Item) []scanner.Item {
	seen := make(map[string]bool, len(items))
	unique := make([]scanner.Item, 0, len(items))
	for _, item := range items {
		key := signature.NormalizePath(item.Path)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, item)
	}
	return unique
}

// cleanOne runs the deletion gates for a single item. The scan result may
// be stale, so everything the scanner checked is checked again here.
func (c *Cleaner) cleanOne(item scanner.Item, opts Options) ItemResult {
	res := ItemResult{Item: item}

	if security.IsSystemPath(item.Path) {
		res.Outcome = OutcomeSkippedSystem
		return res
	}

	info, err := os.Lstat(item.Path)
	if err != nil {
		if os.IsNotExist(err) {
			res.Outcome = OutcomeSkippedMissing
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = classify(item.Path, err)
		return res
	}
	if info.Mode()&os.ModeSymlink != 0 {
		res.Outcome = OutcomeSkippedSystem
		return res
	}

	if opts.DryRun {
		res.Outcome = OutcomeDeleted
		return res
	}

	if !info.IsDir() && opts.SkipLocked {
		if locked, derr := c.probe(item.Path); locked {
			res.Outcome = OutcomeSkippedLocked
			res.Err = derr
			return res
		}
	}

	trashName, derr := c.removeWithRetry(item, opts)
	if derr == nil {
		res.Outcome = OutcomeDeleted
		res.TrashName = trashName
		return res
	}

	switch derr.Kind {
	case ErrNotFound:
		res.Outcome = OutcomeSkippedMissing
	case ErrLocked:
		res.Outcome = OutcomeSkippedLocked
		res.Err = derr
	case ErrPermissionDenied:
		res.Outcome = OutcomeSkippedPermission
		res.Err = derr
	default:
		res.Outcome = OutcomeFailed
		res.Err = derr
	}
	return res
}

func (c *Cleaner) removeWithRetry(item scanner.Item, opts Options) (string, *DeletionError) {
	attempts := 1 + max(0, opts.MaxRetries)
	var (
		name string
		derr *DeletionError
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryBackoff)
			c.logger.Debug("retrying locked file",
				zap.String("path", item.Path), zap.Int("attempt", attempt+1))
		}
		name, derr = c.remove(item, opts)
		if derr == nil || !derr.Retryable() {
			return name, derr
		}
	}
	return name, derr
}

func (c *Cleaner) remove(item scanner.Item, opts Options) (string, *DeletionError) {
	var (
		name string
		err  error
	)
	if opts.Permanent {
		err = os.RemoveAll(item.Path)
	} else {
		if c.trash == nil {
			return "", &DeletionError{Path: item.Path, Kind: ErrOther,
				Err: os.ErrInvalid}
		}
		var trashed *trash.Item
		trashed, err = c.trash.Put(item.Path)
		if err == nil {
			name = trashed.Name
			c.logger.Debug("moved to trash",
				zap.String("path", item.Path), zap.String("trash_name", name))
		}
	}
	if err == nil {
		return name, nil
	}

	derr := classify(item.Path, err)
	if derr.Kind == ErrPermissionDenied {
		// Some platforms report sharing violations as access-denied, so a
		// permission verdict is only trusted after a second lock probe.
		if locked, _ := c.probe(item.Path); locked {
			derr.Kind = ErrLocked
		}
	}
	return "", derr
}

// probe attempts a write-open and classifies the failure.
func (c *Cleaner) probe(path string) (bool, *DeletionError) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err == nil {
		f.Close()
		return false, nil
	}
	derr := classify(path, err)
	return derr.Kind == ErrLocked, derr
}

func recordFor(r ItemResult, opts Options) history.Record {
	rec := history.Record{
		Path:      r.Item.Path,
		SizeBytes: r.Item.Size,
		Category:  string(r.Item.Category),
		Permanent: opts.Permanent,
		Success:   r.Outcome == OutcomeDeleted,
		TrashName: r.TrashName,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}
