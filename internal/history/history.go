// Package history persists what each cleanup session did, one JSON artifact
// per session, and drives restoration of trashed files from those records.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/trash"
)

// ErrNoSessions is returned when a restore selector finds nothing to act on.
var ErrNoSessions = errors.New("no cleanup sessions recorded")

// Record is the outcome of one deletion attempt.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Category  string    `json:"category"`
	Permanent bool      `json:"permanent"`
	Success   bool      `json:"success"`
	TrashName string    `json:"trash_name,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Session accumulates records for one cleanup run. Records keep the order
// in which deletions were attempted.
type Session struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	TotalItems int       `json:"total_items"`
	BytesFreed int64     `json:"total_bytes_cleaned"`
	ErrorCount int       `json:"error_count"`
	Records    []Record  `json:"records"`

	store *Store
}

// Add appends one deletion outcome.
func (s *Session) Add(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	s.Records = append(s.Records, r)
}

// TotalFreed sums the sizes of successful deletions.
func (s *Session) TotalFreed() int64 {
	var total int64
	for _, r := range s.Records {
		if r.Success {
			total += r.SizeBytes
		}
	}
	return total
}

// Finish stamps the end time, fills the session totals, and writes the
// session artifact. Dry runs are never persisted.
func (s *Session) Finish() error {
	s.FinishedAt = time.Now()
	s.TotalItems = len(s.Records)
	s.BytesFreed = s.TotalFreed()
	s.ErrorCount = 0
	for _, r := range s.Records {
		if r.Error != "" {
			s.ErrorCount++
		}
	}
	if s.DryRun || s.store == nil {
		return nil
	}
	return s.store.save(s)
}

// Store reads and writes session artifacts under a history directory.
type Store struct {
	dir    string
	trash  *trash.Trash
	logger *zap.Logger
}

// NewStore returns a history store rooted at dir. The trash handle is used
// by Restore; pass nil for read-only use.
func NewStore(dir string, tr *trash.Trash, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &Store{dir: dir, trash: tr, logger: logger}, nil
}

// Begin starts a new session bound to this store.
func (s *Store) Begin(dryRun bool) *Session {
	return &Session{StartedAt: time.Now(), DryRun: dryRun, store: s}
}

func artifactName(start time.Time) string {
	return fmt.Sprintf("clean-%d.json", start.Unix())
}

func (s *Store) save(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	path := filepath.Join(s.dir, artifactName(session.StartedAt))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize session artifact: %w", err)
	}
	s.logger.Debug("session recorded", zap.String("artifact", path))
	return nil
}

// List returns artifact filenames, newest session first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "clean-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	// Artifact names embed the start time, so a reverse lexicographic sort
	// of equal-width timestamps puts newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Load reads one session artifact by filename.
func (s *Store) Load(name string) (*Session, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid artifact name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", name, err)
	}
	session.store = s
	return &session, nil
}

// Selector picks which session and records a restore should cover.
type Selector struct {
	Artifact string // explicit artifact name; empty means the most recent
	Path     string // restore only this original path; empty means all
}

// RestoreResult mirrors a record with its restore outcome.
type RestoreResult struct {
	Record   Record
	Restored bool
	Err      error
}

// Restore brings back files deleted by a recorded session. Only records
// that were successful and not permanent are candidates; a record whose
// file is already back (or was never trashed) is a successful no-op, so
// running the same restore twice changes nothing.
func (s *Store) Restore(sel Selector) ([]RestoreResult, error) {
	if s.trash == nil {
		return nil, errors.New("history store opened without trash access")
	}

	name := sel.Artifact
	if name == "" {
		names, err := s.List()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, ErrNoSessions
		}
		name = names[0]
	}

	session, err := s.Load(name)
	if err != nil {
		return nil, err
	}

	var results []RestoreResult
	for _, rec := range session.Records {
		if !rec.Success || rec.Permanent {
			continue
		}
		if sel.Path != "" && rec.Path != sel.Path {
			continue
		}
		results = append(results, s.restoreRecord(rec))
	}
	if sel.Path != "" && len(results) == 0 {
		return nil, fmt.Errorf("no restorable record for %s in %s", sel.Path, name)
	}
	return results, nil
}

func (s *Store) restoreRecord(rec Record) RestoreResult {
	res := RestoreResult{Record: rec}

	item, err := s.itemFor(rec)
	if err != nil {
		if errors.Is(err, trash.ErrNotInTrash) {
			// Already restored or erased outside our control.
			res.Restored = false
			return res
		}
		res.Err = err
		return res
	}

	switch err := s.trash.Restore(item); {
	case err == nil:
		res.Restored = true
	case errors.Is(err, trash.ErrDestinationExists):
		// The path is occupied, most likely by an earlier restore.
		res.Restored = false
	default:
		res.Err = err
	}
	return res
}

func (s *Store) itemFor(rec Record) (*trash.Item, error) {
	if rec.TrashName != "" {
		return s.trash.Find(rec.TrashName)
	}
	// Older records carry no trash name; match by original path.
	items, err := s.trash.List()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.OriginalPath == rec.Path {
			return item, nil
		}
	}
	return nil, trash.ErrNotInTrash
}
