// Package cache is the persistent scan cache: an embedded SQLite store that
// remembers file signatures and category tags across scans. It is strictly
// advisory: every method is written so a caller can treat any error as
// "cache empty" and carry on with a full scan.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fenilsonani/reclaim/internal/signature"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	schemaVersion  = 3
	busyTimeout    = 30 * time.Second
	dbFileName     = "scan_cache.db"
	maxBatchParams = 900 // stays under SQLite's bind-variable limit
)

// ErrRecoveryFailed is returned when a corrupted store could not be replaced
// with a fresh one. This is the only fatal cache error.
var ErrRecoveryFailed = errors.New("cache recovery failed")

// Status classifies a path relative to its cached signature.
type Status int

const (
	StatusNew       Status = iota // not in cache
	StatusUnchanged               // cached signature matches on-disk metadata
	StatusModified                // cached but size/mtime differ
	StatusMissing                 // cached but no longer on disk
)

// Entry is one cached file record.
type Entry struct {
	Signature    signature.Signature
	Category     string
	IsDir        bool
	DirTotalSize int64     // recursive byte total, directories only
	DirNewest    time.Time // newest mtime in the tree, directories only
	LastVerified time.Time
}

// Store is the scan cache database. Open once per process; safe for
// concurrent readers during a writer's transaction thanks to WAL mode.
type Store struct {
	db     *sql.DB
	path   string
	state  State
	logger *zap.Logger
}

// Open opens or creates the scan cache under dir. A malformed existing
// database is renamed to a ".backup" suffix and recreated; the caller always
// receives a healthy (possibly empty) cache unless even recreation fails.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dir, dbFileName),
		state:  StateClosed,
		logger: logger,
	}
	s.state, _ = transition(s.state, eventOpen)

	db, err := openConnection(s.path)
	if err == nil {
		err = initSchema(db)
	}
	if err == nil {
		s.db = db
		s.state, _ = transition(s.state, eventInitOK)
		return s, nil
	}

	// Schema init or open failed: treat the store as corrupted and rebuild.
	s.state, _ = transition(s.state, eventInitFailed)
	s.logger.Warn("scan cache unavailable, attempting recovery", zap.Error(err))
	if db != nil {
		db.Close()
	}

	s.state, _ = transition(s.state, eventRecoverStart)
	if err := s.recover(); err != nil {
		s.state, _ = transition(s.state, eventRecoverFailed)
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	s.state, _ = transition(s.state, eventRecoverOK)
	return s, nil
}

// State returns the store's lifecycle state.
func (s *Store) State() State {
	return s.state
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.state, _ = transition(s.state, eventClose)
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openConnection(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?%s", filepath.ToSlash(path), strings.Join([]string{
		"_pragma=journal_mode(WAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout.Milliseconds()),
		"_pragma=synchronous(NORMAL)",
		"_pragma=temp_store(MEMORY)",
	}, "&"))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; WAL still lets readers run alongside it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) recover() error {
	if _, err := os.Stat(s.path); err == nil {
		backup := s.path + ".backup"
		if err := os.Rename(s.path, backup); err != nil {
			s.logger.Warn("failed to move corrupted cache aside", zap.Error(err))
			if err := os.Remove(s.path); err != nil {
				return fmt.Errorf("remove corrupted cache: %w", err)
			}
		}
		// WAL sidecar files belong to the corrupted store.
		os.Remove(s.path + "-wal")
		os.Remove(s.path + "-shm")
	}

	db, err := openConnection(s.path)
	if err != nil {
		return fmt.Errorf("recreate database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("initialize schema after recovery: %w", err)
	}
	s.db = db
	return nil
}

func initSchema(db *sql.DB) error {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		// Either a fresh database or a malformed one. Creating the version
		// table fails on the latter, which is what routes us to recovery.
		if _, err := db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
			return fmt.Errorf("create schema_version: %w", err)
		}
		if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("read schema version: %w", err)
			}
			if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (0)"); err != nil {
				return fmt.Errorf("seed schema version: %w", err)
			}
			version = 0
		}
	}

	if version > schemaVersion {
		return fmt.Errorf("cache schema version %d is newer than supported %d", version, schemaVersion)
	}
	if version < schemaVersion {
		return migrateSchema(db, version)
	}
	return nil
}

// migrateSchema applies all pending migrations inside one transaction; a
// failure rolls the whole migration back and the caller falls through to
// the corruption-recovery path.
func migrateSchema(db *sql.DB, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if from < 1 {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS file_records (
				path TEXT PRIMARY KEY,
				size INTEGER NOT NULL,
				mtime_unix_ns INTEGER NOT NULL,
				content_hash TEXT,
				category TEXT NOT NULL,
				last_verified INTEGER NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS scan_sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				started_at INTEGER NOT NULL,
				finished_at INTEGER,
				categories TEXT NOT NULL,
				total_files INTEGER,
				new_files INTEGER,
				changed_files INTEGER,
				removed_files INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_records_category ON file_records(category)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply schema v1: %w", err)
			}
		}
	}

	if from < 2 {
		if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_file_records_size ON file_records(size)`); err != nil {
			return fmt.Errorf("apply schema v2: %w", err)
		}
	}

	if from < 3 {
		stmts := []string{
			`ALTER TABLE file_records ADD COLUMN is_dir INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE file_records ADD COLUMN dir_total_size INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE file_records ADD COLUMN dir_newest_ns INTEGER NOT NULL DEFAULT 0`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply schema v3: %w", err)
			}
		}
	}

	if _, err := tx.Exec("UPDATE schema_version SET version = ?", schemaVersion); err != nil {
		return fmt.Errorf("bump schema version: %w", err)
	}
	return tx.Commit()
}

// Lookup returns the cached entry for a normalized path.
func (s *Store) Lookup(normPath string) (Entry, bool, error) {
	row := s.db.QueryRow(
		`SELECT path, size, mtime_unix_ns, content_hash, category, is_dir, dir_total_size, dir_newest_ns, last_verified
		 FROM file_records WHERE path = ?`, normPath,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e        Entry
		mtimeNS  int64
		vrfy     int64
		hash     sql.NullString
		isDir    int
		newestNS int64
	)
	err := row.Scan(&e.Signature.Path, &e.Signature.Size, &mtimeNS, &hash,
		&e.Category, &isDir, &e.DirTotalSize, &newestNS, &vrfy)
	if err != nil {
		return Entry{}, err
	}
	e.Signature.ModTime = time.Unix(0, mtimeNS)
	e.Signature.ContentHash = hash.String
	e.IsDir = isDir != 0
	if newestNS != 0 {
		e.DirNewest = time.Unix(0, newestNS)
	}
	e.LastVerified = time.Unix(vrfy, 0)
	return e, nil
}

// EntriesByCategory loads every cached record for the given categories,
// keyed by normalized path. The scanner preloads these before a walk so
// per-entry lookups during the walk stay in memory.
func (s *Store) EntriesByCategory(categories []string) (map[string]Entry, error) {
	result := make(map[string]Entry)
	if len(categories) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(categories)), ",")
	args := make([]any, len(categories))
	for i, c := range categories {
		args[i] = c
	}
	rows, err := s.db.Query(
		`SELECT path, size, mtime_unix_ns, content_hash, category, is_dir, dir_total_size, dir_newest_ns, last_verified
		 FROM file_records WHERE category IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result[e.Signature.Path] = e
	}
	return result, rows.Err()
}

// CheckBatch classifies each path against its cached signature by comparing
// the cached record with fresh on-disk metadata. Paths are keyed by their
// normalized form in the result.
func (s *Store) CheckBatch(paths []string) (map[string]Status, error) {
	result := make(map[string]Status, len(paths))
	if len(paths) == 0 {
		return result, nil
	}

	cached := make(map[string]Entry, len(paths))
	for start := 0; start < len(paths); start += maxBatchParams {
		end := min(start+maxBatchParams, len(paths))
		chunk := paths[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = signature.NormalizePath(p)
		}

		rows, err := s.db.Query(
			`SELECT path, size, mtime_unix_ns FROM file_records WHERE path IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var (
				e       Entry
				mtimeNS int64
			)
			if err := rows.Scan(&e.Signature.Path, &e.Signature.Size, &mtimeNS); err != nil {
				rows.Close()
				return nil, err
			}
			e.Signature.ModTime = time.Unix(0, mtimeNS)
			cached[e.Signature.Path] = e
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	for _, path := range paths {
		norm := signature.NormalizePath(path)
		entry, inCache := cached[norm]

		info, err := os.Lstat(path)
		switch {
		case err != nil && os.IsNotExist(err):
			if inCache {
				result[norm] = StatusMissing
			} else {
				result[norm] = StatusNew
			}
		case err != nil:
			// Unreadable: force a rescan rather than trusting stale state.
			result[norm] = StatusModified
		case !inCache:
			result[norm] = StatusNew
		case info.Size() == entry.Signature.Size && info.ModTime().Equal(entry.Signature.ModTime):
			result[norm] = StatusUnchanged
		default:
			result[norm] = StatusModified
		}
	}
	return result, nil
}

// UpsertBatch inserts or updates all entries in one transaction. The batch
// is all-or-nothing: any failure rolls back every row. Sizes outside the
// storable range are clamped to zero with a logged warning instead of
// failing the batch.
func (s *Store) UpsertBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO file_records (path, size, mtime_unix_ns, content_hash, category, is_dir, dir_total_size, dir_newest_ns, last_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime_unix_ns = excluded.mtime_unix_ns,
			content_hash = excluded.content_hash,
			category = excluded.category,
			is_dir = excluded.is_dir,
			dir_total_size = excluded.dir_total_size,
			dir_newest_ns = excluded.dir_newest_ns,
			last_verified = excluded.last_verified,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		size := e.Signature.Size
		if size < 0 {
			s.logger.Warn("clamping out-of-range file size in cache write",
				zap.String("path", e.Signature.Path), zap.Int64("size", size))
			size = 0
		}
		var hash any
		if e.Signature.ContentHash != "" {
			hash = e.Signature.ContentHash
		}
		verified := e.LastVerified
		if verified.IsZero() {
			verified = time.Now()
		}
		isDir := 0
		if e.IsDir {
			isDir = 1
		}
		var newestNS int64
		if !e.DirNewest.IsZero() {
			newestNS = e.DirNewest.UnixNano()
		}
		if _, err := stmt.Exec(
			signature.NormalizePath(e.Signature.Path),
			size,
			e.Signature.ModTime.UnixNano(),
			hash,
			e.Category,
			isDir,
			e.DirTotalSize,
			newestNS,
			verified.Unix(),
			now,
			now,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Signature.Path, err)
		}
	}

	return tx.Commit()
}

// CleanupStale removes entries whose path no longer exists on disk. Each
// path is verified individually; deletions happen in one transaction.
func (s *Store) CleanupStale() (int, error) {
	rows, err := s.db.Query("SELECT path FROM file_records")
	if err != nil {
		return 0, err
	}
	var all []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	var stale []string
	for _, p := range all {
		if _, err := os.Lstat(filepath.FromSlash(p)); os.IsNotExist(err) {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin stale cleanup: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM file_records WHERE path = ?")
	if err != nil {
		return 0, fmt.Errorf("prepare stale delete: %w", err)
	}
	defer stmt.Close()

	for _, p := range stale {
		if _, err := stmt.Exec(p); err != nil {
			return 0, fmt.Errorf("delete stale %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// StartSession records the start of a scan session and returns its id.
func (s *Store) StartSession(categories []string) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO scan_sessions (started_at, categories) VALUES (?, ?)",
		time.Now().Unix(), strings.Join(categories, ","),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishSession records session totals.
func (s *Store) FinishSession(id int64, total, newFiles, changed, removed int) error {
	_, err := s.db.Exec(
		`UPDATE scan_sessions SET finished_at = ?, total_files = ?, new_files = ?, changed_files = ?, removed_files = ? WHERE id = ?`,
		time.Now().Unix(), total, newFiles, changed, removed, id,
	)
	return err
}

// Invalidate clears cached records, for all categories or a subset.
func (s *Store) Invalidate(categories []string) error {
	if len(categories) == 0 {
		_, err := s.db.Exec("DELETE FROM file_records")
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(categories)), ",")
	args := make([]any, len(categories))
	for i, c := range categories {
		args[i] = c
	}
	_, err := s.db.Exec("DELETE FROM file_records WHERE category IN ("+placeholders+")", args...)
	return err
}

// Stats returns the number of cached records and their total size.
func (s *Store) Stats() (int, int64, error) {
	var (
		count int
		total sql.NullInt64
	)
	if err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size), 0) FROM file_records").Scan(&count, &total); err != nil {
		return 0, 0, err
	}
	return count, total.Int64, nil
}
