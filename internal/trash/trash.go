// Package trash implements the freedesktop.org trash layout: deleted files
// move into a files/ directory with a matching .trashinfo record under
// info/, so any compliant desktop tool can list and restore them.
package trash

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const deletionDateLayout = "2006-01-02T15:04:05"

var (
	// ErrDestinationExists is returned by Restore when the original path is
	// already occupied. The trashed copy is left untouched.
	ErrDestinationExists = errors.New("restore destination already exists")

	// ErrNotInTrash is returned when an item's backing files are gone.
	ErrNotInTrash = errors.New("item not found in trash")
)

// Item is one trashed entry.
type Item struct {
	Name         string // unique name under files/
	OriginalPath string
	DeletedAt    time.Time
}

// Trash is a single trash directory, usually ~/.local/share/Trash.
type Trash struct {
	root   string
	logger *zap.Logger
}

// New returns a Trash rooted at dir, creating the files/ and info/
// subdirectories if needed.
func New(dir string, logger *zap.Logger) (*Trash, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, sub := range []string{"files", "info"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create trash directory: %w", err)
		}
	}
	return &Trash{root: dir, logger: logger}, nil
}

// DefaultDir returns the user's home trash directory per the XDG spec.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "Trash"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "Trash"), nil
}

func (t *Trash) filesDir() string { return filepath.Join(t.root, "files") }
func (t *Trash) infoDir() string  { return filepath.Join(t.root, "info") }

// Put moves src into the trash and writes its .trashinfo record. The info
// record is written first so a crash mid-move never strands a file without
// provenance.
func (t *Trash) Put(src string) (*Item, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Lstat(abs); err != nil {
		return nil, err
	}

	name, err := t.uniqueName(filepath.Base(abs))
	if err != nil {
		return nil, err
	}

	item := &Item{
		Name:         name,
		OriginalPath: abs,
		DeletedAt:    time.Now(),
	}
	if err := t.writeInfo(item); err != nil {
		return nil, fmt.Errorf("write trash info: %w", err)
	}

	dest := filepath.Join(t.filesDir(), name)
	if err := moveEntry(abs, dest); err != nil {
		os.Remove(t.infoPath(name))
		return nil, fmt.Errorf("move to trash: %w", err)
	}

	t.logger.Debug("trashed file",
		zap.String("path", abs), zap.String("trash_name", name))
	return item, nil
}

// List returns all trashed items, newest first.
func (t *Trash) List() ([]*Item, error) {
	entries, err := os.ReadDir(t.infoDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var items []*Item
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".trashinfo") {
			continue
		}
		item, err := t.readInfo(entry.Name())
		if err != nil {
			t.logger.Warn("skipping unreadable trash record",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].DeletedAt.After(items[j].DeletedAt)
	})
	return items, nil
}

// Find returns the trashed item with the given unique name.
func (t *Trash) Find(name string) (*Item, error) {
	item, err := t.readInfo(name + ".trashinfo")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInTrash
		}
		return nil, err
	}
	return item, nil
}

// Restore moves an item back to its original path. An occupied destination
// is never overwritten.
func (t *Trash) Restore(item *Item) error {
	src := filepath.Join(t.filesDir(), item.Name)
	if _, err := os.Lstat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrNotInTrash
		}
		return err
	}
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return ErrDestinationExists
	}

	if err := os.MkdirAll(filepath.Dir(item.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("recreate parent directory: %w", err)
	}
	if err := moveEntry(src, item.OriginalPath); err != nil {
		return fmt.Errorf("restore from trash: %w", err)
	}
	os.Remove(t.infoPath(item.Name))

	t.logger.Debug("restored file", zap.String("path", item.OriginalPath))
	return nil
}

// Erase permanently removes a trashed item and its record.
func (t *Trash) Erase(item *Item) error {
	if err := os.RemoveAll(filepath.Join(t.filesDir(), item.Name)); err != nil {
		return err
	}
	return os.Remove(t.infoPath(item.Name))
}

func (t *Trash) infoPath(name string) string {
	return filepath.Join(t.infoDir(), name+".trashinfo")
}

// uniqueName picks a files/ name that collides with nothing already
// trashed, appending a counter before the extension when needed.
func (t *Trash) uniqueName(base string) (string, error) {
	candidate := base
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 2; ; i++ {
		_, errFile := os.Lstat(filepath.Join(t.filesDir(), candidate))
		_, errInfo := os.Lstat(t.infoPath(candidate))
		if os.IsNotExist(errFile) && os.IsNotExist(errInfo) {
			return candidate, nil
		}
		if errFile != nil && !os.IsNotExist(errFile) {
			return "", errFile
		}
		candidate = fmt.Sprintf("%s.%d%s", stem, i, ext)
	}
}

func (t *Trash) writeInfo(item *Item) error {
	content := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escapePath(item.OriginalPath),
		item.DeletedAt.Format(deletionDateLayout))
	return os.WriteFile(t.infoPath(item.Name), []byte(content), 0o600)
}

func (t *Trash) readInfo(infoName string) (*Item, error) {
	f, err := os.Open(filepath.Join(t.infoDir(), infoName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	item := &Item{Name: strings.TrimSuffix(infoName, ".trashinfo")}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Path="):
			item.OriginalPath, err = unescapePath(strings.TrimPrefix(line, "Path="))
			if err != nil {
				return nil, fmt.Errorf("malformed Path: %w", err)
			}
		case strings.HasPrefix(line, "DeletionDate="):
			item.DeletedAt, err = time.Parse(deletionDateLayout, strings.TrimPrefix(line, "DeletionDate="))
			if err != nil {
				return nil, fmt.Errorf("malformed DeletionDate: %w", err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if item.OriginalPath == "" {
		return nil, errors.New("trash record missing Path")
	}
	return item, nil
}

// escapePath percent-encodes each path segment, keeping separators intact.
func escapePath(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func unescapePath(escaped string) (string, error) {
	segments := strings.Split(escaped, "/")
	for i, seg := range segments {
		un, err := url.PathUnescape(seg)
		if err != nil {
			return "", err
		}
		segments[i] = un
	}
	return filepath.FromSlash(strings.Join(segments, "/")), nil
}

// moveEntry renames src to dst, falling back to copy-and-delete when the
// rename crosses filesystems.
func moveEntry(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return err
	}

	info, statErr := os.Lstat(src)
	if statErr != nil {
		return statErr
	}
	if info.IsDir() {
		if err := copyTree(src, dst); err != nil {
			os.RemoveAll(dst)
			return err
		}
	} else {
		if err := copyFile(src, dst, info); err != nil {
			os.Remove(dst)
			return err
		}
	}
	return os.RemoveAll(src)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return false
	}
	return strings.Contains(linkErr.Err.Error(), "cross-device")
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info)
		}
	})
}
