// Package testutil provides filesystem fixtures shared by the package
// tests: quick factories for files with a given size and age.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// CreateAgedFile writes a file of the given size whose mtime lies age in
// the past, and returns its path.
func CreateAgedFile(t *testing.T, dir, name string, size int, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent dir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("create file %s: %v", name, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("age file %s: %v", name, err)
	}
	return path
}

// CreateFile writes a file with explicit content and returns its path.
func CreateFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("create file %s: %v", name, err)
	}
	return path
}

// CreateDir makes a directory (and parents) under dir and returns its path.
func CreateDir(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("create dir %s: %v", name, err)
	}
	return path
}

// AgePath rewrites a path's mtime to lie age in the past.
func AgePath(t *testing.T, path string, age time.Duration) {
	t.Helper()
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("age %s: %v", path, err)
	}
}
