// Package signature computes lightweight file fingerprints used by the scan
// cache and by duplicate detection. A signature is cheap (one metadata read);
// the content hash is computed only on explicit request.
package signature

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// ErrSizeOutOfRange is returned when a reported file size cannot be stored
// in a signed 64-bit column without truncation.
var ErrSizeOutOfRange = errors.New("file size out of storable range")

// Signature is a lightweight fingerprint of a file. Two signatures with
// equal size and modification time are treated as "same content"; the
// content hash is an opt-in stronger check.
type Signature struct {
	Path        string // normalized; see NormalizePath
	Size        int64
	ModTime     time.Time
	ContentHash string // hex xxh3, empty unless explicitly computed
}

// Compute reads a signature from file metadata without touching content.
// The path is not dereferenced, so a symlink yields the link's own metadata.
func Compute(path string) (Signature, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Signature{}, err
	}
	return FromFileInfo(path, info)
}

// FromFileInfo builds a signature from an already-obtained FileInfo,
// avoiding a second stat in walk loops.
func FromFileInfo(path string, info os.FileInfo) (Signature, error) {
	size := info.Size()
	if size < 0 {
		return Signature{}, fmt.Errorf("%w: %d", ErrSizeOutOfRange, size)
	}
	return Signature{
		Path:    NormalizePath(path),
		Size:    size,
		ModTime: info.ModTime(),
	}, nil
}

// ComputeWithHash computes a signature including a streaming content hash.
// A permission-denied open yields a signature without a hash rather than an
// error, so one unreadable file never fails a whole duplicate pass.
func ComputeWithHash(path string) (Signature, error) {
	sig, err := Compute(path)
	if err != nil {
		return Signature{}, err
	}

	hash, err := HashFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return sig, nil
		}
		return Signature{}, err
	}
	sig.ContentHash = hash
	return sig, nil
}

// HashFile streams the file through xxh3 and returns the hex digest.
// Zero-byte files hash to the digest of empty input.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports whether two signatures identify the same content. Size and
// modification time must match; content hashes are compared only when both
// sides carry one.
func (s Signature) Equal(other Signature) bool {
	if s.Size != other.Size || !s.ModTime.Equal(other.ModTime) {
		return false
	}
	if s.ContentHash != "" && other.ContentHash != "" {
		return s.ContentHash == other.ContentHash
	}
	return true
}

// CheckStorableSize validates that an unsigned size value fits the signed
// 64-bit storage used by the cache.
func CheckStorableSize(size uint64) (int64, error) {
	if size > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrSizeOutOfRange, size)
	}
	return int64(size), nil
}

// NormalizePath produces the canonical cache key for a path: cleaned,
// forward slashes, and lowercased on case-insensitive filesystems. Two
// entries never differ only by case or slash style.
func NormalizePath(path string) string {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	if caseInsensitiveFS {
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}

var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"
