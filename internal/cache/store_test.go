package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/reclaim/internal/signature"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func writeFile(t *testing.T, path, content string) signature.Signature {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sig, err := signature.Compute(path)
	require.NoError(t, err)
	return sig
}

func TestOpenCreatesDatabase(t *testing.T) {
	store, dir := openTestStore(t)

	assert.Equal(t, StateHealthy, store.State())
	assert.FileExists(t, filepath.Join(dir, dbFileName))

	count, total, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, total)
}

func TestUpsertAndLookup(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "app.log")
	sig := writeFile(t, path, "some log content")

	err := store.UpsertBatch([]Entry{{Signature: sig, Category: "temp"}})
	require.NoError(t, err)

	entry, found, err := store.Lookup(signature.NormalizePath(path))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sig.Size, entry.Signature.Size)
	assert.True(t, sig.ModTime.Equal(entry.Signature.ModTime))
	assert.Equal(t, "temp", entry.Category)
	assert.False(t, entry.LastVerified.IsZero())
}

func TestDirectoryAggregateRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	newest := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	sig, err := signature.Compute(dir)
	require.NoError(t, err)

	err = store.UpsertBatch([]Entry{{
		Signature:    sig,
		Category:     "cache",
		IsDir:        true,
		DirTotalSize: 4096,
		DirNewest:    newest,
	}})
	require.NoError(t, err)

	entry, found, err := store.Lookup(signature.NormalizePath(dir))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, entry.IsDir)
	assert.Equal(t, int64(4096), entry.DirTotalSize)
	assert.True(t, newest.Equal(entry.DirNewest))
}

func TestEntriesByCategory(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	tempSig := writeFile(t, filepath.Join(dir, "a.tmp"), "temp file")
	largeSig := writeFile(t, filepath.Join(dir, "b.iso"), "large file")
	require.NoError(t, store.UpsertBatch([]Entry{
		{Signature: tempSig, Category: "temp"},
		{Signature: largeSig, Category: "large"},
	}))

	entries, err := store.EntriesByCategory([]string{"temp"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, ok := entries[tempSig.Path]
	require.True(t, ok)
	assert.Equal(t, "temp", got.Category)
	assert.Equal(t, tempSig.Size, got.Signature.Size)

	entries, err = store.EntriesByCategory(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsertBatchIsAtomic(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	first := writeFile(t, filepath.Join(dir, "a.tmp"), "aaa")
	second := writeFile(t, filepath.Join(dir, "b.tmp"), "bbb")

	require.NoError(t, store.UpsertBatch([]Entry{
		{Signature: first, Category: "temp"},
		{Signature: second, Category: "temp"},
	}))

	count, total, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, first.Size+second.Size, total)
}

func TestCheckBatchStatuses(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	unchanged := filepath.Join(dir, "unchanged.cache")
	modified := filepath.Join(dir, "modified.cache")
	missing := filepath.Join(dir, "missing.cache")
	fresh := filepath.Join(dir, "fresh.cache")

	sigUnchanged := writeFile(t, unchanged, "stable")
	sigModified := writeFile(t, modified, "before")
	sigMissing := writeFile(t, missing, "gone soon")
	writeFile(t, fresh, "never cached")

	require.NoError(t, store.UpsertBatch([]Entry{
		{Signature: sigUnchanged, Category: "cache"},
		{Signature: sigModified, Category: "cache"},
		{Signature: sigMissing, Category: "cache"},
	}))

	// Rewrite with different size and a clearly different mtime.
	require.NoError(t, os.WriteFile(modified, []byte("after, longer than before"), 0o644))
	future := time.Now().Add(2 * time.Hour)
	require.NoError(t, os.Chtimes(modified, future, future))
	require.NoError(t, os.Remove(missing))

	statuses, err := store.CheckBatch([]string{unchanged, modified, missing, fresh})
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, statuses[signature.NormalizePath(unchanged)])
	assert.Equal(t, StatusModified, statuses[signature.NormalizePath(modified)])
	assert.Equal(t, StatusMissing, statuses[signature.NormalizePath(missing)])
	assert.Equal(t, StatusNew, statuses[signature.NormalizePath(fresh)])
}

func TestCleanupStale(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	kept := filepath.Join(dir, "kept.bin")
	gone := filepath.Join(dir, "gone.bin")
	sigKept := writeFile(t, kept, "still here")
	sigGone := writeFile(t, gone, "deleted later")

	require.NoError(t, store.UpsertBatch([]Entry{
		{Signature: sigKept, Category: "large"},
		{Signature: sigGone, Category: "large"},
	}))
	require.NoError(t, os.Remove(gone))

	removed, err := store.CleanupStale()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, _, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, found, err := store.Lookup(signature.NormalizePath(gone))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidateByCategory(t *testing.T) {
	store, _ := openTestStore(t)
	dir := t.TempDir()

	temp := writeFile(t, filepath.Join(dir, "x.tmp"), "temp data")
	cacheFile := writeFile(t, filepath.Join(dir, "y.cache"), "cache data")

	require.NoError(t, store.UpsertBatch([]Entry{
		{Signature: temp, Category: "temp"},
		{Signature: cacheFile, Category: "cache"},
	}))

	require.NoError(t, store.Invalidate([]string{"temp"}))
	count, _, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Invalidate(nil))
	count, _, err = store.Stats()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpenRecoversFromCorruption(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, dbFileName)
	require.NoError(t, os.WriteFile(dbPath, []byte("this is not a sqlite database at all"), 0o644))

	store, err := Open(dir, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, StateHealthy, store.State())
	assert.FileExists(t, dbPath+".backup")

	// The recreated store is empty and writable.
	count, _, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, count)

	sig := writeFile(t, filepath.Join(t.TempDir(), "post.tmp"), "post recovery")
	assert.NoError(t, store.UpsertBatch([]Entry{{Signature: sig, Category: "temp"}}))
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	require.NoError(t, err)

	sig := writeFile(t, filepath.Join(t.TempDir(), "keep.tmp"), "persisted")
	require.NoError(t, store.UpsertBatch([]Entry{{Signature: sig, Category: "temp"}}))
	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.FileExists(t, filepath.Join(dir, dbFileName))
	assert.NoFileExists(t, filepath.Join(dir, dbFileName+".backup"))

	_, found, err := reopened.Lookup(sig.Path)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSizeClampOnOverflow(t *testing.T) {
	// A size reported above the signed 64-bit range arrives here negative.
	_, err := signature.CheckStorableSize(1 << 63)
	assert.ErrorIs(t, err, signature.ErrSizeOutOfRange)

	store, _ := openTestStore(t)
	entry := Entry{
		Signature: signature.Signature{
			Path:    "/data/huge.bin",
			Size:    -1,
			ModTime: time.Now(),
		},
		Category: "large",
	}
	require.NoError(t, store.UpsertBatch([]Entry{entry}))

	got, found, err := store.Lookup(signature.NormalizePath("/data/huge.bin"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Zero(t, got.Signature.Size)
}

func TestSessionLifecycle(t *testing.T) {
	store, _ := openTestStore(t)

	id, err := store.StartSession([]string{"cache", "temp"})
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.NoError(t, store.FinishSession(id, 120, 10, 5, 2))
}
