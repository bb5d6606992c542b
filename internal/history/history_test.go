package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/reclaim/internal/trash"
)

func newTestStore(t *testing.T) (*Store, *trash.Trash) {
	t.Helper()
	tr, err := trash.New(filepath.Join(t.TempDir(), "Trash"), nil)
	require.NoError(t, err)
	store, err := NewStore(filepath.Join(t.TempDir(), "history"), tr, nil)
	require.NoError(t, err)
	return store, tr
}

func TestSessionArtifactRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	session := store.Begin(false)
	session.Add(Record{Path: "/tmp/a.cache", SizeBytes: 2048, Category: "cache", Success: true})
	session.Add(Record{Path: "/tmp/b.cache", SizeBytes: 512, Category: "cache", Success: false, Error: "file locked"})
	require.NoError(t, session.Finish())

	names, err := store.List()
	require.NoError(t, err)
	require.Len(t, names, 1)

	loaded, err := store.Load(names[0])
	require.NoError(t, err)
	require.Len(t, loaded.Records, 2)
	assert.Equal(t, "/tmp/a.cache", loaded.Records[0].Path)
	assert.Equal(t, int64(2048), loaded.TotalFreed())
	assert.Equal(t, "file locked", loaded.Records[1].Error)
	assert.Equal(t, 2, loaded.TotalItems)
	assert.Equal(t, int64(2048), loaded.BytesFreed)
	assert.Equal(t, 1, loaded.ErrorCount)
}

func TestDryRunSessionsAreNotPersisted(t *testing.T) {
	store, _ := newTestStore(t)

	session := store.Begin(true)
	session.Add(Record{Path: "/tmp/dry.tmp", SizeBytes: 100, Category: "temp", Success: true})
	require.NoError(t, session.Finish())

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)

	for _, offset := range []time.Duration{-2 * time.Hour, -time.Hour, 0} {
		session := store.Begin(false)
		session.StartedAt = time.Now().Add(offset)
		session.Add(Record{Path: "/tmp/x", Success: true, Permanent: true})
		require.NoError(t, session.Finish())
	}

	names, err := store.List()
	require.NoError(t, err)
	require.Len(t, names, 3)
	assert.True(t, names[0] > names[1] && names[1] > names[2])
}

func TestRestoreLastSession(t *testing.T) {
	store, tr := newTestStore(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "stale.log")
	require.NoError(t, os.WriteFile(path, []byte("log data"), 0o644))
	item, err := tr.Put(path)
	require.NoError(t, err)

	session := store.Begin(false)
	session.Add(Record{Path: path, SizeBytes: 8, Category: "temp", Success: true, TrashName: item.Name})
	require.NoError(t, session.Finish())

	results, err := store.Restore(Selector{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Restored)
	assert.NoError(t, results[0].Err)
	assert.FileExists(t, path)
}

func TestRestoreIsIdempotent(t *testing.T) {
	store, tr := newTestStore(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "twice.tmp")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	item, err := tr.Put(path)
	require.NoError(t, err)

	session := store.Begin(false)
	session.Add(Record{Path: path, Success: true, TrashName: item.Name})
	require.NoError(t, session.Finish())

	first, err := store.Restore(Selector{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Restored)

	second, err := store.Restore(Selector{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].Restored)
	assert.NoError(t, second[0].Err)
	assert.FileExists(t, path)
}

func TestRestoreSkipsPermanentAndFailedRecords(t *testing.T) {
	store, tr := newTestStore(t)
	dir := t.TempDir()

	trashed := filepath.Join(dir, "back.tmp")
	require.NoError(t, os.WriteFile(trashed, []byte("x"), 0o644))
	item, err := tr.Put(trashed)
	require.NoError(t, err)

	session := store.Begin(false)
	session.Add(Record{Path: trashed, Success: true, TrashName: item.Name})
	session.Add(Record{Path: filepath.Join(dir, "forever.bin"), Success: true, Permanent: true})
	session.Add(Record{Path: filepath.Join(dir, "failed.bin"), Success: false, Error: "permission denied"})
	require.NoError(t, session.Finish())

	results, err := store.Restore(Selector{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, trashed, results[0].Record.Path)
}

func TestRestoreByPath(t *testing.T) {
	store, tr := newTestStore(t)
	dir := t.TempDir()

	wanted := filepath.Join(dir, "wanted.tmp")
	other := filepath.Join(dir, "other.tmp")
	require.NoError(t, os.WriteFile(wanted, []byte("w"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("o"), 0o644))
	itemW, err := tr.Put(wanted)
	require.NoError(t, err)
	itemO, err := tr.Put(other)
	require.NoError(t, err)

	session := store.Begin(false)
	session.Add(Record{Path: wanted, Success: true, TrashName: itemW.Name})
	session.Add(Record{Path: other, Success: true, TrashName: itemO.Name})
	require.NoError(t, session.Finish())

	results, err := store.Restore(Selector{Path: wanted})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.FileExists(t, wanted)
	assert.NoFileExists(t, other)

	_, err = store.Restore(Selector{Path: filepath.Join(dir, "unknown.tmp")})
	assert.Error(t, err)
}

func TestRestoreWithNoSessions(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Restore(Selector{})
	assert.ErrorIs(t, err, ErrNoSessions)
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Load("../outside.json")
	assert.Error(t, err)
}
