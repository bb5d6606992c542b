package cleaner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/reclaim/internal/cache"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/history"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/testutil"
	"github.com/fenilsonani/reclaim/internal/trash"
)

// Full pipeline: scan finds a large file, clean moves it to the trash and
// records the session, restore puts it back.
func TestScanCleanRestoreFlow(t *testing.T) {
	dir := t.TempDir()
	big := testutil.CreateAgedFile(t, dir, "media/huge.iso", 3<<20, time.Hour)
	testutil.CreateAgedFile(t, dir, "media/tiny.iso", 100, time.Hour)

	cfg := config.GetDefault()
	cfg.Thresholds.MinSizeMB = 1

	store, err := cache.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	scan, err := scanner.New(cfg, store, nil).
		Scan(context.Background(), []string{dir}, []scanner.Category{scanner.CategoryLarge})
	require.NoError(t, err)
	require.Len(t, scan.Items, 1)
	require.Equal(t, big, scan.Items[0].Path)

	tr, err := trash.New(filepath.Join(t.TempDir(), "Trash"), nil)
	require.NoError(t, err)
	hist, err := history.NewStore(filepath.Join(t.TempDir(), "history"), tr, nil)
	require.NoError(t, err)
	session := hist.Begin(false)

	cleanResult, err := New(tr, nil).Clean(context.Background(), scan.Items, Options{}, session)
	require.NoError(t, err)
	require.NoError(t, session.Finish())

	assert.Equal(t, 1, cleanResult.Deleted)
	assert.Equal(t, int64(3<<20), cleanResult.FreedBytes)
	assert.NoFileExists(t, big)

	restored, err := hist.Restore(history.Selector{})
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.True(t, restored[0].Restored)
	assert.FileExists(t, big)
}
