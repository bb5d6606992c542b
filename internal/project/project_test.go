package project

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/reclaim/internal/testutil"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   Type
	}{
		{"node", "package.json", Node},
		{"rust", "Cargo.toml", Rust},
		{"go", "go.mod", Go},
		{"python", "pyproject.toml", Python},
		{"java", "pom.xml", Java},
		{"ruby", "Gemfile", Ruby},
		{"dotnet", "App.csproj", DotNet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			testutil.CreateFile(t, dir, tt.marker, "{}")

			typ, ok := Detect(dir)
			require.True(t, ok)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestDetectNonProject(t *testing.T) {
	dir := t.TempDir()
	testutil.CreateFile(t, dir, "notes.txt", "nothing")

	_, ok := Detect(dir)
	assert.False(t, ok)
}

func TestIsInactiveByManifestAge(t *testing.T) {
	d := NewDetector(nil)

	inactive := t.TempDir()
	testutil.CreateAgedFile(t, inactive, "package.json", 64, 20*24*time.Hour)
	assert.True(t, d.IsInactive(inactive, 14))

	active := t.TempDir()
	testutil.CreateAgedFile(t, active, "package.json", 64, 24*time.Hour)
	assert.False(t, d.IsInactive(active, 14))
}

func TestIsInactiveTracksGitState(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()
	testutil.CreateAgedFile(t, dir, "Cargo.toml", 64, 40*24*time.Hour)
	testutil.CreateAgedFile(t, dir, filepath.Join(".git", "HEAD"), 32, 2*24*time.Hour)

	assert.False(t, d.IsInactive(dir, 14))
}

func TestIsInactiveTracksSourceFiles(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()
	testutil.CreateAgedFile(t, dir, "go.mod", 64, 60*24*time.Hour)
	testutil.CreateAgedFile(t, dir, "main.go", 256, 3*24*time.Hour)

	assert.False(t, d.IsInactive(dir, 14))

	d.InvalidateCache()
	testutil.AgePath(t, filepath.Join(dir, "main.go"), 60*24*time.Hour)
	assert.True(t, d.IsInactive(dir, 14))
}

func TestIsInactiveNonProject(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()
	testutil.CreateAgedFile(t, dir, "random.dat", 10, 365*24*time.Hour)

	assert.False(t, d.IsInactive(dir, 14))
}

func TestIsInactiveCaches(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()
	testutil.CreateAgedFile(t, dir, "package.json", 64, 30*24*time.Hour)

	require.True(t, d.IsInactive(dir, 14))

	// New activity is invisible until the cache is dropped.
	testutil.CreateFile(t, dir, "index.js", "console.log(1)")
	assert.True(t, d.IsInactive(dir, 14))

	d.InvalidateCache()
	assert.False(t, d.IsInactive(dir, 14))
}

func TestFindRoots(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()

	app := testutil.CreateDir(t, dir, "work/app")
	testutil.CreateFile(t, app, "package.json", "{}")

	lib := testutil.CreateDir(t, dir, "work/lib")
	testutil.CreateFile(t, lib, "Cargo.toml", "")

	// A project nested inside another project is not reported.
	nested := testutil.CreateDir(t, app, "vendor-fork")
	testutil.CreateFile(t, nested, "go.mod", "module x")

	// Markers inside artifact directories do not count.
	dep := testutil.CreateDir(t, dir, "work/app2/node_modules/dep")
	testutil.CreateFile(t, dep, "package.json", "{}")

	roots := d.FindRoots(dir, nil)
	assert.ElementsMatch(t, []string{app, lib}, roots)
}

func TestFindRootsDepthBound(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()

	deep := testutil.CreateDir(t, dir, "a/b/c/d/e/f/g")
	testutil.CreateFile(t, deep, "go.mod", "module deep")

	assert.Empty(t, d.FindRoots(dir, nil))
}

func TestFindRootsWhenRootIsProject(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()
	testutil.CreateFile(t, dir, "go.mod", "module here")

	assert.Equal(t, []string{dir}, d.FindRoots(dir, nil))
}

func TestFindRootsHonorsExcludes(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()

	skipped := testutil.CreateDir(t, dir, "archive/old-app")
	testutil.CreateFile(t, skipped, "package.json", "{}")

	kept := testutil.CreateDir(t, dir, "active-app")
	testutil.CreateFile(t, kept, "package.json", "{}")

	roots := d.FindRoots(dir, []string{"archive"})
	assert.Equal(t, []string{kept}, roots)
}

func TestFindRootsSkipsSymlinkLoops(t *testing.T) {
	d := NewDetector(nil)
	dir := t.TempDir()

	app := testutil.CreateDir(t, dir, "app")
	testutil.CreateFile(t, app, "go.mod", "module app")
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "loop")))

	roots := d.FindRoots(dir, nil)
	assert.Equal(t, []string{app}, roots)
}
