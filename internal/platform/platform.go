// Package platform resolves per-user application directories and basic disk
// statistics for the rest of the tool.
package platform

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

const appDirName = "reclaim"

// Info holds resolved per-user paths. All core components receive these as
// values; nothing re-derives them at call sites.
type Info struct {
	HomeDir    string
	DataDir    string // application data root
	CacheDir   string // scan cache database directory
	HistoryDir string // deletion session artifacts
	TempDirs   []string
	UserDirs   []string // Downloads, Documents, Desktop, ...
}

// GetInfo resolves the application's directory layout for the current user.
// Directories are created lazily by their consumers, not here.
func GetInfo() (*Info, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataRoot := dataDir(home)

	info := &Info{
		HomeDir:    home,
		DataDir:    dataRoot,
		CacheDir:   filepath.Join(dataRoot, "cache"),
		HistoryDir: filepath.Join(dataRoot, "history"),
		TempDirs:   tempDirs(),
		UserDirs: []string{
			filepath.Join(home, "Downloads"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
			filepath.Join(home, "Pictures"),
			filepath.Join(home, "Videos"),
			filepath.Join(home, "Music"),
		},
	}
	return info, nil
}

func dataDir(home string) string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

func tempDirs() []string {
	dirs := []string{os.TempDir()}
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		dirs = append(dirs, filepath.Join(local, "Temp"))
	}
	return dirs
}

// DiskUsage reports total/free/used bytes for the volume containing path.
type DiskUsage struct {
	Path  string
	Total uint64
	Free  uint64
	Used  uint64
}

// GetDiskUsage returns usage statistics for the volume containing path.
func GetDiskUsage(path string) (*DiskUsage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return nil, err
	}
	return &DiskUsage{
		Path:  stat.Path,
		Total: stat.Total,
		Free:  stat.Free,
		Used:  stat.Used,
	}, nil
}
