package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/scanner"
)

func sampleScan() *scanner.Result {
	return &scanner.Result{
		Items: []scanner.Item{
			{Path: "/home/u/.cache/app", Size: 4 << 20, Category: scanner.CategoryCache, IsDir: true},
			{Path: "/home/u/old.tmp", Size: 2048, Category: scanner.CategoryTemp},
		},
		TotalSize: (4 << 20) + 2048,
		ByCategory: map[scanner.Category]scanner.CategoryTotal{
			scanner.CategoryCache: {Count: 1, Size: 4 << 20},
			scanner.CategoryTemp:  {Count: 1, Size: 2048},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatSummary, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestScanSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatSummary).ReportScan(sampleScan()))

	out := buf.String()
	assert.Contains(t, out, "Total Files: 2")
	assert.Contains(t, out, "4.00 MB")
	assert.Contains(t, out, "cache")
	assert.Contains(t, out, "temp")
}

func TestScanJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatJSON).ReportScan(sampleScan()))

	var report struct {
		TotalFiles int `json:"total_files"`
		Items      []struct {
			Path string `json:"path"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, 2, report.TotalFiles)
	require.Len(t, report.Items, 2)
	assert.Equal(t, "/home/u/.cache/app", report.Items[0].Path)
}

func TestScanYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatYAML).ReportScan(sampleScan()))
	assert.Contains(t, buf.String(), "total_files: 2")
}

func TestScanTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, FormatTable).ReportScan(sampleScan()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Contains(t, lines[0], "PATH")
	assert.Contains(t, buf.String(), "/home/u/old.tmp")
}

func TestCleanReport(t *testing.T) {
	var buf bytes.Buffer
	result := &cleaner.Result{
		Deleted:    3,
		Skipped:    1,
		FreedBytes: 1536,
	}
	require.NoError(t, New(&buf, FormatSummary).ReportClean(result))
	assert.Contains(t, buf.String(), "Deleted 3 files")
	assert.Contains(t, buf.String(), "1.50 KB")
	assert.Contains(t, buf.String(), "Skipped 1")
}

func TestCleanReportDryRun(t *testing.T) {
	var buf bytes.Buffer
	result := &cleaner.Result{Deleted: 2, FreedBytes: 100, DryRun: true}
	require.NoError(t, New(&buf, FormatSummary).ReportClean(result))
	assert.Contains(t, buf.String(), "[dry run]")
}
