// Package reporter renders scan and clean results for the CLI in several
// formats: a human summary, a table, JSON, and YAML.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/pkg/utils"
)

// OutputFormat represents the output format type.
type OutputFormat string

const (
	FormatSummary OutputFormat = "summary"
	FormatTable   OutputFormat = "table"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// ParseFormat validates a format name, defaulting to summary.
func ParseFormat(name string) (OutputFormat, error) {
	switch OutputFormat(name) {
	case "", FormatSummary:
		return FormatSummary, nil
	case FormatTable, FormatJSON, FormatYAML:
		return OutputFormat(name), nil
	}
	return "", fmt.Errorf("unsupported format: %s", name)
}

// Reporter writes formatted reports.
type Reporter struct {
	writer io.Writer
	format OutputFormat
}

// New creates a Reporter.
func New(writer io.Writer, format OutputFormat) *Reporter {
	return &Reporter{writer: writer, format: format}
}

// scanReport is the serializable view of a scan result.
type scanReport struct {
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
	TotalFiles  int                `json:"total_files" yaml:"total_files"`
	TotalSize   int64              `json:"total_size" yaml:"total_size"`
	Categories  map[string]catStat `json:"categories" yaml:"categories"`
	Items       []itemReport       `json:"items" yaml:"items"`
}

type catStat struct {
	Count int   `json:"count" yaml:"count"`
	Size  int64 `json:"size" yaml:"size"`
}

type itemReport struct {
	Path     string `json:"path" yaml:"path"`
	Size     int64  `json:"size" yaml:"size"`
	Category string `json:"category" yaml:"category"`
	Locked   bool   `json:"locked,omitempty" yaml:"locked,omitempty"`
}

func buildScanReport(result *scanner.Result) scanReport {
	report := scanReport{
		GeneratedAt: time.Now(),
		TotalFiles:  len(result.Items),
		TotalSize:   result.TotalSize,
		Categories:  make(map[string]catStat, len(result.ByCategory)),
		Items:       make([]itemReport, 0, len(result.Items)),
	}
	for cat, total := range result.ByCategory {
		report.Categories[string(cat)] = catStat{Count: total.Count, Size: total.Size}
	}
	for _, item := range result.Items {
		report.Items = append(report.Items, itemReport{
			Path:     item.Path,
			Size:     item.Size,
			Category: string(item.Category),
			Locked:   item.Locked,
		})
	}
	return report
}

// ReportScan renders a scan result in the reporter's format.
func (r *Reporter) ReportScan(result *scanner.Result) error {
	switch r.format {
	case FormatSummary:
		return r.scanSummary(result)
	case FormatTable:
		return r.scanTable(result)
	case FormatJSON:
		enc := json.NewEncoder(r.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(buildScanReport(result))
	case FormatYAML:
		return yaml.NewEncoder(r.writer).Encode(buildScanReport(result))
	}
	return fmt.Errorf("unsupported format: %s", r.format)
}

func (r *Reporter) scanSummary(result *scanner.Result) error {
	fmt.Fprintf(r.writer, "=== Scan Summary ===\n")
	fmt.Fprintf(r.writer, "Total Files: %d\n", len(result.Items))
	fmt.Fprintf(r.writer, "Total Size: %s\n", utils.FormatBytes(result.TotalSize))
	if result.CacheHits > 0 {
		fmt.Fprintf(r.writer, "Cache Hits: %d\n", result.CacheHits)
	}
	fmt.Fprintf(r.writer, "\nBreakdown by Category:\n")
	for _, cat := range scanner.AllCategories() {
		total, ok := result.ByCategory[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(r.writer, "  %-12s %6d files  %s\n",
			cat, total.Count, utils.FormatBytes(total.Size))
	}
	return nil
}

func (r *Reporter) scanTable(result *scanner.Result) error {
	fmt.Fprintf(r.writer, "%-70s %-12s %10s\n", "PATH", "CATEGORY", "SIZE")
	for _, item := range result.Items {
		path := item.Path
		if len(path) > 70 {
			path = "..." + path[len(path)-67:]
		}
		fmt.Fprintf(r.writer, "%-70s %-12s %10s\n",
			path, item.Category, utils.FormatBytes(item.Size))
	}
	fmt.Fprintf(r.writer, "\nTotal: %d files, %s\n",
		len(result.Items), utils.FormatBytes(result.TotalSize))
	return nil
}

// ReportClean renders a clean result; only the summary format applies.
func (r *Reporter) ReportClean(result *cleaner.Result) error {
	if result.DryRun {
		fmt.Fprintf(r.writer, "[dry run] would delete %d files (%s)\n",
			result.Deleted, utils.FormatBytes(result.FreedBytes))
	} else {
		fmt.Fprintf(r.writer, "Deleted %d files, freed %s\n",
			result.Deleted, utils.FormatBytes(result.FreedBytes))
	}
	if result.Skipped > 0 {
		fmt.Fprintf(r.writer, "Skipped %d files\n", result.Skipped)
	}
	if result.Failed > 0 {
		fmt.Fprintf(r.writer, "Failed %d files:\n", result.Failed)
		for _, item := range result.Items {
			if item.Outcome == cleaner.OutcomeFailed && item.Err != nil {
				fmt.Fprintf(r.writer, "  %s: %v\n", item.Item.Path, item.Err)
			}
		}
	}
	return nil
}

// SaveToFile writes a scan report to a file in the given format.
func SaveToFile(result *scanner.Result, path string, format OutputFormat) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return New(f, format).ReportScan(result)
}
