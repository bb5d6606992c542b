package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fenilsonani/reclaim/internal/cache"
	"github.com/fenilsonani/reclaim/internal/cleaner"
	"github.com/fenilsonani/reclaim/internal/config"
	"github.com/fenilsonani/reclaim/internal/history"
	"github.com/fenilsonani/reclaim/internal/platform"
	"github.com/fenilsonani/reclaim/internal/reporter"
	"github.com/fenilsonani/reclaim/internal/scanner"
	"github.com/fenilsonani/reclaim/internal/trash"
	"github.com/fenilsonani/reclaim/pkg/utils"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath  string
	verbose     bool
	dryRun      bool
	yes         bool
	permanent   bool
	categories  []string
	outputFmt   string
	outputFile  string
	restorePath string
	restoreFrom string
	restoreList bool
	maxRetries  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Reclaim disk space safely",
	Long: `Reclaim scans for caches, temp files, stale build artifacts, and other
disk-space sinks, and deletes them reversibly through the trash with a
full per-session history.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
}

var scanCmd = &cobra.Command{
	Use:   "scan [roots...]",
	Short: "Scan for cleanable files without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		result, err := runScan(cmd, args, env)
		if err != nil {
			return err
		}

		format, err := reporter.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		if outputFile != "" {
			if err := reporter.SaveToFile(result, outputFile, format); err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			fmt.Printf("Report saved to: %s\n", outputFile)
			return nil
		}
		return reporter.New(os.Stdout, format).ReportScan(result)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean [roots...]",
	Short: "Scan and delete cleanable files",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		doDryRun := env.cfg.Safety.DryRunDefault
		if cmd.Flags().Changed("dry-run") {
			doDryRun = dryRun
		}

		result, err := runScan(cmd, args, env)
		if err != nil {
			return err
		}
		if len(result.Items) == 0 {
			fmt.Println("Nothing to clean.")
			return nil
		}

		if err := reporter.New(os.Stdout, reporter.FormatSummary).ReportScan(result); err != nil {
			return err
		}

		if !doDryRun && !confirmed(env.cfg, result) {
			fmt.Println("Cleanup cancelled.")
			return nil
		}

		hist, err := history.NewStore(env.info.HistoryDir, env.trash, env.logger)
		if err != nil {
			return err
		}
		session := hist.Begin(doDryRun)

		clnr := cleaner.New(env.trash, env.logger)
		opts := cleaner.Options{
			Permanent:  permanent,
			DryRun:     doDryRun,
			SkipLocked: env.cfg.Safety.SkipLockedFiles,
			MaxRetries: maxRetries,
		}
		cleanResult, err := clnr.Clean(cmd.Context(), result.Items, opts, session)
		if err != nil {
			return err
		}
		if err := session.Finish(); err != nil {
			env.logger.Warn("failed to record session", zap.Error(err))
		}

		return reporter.New(os.Stdout, reporter.FormatSummary).ReportClean(cleanResult)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore files deleted by a previous clean",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		hist, err := history.NewStore(env.info.HistoryDir, env.trash, env.logger)
		if err != nil {
			return err
		}

		if restoreList {
			names, err := hist.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Println("No cleanup sessions recorded.")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		results, err := hist.Restore(history.Selector{
			Artifact: restoreFrom,
			Path:     restorePath,
		})
		if err != nil {
			return err
		}

		var restored, skipped, failed int
		for _, r := range results {
			switch {
			case r.Err != nil:
				failed++
				fmt.Printf("failed: %s: %v\n", r.Record.Path, r.Err)
			case r.Restored:
				restored++
			default:
				skipped++
			}
		}
		fmt.Printf("Restored %d files (%d already in place, %d failed)\n",
			restored, skipped, failed)
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the scan cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scan cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()
		if env.store == nil {
			fmt.Println("Scan cache is disabled.")
			return nil
		}

		count, total, err := env.store.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("Cached records: %d\n", count)
		fmt.Printf("Tracked size:   %s\n", utils.FormatBytes(total))
		fmt.Printf("State:          %s\n", env.store.State())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [categories...]",
	Short: "Drop cached scan records",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()
		if env.store == nil {
			fmt.Println("Scan cache is disabled.")
			return nil
		}

		for _, arg := range args {
			if _, err := scanner.ParseCategory(arg); err != nil {
				return err
			}
		}
		if err := env.store.Invalidate(args); err != nil {
			return err
		}
		if len(args) == 0 {
			fmt.Println("Scan cache cleared.")
		} else {
			fmt.Printf("Cleared cached records for: %s\n", strings.Join(args, ", "))
		}
		return nil
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop cache records for files that no longer exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()
		if env.store == nil {
			fmt.Println("Scan cache is disabled.")
			return nil
		}

		removed, err := env.store.CleanupStale()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d stale records.\n", removed)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show disk usage, trash, and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		usage, err := platform.GetDiskUsage(env.info.HomeDir)
		if err != nil {
			return fmt.Errorf("read disk usage: %w", err)
		}
		var usedPct float64
		if usage.Total > 0 {
			usedPct = float64(usage.Used) / float64(usage.Total) * 100
		}
		fmt.Printf("Disk:  %s free of %s (%.1f%% used)\n",
			utils.FormatBytes(int64(usage.Free)),
			utils.FormatBytes(int64(usage.Total)),
			usedPct)

		items, err := env.trash.List()
		if err != nil {
			return err
		}
		fmt.Printf("Trash: %d items\n", len(items))

		if env.store != nil {
			count, total, err := env.store.Stats()
			if err == nil {
				fmt.Printf("Cache: %d records, %s tracked\n", count, utils.FormatBytes(total))
			}
		}
		return nil
	},
}

// env bundles everything a command needs.
type cmdEnv struct {
	cfg    *config.Config
	info   *platform.Info
	store  *cache.Store
	trash  *trash.Trash
	logger *zap.Logger
}

func (e *cmdEnv) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.logger != nil {
		e.logger.Sync()
	}
}

func setup() (*cmdEnv, error) {
	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	info, err := platform.GetInfo()
	if err != nil {
		return nil, fmt.Errorf("resolve platform paths: %w", err)
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.Open(info.CacheDir, logger)
		if err != nil {
			// The cache is an accelerator; a broken one never blocks a run.
			logger.Warn("scan cache unavailable", zap.Error(err))
			store = nil
		}
	}

	trashDir, err := trash.DefaultDir()
	if err != nil {
		return nil, err
	}
	tr, err := trash.New(trashDir, logger)
	if err != nil {
		return nil, err
	}

	return &cmdEnv{cfg: cfg, info: info, store: store, trash: tr, logger: logger}, nil
}

func runScan(cmd *cobra.Command, args []string, env *cmdEnv) (*scanner.Result, error) {
	roots := args
	if len(roots) == 0 {
		roots = append([]string{env.info.HomeDir}, env.info.TempDirs...)
	}

	var cats []scanner.Category
	if len(categories) == 0 {
		cats = scanner.AllCategories()
	} else {
		for _, name := range categories {
			c, err := scanner.ParseCategory(name)
			if err != nil {
				return nil, err
			}
			cats = append(cats, c)
		}
	}

	fmt.Println("Scanning...")
	var store scanner.CacheStore
	if env.store != nil {
		store = env.store
	}
	s := scanner.New(env.cfg, store, env.logger)
	return s.Scan(cmd.Context(), roots, cats)
}

// confirmed enforces the confirmation policy. --yes is honored only below
// the configured count and size limits, and never when always_confirm is
// set or the run is permanent.
func confirmed(cfg *config.Config, result *scanner.Result) bool {
	auto := yes &&
		!cfg.Safety.AlwaysConfirm &&
		!permanent &&
		len(result.Items) <= cfg.Safety.MaxNoConfirm &&
		result.TotalSize <= cfg.Safety.MaxSizeNoConfirmMB*1024*1024
	if auto {
		return true
	}

	prompt := "\nProceed with cleanup? (y/N): "
	if permanent {
		prompt = "\nPermanently delete these files? This cannot be undone. (y/N): "
	}
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfgPath, err := config.GetConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(cfgPath)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	scanCmd.Flags().StringSliceVar(&categories, "category", nil, "categories to scan (default all)")
	scanCmd.Flags().StringVar(&outputFmt, "output", "summary", "output format (summary, table, json, yaml)")
	scanCmd.Flags().StringVar(&outputFile, "file", "", "save report to file")

	cleanCmd.Flags().StringSliceVar(&categories, "category", nil, "categories to clean (default all)")
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	cleanCmd.Flags().BoolVar(&yes, "yes", false, "skip confirmation for small batches")
	cleanCmd.Flags().BoolVar(&permanent, "permanent", false, "bypass the trash and delete outright")
	cleanCmd.Flags().IntVar(&maxRetries, "retries", 2, "retries for locked files")

	restoreCmd.Flags().BoolVar(&restoreList, "list", false, "list recorded cleanup sessions")
	restoreCmd.Flags().StringVar(&restoreFrom, "session", "", "session artifact to restore from (default latest)")
	restoreCmd.Flags().StringVar(&restorePath, "path", "", "restore only this original path")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(statusCmd)
}
