package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kwscan/config"
	"kwscan/internal/adapter/analyzer"
	"kwscan/internal/adapter/archive"
	"kwscan/internal/adapter/cache"
	"kwscan/internal/adapter/fs"
	"kwscan/internal/adapter/store"
	"kwscan/internal/domain"
	"kwscan/internal/metrics"
	"kwscan/internal/port"
	"kwscan/internal/usecase"
)

var (
	analyzeKeywords    []string
	analyzeWorkers     int
	analyzeFormat      string
	analyzeZipballs    bool
	analyzeCache       bool
	analyzeMetricsFile string
	analyzeLabels      bool
	analyzeStrict      bool
	analyzeEncoding    string
	analyzeNoProgress  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a PHP corpus for keyword collisions",
	Long: `Analyze every PHP file below path and report, per candidate keyword, how
many identifiers would break if it became reserved.

The soft count covers declarations, calls and closure bindings, the positions
that break when a keyword is only reserved as a function name. The hard count
covers every identifier occurrence.

Examples:
  kwscan analyze vendor/ -k with,await
  kwscan analyze zips/ --zipballs -k readonly --format json
  kwscan analyze . -k enum --cache --metrics-file kwscan.prom`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringSliceVarP(&analyzeKeywords, "keywords", "k", nil, "candidate keywords (default from config)")
	analyzeCmd.Flags().IntVarP(&analyzeWorkers, "workers", "j", 0, "number of workers (default from config, 0 = CPUs)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "", "output format: table, json or yaml")
	analyzeCmd.Flags().BoolVar(&analyzeZipballs, "zipballs", false, "read package zipballs instead of a source tree")
	analyzeCmd.Flags().BoolVar(&analyzeCache, "cache", false, "reuse per-file results from .kwscan/cache.db")
	analyzeCmd.Flags().StringVar(&analyzeMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	analyzeCmd.Flags().BoolVar(&analyzeLabels, "labels", false, "include the goto label census")
	analyzeCmd.Flags().BoolVar(&analyzeStrict, "strict", true, "fail files with unterminated literals or unbalanced brackets")
	analyzeCmd.Flags().StringVar(&analyzeEncoding, "encoding", "", "source encoding (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeNoProgress, "no-progress", false, "disable the progress bar")
}

// applyAnalyzeFlags overrides the configuration with the flags the user set.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("keywords") {
		cfg.Scan.Keywords = analyzeKeywords
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers = analyzeWorkers
	}
	if flags.Changed("format") {
		cfg.Report.Format = analyzeFormat
	}
	if flags.Changed("zipballs") {
		cfg.Sources.Zipballs = analyzeZipballs
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = analyzeCache
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = analyzeMetricsFile
	}
	if flags.Changed("labels") {
		cfg.Scan.CollectLabels = analyzeLabels
	}
	if flags.Changed("strict") {
		cfg.Scan.Strict = analyzeStrict
	}
	if flags.Changed("encoding") {
		cfg.Scan.Encoding = analyzeEncoding
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	cfg := GetConfig()
	log := GetLogger()
	applyAnalyzeFlags(cmd, cfg)
	if cfg.Sources.Zipballs && !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !analyzer.ValidEncoding(cfg.Scan.Encoding) {
		return fmt.Errorf("invalid configuration: %w: %q", domain.ErrEncoding, cfg.Scan.Encoding)
	}
	specs, err := domain.ParseKeywords(cfg.Scan.Keywords)
	if err != nil {
		return err
	}

	src := newSource(cfg, path, log)

	resultCache, err := openCache(cfg, log)
	if err != nil {
		return err
	}
	if resultCache != nil {
		defer resultCache.Close()
	}

	recorder := metrics.NewRecorder()
	uc := usecase.NewAnalyzeUseCase(specs, usecase.AnalyzeConfig{
		Workers: cfg.Workers(),
		Limits:  cfg.Limits(),
		Scan: analyzer.Options{
			MaxTokens:     cfg.Scan.MaxTokens,
			MaxNesting:    cfg.Scan.MaxNesting,
			Strict:        cfg.Scan.Strict,
			CollectLabels: cfg.Scan.CollectLabels,
		},
		WellKnownVendors: cfg.Report.WellKnownVendors,
	}, resultCache, recorder, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress func(int64)
	if !analyzeNoProgress {
		progress = newProgress(ctx, src, log)
	}

	log.WithFields(logrus.Fields{
		"path":     path,
		"keywords": cfg.Scan.Keywords,
		"workers":  uc.Workers(),
		"zipballs": cfg.Sources.Zipballs,
	}).Info("scanning")

	rep, err := uc.Run(ctx, src, progress)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}
	if rep.Interrupted {
		log.Warn("interrupted, the report covers the files analyzed so far")
	}

	if cfg.Metrics.Textfile != "" {
		recorder.SetReport(rep)
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return writeReport(cmd.OutOrStdout(), rep, cfg.Report.Format)
}

// newSource selects the file source for path.
func newSource(cfg *config.Config, path string, log logrus.FieldLogger) port.Source {
	if cfg.Sources.Zipballs {
		pattern := fs.ExtensionPattern(cfg.Sources.Extensions)
		return archive.NewZipballs(path, pattern, cfg.Scan.Encoding, log)
	}
	return fs.NewWalker(path, cfg.Sources.Includes, cfg.Sources.Excludes, cfg.Sources.Extensions, cfg.Scan.Encoding)
}

// openCache builds the result cache: an in-process memo, backed by the bolt
// store when caching is enabled. It returns nil when both are disabled.
func openCache(cfg *config.Config, log logrus.FieldLogger) (port.ResultCache, error) {
	var memo *cache.Memo
	if cfg.Cache.MemoSize > 0 {
		memo = cache.NewMemo(cfg.Cache.MemoSize)
	}
	if !cfg.Cache.Enabled {
		if memo == nil {
			return nil, nil
		}
		return memo, nil
	}

	dbPath := cfg.CacheDBPath(GetRootDir())
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	st, migration, err := store.Open(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}
	if migration.NeedsRebuild || migration.NeedsMigration {
		log.WithFields(logrus.Fields{
			"path":   dbPath,
			"reason": migration.Reason,
		}).Info("result cache reset")
	}
	if memo == nil {
		return st, nil
	}
	return cache.NewTiered(memo, st), nil
}

// newProgress returns a progress callback drawing a bar on stderr. The
// total is counted up front when the source supports it.
func newProgress(ctx context.Context, src port.Source, log logrus.FieldLogger) func(int64) {
	total := int64(-1)
	if counter, ok := src.(port.Counter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			log.WithError(err).Debug("failed to count files")
		} else {
			total = n
		}
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetDescription("[cyan]Analyzing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var mu sync.Mutex
	start := time.Now()
	return func(done int64) {
		mu.Lock()
		defer mu.Unlock()

		_ = bar.Set64(done)
		if total > 0 && done > 0 {
			elapsed := time.Since(start)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Analyzing[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
