package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"kwscan/config"
	"kwscan/internal/adapter/analyzer"
	"kwscan/internal/adapter/fs"
	"kwscan/internal/adapter/memstore"
	"kwscan/internal/domain"
	"kwscan/internal/logging"
	"kwscan/internal/usecase"
)

func main() {
	dir := flag.String("dir", ".", "Corpus directory")
	keywords := flag.String("k", "", "Comma-separated candidate keywords")
	workerList := flag.String("workers", "1,2,4,8", "Comma-separated worker counts to compare")
	runs := flag.Int("runs", 3, "Runs per worker count, the fastest is reported")
	flag.Parse()

	if *keywords == "" {
		fmt.Println("Usage: go run ./cmd/kwbench -dir ./vendor -k with,await")
		fmt.Println("\nMeasures:")
		fmt.Println("  1. Engine throughput (files/s, MB/s) on an in-memory corpus")
		fmt.Println("  2. Scaling across worker counts")
		fmt.Println("  3. Result stability (every worker count must agree)")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	specs, err := domain.ParseKeywords(strings.Split(*keywords, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	workers, err := parseWorkers(*workerList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	corpus, err := loadCorpus(*dir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading corpus: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("KWSCAN THROUGHPUT BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Corpus:   %s\n", *dir)
	fmt.Printf("Files:    %d (%.1f MB)\n", corpus.Len(), float64(corpus.Size())/(1<<20))
	fmt.Printf("Keywords: %s\n", *keywords)
	fmt.Println()

	fmt.Printf("%-8s %12s %12s %12s\n", "WORKERS", "TIME", "FILES/S", "MB/S")
	fmt.Println(strings.Repeat("-", 70))

	var baseline *domain.Report
	stable := true
	for _, n := range workers {
		best, rep := measure(specs, cfg, corpus, n, *runs)
		seconds := best.Seconds()
		fmt.Printf("%-8d %12s %12.0f %12.2f\n",
			n,
			best.Round(time.Millisecond),
			float64(rep.FilesTotal)/seconds,
			float64(corpus.Size())/(1<<20)/seconds,
		)
		if baseline == nil {
			baseline = rep
		} else if !reflect.DeepEqual(baseline.Keywords, rep.Keywords) {
			stable = false
		}
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("RESULTS:\n")
	for _, kr := range baseline.ByImpact() {
		fmt.Printf("  %-16s soft=%-8d hard=%-8d impact=%s\n", kr.Keyword, kr.SoftCount, kr.HardCount, kr.HardImpact)
	}
	fmt.Printf("  Files failed: %d\n", baseline.FilesFailed)
	if stable {
		fmt.Println("  Status: OK - every worker count produced the same result")
	} else {
		fmt.Println("  Status: MISMATCH - results differ between worker counts")
		os.Exit(2)
	}
}

func parseWorkers(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid worker count %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// loadCorpus reads every source file into memory so runs measure the engine
// rather than the disk.
func loadCorpus(dir string, cfg *config.Config) (*memstore.MemorySource, error) {
	walker := fs.NewWalker(dir, cfg.Sources.Includes, cfg.Sources.Excludes, cfg.Sources.Extensions, cfg.Scan.Encoding)
	corpus := memstore.NewMemorySource()
	err := walker.Each(context.Background(), func(f domain.SourceFile) error {
		return corpus.Put(f)
	})
	return corpus, err
}

func measure(specs []domain.KeywordSpec, cfg *config.Config, corpus *memstore.MemorySource, workers, runs int) (time.Duration, *domain.Report) {
	uc := usecase.NewAnalyzeUseCase(specs, usecase.AnalyzeConfig{
		Workers: workers,
		Limits:  cfg.Limits(),
		Scan: analyzer.Options{
			MaxTokens:  cfg.Scan.MaxTokens,
			MaxNesting: cfg.Scan.MaxNesting,
			Strict:     cfg.Scan.Strict,
		},
		WellKnownVendors: cfg.Report.WellKnownVendors,
	}, nil, nil, logging.Discard())

	var (
		best time.Duration
		last *domain.Report
	)
	for i := 0; i < max(runs, 1); i++ {
		start := time.Now()
		rep, err := uc.Run(context.Background(), corpus, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
			os.Exit(1)
		}
		if elapsed := time.Since(start); best == 0 || elapsed < best {
			best = elapsed
		}
		last = rep
	}
	return best, last
}
