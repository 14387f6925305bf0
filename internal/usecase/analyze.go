package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"kwscan/internal/adapter/analyzer"
	"kwscan/internal/domain"
	"kwscan/internal/port"
)

// AnalyzeConfig holds the run parameters of an AnalyzeUseCase.
type AnalyzeConfig struct {
	Workers          int // 0 = number of CPUs
	Limits           domain.Limits
	Scan             analyzer.Options
	WellKnownVendors []string
	// Classifier overrides the classifier built from the keywords and Scan.
	Classifier port.FileClassifier
}

// AnalyzeUseCase runs the keyword analysis over a corpus.
type AnalyzeUseCase struct {
	specs      []domain.KeywordSpec
	classifier port.FileClassifier
	vendors    *domain.VendorMatcher
	workers    int
	limits     domain.Limits
	cache      port.ResultCache
	recorder   port.Recorder
	log        logrus.FieldLogger
}

// NewAnalyzeUseCase creates a new analyze use case. cache and recorder may
// be nil.
func NewAnalyzeUseCase(
	specs []domain.KeywordSpec,
	cfg AnalyzeConfig,
	cache port.ResultCache,
	recorder port.Recorder,
	log logrus.FieldLogger,
) *AnalyzeUseCase {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if recorder == nil {
		recorder = port.NopRecorder{}
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = analyzer.NewClassifier(specs, cfg.Scan)
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &AnalyzeUseCase{
		specs:      specs,
		classifier: classifier,
		vendors:    domain.NewVendorMatcher(cfg.WellKnownVendors),
		workers:    workers,
		limits:     cfg.Limits,
		cache:      cache,
		recorder:   recorder,
		log:        log,
	}
}

// Workers returns the number of workers a run uses.
func (u *AnalyzeUseCase) Workers() int {
	return u.workers
}

// Run analyzes every file of src and builds the report. Per-file failures
// are recorded in the report; only a failure to enumerate src is returned.
// Canceling ctx stops dispatching new files and yields a report marked
// Interrupted that covers the files already analyzed. progress, if set, is
// called after each file with the number of files done so far.
func (u *AnalyzeUseCase) Run(ctx context.Context, src port.Source, progress func(done int64)) (*domain.Report, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := u.log.WithField("run_id", runID)
	log.WithField("workers", u.workers).Debug("analysis started")

	total := domain.NewAggregateResult(u.limits)
	var (
		mu   sync.Mutex
		done atomic.Int64
	)

	files := make(chan domain.SourceFile, u.workers*4)
	var g errgroup.Group

	g.Go(func() error {
		defer close(files)
		err := src.Each(ctx, func(f domain.SourceFile) error {
			select {
			case files <- f:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to enumerate sources: %w", err)
		}
		return nil
	})

	for i := 0; i < u.workers; i++ {
		g.Go(func() error {
			local := domain.NewAggregateResult(u.limits)
			for f := range files {
				if ctx.Err() != nil {
					continue
				}
				u.process(log, f, local)
				n := done.Add(1)
				if progress != nil {
					progress(n)
				}
			}
			mu.Lock()
			total.Merge(local)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := domain.BuildReport(u.specs, total)
	rep.RunID = runID
	rep.StartedAt = started
	rep.Duration = time.Since(started)
	rep.Interrupted = ctx.Err() != nil

	log.WithFields(logrus.Fields{
		"files_analyzed": rep.FilesAnalyzed,
		"files_failed":   rep.FilesFailed,
		"files_cached":   rep.FilesCached,
		"interrupted":    rep.Interrupted,
		"duration":       rep.Duration.String(),
	}).Info("analysis finished")
	return rep, nil
}

// process analyzes one file and folds its outcome or error into acc.
func (u *AnalyzeUseCase) process(log logrus.FieldLogger, file domain.SourceFile, acc *domain.AggregateResult) {
	start := time.Now()
	outcome, cached, err := u.analyze(file)
	if err != nil {
		fe := domain.NewFileError(file, err)
		acc.AddError(fe)
		u.recorder.FileFailed(fe.Kind)
		log.WithFields(logrus.Fields{
			"package": file.Package,
			"path":    file.Path,
			"kind":    fe.Kind,
		}).WithError(err).Warn("file excluded")
		return
	}
	acc.AddFile(file, outcome, u.vendors.WellKnown(file.Package), cached)
	u.recorder.FileAnalyzed(outcome, cached, time.Since(start))
}

// AnalyzeFile analyzes a single file without caching.
func (u *AnalyzeUseCase) AnalyzeFile(file domain.SourceFile) (domain.FileOutcome, error) {
	outcome, _, err := u.analyzeUncached(file)
	return outcome, err
}

func (u *AnalyzeUseCase) analyze(file domain.SourceFile) (outcome domain.FileOutcome, cached bool, err error) {
	if u.cache == nil {
		return u.analyzeUncached(file)
	}
	defer recoverFile(&err)

	raw, err := file.Bytes()
	if err != nil {
		return domain.FileOutcome{}, false, fmt.Errorf("failed to read file: %w", err)
	}
	key := contentKey(raw, file.Encoding)
	if hit, ok, err := u.cache.Get(key); err != nil {
		u.log.WithField("path", file.Path).WithError(err).Debug("cache lookup failed")
	} else if ok {
		return hit, true, nil
	}

	outcome, err = u.classify(raw, file.Encoding)
	if err != nil {
		return domain.FileOutcome{}, false, err
	}
	if err := u.cache.Put(key, outcome); err != nil {
		u.log.WithField("path", file.Path).WithError(err).Warn("cache write failed")
	}
	return outcome, false, nil
}

func (u *AnalyzeUseCase) analyzeUncached(file domain.SourceFile) (outcome domain.FileOutcome, cached bool, err error) {
	defer recoverFile(&err)

	raw, err := file.Bytes()
	if err != nil {
		return domain.FileOutcome{}, false, fmt.Errorf("failed to read file: %w", err)
	}
	outcome, err = u.classify(raw, file.Encoding)
	return outcome, false, err
}

func (u *AnalyzeUseCase) classify(raw []byte, encoding string) (domain.FileOutcome, error) {
	src, err := analyzer.Decode(raw, encoding)
	if err != nil {
		return domain.FileOutcome{}, err
	}
	outcome, err := u.classifier.Classify(src)
	if err != nil {
		return domain.FileOutcome{}, err
	}
	return outcome, nil
}

// recoverFile turns a panic while analyzing one file into that file's error.
func recoverFile(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", domain.ErrPanic, r)
	}
}

// contentKey identifies file content for the result cache.
func contentKey(raw []byte, encoding string) string {
	h := sha256.New()
	h.Write([]byte(encoding))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
