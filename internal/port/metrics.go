package port

import (
	"time"

	"kwscan/internal/domain"
)

// Recorder receives per-file measurements during a run.
type Recorder interface {
	FileAnalyzed(outcome domain.FileOutcome, cached bool, elapsed time.Duration)

	FileFailed(kind domain.ErrorKind)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) FileAnalyzed(domain.FileOutcome, bool, time.Duration) {}

func (NopRecorder) FileFailed(domain.ErrorKind) {}
