package port

import (
	"context"

	"kwscan/internal/domain"
)

// Source enumerates the files of a corpus. Each stops early and returns the
// callback's error if it returns one, or ctx.Err() once ctx is done.
type Source interface {
	Each(ctx context.Context, fn func(domain.SourceFile) error) error
}

// Counter is implemented by sources that can report their size up front,
// which drives progress display.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}
