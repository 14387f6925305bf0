package port

import "kwscan/internal/domain"

// ResultCache memoizes per-file outcomes keyed by a content digest. A cache
// is bound to one keyword set and classifier configuration.
type ResultCache interface {
	Get(key string) (domain.FileOutcome, bool, error)

	Put(key string, outcome domain.FileOutcome) error

	Close() error
}
