package port

import "kwscan/internal/domain"

// FileClassifier turns one decoded file into its outcome.
type FileClassifier interface {
	Classify(src []byte) (domain.FileOutcome, error)
}
