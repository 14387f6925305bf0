package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTokenLimit      = errors.New("token limit exceeded")
	ErrNestingLimit    = errors.New("nesting limit exceeded")
	ErrUnterminated    = errors.New("unterminated literal")
	ErrUnclosedNesting = errors.New("unclosed bracket nesting")
	ErrEncoding        = errors.New("unsupported encoding")
	ErrPanic           = errors.New("panic while analyzing file")
)

// ErrorKind classifies a per-file failure.
type ErrorKind string

const (
	KindRead            ErrorKind = "read"
	KindEncoding        ErrorKind = "encoding"
	KindUnterminated    ErrorKind = "unterminated"
	KindUnclosedNesting ErrorKind = "unclosed_nesting"
	KindTokenLimit      ErrorKind = "token_limit"
	KindNestingLimit    ErrorKind = "nesting_limit"
	KindPanic           ErrorKind = "panic"
)

// FileError is a recoverable failure that excludes one file from the counts.
type FileError struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Package string    `json:"package" yaml:"package"`
	Path    string    `json:"path" yaml:"path"`
	Err     error     `json:"-" yaml:"-"`
	Message string    `json:"message" yaml:"message"`
}

// NewFileError wraps err with the file it belongs to, deriving the kind from
// the sentinel it wraps.
func NewFileError(file SourceFile, err error) *FileError {
	return &FileError{
		Kind:    KindOf(err),
		Package: file.Package,
		Path:    file.Path,
		Err:     err,
		Message: err.Error(),
	}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// KindOf maps an error to its ErrorKind. Unknown errors are read failures.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTokenLimit):
		return KindTokenLimit
	case errors.Is(err, ErrNestingLimit):
		return KindNestingLimit
	case errors.Is(err, ErrUnterminated):
		return KindUnterminated
	case errors.Is(err, ErrUnclosedNesting):
		return KindUnclosedNesting
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	case errors.Is(err, ErrPanic):
		return KindPanic
	default:
		return KindRead
	}
}
