package fs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"kwscan/internal/domain"
)

// DefaultExtensions are the file extensions analyzed when none are configured.
var DefaultExtensions = []string{"php", "php7", "php8"}

// Walker enumerates source files below a root directory. The package id of a
// file is the first two directory components below the root, as in a
// Composer vendor tree ("vendor/name").
type Walker struct {
	root     string
	includes []string
	excludes []string
	encoding string
}

// NewWalker creates a walker. When includes is empty, every file with one of
// extensions is included.
func NewWalker(root string, includes, excludes, extensions []string, encoding string) *Walker {
	if len(includes) == 0 {
		includes = []string{ExtensionPattern(extensions)}
	}
	return &Walker{
		root:     root,
		includes: includes,
		excludes: excludes,
		encoding: encoding,
	}
}

// ExtensionPattern builds a doublestar pattern matching the extensions.
func ExtensionPattern(extensions []string) string {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	trimmed := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
			trimmed = append(trimmed, ext)
		}
	}
	if len(trimmed) == 1 {
		return "**/*." + trimmed[0]
	}
	return "**/*.{" + strings.Join(trimmed, ",") + "}"
}

// Each calls fn for every matching file in lexical order. Content is read
// lazily by the Loader so workers do the I/O.
func (w *Walker) Each(ctx context.Context, fn func(domain.SourceFile) error) error {
	root, err := filepath.Abs(w.root)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fn(w.sourceFile(filepath.Dir(root), root, filepath.Base(root)))
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			return fn(w.sourceFile(root, path, relPath))
		}
		return nil
	})
}

// Count returns the number of files Each would visit.
func (w *Walker) Count(ctx context.Context) (int64, error) {
	var n int64
	err := w.Each(ctx, func(domain.SourceFile) error {
		n++
		return nil
	})
	return n, err
}

func (w *Walker) sourceFile(root, path, relPath string) domain.SourceFile {
	return domain.SourceFile{
		Package:  PackageOf(relPath, filepath.Base(root)),
		Path:     relPath,
		Encoding: w.encoding,
		Loader: func() ([]byte, error) {
			return os.ReadFile(path)
		},
	}
}

// PackageOf derives the package id from a slash-separated path relative to
// the corpus root. Files outside any "vendor/name" pair belong to fallback.
func PackageOf(relPath, fallback string) string {
	parts := strings.Split(relPath, "/")
	switch {
	case len(parts) >= 3:
		return parts[0] + "/" + parts[1]
	case len(parts) == 2:
		return parts[0]
	default:
		return fallback
	}
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
