package memstore

import (
	"context"
	"sort"
	"sync"

	"kwscan/internal/domain"
)

// MemorySource is an in-memory corpus. Files are keyed by package and path;
// putting the same key again replaces the content.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string]domain.SourceFile
	bytes int64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		files: make(map[string]domain.SourceFile),
	}
}

func fileKey(pkg, path string) string {
	return pkg + "\x00" + path
}

// Put stores a file. A file with a Loader is loaded first so the source
// never does I/O while it is being enumerated.
func (s *MemorySource) Put(file domain.SourceFile) error {
	content, err := file.Bytes()
	if err != nil {
		return err
	}
	file.Content = content
	file.Loader = nil
	if file.Content == nil {
		file.Content = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(file.Package, file.Path)
	if old, ok := s.files[key]; ok {
		s.bytes -= int64(len(old.Content))
	}
	s.files[key] = file
	s.bytes += int64(len(file.Content))
	return nil
}

func (s *MemorySource) Delete(pkg, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fileKey(pkg, path)
	if old, ok := s.files[key]; ok {
		s.bytes -= int64(len(old.Content))
		delete(s.files, key)
	}
}

func (s *MemorySource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]domain.SourceFile)
	s.bytes = 0
}

// Len returns the number of files held.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Size returns the total content size in bytes.
func (s *MemorySource) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// List returns a snapshot of the files ordered by package and path.
func (s *MemorySource) List() []domain.SourceFile {
	s.mu.RLock()
	files := make([]domain.SourceFile, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool {
		if files[i].Package != files[j].Package {
			return files[i].Package < files[j].Package
		}
		return files[i].Path < files[j].Path
	})
	return files
}

// Each visits a snapshot of the files ordered by package and path.
func (s *MemorySource) Each(ctx context.Context, fn func(domain.SourceFile) error) error {
	for _, f := range s.List() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemorySource) Count(ctx context.Context) (int64, error) {
	return int64(s.Len()), nil
}
