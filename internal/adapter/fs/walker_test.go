package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwscan/internal/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, w *Walker) []domain.SourceFile {
	t.Helper()
	var files []domain.SourceFile
	require.NoError(t, w.Each(context.Background(), func(f domain.SourceFile) error {
		files = append(files, f)
		return nil
	}))
	return files
}

func TestWalker_PackagesAndExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "symfony/console/src/App.php", "<?php a();")
	writeFile(t, root, "acme/lib/legacy.php7", "<?php b();")
	writeFile(t, root, "acme/lib/README.md", "with()")
	writeFile(t, root, "loose/file.php8", "<?php c();")
	writeFile(t, root, "top.php", "<?php d();")

	files := collect(t, NewWalker(root, nil, nil, nil, "utf-8"))

	got := map[string]string{}
	for _, f := range files {
		got[f.Path] = f.Package
		assert.Equal(t, "utf-8", f.Encoding)
		assert.Nil(t, f.Content)
	}
	assert.Equal(t, map[string]string{
		"acme/lib/legacy.php7":        "acme/lib",
		"loose/file.php8":             "loose",
		"symfony/console/src/App.php": "symfony/console",
		"top.php":                     filepath.Base(root),
	}, got)
}

func TestWalker_LoaderReadsContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/c.php", "<?php with();")

	files := collect(t, NewWalker(root, nil, nil, nil, ""))
	require.Len(t, files, 1)
	content, err := files[0].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "<?php with();", string(content))
}

func TestWalker_Excludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/src/x.php", "")
	writeFile(t, root, "a/b/tests/y.php", "")
	writeFile(t, root, "a/b/src/Fixture.php", "")

	w := NewWalker(root, nil, []string{"**/tests/", "**/Fixture.php"}, nil, "")
	files := collect(t, w)
	require.Len(t, files, 1)
	assert.Equal(t, "a/b/src/x.php", files[0].Path)
}

func TestWalker_CustomExtensionsAndCount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/x.inc", "")
	writeFile(t, root, "a/b/y.php", "")

	w := NewWalker(root, nil, nil, []string{".inc"}, "")
	n, err := w.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWalker_SingleFileRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.php", "<?php")

	files := collect(t, NewWalker(filepath.Join(root, "one.php"), nil, nil, nil, ""))
	require.Len(t, files, 1)
	assert.Equal(t, "one.php", files[0].Path)
}

func TestWalker_CallbackErrorStops(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/1.php", "")
	writeFile(t, root, "a/b/2.php", "")

	stop := errors.New("stop")
	calls := 0
	err := NewWalker(root, nil, nil, nil, "").Each(context.Background(), func(domain.SourceFile) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalker_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/1.php", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWalker(root, nil, nil, nil, "").Each(ctx, func(domain.SourceFile) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtensionPattern(t *testing.T) {
	assert.Equal(t, "**/*.{php,php7,php8}", ExtensionPattern(nil))
	assert.Equal(t, "**/*.inc", ExtensionPattern([]string{".inc"}))
}

func TestPackageOf(t *testing.T) {
	assert.Equal(t, "vendor/name", PackageOf("vendor/name/src/a.php", "root"))
	assert.Equal(t, "vendor", PackageOf("vendor/a.php", "root"))
	assert.Equal(t, "root", PackageOf("a.php", "root"))
}
