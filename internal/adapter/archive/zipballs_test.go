package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwscan/internal/domain"
)

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range members {
		mw, err := w.Create(name)
		require.NoError(t, err)
		_, err = mw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func collect(t *testing.T, z *Zipballs) []domain.SourceFile {
	t.Helper()
	var files []domain.SourceFile
	require.NoError(t, z.Each(context.Background(), func(f domain.SourceFile) error {
		files = append(files, f)
		return nil
	}))
	return files
}

func TestZipballs_Each(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "symfony", "console", "symfony-console.zip"), map[string]string{
		"symfony-console-abc123/src/App.php": "<?php with();",
		"symfony-console-abc123/README.md":   "with()",
	})
	writeZip(t, filepath.Join(root, "acme__tools.zip"), map[string]string{
		"acme-tools-1/lib.php8": "<?php",
	})

	z := NewZipballs(root, "**/*.{php,php7,php8}", "utf-8", nil)
	files := collect(t, z)
	require.Len(t, files, 2)

	assert.Equal(t, "acme/tools", files[0].Package)
	assert.Equal(t, "acme__tools.zip!lib.php8", files[0].Path)

	assert.Equal(t, "symfony/console", files[1].Package)
	assert.Equal(t, "symfony/console/symfony-console.zip!src/App.php", files[1].Path)
	content, err := files[1].Bytes()
	require.NoError(t, err)
	assert.Equal(t, "<?php with();", string(content))

	n, err := z.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestZipballs_CorruptArchiveIsReportedAsFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad__pkg.zip"), []byte("not a zip"), 0o644))

	files := collect(t, NewZipballs(root, "**/*.php", "", nil))
	require.Len(t, files, 1)
	assert.Equal(t, "bad/pkg", files[0].Package)
	_, err := files[0].Bytes()
	assert.Error(t, err)
}

func TestZipballs_EmptyMemberHasContent(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "a__b.zip"), map[string]string{"top/empty.php": ""})

	files := collect(t, NewZipballs(root, "**/*.php", "", nil))
	require.Len(t, files, 1)
	content, err := files[0].Bytes()
	require.NoError(t, err)
	assert.NotNil(t, content)
	assert.Empty(t, content)
}

func TestZipballs_MembersDecompressOnLoad(t *testing.T) {
	root := t.TempDir()
	members := map[string]string{}
	for i := 0; i < 16; i++ {
		members[fmt.Sprintf("top/src/F%02d.php", i)] = fmt.Sprintf("<?php with%d();", i)
	}
	writeZip(t, filepath.Join(root, "acme__big.zip"), members)

	files := collect(t, NewZipballs(root, "**/*.php", "", nil))
	require.Len(t, files, 16)
	for _, f := range files {
		assert.Nil(t, f.Content, "content is read by the loader")
		assert.NotNil(t, f.Loader)
	}

	// Loaders run after Each returned and from several goroutines at once.
	var wg sync.WaitGroup
	got := make([]string, len(files))
	for i, f := range files {
		wg.Add(1)
		go func(i int, f domain.SourceFile) {
			defer wg.Done()
			content, err := f.Bytes()
			assert.NoError(t, err)
			got[i] = string(content)
		}(i, f)
	}
	wg.Wait()
	for i, f := range files {
		assert.Equal(t, members["top/"+strings.TrimPrefix(f.Path, "acme__big.zip!")], got[i])
	}
}

func TestPackageOf(t *testing.T) {
	assert.Equal(t, "symfony/console", PackageOf("symfony/console/symfony-console.zip"))
	assert.Equal(t, "laravel/framework", PackageOf("Laravel__Framework.zip"))
	assert.Equal(t, "standalone", PackageOf("standalone.zip"))
	assert.Equal(t, "b/c", PackageOf("a/b/c/x.zip"))
}
