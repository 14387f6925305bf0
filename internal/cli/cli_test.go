package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"kwscan/config"
	"kwscan/internal/adapter/archive"
	"kwscan/internal/adapter/cache"
	"kwscan/internal/adapter/fs"
	"kwscan/internal/domain"
	"kwscan/internal/logging"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func sampleReport(t *testing.T) *domain.Report {
	t.Helper()
	specs, err := domain.ParseKeywords([]string{"await", "with"})
	require.NoError(t, err)

	res := domain.NewAggregateResult(domain.DefaultLimits())
	res.AddFile(domain.SourceFile{Package: "symfony/console", Path: "a.php"}, domain.FileOutcome{
		Matches: []domain.Match{
			{Keyword: "with", Role: domain.RoleDeclaration, Line: 1},
			{Keyword: "with", Role: domain.RoleSymbolName, Line: 2},
		},
		Labels: []string{"retry"},
	}, "symfony", false)
	res.AddError(domain.NewFileError(domain.SourceFile{Package: "acme/x", Path: "b.php"}, domain.ErrUnterminated))
	return domain.BuildReport(specs, res)
}

func TestWriteReport_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(t), "table"))
	out := buf.String()

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[0], "KEYWORD"))
	assert.True(t, strings.HasPrefix(lines[1], "with "), "highest impact first")
	assert.Contains(t, lines[1], "symfony")
	assert.True(t, strings.HasPrefix(lines[2], "await "))
	assert.Contains(t, lines[2], "None")

	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "retry")
	assert.Contains(t, out, "Files analyzed: 1")
	assert.Contains(t, out, "Files failed:   1 (unterminated=1)")
	assert.Contains(t, out, "Warning: fewer than 200000 files")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(t), "json"))

	var rep domain.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rep))
	require.Len(t, rep.Keywords, 2)
	assert.Equal(t, "await", rep.Keywords[0].Keyword, "input order is kept")
	assert.Equal(t, int64(1), rep.Keywords[1].SoftCount)
	assert.Equal(t, int64(2), rep.Keywords[1].HardCount)
	assert.Equal(t, domain.ImpactLow, rep.Keywords[1].HardImpact)
	assert.True(t, rep.LowFileCount)
}

func TestWriteReport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(t), "yaml"))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "keywords")
	assert.Contains(t, buf.String(), "hard_impact: Low")
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	assert.Error(t, writeReport(&bytes.Buffer{}, sampleReport(t), "xml"))
}

func TestVendorCount(t *testing.T) {
	assert.Equal(t, "2", vendorCount(domain.KeywordReport{Vendors: []string{"a/a", "b/b"}}))
	assert.Equal(t, "2+", vendorCount(domain.KeywordReport{Vendors: []string{"a/a", "b/b"}, VendorsTruncated: true}))
}

func TestPrintTokens(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTokens(&buf, []byte("<?php // note\nwith();"), false))
	out := buf.String()
	assert.Contains(t, out, "IDENT")
	assert.Contains(t, out, `"with"`)
	assert.NotContains(t, out, "note")

	buf.Reset()
	require.NoError(t, printTokens(&buf, []byte("<?php // note\nwith();"), true))
	assert.Contains(t, buf.String(), "note")
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, domain.FileOutcome{
		Matches: []domain.Match{
			{Keyword: "with", Role: domain.RoleCall, Line: 3},
			{Keyword: "with", Role: domain.RoleGotoLabel, Line: 4},
		},
		Labels: []string{"with"},
		Tokens: 12,
	}))
	out := buf.String()
	assert.Contains(t, out, "call")
	assert.Contains(t, out, "soft")
	assert.Contains(t, out, "goto_label")
	assert.Contains(t, out, "2 hits, 12 tokens, labels: with")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42e9))
	assert.Equal(t, "2m5s", formatDuration(125e9))
	assert.Equal(t, "1h1m", formatDuration(3660e9))
}

func TestNewSource(t *testing.T) {
	cfg := config.DefaultConfig()
	_, ok := newSource(cfg, t.TempDir(), logging.Discard()).(*fs.Walker)
	assert.True(t, ok)

	cfg.Sources.Zipballs = true
	_, ok = newSource(cfg, t.TempDir(), logging.Discard()).(*archive.Zipballs)
	assert.True(t, ok)
}

func TestOpenCache(t *testing.T) {
	cfg := config.DefaultConfig()
	rc, err := openCache(cfg, logging.Discard())
	require.NoError(t, err)
	_, ok := rc.(*cache.Memo)
	assert.True(t, ok)

	cfg.Cache.MemoSize = 0
	rc, err = openCache(cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, rc)

	cfg.Cache.MemoSize = 16
	cfg.Cache.Enabled = true
	cfg.Cache.Path = filepath.Join(t.TempDir(), "sub", "cache.db")
	rc, err = openCache(cfg, logging.Discard())
	require.NoError(t, err)
	_, ok = rc.(*cache.Tiered)
	assert.True(t, ok)
	require.NoError(t, rc.Close())
	assert.FileExists(t, cfg.Cache.Path)
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme/a/src/decl.php", "<?php function with() {}")
	writeFile(t, dir, "acme/b/src/call.php", "<?php $x->with();")
	writeFile(t, dir, "acme/c/src/goto.php", "<?php goto with; with: echo 1;")
	writeFile(t, dir, "acme/c/README.md", "with()")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", dir, "-d", dir, "-k", "with", "--format", "json", "--no-progress", "-j", "2"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var rep domain.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Len(t, rep.Keywords, 1)
	kr := rep.Keywords[0]
	assert.Equal(t, int64(2), kr.SoftCount)
	assert.Equal(t, int64(4), kr.HardCount)
	assert.Equal(t, []string{"acme/a", "acme/b", "acme/c"}, kr.Vendors)
	assert.Equal(t, int64(3), rep.FilesAnalyzed)
	assert.NotEmpty(t, rep.RunID)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "-d", dir, "-k", "with,await"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	cfg, err := config.Load(filepath.Join(dir, "kwscan.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"with", "await"}, cfg.Scan.Keywords)
	assert.Contains(t, out.String(), "Wrote")
}
