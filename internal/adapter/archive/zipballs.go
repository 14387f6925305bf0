package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"kwscan/internal/domain"
)

// MaxEntrySize bounds the uncompressed size of a single archive member.
const MaxEntrySize = 64 << 20

// MaxBufferedArchive is the largest zipball held in memory so its members
// can be decompressed by the workers. Larger archives are decompressed
// while they are enumerated.
const MaxBufferedArchive = 256 << 20

// Zipballs reads PHP sources straight out of package zipballs without
// extracting them. The package id of a zipball comes from its directory
// ("zipballs/vendor/name/x.zip") or from its file name ("vendor__name.zip").
type Zipballs struct {
	root     string
	pattern  string
	encoding string
	log      logrus.FieldLogger
}

// NewZipballs creates a zipball source rooted at root. pattern selects
// members by their path inside the archive.
func NewZipballs(root, pattern, encoding string, log logrus.FieldLogger) *Zipballs {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Zipballs{root: root, pattern: pattern, encoding: encoding, log: log}
}

// Each visits every matching member of every zipball below the root, in
// lexical order. Each archive is read once and its members carry a Loader
// that decompresses them, so decompression runs in the workers. A member or
// archive that cannot be read is still reported, with a Loader returning
// the error, so it is counted as a failed file.
func (z *Zipballs) Each(ctx context.Context, fn func(domain.SourceFile) error) error {
	archives, err := z.archives()
	if err != nil {
		return err
	}
	for _, rel := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := z.eachMember(ctx, rel, fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of members Each would visit.
func (z *Zipballs) Count(ctx context.Context) (int64, error) {
	archives, err := z.archives()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rel := range archives {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		r, err := zip.OpenReader(filepath.Join(z.root, filepath.FromSlash(rel)))
		if err != nil {
			n++
			continue
		}
		for _, f := range r.File {
			if z.match(f) {
				n++
			}
		}
		r.Close()
	}
	return n, nil
}

func (z *Zipballs) archives() ([]string, error) {
	var out []string
	err := filepath.WalkDir(z.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".zip") {
			return nil
		}
		rel, err := filepath.Rel(z.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list zipballs: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (z *Zipballs) eachMember(ctx context.Context, rel string, fn func(domain.SourceFile) error) error {
	pkg := PackageOf(rel)
	members, closer, eager, err := z.open(rel)
	if err != nil {
		z.log.WithFields(logrus.Fields{"package": pkg, "archive": rel}).WithError(err).Warn("unreadable zipball")
		return fn(z.failed(pkg, rel, fmt.Errorf("open zipball: %w", err)))
	}
	if closer != nil {
		defer closer.Close()
	}

	for _, f := range members {
		if !z.match(f) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		file := domain.SourceFile{
			Package:  pkg,
			Path:     rel + "!" + stripTopDir(f.Name),
			Encoding: z.encoding,
			Loader:   func() ([]byte, error) { return readMember(f) },
		}
		if eager {
			content, err := readMember(f)
			if err != nil {
				file = z.failed(pkg, file.Path, err)
			} else {
				file.Content = content
				file.Loader = nil
			}
		}
		if err := fn(file); err != nil {
			return err
		}
	}
	return nil
}

// open lists the members of one zipball. Archives up to MaxBufferedArchive
// are read into memory and need no closing; their members may be read
// concurrently after open returns. Larger archives stay on disk and are
// marked eager, with a closer that must run before eachMember returns.
func (z *Zipballs) open(rel string) ([]*zip.File, io.Closer, bool, error) {
	p := filepath.Join(z.root, filepath.FromSlash(rel))
	info, err := os.Stat(p)
	if err != nil {
		return nil, nil, false, err
	}
	if info.Size() > MaxBufferedArchive {
		r, err := zip.OpenReader(p)
		if err != nil {
			return nil, nil, false, err
		}
		return r.File, r, true, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, nil, false, err
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, false, err
	}
	return r.File, nil, false, nil
}

func (z *Zipballs) match(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	ok, err := doublestar.Match(z.pattern, f.Name)
	return err == nil && ok
}

func (z *Zipballs) failed(pkg, p string, err error) domain.SourceFile {
	return domain.SourceFile{
		Package:  pkg,
		Path:     p,
		Encoding: z.encoding,
		Loader:   func() ([]byte, error) { return nil, err },
	}
}

func readMember(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("member %s is %d bytes, larger than %d", f.Name, f.UncompressedSize64, MaxEntrySize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open member %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read member %s: %w", f.Name, err)
	}
	if len(data) > MaxEntrySize {
		return nil, fmt.Errorf("member %s is larger than %d bytes", f.Name, MaxEntrySize)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// stripTopDir drops the single top-level directory zipballs wrap their
// contents in ("symfony-console-1a2b3c/src/App.php" becomes "src/App.php").
func stripTopDir(name string) string {
	if _, rest, ok := strings.Cut(name, "/"); ok && rest != "" {
		return rest
	}
	return name
}

// PackageOf derives the package id of a zipball from its slash-separated
// path below the zipballs root.
func PackageOf(rel string) string {
	dir := path.Dir(rel)
	if parts := strings.Split(dir, "/"); dir != "." && len(parts) >= 2 {
		return strings.ToLower(parts[len(parts)-2] + "/" + parts[len(parts)-1])
	}
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	if vendor, name, ok := strings.Cut(stem, "__"); ok && vendor != "" && name != "" {
		return strings.ToLower(vendor + "/" + name)
	}
	return strings.ToLower(stem)
}
