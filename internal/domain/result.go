package domain

import (
	"cmp"
	"slices"
)

const numRoles = 7

// Limits caps the sets kept per keyword. Results merged together must share
// the same limits; a zero Limits adopts the other side's values so that the
// zero AggregateResult stays the merge identity.
type Limits struct {
	Vendors  int `json:"vendors" yaml:"vendors"`
	Examples int `json:"examples" yaml:"examples"`
	Errors   int `json:"errors" yaml:"errors"`
}

// DefaultLimits returns the limits used when configuration does not set them.
func DefaultLimits() Limits {
	return Limits{Vendors: 50, Examples: 5, Errors: 100}
}

func (l Limits) merge(o Limits) Limits {
	return Limits{
		Vendors:  max(l.Vendors, o.Vendors),
		Examples: max(l.Examples, o.Examples),
		Errors:   max(l.Errors, o.Errors),
	}
}

// Bounded keeps the Limit smallest distinct items of every set it has seen.
// Keeping the N smallest distributes over union, so merging bounded sets in
// any order yields the same items. Truncated records whether anything was
// dropped on the way.
type Bounded[T any] struct {
	Items     []T
	Truncated bool
}

func (b *Bounded[T]) insert(v T, limit int, compare func(a, b T) int) {
	i, found := slices.BinarySearchFunc(b.Items, v, compare)
	if found {
		return
	}
	if limit > 0 && i >= limit {
		b.Truncated = true
		return
	}
	b.Items = slices.Insert(b.Items, i, v)
	if limit > 0 && len(b.Items) > limit {
		b.Items = b.Items[:limit]
		b.Truncated = true
	}
}

func (b *Bounded[T]) merge(o Bounded[T], limit int, compare func(a, b T) int) {
	b.Truncated = b.Truncated || o.Truncated
	if len(o.Items) == 0 {
		return
	}
	out := make([]T, 0, len(b.Items)+len(o.Items))
	i, j := 0, 0
	for i < len(b.Items) || j < len(o.Items) {
		var next T
		switch {
		case j >= len(o.Items):
			next = b.Items[i]
			i++
		case i >= len(b.Items):
			next = o.Items[j]
			j++
		default:
			c := compare(b.Items[i], o.Items[j])
			next = b.Items[i]
			if c <= 0 {
				i++
			}
			if c >= 0 {
				if c > 0 {
					next = o.Items[j]
				}
				j++
			}
		}
		if limit > 0 && len(out) == limit {
			b.Truncated = true
			break
		}
		out = append(out, next)
	}
	b.Items = out
}

func compareOccurrence(a, b Occurrence) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

func compareSample(a, b ErrorSample) int {
	if c := cmp.Compare(a.Package, b.Package); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind, b.Kind)
}

// ErrorSample is the reportable part of a FileError.
type ErrorSample struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Package string    `json:"package" yaml:"package"`
	Path    string    `json:"path" yaml:"path"`
	Message string    `json:"message" yaml:"message"`
}

// KeywordResult holds the counters for one keyword.
type KeywordResult struct {
	SoftCount  int64
	HardCount  int64
	RoleCounts [numRoles]int64
	Vendors    Bounded[string]
	WellKnown  Bounded[string]
	Examples   Bounded[Occurrence]
}

// LabelResult counts goto label definitions sharing one name.
type LabelResult struct {
	Count     int64
	WellKnown Bounded[string]
}

// AggregateResult is a commutative monoid under Merge with the zero value as
// identity.
type AggregateResult struct {
	Keywords      map[string]*KeywordResult
	Labels        map[string]*LabelResult
	FilesAnalyzed int64
	FilesCached   int64
	Tokens        int64
	Errors        map[ErrorKind]int64
	ErrorSamples  Bounded[ErrorSample]
	Limits        Limits
}

// NewAggregateResult returns an empty result with the given limits.
func NewAggregateResult(limits Limits) *AggregateResult {
	return &AggregateResult{
		Keywords: make(map[string]*KeywordResult),
		Labels:   make(map[string]*LabelResult),
		Errors:   make(map[ErrorKind]int64),
		Limits:   limits,
	}
}

func (r *AggregateResult) init() {
	if r.Keywords == nil {
		r.Keywords = make(map[string]*KeywordResult)
	}
	if r.Labels == nil {
		r.Labels = make(map[string]*LabelResult)
	}
	if r.Errors == nil {
		r.Errors = make(map[ErrorKind]int64)
	}
}

func (r *AggregateResult) keyword(key string) *KeywordResult {
	kr, ok := r.Keywords[key]
	if !ok {
		kr = &KeywordResult{}
		r.Keywords[key] = kr
	}
	return kr
}

// AddOccurrence folds a single occurrence. wellKnown is the well-known vendor
// name of the occurrence's package, or "".
func (r *AggregateResult) AddOccurrence(o Occurrence, wellKnown string) {
	r.init()
	kr := r.keyword(o.Keyword)
	kr.HardCount++
	if o.Role.IsSoft() {
		kr.SoftCount++
	}
	if int(o.Role) < numRoles {
		kr.RoleCounts[o.Role]++
	}
	kr.Vendors.insert(o.Package, r.Limits.Vendors, cmp.Compare[string])
	if wellKnown != "" {
		kr.WellKnown.insert(wellKnown, 0, cmp.Compare[string])
	}
	kr.Examples.insert(o, r.Limits.Examples, compareOccurrence)
}

// AddLabel counts one goto label definition.
func (r *AggregateResult) AddLabel(name, wellKnown string) {
	r.init()
	key := FoldKey(name)
	lr, ok := r.Labels[key]
	if !ok {
		lr = &LabelResult{}
		r.Labels[key] = lr
	}
	lr.Count++
	if wellKnown != "" {
		lr.WellKnown.insert(wellKnown, 0, cmp.Compare[string])
	}
}

// AddFile folds the outcome of one successfully analyzed file.
func (r *AggregateResult) AddFile(file SourceFile, outcome FileOutcome, wellKnown string, cached bool) {
	r.init()
	r.FilesAnalyzed++
	if cached {
		r.FilesCached++
	}
	r.Tokens += int64(outcome.Tokens)
	for _, m := range outcome.Matches {
		r.AddOccurrence(Occurrence{
			Keyword: m.Keyword,
			Role:    m.Role,
			Package: file.Package,
			Path:    file.Path,
			Line:    m.Line,
		}, wellKnown)
	}
	for _, label := range outcome.Labels {
		r.AddLabel(label, wellKnown)
	}
}

// AddError records a per-file failure. The file contributes nothing else.
func (r *AggregateResult) AddError(fe *FileError) {
	r.init()
	r.Errors[fe.Kind]++
	r.ErrorSamples.insert(ErrorSample{
		Kind:    fe.Kind,
		Package: fe.Package,
		Path:    fe.Path,
		Message: fe.Message,
	}, r.Limits.Errors, compareSample)
}

// FilesFailed returns the number of files excluded because of errors.
func (r *AggregateResult) FilesFailed() int64 {
	var n int64
	for _, c := range r.Errors {
		n += c
	}
	return n
}

// Merge folds o into r. o is not modified.
func (r *AggregateResult) Merge(o *AggregateResult) {
	if o == nil {
		return
	}
	r.init()
	r.Limits = r.Limits.merge(o.Limits)
	r.FilesAnalyzed += o.FilesAnalyzed
	r.FilesCached += o.FilesCached
	r.Tokens += o.Tokens

	for key, okr := range o.Keywords {
		kr := r.keyword(key)
		kr.SoftCount += okr.SoftCount
		kr.HardCount += okr.HardCount
		for i := range kr.RoleCounts {
			kr.RoleCounts[i] += okr.RoleCounts[i]
		}
		kr.Vendors.merge(okr.Vendors, r.Limits.Vendors, cmp.Compare[string])
		kr.WellKnown.merge(okr.WellKnown, 0, cmp.Compare[string])
		kr.Examples.merge(okr.Examples, r.Limits.Examples, compareOccurrence)
	}

	for key, olr := range o.Labels {
		lr, ok := r.Labels[key]
		if !ok {
			lr = &LabelResult{}
			r.Labels[key] = lr
		}
		lr.Count += olr.Count
		lr.WellKnown.merge(olr.WellKnown, 0, cmp.Compare[string])
	}

	for kind, n := range o.Errors {
		r.Errors[kind] += n
	}
	r.ErrorSamples.merge(o.ErrorSamples, r.Limits.Errors, compareSample)
}
