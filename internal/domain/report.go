package domain

import (
	"fmt"
	"sort"
	"time"
)

// ImpactLevel is a severity band derived from an occurrence count.
type ImpactLevel uint8

const (
	ImpactNone ImpactLevel = iota
	ImpactLow
	ImpactMedium
	ImpactHigh
	ImpactExtreme
)

var impactNames = [...]string{"None", "Low", "Medium", "High", "Extreme"}

// CalculateImpact maps a count onto its band:
// 0, 1-25, 26-100, 101-500, 501+.
func CalculateImpact(count int64) ImpactLevel {
	switch {
	case count <= 0:
		return ImpactNone
	case count <= 25:
		return ImpactLow
	case count <= 100:
		return ImpactMedium
	case count <= 500:
		return ImpactHigh
	default:
		return ImpactExtreme
	}
}

func (l ImpactLevel) String() string {
	if int(l) < len(impactNames) {
		return impactNames[l]
	}
	return fmt.Sprintf("impact(%d)", l)
}

// MarshalText implements encoding.TextMarshaler.
func (l ImpactLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ImpactLevel) UnmarshalText(text []byte) error {
	for i, name := range impactNames {
		if name == string(text) {
			*l = ImpactLevel(i)
			return nil
		}
	}
	return fmt.Errorf("unknown impact level %q", text)
}

// LowFileCountThreshold is the corpus size below which results are flagged
// as statistically thin.
const LowFileCountThreshold = 200_000

// KeywordReport is the final, read-only view of one keyword.
type KeywordReport struct {
	Keyword          string           `json:"keyword" yaml:"keyword"`
	SoftCount        int64            `json:"soft_count" yaml:"soft_count"`
	HardCount        int64            `json:"hard_count" yaml:"hard_count"`
	SoftImpact       ImpactLevel      `json:"soft_impact" yaml:"soft_impact"`
	HardImpact       ImpactLevel      `json:"hard_impact" yaml:"hard_impact"`
	Roles            map[string]int64 `json:"roles,omitempty" yaml:"roles,omitempty"`
	Vendors          []string         `json:"vendors" yaml:"vendors"`
	VendorsTruncated bool             `json:"vendors_truncated,omitempty" yaml:"vendors_truncated,omitempty"`
	WellKnownVendors []string         `json:"well_known_vendors" yaml:"well_known_vendors"`
	Examples         []Occurrence     `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// LabelReport is the census entry for one goto label name.
type LabelReport struct {
	Label            string   `json:"label" yaml:"label"`
	Count            int64    `json:"count" yaml:"count"`
	WellKnownVendors []string `json:"well_known_vendors" yaml:"well_known_vendors"`
}

// Report is built once at the end of a run.
type Report struct {
	RunID         string              `json:"run_id" yaml:"run_id"`
	StartedAt     time.Time           `json:"started_at" yaml:"started_at"`
	Duration      time.Duration       `json:"duration" yaml:"duration"`
	Keywords      []KeywordReport     `json:"keywords" yaml:"keywords"`
	Labels        []LabelReport       `json:"labels,omitempty" yaml:"labels,omitempty"`
	FilesTotal    int64               `json:"files_total" yaml:"files_total"`
	FilesAnalyzed int64               `json:"files_analyzed" yaml:"files_analyzed"`
	FilesCached   int64               `json:"files_cached" yaml:"files_cached"`
	FilesFailed   int64               `json:"files_failed" yaml:"files_failed"`
	Errors        map[ErrorKind]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	ErrorSamples  []ErrorSample       `json:"error_samples,omitempty" yaml:"error_samples,omitempty"`
	Interrupted   bool                `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	LowFileCount  bool                `json:"low_file_count" yaml:"low_file_count"`
}

// BuildReport derives the report for specs from a reduced result. Every spec
// gets an entry, including keywords with no occurrences.
func BuildReport(specs []KeywordSpec, res *AggregateResult) *Report {
	if res == nil {
		res = &AggregateResult{}
	}
	failed := res.FilesFailed()
	rep := &Report{
		Keywords:      make([]KeywordReport, 0, len(specs)),
		FilesTotal:    res.FilesAnalyzed + failed,
		FilesAnalyzed: res.FilesAnalyzed,
		FilesCached:   res.FilesCached,
		FilesFailed:   failed,
		ErrorSamples:  append([]ErrorSample(nil), res.ErrorSamples.Items...),
		LowFileCount:  res.FilesAnalyzed < LowFileCountThreshold,
	}
	if len(res.Errors) > 0 {
		rep.Errors = make(map[ErrorKind]int64, len(res.Errors))
		for k, v := range res.Errors {
			rep.Errors[k] = v
		}
	}

	for _, spec := range specs {
		kr := KeywordReport{
			Keyword:          spec.Text,
			Vendors:          []string{},
			WellKnownVendors: []string{},
		}
		if r, ok := res.Keywords[spec.Key]; ok {
			kr.SoftCount = r.SoftCount
			kr.HardCount = r.HardCount
			kr.Vendors = append(kr.Vendors, r.Vendors.Items...)
			kr.VendorsTruncated = r.Vendors.Truncated
			kr.WellKnownVendors = append(kr.WellKnownVendors, r.WellKnown.Items...)
			kr.Examples = append(kr.Examples, r.Examples.Items...)
			kr.Roles = make(map[string]int64)
			for _, role := range AllRoles {
				if n := r.RoleCounts[role]; n > 0 {
					kr.Roles[role.String()] = n
				}
			}
		}
		kr.SoftImpact = CalculateImpact(kr.SoftCount)
		kr.HardImpact = CalculateImpact(kr.HardCount)
		rep.Keywords = append(rep.Keywords, kr)
	}

	for name, lr := range res.Labels {
		rep.Labels = append(rep.Labels, LabelReport{
			Label:            name,
			Count:            lr.Count,
			WellKnownVendors: append([]string{}, lr.WellKnown.Items...),
		})
	}
	sort.Slice(rep.Labels, func(i, j int) bool {
		if rep.Labels[i].Count != rep.Labels[j].Count {
			return rep.Labels[i].Count > rep.Labels[j].Count
		}
		return rep.Labels[i].Label < rep.Labels[j].Label
	})

	return rep
}

// ByImpact returns the keyword entries ordered for display: hard impact
// descending, then hard count descending, then keyword.
func (r *Report) ByImpact() []KeywordReport {
	out := append([]KeywordReport(nil), r.Keywords...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HardImpact != b.HardImpact {
			return a.HardImpact > b.HardImpact
		}
		if a.HardCount != b.HardCount {
			return a.HardCount > b.HardCount
		}
		return a.Keyword < b.Keyword
	})
	return out
}
