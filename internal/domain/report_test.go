package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateImpact(t *testing.T) {
	tests := []struct {
		count int64
		want  ImpactLevel
	}{
		{0, ImpactNone},
		{1, ImpactLow},
		{25, ImpactLow},
		{26, ImpactMedium},
		{100, ImpactMedium},
		{101, ImpactHigh},
		{500, ImpactHigh},
		{501, ImpactExtreme},
		{1_000_000, ImpactExtreme},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CalculateImpact(tt.count), "count %d", tt.count)
	}
}

func TestImpactLevel_Text(t *testing.T) {
	text, err := ImpactHigh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "High", string(text))

	var l ImpactLevel
	require.NoError(t, l.UnmarshalText([]byte("Extreme")))
	assert.Equal(t, ImpactExtreme, l)
	assert.Error(t, l.UnmarshalText([]byte("Severe")))
}

func TestBuildReport_EmptyResult(t *testing.T) {
	specs, err := ParseKeywords([]string{"with", "Await"})
	require.NoError(t, err)

	rep := BuildReport(specs, nil)
	require.Len(t, rep.Keywords, 2)
	for _, kr := range rep.Keywords {
		assert.Zero(t, kr.SoftCount)
		assert.Zero(t, kr.HardCount)
		assert.Equal(t, ImpactNone, kr.SoftImpact)
		assert.Equal(t, ImpactNone, kr.HardImpact)
		assert.NotNil(t, kr.Vendors)
		assert.Empty(t, kr.Vendors)
	}
	assert.Equal(t, "Await", rep.Keywords[1].Keyword)
	assert.True(t, rep.LowFileCount)
	assert.Zero(t, rep.FilesTotal)
}

func TestBuildReport_Counts(t *testing.T) {
	specs, err := ParseKeywords([]string{"With"})
	require.NoError(t, err)

	res := NewAggregateResult(DefaultLimits())
	file := SourceFile{Package: "symfony/console", Path: "src/A.php"}
	res.AddFile(file, FileOutcome{
		Matches: []Match{
			{Keyword: "with", Role: RoleDeclaration, Line: 3},
			{Keyword: "with", Role: RoleCall, Line: 9},
			{Keyword: "with", Role: RoleSymbolName, Line: 12},
			{Keyword: "with", Role: RoleNamedArgumentLabel, Line: 12},
		},
		Labels: []string{"retry"},
		Tokens: 40,
	}, "symfony", false)
	res.AddError(NewFileError(SourceFile{Package: "acme/x", Path: "b.php"}, ErrUnterminated))

	rep := BuildReport(specs, res)
	require.Len(t, rep.Keywords, 1)
	kr := rep.Keywords[0]
	assert.Equal(t, "With", kr.Keyword)
	assert.Equal(t, int64(2), kr.SoftCount)
	assert.Equal(t, int64(4), kr.HardCount)
	assert.Equal(t, ImpactLow, kr.SoftImpact)
	assert.Equal(t, []string{"symfony/console"}, kr.Vendors)
	assert.Equal(t, []string{"symfony"}, kr.WellKnownVendors)
	assert.Equal(t, map[string]int64{"declaration": 1, "call": 1, "symbol_name": 1, "named_argument": 1}, kr.Roles)
	assert.Len(t, kr.Examples, 4)

	assert.Equal(t, int64(2), rep.FilesTotal)
	assert.Equal(t, int64(1), rep.FilesFailed)
	assert.Equal(t, map[ErrorKind]int64{KindUnterminated: 1}, rep.Errors)
	require.Len(t, rep.Labels, 1)
	assert.Equal(t, LabelReport{Label: "retry", Count: 1, WellKnownVendors: []string{"symfony"}}, rep.Labels[0])
}

func TestReport_ByImpact(t *testing.T) {
	rep := &Report{Keywords: []KeywordReport{
		{Keyword: "c", HardCount: 10, HardImpact: ImpactLow},
		{Keyword: "a", HardCount: 600, HardImpact: ImpactExtreme},
		{Keyword: "b", HardCount: 20, HardImpact: ImpactLow},
		{Keyword: "d", HardCount: 10, HardImpact: ImpactLow},
		{Keyword: "e"},
	}}

	var order []string
	for _, kr := range rep.ByImpact() {
		order = append(order, kr.Keyword)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
	assert.Equal(t, "c", rep.Keywords[0].Keyword, "original order is kept")
}
