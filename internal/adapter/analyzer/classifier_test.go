package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwscan/internal/domain"
)

func newTestClassifier(t *testing.T, opts Options, words ...string) *Classifier {
	t.Helper()
	specs, err := domain.ParseKeywords(words)
	require.NoError(t, err)
	return NewClassifier(specs, opts)
}

func roles(t *testing.T, src string, words ...string) []domain.SyntacticRole {
	t.Helper()
	c := newTestClassifier(t, DefaultOptions(), words...)
	out, err := c.Classify([]byte(src))
	require.NoError(t, err)
	got := make([]domain.SyntacticRole, 0, len(out.Matches))
	for _, m := range out.Matches {
		got = append(got, m.Role)
	}
	return got
}

func TestClassifier_Declaration(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"function", `<?php function with() {}`},
		{"method", `<?php class A { public static function with(): void {} }`},
		{"by reference", `<?php function &with() {}`},
		{"upper case function keyword", `<?php FUNCTION with() {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []domain.SyntacticRole{domain.RoleDeclaration}, roles(t, tt.src, "with"))
		})
	}
}

func TestClassifier_Call(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"plain", `<?php with(1);`},
		{"method", `<?php $o->with();`},
		{"nullsafe method", `<?php $o?->with();`},
		{"static", `<?php A::with();`},
		{"qualified", `<?php \Ns\with();`},
		{"first class callable", `<?php $f = with(...);`},
		{"inside interpolation", `<?php "x {$o->with()} y";`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []domain.SyntacticRole{domain.RoleCall}, roles(t, tt.src, "with"))
		})
	}
}

func TestClassifier_ClosureBinding(t *testing.T) {
	assert.Equal(t,
		[]domain.SyntacticRole{domain.RoleClosureBinding},
		roles(t, `<?php $f = function () use ($with) { return 1; };`, "with"))
	assert.Equal(t,
		[]domain.SyntacticRole{domain.RoleClosureBinding},
		roles(t, `<?php $f = function ($a) use ($b, &$with) {};`, "with"))
}

func TestClassifier_UseAfterCallIsNotCapture(t *testing.T) {
	// A "use" following a call's closing parenthesis is not a closure capture.
	got := roles(t, `<?php foo() use ($with);`, "with")
	assert.Empty(t, got)
}

func TestClassifier_NamedArgumentLabel(t *testing.T) {
	assert.Equal(t,
		[]domain.SyntacticRole{domain.RoleNamedArgumentLabel, domain.RoleNamedArgumentLabel},
		roles(t, `<?php foo(with: 1, other: 2); $o->bar(1, with: 2);`, "with"))
}

func TestClassifier_GotoLabel(t *testing.T) {
	assert.Equal(t,
		[]domain.SyntacticRole{domain.RoleGotoLabel, domain.RoleGotoLabel},
		roles(t, `<?php goto with; with: echo 1;`, "with"))
	assert.Equal(t,
		[]domain.SyntacticRole{domain.RoleGotoLabel},
		roles(t, `<?php function f() { with: return; }`, "with"))
}

func TestClassifier_ColonsThatAreNotLabels(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"ternary", `<?php $a = $b ? with : 1;`},
		{"switch case", `<?php switch ($x) { case with: break; }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []domain.SyntacticRole{domain.RoleUnclassified}, roles(t, tt.src, "with"))
		})
	}
}

func TestClassifier_SymbolName(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"class", `<?php class with {}`},
		{"interface", `<?php interface with {}`},
		{"const", `<?php const with = 1;`},
		{"import", `<?php use Foo\with;`},
		{"function import", `<?php use function with;`},
		{"group import", `<?php use Foo\{with, Bar};`},
		{"group import alias", `<?php use Foo\{Bar as with};`},
		{"group function import", `<?php use function Foo\{function with};`},
		{"group import sub-namespace", `<?php use Foo\{Bar\with};`},
		{"instantiation", `<?php new with();`},
		{"qualified instantiation", `<?php new \A\with();`},
		{"instanceof", `<?php $x instanceof with;`},
		{"property", `<?php $o->with;`},
		{"class constant", `<?php A::with;`},
		{"static receiver", `<?php with::create();`},
		{"namespace prefix", `<?php with\bar();`},
		{"parameter type", `<?php function f(with $x) {}`},
		{"return type", `<?php function f(): with {}`},
		{"nullable return type", `<?php $f = fn(): ?with => null;`},
		{"attribute", `<?php #[with] function f() {}`},
		{"attribute with arguments", `<?php #[with(1)] class A {}`},
		{"enum case", `<?php enum E { case with; }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []domain.SyntacticRole{domain.RoleSymbolName}, roles(t, tt.src, "with"))
		})
	}
}

func TestClassifier_Unclassified(t *testing.T) {
	assert.Equal(t, []domain.SyntacticRole{domain.RoleUnclassified}, roles(t, `<?php echo with;`, "with"))
	assert.Equal(t, []domain.SyntacticRole{domain.RoleUnclassified}, roles(t, `<?php $a = with + 1;`, "with"))
}

func TestClassifier_IgnoresLiteralsCommentsAndHTML(t *testing.T) {
	src := "<?php 'with()'; \"with()\"; // with()\n/* with() */ /** with() */ ?> with() <?php\n" +
		"$s = <<<'X'\nwith()\nX;\n$t = <<<Y\nwith()\nY;\n"
	assert.Empty(t, roles(t, src, "with"))
}

func TestClassifier_BracedInterpolationNameIsNotAnIdentifier(t *testing.T) {
	for _, src := range []string{
		`<?php echo "${with}";`,
		`<?php echo "${with['a']}";`,
		`<?php echo "a ${with} b";`,
		"<?php echo <<<X\n${with[0]}\nX;\n",
	} {
		assert.Empty(t, roles(t, src, "with"), src)
	}
	// A "${" expression is code.
	assert.Equal(t, []domain.SyntacticRole{domain.RoleCall}, roles(t, `<?php echo "${ with() }";`, "with"))
}

func TestClassifier_GroupImportClosesCleanly(t *testing.T) {
	src := "<?php\nuse Foo\\{Bar, Baz};\nfunction with() {}\nwith();\n"
	assert.Equal(t, []domain.SyntacticRole{domain.RoleDeclaration, domain.RoleCall}, roles(t, src, "with"))
}

func TestClassifier_VariablesOutsideCaptureAreIgnored(t *testing.T) {
	assert.Empty(t, roles(t, `<?php $with = 1; $o->$with();`, "with"))
}

func TestClassifier_CaseInsensitive(t *testing.T) {
	c := newTestClassifier(t, DefaultOptions(), "With")
	out, err := c.Classify([]byte(`<?php WITH(); with::x();`))
	require.NoError(t, err)
	require.Len(t, out.Matches, 2)
	assert.Equal(t, domain.Match{Keyword: "with", Role: domain.RoleCall, Line: 1}, out.Matches[0])
	assert.Equal(t, domain.RoleSymbolName, out.Matches[1].Role)
}

func TestClassifier_MultipleKeywords(t *testing.T) {
	c := newTestClassifier(t, DefaultOptions(), "with", "await", "wait")
	out, err := c.Classify([]byte("<?php\nawait();\nfunction wait() {}\nwith: ;\n"))
	require.NoError(t, err)
	assert.Equal(t, []domain.Match{
		{Keyword: "await", Role: domain.RoleCall, Line: 2},
		{Keyword: "wait", Role: domain.RoleDeclaration, Line: 3},
		{Keyword: "with", Role: domain.RoleGotoLabel, Line: 4},
	}, out.Matches)
}

func TestClassifier_SoftAndHardCounts(t *testing.T) {
	src := "<?php\nfunction with() {}\n$x->with();\ngoto with;\nwith: echo 1;\n"
	got := roles(t, src, "with")

	var soft, hard int
	for _, r := range got {
		hard++
		if r.IsSoft() {
			soft++
		}
	}
	assert.Equal(t, 2, soft)
	assert.Equal(t, 4, hard)
}

func TestClassifier_TokenCount(t *testing.T) {
	c := newTestClassifier(t, DefaultOptions(), "with")
	out, err := c.Classify([]byte(`<?php /* c */ a;`))
	require.NoError(t, err)
	assert.Equal(t, 4, out.Tokens)
}

func TestClassifier_Labels(t *testing.T) {
	opts := DefaultOptions()
	opts.CollectLabels = true
	c := newTestClassifier(t, opts, "with")

	out, err := c.Classify([]byte(`<?php a: goto a; if ($x) { retry: } $y = $z ? b : c;`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "retry"}, out.Labels)
	assert.Empty(t, out.Matches)
}

func TestClassifier_TokenLimit(t *testing.T) {
	c := newTestClassifier(t, Options{MaxTokens: 3}, "with")
	_, err := c.Classify([]byte(`<?php a b c d`))
	assert.ErrorIs(t, err, domain.ErrTokenLimit)
}

func TestClassifier_NestingLimit(t *testing.T) {
	c := newTestClassifier(t, Options{MaxNesting: 2}, "with")
	_, err := c.Classify([]byte(`<?php (((1)));`))
	assert.ErrorIs(t, err, domain.ErrNestingLimit)

	_, err = c.Classify([]byte(`<?php ((1));`))
	assert.NoError(t, err)
}

func TestClassifier_StrictMode(t *testing.T) {
	strict := newTestClassifier(t, Options{Strict: true}, "with")
	lenient := newTestClassifier(t, Options{}, "with")

	_, err := strict.Classify([]byte(`<?php function with() {`))
	assert.ErrorIs(t, err, domain.ErrUnclosedNesting)
	assert.Equal(t, domain.KindUnclosedNesting, domain.KindOf(err))

	_, err = strict.Classify([]byte(`<?php with(); 'abc`))
	assert.ErrorIs(t, err, domain.ErrUnterminated)

	out, err := lenient.Classify([]byte(`<?php function with() {`))
	require.NoError(t, err)
	assert.Len(t, out.Matches, 1)
}

func TestClassifier_StrayClosersAreIgnored(t *testing.T) {
	assert.Equal(t, []domain.SyntacticRole{domain.RoleCall}, roles(t, `<?php ) ] } with();`, "with"))
}

func TestClassifier_EmptyAndHTMLOnly(t *testing.T) {
	assert.Empty(t, roles(t, ``, "with"))
	assert.Empty(t, roles(t, `<html>with()</html>`, "with"))
}
