package analyzer

import (
	"fmt"

	"kwscan/internal/domain"
)

// Options bounds the work spent on one file and controls strictness.
type Options struct {
	// MaxTokens aborts a file after this many tokens. Zero means no limit.
	MaxTokens int
	// MaxNesting aborts a file whose bracket nesting gets this deep.
	MaxNesting int
	// Strict turns unterminated literals and unclosed nesting into
	// per-file errors.
	Strict bool
	// CollectLabels records the name of every goto label definition.
	CollectLabels bool
}

// DefaultOptions returns the limits used by the CLI.
func DefaultOptions() Options {
	return Options{
		MaxTokens:  4_000_000,
		MaxNesting: 1024,
		Strict:     true,
	}
}

type nestKind uint8

const (
	nestGroup nestKind = iota
	nestArgs
	nestParams
	nestCapture
	nestAttr
	nestBlock
	nestBracket
	// nestUseGroup is the brace list of a group import: use A\{B, C}.
	nestUseGroup
)

type nest struct {
	kind    nestKind
	ternary int
}

// declarative keywords whose following name is a symbol (class, constant,
// namespace, import, class reference).
var symbolKeywords = map[string]struct{}{
	"class": {}, "interface": {}, "trait": {}, "enum": {}, "namespace": {},
	"const": {}, "use": {}, "extends": {}, "implements": {}, "new": {},
	"instanceof": {}, "insteadof": {}, "as": {},
}

// controlKeywords open a grouping parenthesis rather than an argument list.
var controlKeywords = map[string]struct{}{
	"if": {}, "elseif": {}, "while": {}, "for": {}, "foreach": {}, "switch": {},
	"catch": {}, "match": {}, "declare": {}, "return": {}, "echo": {},
	"print": {}, "and": {}, "or": {}, "xor": {}, "yield": {}, "throw": {},
	"case": {}, "include": {}, "require": {}, "include_once": {},
	"require_once": {}, "clone": {}, "new": {},
}

// reservedWords cannot name a goto label.
var reservedWords = map[string]struct{}{
	"abstract": {}, "and": {}, "array": {}, "as": {}, "break": {}, "callable": {},
	"case": {}, "catch": {}, "class": {}, "clone": {}, "const": {}, "continue": {},
	"declare": {}, "default": {}, "do": {}, "echo": {}, "else": {}, "elseif": {},
	"empty": {}, "enddeclare": {}, "endfor": {}, "endforeach": {}, "endif": {},
	"endswitch": {}, "endwhile": {}, "enum": {}, "eval": {}, "exit": {}, "die": {},
	"extends": {}, "final": {}, "finally": {}, "fn": {}, "for": {}, "foreach": {},
	"function": {}, "global": {}, "goto": {}, "if": {}, "implements": {},
	"include": {}, "include_once": {}, "instanceof": {}, "insteadof": {},
	"interface": {}, "isset": {}, "list": {}, "match": {}, "namespace": {},
	"new": {}, "or": {}, "parent": {}, "print": {}, "private": {}, "protected": {},
	"public": {}, "readonly": {}, "require": {}, "require_once": {}, "return": {},
	"self": {}, "static": {}, "switch": {}, "throw": {}, "trait": {}, "try": {},
	"unset": {}, "use": {}, "var": {}, "while": {}, "xor": {}, "yield": {},
}

// Classifier assigns a syntactic role to every identifier matching one of
// its keywords. It is stateless between files and safe for concurrent use.
type Classifier struct {
	byLen map[int][]string
	opts  Options
}

// NewClassifier builds a classifier for the given keywords.
func NewClassifier(specs []domain.KeywordSpec, opts Options) *Classifier {
	c := &Classifier{byLen: make(map[int][]string), opts: opts}
	for _, s := range specs {
		c.byLen[len(s.Key)] = append(c.byLen[len(s.Key)], s.Key)
	}
	return c
}

// Options returns the options the classifier was built with.
func (c *Classifier) Options() Options {
	return c.opts
}

func (c *Classifier) match(name string) (string, bool) {
	for _, key := range c.byLen[len(name)] {
		if equalFoldASCII(name, key) {
			return key, true
		}
	}
	return "", false
}

// Classify lexes and classifies one file.
func (c *Classifier) Classify(src []byte) (domain.FileOutcome, error) {
	return c.ClassifyTokens(NewTokenizer(src))
}

// TokenSource yields tokens until EOF.
type TokenSource interface {
	Next() Token
}

// ClassifyTokens classifies a token stream. On error the partial outcome is
// returned alongside it and must not be counted.
func (c *Classifier) ClassifyTokens(src TokenSource) (domain.FileOutcome, error) {
	w := walker{c: c, src: src}
	return w.run()
}

// walker holds the per-file state of one classification pass.
type walker struct {
	c   *Classifier
	src TokenSource

	out   domain.FileOutcome
	stack []nest
	root  nest

	// prev holds the last three significant tokens, most recent first.
	prev [3]Token
	// chainPrev is the token before the qualified name the current
	// identifier belongs to.
	chainPrev Token
	// lastClosed is the kind of the most recently closed parenthesis.
	lastClosed nestKind
	// colonStmt is set when the previous significant token was a
	// statement-level colon (label, case, alternative syntax).
	colonStmt bool

	unterminated bool
	tokens       int
}

// next returns the next significant token, counting trivia against the
// token limit.
func (w *walker) next() (Token, error) {
	for {
		tok := w.src.Next()
		if tok.Kind == EOF {
			return tok, nil
		}
		w.tokens++
		if max := w.c.opts.MaxTokens; max > 0 && w.tokens > max {
			return tok, fmt.Errorf("%w: more than %d tokens", domain.ErrTokenLimit, max)
		}
		if tok.Unterminated {
			w.unterminated = true
		}
		if !tok.IsTrivia() {
			return tok, nil
		}
	}
}

func (w *walker) run() (domain.FileOutcome, error) {
	cur, err := w.next()
	if err != nil {
		return w.finish(err)
	}
	for cur.Kind != EOF {
		nxt, err := w.next()
		if err != nil {
			return w.finish(err)
		}
		if err := w.step(cur, nxt); err != nil {
			return w.finish(err)
		}
		cur = nxt
	}

	if w.c.opts.Strict {
		if w.unterminated {
			return w.finish(fmt.Errorf("%w", domain.ErrUnterminated))
		}
		if len(w.stack) > 0 {
			return w.finish(fmt.Errorf("%w: %d open at end of file", domain.ErrUnclosedNesting, len(w.stack)))
		}
	}
	return w.finish(nil)
}

func (w *walker) finish(err error) (domain.FileOutcome, error) {
	w.out.Tokens = w.tokens
	return w.out, err
}

func (w *walker) top() *nest {
	if len(w.stack) == 0 {
		return &w.root
	}
	return &w.stack[len(w.stack)-1]
}

func (w *walker) topKind() (nestKind, bool) {
	if len(w.stack) == 0 {
		return 0, false
	}
	return w.stack[len(w.stack)-1].kind, true
}

// step classifies cur if it matches a keyword and then applies its
// structural effect.
func (w *walker) step(cur, nxt Token) error {
	if (cur.Kind == Identifier || cur.Kind == NsSeparator) && !w.continuesName(cur) {
		w.chainPrev = w.prev[0]
	}

	switch cur.Kind {
	case Identifier:
		if key, ok := w.c.match(cur.Text); ok {
			w.record(key, w.classify(cur, nxt), cur.Line)
		}
		if w.c.opts.CollectLabels && w.isLabelDefinition(cur, nxt) {
			w.out.Labels = append(w.out.Labels, cur.Text)
		}
	case Variable:
		if kind, ok := w.topKind(); ok && kind == nestCapture {
			if key, ok := w.c.match(cur.Text[1:]); ok {
				w.record(key, domain.RoleClosureBinding, cur.Line)
			}
		}
	}

	if err := w.structure(cur); err != nil {
		return err
	}
	w.prev[2], w.prev[1], w.prev[0] = w.prev[1], w.prev[0], cur
	return nil
}

// continuesName reports whether cur extends the qualified name ending in
// the previous token. Name parts are never separated by whitespace.
func (w *walker) continuesName(cur Token) bool {
	p := w.prev[0]
	if p.Offset+len(p.Text) != cur.Offset {
		return false
	}
	switch cur.Kind {
	case NsSeparator:
		return p.Kind == Identifier
	case Identifier:
		return p.Kind == NsSeparator
	}
	return false
}

func (w *walker) record(key string, role domain.SyntacticRole, line int) {
	w.out.Matches = append(w.out.Matches, domain.Match{Keyword: key, Role: role, Line: line})
}

// classify applies the role rules in order; the first match wins.
func (w *walker) classify(cur, nxt Token) domain.SyntacticRole {
	p1, p2, p3 := w.prev[0], w.prev[1], w.prev[2]

	if kind, ok := w.topKind(); ok && kind == nestUseGroup {
		return domain.RoleSymbolName
	}

	if p1.IsWord("function") && !p2.IsWord("use") {
		return domain.RoleDeclaration
	}
	if p1.Is("&") && p2.IsWord("function") && !p3.IsWord("use") {
		return domain.RoleDeclaration
	}

	if nxt.Is("(") && !w.isClassReference() {
		return domain.RoleCall
	}

	kind, nested := w.topKind()
	if nested && kind == nestCapture {
		return domain.RoleClosureBinding
	}

	if nxt.Is(":") {
		if nested && kind == nestArgs && (p1.Is("(") || p1.Is(",")) {
			return domain.RoleNamedArgumentLabel
		}
		if w.isLabelDefinition(cur, nxt) {
			return domain.RoleGotoLabel
		}
	}
	if p1.IsWord("goto") {
		return domain.RoleGotoLabel
	}

	if w.isSymbolName(nxt) {
		return domain.RoleSymbolName
	}
	return domain.RoleUnclassified
}

// isClassReference reports whether the current name is instantiated with
// new or names an attribute; both look like calls but name classes.
func (w *walker) isClassReference() bool {
	if w.chainPrev.IsWord("new") {
		return true
	}
	return w.isAttributeName()
}

func (w *walker) isAttributeName() bool {
	kind, ok := w.topKind()
	return ok && kind == nestAttr && (w.chainPrev.Is("#[") || w.chainPrev.Is(","))
}

// isLabelDefinition reports whether cur followed by nxt defines a goto
// label: "name:" at statement level.
func (w *walker) isLabelDefinition(cur, nxt Token) bool {
	if !nxt.Is(":") {
		return false
	}
	if kind, ok := w.topKind(); ok && kind != nestBlock {
		return false
	}
	if _, reserved := reservedWords[domain.FoldKey(cur.Text)]; reserved {
		return false
	}
	p1 := w.prev[0]
	switch p1.Kind {
	case EOF, OpenTag, CloseTag, InlineHTML:
		return true
	case Punct:
		switch p1.Text {
		case ";", "{", "}":
			return true
		case ":":
			return w.colonStmt
		}
	}
	return false
}

func (w *walker) isSymbolName(nxt Token) bool {
	p1, p2 := w.prev[0], w.prev[1]

	if isSymbolKeyword(p1) || isSymbolKeyword(w.chainPrev) {
		return true
	}
	if p1.IsWord("function") {
		// function import: use function name;
		return true
	}
	if p1.IsWord("case") && (nxt.Is(";") || nxt.Is("=")) {
		return true
	}
	switch {
	case p1.Is("->"), p1.Is("?->"), p1.Is("::"):
		return true
	case p1.Kind == NsSeparator, nxt.Kind == NsSeparator, nxt.Is("::"):
		return true
	case nxt.Kind == Variable, nxt.Is("..."):
		return true
	case p1.Is(":") && p2.Is(")") && w.lastClosed == nestParams:
		return true
	case p1.Is("?") && p2.Is(":"):
		return true
	case w.isAttributeName():
		return true
	}
	if kind, ok := w.topKind(); ok && kind == nestParams {
		if nxt.Is("&") || nxt.Is("|") || p1.Is("?") || p1.Is("|") {
			return true
		}
	}
	return false
}

func isSymbolKeyword(t Token) bool {
	if t.Kind != Identifier {
		return false
	}
	_, ok := symbolKeywords[domain.FoldKey(t.Text)]
	return ok
}

// structure updates the nesting stack and ternary bookkeeping for cur.
func (w *walker) structure(cur Token) error {
	wasColonStmt := false
	defer func() { w.colonStmt = wasColonStmt }()

	switch cur.Kind {
	case CloseTag, InlineHTML:
		w.top().ternary = 0
		return nil
	case Punct:
	default:
		return nil
	}

	switch cur.Text {
	case "(":
		return w.push(w.parenKind())
	case "{":
		if w.prev[0].Kind == NsSeparator {
			return w.push(nestUseGroup)
		}
		return w.push(nestBlock)
	case "${":
		return w.push(nestBlock)
	case "[":
		return w.push(nestBracket)
	case "#[":
		return w.push(nestAttr)
	case ")":
		if k, ok := w.pop(nestGroup, nestArgs, nestParams, nestCapture); ok {
			w.lastClosed = k
		}
	case "}":
		w.pop(nestBlock, nestUseGroup)
		w.top().ternary = 0
	case "]":
		w.pop(nestBracket, nestAttr)
	case ";":
		w.top().ternary = 0
	case "?":
		w.top().ternary++
	case ":":
		if t := w.top(); t.ternary > 0 {
			t.ternary--
		} else if kind, ok := w.topKind(); !ok || kind == nestBlock {
			wasColonStmt = true
		}
	}
	return nil
}

// parenKind decides what an opening parenthesis starts from the tokens
// before it.
func (w *walker) parenKind() nestKind {
	p1, p2, p3 := w.prev[0], w.prev[1], w.prev[2]
	switch {
	case p1.IsWord("function"), p1.IsWord("fn"):
		return nestParams
	case p1.Is("&") && (p2.IsWord("function") || p2.IsWord("fn")):
		return nestParams
	case p1.Kind == Identifier && p2.IsWord("function"):
		return nestParams
	case p1.Kind == Identifier && p2.Is("&") && p3.IsWord("function"):
		return nestParams
	case p1.IsWord("use") && p2.Is(")") && w.lastClosed == nestParams:
		return nestCapture
	case p1.Kind == Identifier:
		if _, ok := controlKeywords[domain.FoldKey(p1.Text)]; ok {
			return nestGroup
		}
		return nestArgs
	case p1.Kind == Variable, p1.Is(")"), p1.Is("]"), p1.Is("}"), p1.Kind == String:
		return nestArgs
	}
	return nestGroup
}

func (w *walker) push(kind nestKind) error {
	if max := w.c.opts.MaxNesting; max > 0 && len(w.stack) >= max {
		return fmt.Errorf("%w: deeper than %d", domain.ErrNestingLimit, max)
	}
	w.stack = append(w.stack, nest{kind: kind})
	return nil
}

// pop closes the innermost entry of one of the given kinds. Entries opened
// above it are discarded; a closer with no matching opener is ignored.
func (w *walker) pop(kinds ...nestKind) (nestKind, bool) {
	for i := len(w.stack) - 1; i >= 0; i-- {
		for _, k := range kinds {
			if w.stack[i].kind == k {
				w.stack = w.stack[:i]
				return k, true
			}
		}
	}
	return 0, false
}
