package analyzer

import (
	"strings"

	"kwscan/internal/domain"
)

type mode uint8

const (
	modeHTML mode = iota
	modeCode
	modeTemplate
)

// frame is one entry of the lexical mode stack. The bottom frame alternates
// between HTML and code; templates and their interpolation islands are
// pushed on top of it.
type frame struct {
	mode   mode
	quote  byte   // closing quote of a template, 0 for heredoc
	marker string // heredoc closing identifier
	island bool   // code frame opened by "{$" or "${" inside a template
	// varName marks a "${" island whose first token is a bare variable
	// name, as in "${name}" or "${name[0]}".
	varName bool
	braces  int
}

// operators are matched longest first.
var operators = []string{
	"**=", "...", "<=>", "===", "!==", "<<=", ">>=", "??=", "?->",
	"::", "->", "=>", "??", "==", "!=", "<>", "<=", ">=", "&&", "||",
	"++", "--", "+=", "-=", "*=", "/=", ".=", "%=", "&=", "|=", "^=",
	"<<", ">>", "**",
}

// Tokenizer is a pull-based PHP lexer. It never fails: malformed input
// produces Unterminated or Invalid tokens and lexing continues.
type Tokenizer struct {
	src   string
	pos   int
	line  int
	stack []frame
}

// NewTokenizer creates a tokenizer positioned at the start of src.
func NewTokenizer(src []byte) *Tokenizer {
	t := &Tokenizer{src: string(src), stack: make([]frame, 0, 4)}
	t.Reset()
	return t
}

// Reset rewinds the tokenizer to the start of its input.
func (t *Tokenizer) Reset() {
	t.pos = 0
	t.line = 1
	t.stack = append(t.stack[:0], frame{mode: modeHTML})
}

// Tokenize returns every token of src, excluding the final EOF.
func Tokenize(src []byte) []Token {
	t := NewTokenizer(src)
	tokens := make([]Token, 0, len(src)/4)
	for {
		tok := t.Next()
		if tok.Kind == EOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Next returns the next token. After the input is exhausted it keeps
// returning EOF.
func (t *Tokenizer) Next() Token {
	for {
		if t.pos >= len(t.src) {
			return t.eof()
		}
		top := &t.stack[len(t.stack)-1]
		var (
			tok Token
			ok  bool
		)
		switch top.mode {
		case modeHTML:
			tok, ok = t.scanHTML(), true
		case modeTemplate:
			tok, ok = t.scanTemplate(top)
		default:
			tok, ok = t.scanCode(top)
		}
		if ok {
			return tok
		}
	}
}

func (t *Tokenizer) eof() Token {
	for _, f := range t.stack {
		if f.mode == modeTemplate {
			t.stack = append(t.stack[:0], frame{mode: modeCode})
			return Token{Kind: TemplateEnd, Offset: len(t.src), Line: t.line, Unterminated: true}
		}
	}
	return Token{Kind: EOF, Offset: len(t.src), Line: t.line}
}

func (t *Tokenizer) emit(kind Kind, start int) Token {
	tok := Token{Kind: kind, Text: t.src[start:t.pos], Offset: start, Line: t.line}
	t.line += strings.Count(tok.Text, "\n")
	return tok
}

func (t *Tokenizer) peek(n int) byte {
	if i := t.pos + n; i < len(t.src) {
		return t.src[i]
	}
	return 0
}

func (t *Tokenizer) push(f frame) {
	t.stack = append(t.stack, f)
}

func (t *Tokenizer) pop() {
	if len(t.stack) > 1 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

func (t *Tokenizer) scanHTML() Token {
	start := t.pos
	for i := t.pos; i < len(t.src); {
		j := strings.Index(t.src[i:], "<?")
		if j < 0 {
			break
		}
		at := i + j
		if n := openTagLen(t.src[at:]); n > 0 {
			if at > start {
				t.pos = at
				return t.emit(InlineHTML, start)
			}
			t.pos = at + n
			t.stack[0].mode = modeCode
			return t.emit(OpenTag, at)
		}
		i = at + 2
	}
	t.pos = len(t.src)
	return t.emit(InlineHTML, start)
}

// openTagLen returns the length of the open tag s starts with, or 0.
func openTagLen(s string) int {
	if len(s) >= 5 && equalFoldASCII(s[2:5], "php") && (len(s) == 5 || isSpace(s[5])) {
		return 5
	}
	if len(s) >= 3 && s[2] == '=' {
		return 3
	}
	if len(s) == 2 || isSpace(s[2]) {
		return 2
	}
	return 0
}

func (t *Tokenizer) scanCode(top *frame) (Token, bool) {
	start := t.pos
	c := t.src[t.pos]
	switch {
	case isSpace(c):
		for t.pos < len(t.src) && isSpace(t.src[t.pos]) {
			t.pos++
		}
		t.line += strings.Count(t.src[start:t.pos], "\n")
		return Token{}, false

	case c == '?' && t.peek(1) == '>' && !top.island:
		t.pos += 2
		if t.peek(0) == '\n' {
			t.pos++
		} else if t.peek(0) == '\r' && t.peek(1) == '\n' {
			t.pos += 2
		}
		tok := t.emit(CloseTag, start)
		top.mode = modeHTML
		return tok, true

	case c == '#' && t.peek(1) == '[':
		t.pos += 2
		return t.emit(Punct, start), true

	case c == '#' || (c == '/' && t.peek(1) == '/'):
		return t.lineComment(), true

	case c == '/' && t.peek(1) == '*':
		return t.blockComment(), true

	case c == '$' && t.pos+1 < len(t.src) && domain.IsIdentStart(t.src[t.pos+1]):
		t.pos++
		for t.pos < len(t.src) && domain.IsIdentPart(t.src[t.pos]) {
			t.pos++
		}
		return t.emit(Variable, start), true

	case domain.IsIdentStart(c):
		for t.pos < len(t.src) && domain.IsIdentPart(t.src[t.pos]) {
			t.pos++
		}
		if top.varName {
			top.varName = false
			return t.emit(Variable, start), true
		}
		return t.emit(Identifier, start), true

	case c == '\\':
		t.pos++
		return t.emit(NsSeparator, start), true

	case isDigit(c) || (c == '.' && isDigit(t.peek(1))):
		return t.number(), true

	case c == '\'':
		return t.singleQuoted(), true

	case c == '"' || c == '`':
		t.pos++
		tok := t.emit(TemplateStart, start)
		t.push(frame{mode: modeTemplate, quote: c})
		return tok, true

	case c == '<' && strings.HasPrefix(t.src[t.pos:], "<<<"):
		if tok, ok := t.heredoc(); ok {
			return tok, true
		}

	case c == '{':
		if top.island {
			top.braces++
		}
		t.pos++
		return t.emit(Punct, start), true

	case c == '}':
		t.pos++
		tok := t.emit(Punct, start)
		if top.island {
			if top.braces == 0 {
				t.pop()
			} else {
				top.braces--
			}
		}
		return tok, true
	}

	for _, op := range operators {
		if strings.HasPrefix(t.src[t.pos:], op) {
			t.pos += len(op)
			return t.emit(Punct, start), true
		}
	}
	t.pos++
	if c < 0x20 || c == 0x7f {
		return t.emit(Invalid, start), true
	}
	return t.emit(Punct, start), true
}

// lineComment ends before a newline or a close tag.
func (t *Tokenizer) lineComment() Token {
	start := t.pos
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		if c == '\n' || (c == '?' && t.peek(1) == '>') {
			break
		}
		t.pos++
	}
	return t.emit(Comment, start)
}

func (t *Tokenizer) blockComment() Token {
	start := t.pos
	kind := Comment
	if t.peek(2) == '*' && isSpace(t.peek(3)) {
		kind = DocComment
	}
	end := strings.Index(t.src[t.pos+2:], "*/")
	if end < 0 {
		t.pos = len(t.src)
		tok := t.emit(kind, start)
		tok.Unterminated = true
		return tok
	}
	t.pos += 2 + end + 2
	return t.emit(kind, start)
}

func (t *Tokenizer) number() Token {
	start := t.pos
	if t.src[t.pos] == '0' && strings.ContainsRune("xXbBoO", rune(t.peek(1))) {
		t.pos += 2
		for t.pos < len(t.src) && (isHex(t.src[t.pos]) || t.src[t.pos] == '_') {
			t.pos++
		}
		return t.emit(Number, start)
	}
	digits := func() {
		for t.pos < len(t.src) && (isDigit(t.src[t.pos]) || t.src[t.pos] == '_') {
			t.pos++
		}
	}
	digits()
	if t.peek(0) == '.' && isDigit(t.peek(1)) {
		t.pos++
		digits()
	}
	if c := t.peek(0); c == 'e' || c == 'E' {
		n := 1
		if s := t.peek(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(t.peek(n)) {
			t.pos += n
			digits()
		}
	}
	return t.emit(Number, start)
}

func (t *Tokenizer) singleQuoted() Token {
	start := t.pos
	t.pos++
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		if c == '\\' {
			t.pos = min(t.pos+2, len(t.src))
			continue
		}
		t.pos++
		if c == '\'' {
			return t.emit(String, start)
		}
	}
	tok := t.emit(String, start)
	tok.Unterminated = true
	return tok
}

// heredoc lexes the opening line of a heredoc or nowdoc. It reports false if
// the "<<<" is not followed by a valid marker line.
func (t *Tokenizer) heredoc() (Token, bool) {
	start := t.pos
	i := t.pos + 3
	for i < len(t.src) && (t.src[i] == ' ' || t.src[i] == '\t') {
		i++
	}
	var quote byte
	if i < len(t.src) && (t.src[i] == '"' || t.src[i] == '\'') {
		quote = t.src[i]
		i++
	}
	if i >= len(t.src) || !domain.IsIdentStart(t.src[i]) {
		return Token{}, false
	}
	ns := i
	for i < len(t.src) && domain.IsIdentPart(t.src[i]) {
		i++
	}
	marker := t.src[ns:i]
	if quote != 0 {
		if i >= len(t.src) || t.src[i] != quote {
			return Token{}, false
		}
		i++
	}
	if i < len(t.src) && t.src[i] == '\r' {
		i++
	}
	if i >= len(t.src) || t.src[i] != '\n' {
		return Token{}, false
	}
	t.pos = i + 1

	if quote == '\'' {
		return t.nowdoc(start, marker), true
	}
	tok := t.emit(TemplateStart, start)
	t.push(frame{mode: modeTemplate, marker: marker})
	return tok, true
}

// nowdoc consumes an uninterpolated heredoc body and its closing marker as
// a single String token.
func (t *Tokenizer) nowdoc(start int, marker string) Token {
	for t.pos < len(t.src) {
		if n, indent := t.closingMarker(marker); n > 0 {
			t.pos += n
			tok := t.emit(String, start)
			tok.Indent = indent
			return tok
		}
		nl := strings.IndexByte(t.src[t.pos:], '\n')
		if nl < 0 {
			t.pos = len(t.src)
			break
		}
		t.pos += nl + 1
	}
	tok := t.emit(String, start)
	tok.Unterminated = true
	return tok
}

// closingMarker checks for an indented heredoc closing marker at the current
// position, which must be the start of a line. It returns the number of bytes
// up to the end of the marker and the indentation width.
func (t *Tokenizer) closingMarker(marker string) (int, int) {
	i := t.pos
	for i < len(t.src) && (t.src[i] == ' ' || t.src[i] == '\t') {
		i++
	}
	if !strings.HasPrefix(t.src[i:], marker) {
		return 0, 0
	}
	end := i + len(marker)
	if end < len(t.src) && domain.IsIdentPart(t.src[end]) {
		return 0, 0
	}
	return end - t.pos, i - t.pos
}

func (t *Tokenizer) atLineStart() bool {
	return t.pos == 0 || t.src[t.pos-1] == '\n'
}

func (t *Tokenizer) scanTemplate(top *frame) (Token, bool) {
	start := t.pos
	for t.pos < len(t.src) {
		if top.quote == 0 && t.atLineStart() {
			if n, indent := t.closingMarker(top.marker); n > 0 {
				if t.pos > start {
					return t.emit(TemplateText, start), true
				}
				t.pos += n
				tok := t.emit(TemplateEnd, start+indent)
				tok.Indent = indent
				t.pop()
				return tok, true
			}
		}
		c := t.src[t.pos]
		switch {
		case c == '\\':
			t.pos = min(t.pos+2, len(t.src))
		case top.quote != 0 && c == top.quote:
			if t.pos > start {
				return t.emit(TemplateText, start), true
			}
			t.pos++
			tok := t.emit(TemplateEnd, start)
			t.pop()
			return tok, true
		case (c == '{' && t.peek(1) == '$') || (c == '$' && t.peek(1) == '{'):
			if t.pos > start {
				return t.emit(TemplateText, start), true
			}
			varName := false
			if c == '{' {
				t.pos++
			} else {
				t.pos += 2
				varName = t.bracedVarName()
			}
			tok := t.emit(Punct, start)
			t.push(frame{mode: modeCode, island: true, varName: varName})
			return tok, true
		default:
			t.pos++
		}
	}
	if t.pos > start {
		return t.emit(TemplateText, start), true
	}
	return Token{}, false
}

// bracedVarName reports whether the "${" just consumed is followed by a
// name and then "}" or "[". That name is a variable, not an identifier.
func (t *Tokenizer) bracedVarName() bool {
	i := t.pos
	if i >= len(t.src) || !domain.IsIdentStart(t.src[i]) {
		return false
	}
	for i < len(t.src) && domain.IsIdentPart(t.src[i]) {
		i++
	}
	return i < len(t.src) && (t.src[i] == '}' || t.src[i] == '[')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
