package analyzer

import "fmt"

// Kind is the lexical category of a token.
type Kind uint8

const (
	EOF Kind = iota
	InlineHTML
	OpenTag
	CloseTag
	Comment
	DocComment
	Identifier
	Variable
	Number
	// String is a literal without interpolation: single-quoted or nowdoc.
	String
	// TemplateStart opens an interpolating literal: `"`, "`" or `<<<ID`.
	TemplateStart
	TemplateText
	// TemplateEnd closes an interpolating literal. For heredocs Text is the
	// closing marker and Indent its indentation.
	TemplateEnd
	NsSeparator
	Punct
	Invalid
)

var kindNames = [...]string{
	EOF:           "EOF",
	InlineHTML:    "INLINE_HTML",
	OpenTag:       "OPEN_TAG",
	CloseTag:      "CLOSE_TAG",
	Comment:       "COMMENT",
	DocComment:    "DOC_COMMENT",
	Identifier:    "IDENT",
	Variable:      "VARIABLE",
	Number:        "NUMBER",
	String:        "STRING",
	TemplateStart: "TEMPLATE_START",
	TemplateText:  "TEMPLATE_TEXT",
	TemplateEnd:   "TEMPLATE_END",
	NsSeparator:   "NS_SEPARATOR",
	Punct:         "PUNCT",
	Invalid:       "INVALID",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Token is one lexical unit. Text is the exact source slice.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
	Line   int
	// Unterminated is set on literals and comments that ran into EOF.
	Unterminated bool
	Indent       int
}

// Is reports whether t is punctuation with exactly the given text.
func (t Token) Is(punct string) bool {
	return t.Kind == Punct && t.Text == punct
}

// IsWord reports whether t is an identifier equal to the lower-case word w
// under ASCII case folding.
func (t Token) IsWord(w string) bool {
	return t.Kind == Identifier && equalFoldASCII(t.Text, w)
}

// IsTrivia reports whether the classifier skips the token.
func (t Token) IsTrivia() bool {
	return t.Kind == Comment || t.Kind == DocComment
}

func (t Token) String() string {
	return fmt.Sprintf("%d:%s %q", t.Line, t.Kind, t.Text)
}

// equalFoldASCII compares s with a lower-case ASCII word.
func equalFoldASCII(s, lower string) bool {
	if len(s) != len(lower) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != lower[i] {
			return false
		}
	}
	return true
}
