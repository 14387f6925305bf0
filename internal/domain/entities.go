package domain

import (
	"fmt"
	"strings"
)

// KeywordSpec is a candidate keyword. Matching is case-insensitive; Text keeps
// the spelling the user supplied for reporting.
type KeywordSpec struct {
	Text string
	Key  string
}

// NewKeywordSpec validates text as a PHP identifier and returns its spec.
func NewKeywordSpec(text string) (KeywordSpec, error) {
	text = strings.TrimSpace(text)
	if !IsIdentifier(text) {
		return KeywordSpec{}, fmt.Errorf("invalid keyword %q: not an identifier", text)
	}
	return KeywordSpec{Text: text, Key: FoldKey(text)}, nil
}

// ParseKeywords builds the spec list, collapsing case-insensitive duplicates.
// The first spelling wins.
func ParseKeywords(words []string) ([]KeywordSpec, error) {
	specs := make([]KeywordSpec, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		spec, err := NewKeywordSpec(w)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[spec.Key]; dup {
			continue
		}
		seen[spec.Key] = struct{}{}
		specs = append(specs, spec)
	}
	return specs, nil
}

// FoldKey lower-cases ASCII letters only. PHP compares function and class
// names with ASCII case folding, so bytes >= 0x80 are left untouched.
func FoldKey(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

// IsIdentStart reports whether c can start a PHP identifier.
func IsIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

// IsIdentPart reports whether c can continue a PHP identifier.
func IsIdentPart(c byte) bool {
	return IsIdentStart(c) || (c >= '0' && c <= '9')
}

// IsIdentifier reports whether s matches the PHP identifier grammar.
func IsIdentifier(s string) bool {
	if s == "" || !IsIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsIdentPart(s[i]) {
			return false
		}
	}
	return true
}

// SourceFile is one unit of work handed to the engine.
type SourceFile struct {
	Package  string
	Path     string
	Encoding string
	Content  []byte
	// Loader reads Content lazily inside a worker when Content is nil.
	Loader func() ([]byte, error)
}

// Bytes returns the file content, invoking Loader if needed.
func (f SourceFile) Bytes() ([]byte, error) {
	if f.Content != nil || f.Loader == nil {
		return f.Content, nil
	}
	return f.Loader()
}

// SyntacticRole is the grammatical position of a matched identifier.
type SyntacticRole uint8

const (
	RoleDeclaration SyntacticRole = iota
	RoleCall
	RoleClosureBinding
	RoleNamedArgumentLabel
	RoleGotoLabel
	RoleSymbolName
	RoleUnclassified
)

// AllRoles lists roles in rule order.
var AllRoles = []SyntacticRole{
	RoleDeclaration,
	RoleCall,
	RoleClosureBinding,
	RoleNamedArgumentLabel,
	RoleGotoLabel,
	RoleSymbolName,
	RoleUnclassified,
}

var roleNames = [...]string{
	RoleDeclaration:        "declaration",
	RoleCall:               "call",
	RoleClosureBinding:     "closure_binding",
	RoleNamedArgumentLabel: "named_argument",
	RoleGotoLabel:          "goto_label",
	RoleSymbolName:         "symbol_name",
	RoleUnclassified:       "unclassified",
}

func (r SyntacticRole) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", r)
}

// MarshalText implements encoding.TextMarshaler.
func (r SyntacticRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *SyntacticRole) UnmarshalText(text []byte) error {
	for i, name := range roleNames {
		if name == string(text) {
			*r = SyntacticRole(i)
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", text)
}

// IsSoft reports whether the role breaks code even when the keyword is only
// reserved in function/call position.
func (r SyntacticRole) IsSoft() bool {
	switch r {
	case RoleDeclaration, RoleCall, RoleClosureBinding:
		return true
	}
	return false
}

// Occurrence is one matched identifier in one file.
type Occurrence struct {
	Keyword string        `json:"keyword" yaml:"keyword"`
	Role    SyntacticRole `json:"role" yaml:"role"`
	Package string        `json:"package" yaml:"package"`
	Path    string        `json:"path" yaml:"path"`
	Line    int           `json:"line" yaml:"line"`
}

// Less orders occurrences by package, path, line, keyword, role.
func (o Occurrence) Less(p Occurrence) bool {
	if o.Package != p.Package {
		return o.Package < p.Package
	}
	if o.Path != p.Path {
		return o.Path < p.Path
	}
	if o.Line != p.Line {
		return o.Line < p.Line
	}
	if o.Keyword != p.Keyword {
		return o.Keyword < p.Keyword
	}
	return o.Role < p.Role
}

// Match is a classifier hit before it is attributed to a package and path.
// It depends only on file content, which makes it cacheable by content hash.
type Match struct {
	Keyword string        `json:"k"`
	Role    SyntacticRole `json:"r"`
	Line    int           `json:"l"`
}

// FileOutcome is the content-only result of analyzing one file.
type FileOutcome struct {
	Matches []Match  `json:"matches,omitempty"`
	Labels  []string `json:"labels,omitempty"`
	Tokens  int      `json:"tokens"`
}
