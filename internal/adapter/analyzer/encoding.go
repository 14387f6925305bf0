package analyzer

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"kwscan/internal/domain"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8000

// Decode converts content in the named encoding to UTF-8. Invalid UTF-8 is
// replaced rather than rejected; unknown encodings and binary content fail
// with domain.ErrEncoding.
func Decode(content []byte, name string) ([]byte, error) {
	if bytes.IndexByte(content[:min(len(content), binarySniffLen)], 0) >= 0 {
		return nil, fmt.Errorf("%w: binary content", domain.ErrEncoding)
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 && isASCII(content) {
		return content, nil
	}
	out, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncoding, err)
	}
	return out, nil
}

// ValidEncoding reports whether name is an encoding Decode accepts.
func ValidEncoding(name string) bool {
	_, err := lookupEncoding(name)
	return err == nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrEncoding, name)
	}
	return enc, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
