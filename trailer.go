package chunked

import (
	"bytes"
	"fmt"
	"strings"
)

// TrailerField is a single decoded trailer header field.
type TrailerField struct {
	Key   string
	Value string
}

// DefaultTrailerParser is the TrailerParser collaborator used when the
// caller doesn't supply a richer header parser of its own. It is grounded
// on the teacher's header-field scanning loop (header.go's parseTrailer /
// headerScanner), adapted to a standalone consumed/examined contract and
// to populate a plain field slice instead of a shared RequestHeader.
//
// It trims OWS around field names and values but does not unfold obs-fold
// continuation lines: each CRLF-terminated line is parsed as a field of its
// own, so a continuation line without a colon is rejected as malformed. It
// does not attempt full header semantic validation; that remains the
// caller's job per spec.md §1's non-goals.
type DefaultTrailerParser struct {
	fields []TrailerField
}

// forbiddenTrailerKeys are header fields RFC 7230 §4.1.2 forbids from
// appearing in a trailer because they'd change framing or routing
// semantics after the fact.
var forbiddenTrailerKeys = map[string]struct{}{
	"content-length":   {},
	"transfer-encoding": {},
	"trailer":          {},
	"host":             {},
	"content-type":     {},
	"authorization":    {},
	"www-authenticate": {},
	"connection":       {},
	"keep-alive":       {},
}

// Fields returns the trailer fields decoded so far. Valid once Parse has
// reported done=true.
func (p *DefaultTrailerParser) Fields() []TrailerField { return p.fields }

// Parse scans buf for CRLF-terminated "Key: Value" lines up to and
// including the blank line that ends trailer-part.
func (p *DefaultTrailerParser) Parse(buf []byte) (done bool, consumed, examined int, err error) {
	pos := 0
	for {
		rest := buf[pos:]
		idx := bytes.Index(rest, strCRLF)
		if idx < 0 {
			return false, pos, len(buf), nil
		}
		line := rest[:idx]
		lineLen := idx + len(strCRLF)
		if len(line) == 0 {
			return true, pos + lineLen, pos + lineLen, nil
		}
		field, ferr := parseTrailerLine(line)
		if ferr != nil {
			return false, pos, pos, ferr
		}
		if _, bad := forbiddenTrailerKeys[strings.ToLower(field.Key)]; bad {
			return false, pos, pos, fmt.Errorf("forbidden trailer field %q", field.Key)
		}
		p.fields = append(p.fields, field)
		pos += lineLen
	}
}

var strCRLF = []byte("\r\n")

func parseTrailerLine(line []byte) (TrailerField, error) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return TrailerField{}, fmt.Errorf("malformed trailer field %q: missing colon", line)
	}
	key := bytes.TrimSpace(line[:colon])
	value := bytes.TrimSpace(line[colon+1:])
	if len(key) == 0 {
		return TrailerField{}, fmt.Errorf("malformed trailer field %q: empty key", line)
	}
	for _, b := range key {
		if !validHeaderFieldByte(b) {
			return TrailerField{}, fmt.Errorf("invalid trailer key %q", key)
		}
	}
	return TrailerField{Key: string(key), Value: string(value)}, nil
}

// validHeaderFieldByte matches exactly RFC 7230 §3.2's token characters
// (tchar) for field names; it is intentionally permissive
// about value bytes, which are not validated here at all (spec.md §1 scopes
// full header validation out).
func validHeaderFieldByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case bytes.IndexByte([]byte("!#$%&'*+-.^_`|~"), c) >= 0:
		return true
	default:
		return false
	}
}
