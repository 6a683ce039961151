// Package fieldpath addresses values inside a step's nested value tree.
// A path is an ordered list of typed segments: field or choice-option ids,
// and decimal indices into repeatable-group rows. Paths round-trip through a
// single escaped text token so they can live inside document-type strings.
package fieldpath

import (
	"strconv"
	"strings"
)

// Segment is one level of a path: either a named field/option or an index
// into a repeatable group.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Field returns a named segment.
func Field(name string) Segment { return Segment{Name: name} }

// Index returns an array-index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

// Path is an ordered sequence of segments from the value-tree root.
type Path []Segment

// With returns a copy of p extended by seg. The copy never shares backing
// storage with p, so sibling branches of a recursive walk cannot clobber
// each other.
func (p Path) With(seg Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

func (p Path) String() string { return Encode(p) }

const sep = '.'

// Encode renders p as a single token. Named segments escape backslashes and
// dots; a name consisting only of digits additionally escapes its first rune
// so Decode can tell it apart from an index segment.
func Encode(p Path) string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte(sep)
		}
		if seg.IsIndex {
			b.WriteString(strconv.Itoa(seg.Index))
			continue
		}
		b.WriteString(escapeName(seg.Name))
	}
	return b.String()
}

// Decode parses a token produced by Encode. Decode(Encode(p)) == p for any
// path; malformed escapes degrade to literal characters rather than failing.
func Decode(token string) Path {
	if token == "" {
		return nil
	}
	var out Path
	var cur strings.Builder
	escaped := false
	rawEscape := false
	flush := func() {
		raw := cur.String()
		cur.Reset()
		if !rawEscape && allDigits(raw) {
			n, err := strconv.Atoi(raw)
			if err == nil {
				out = append(out, Index(n))
				return
			}
		}
		out = append(out, Field(raw))
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
			rawEscape = true
		case c == sep:
			flush()
			rawEscape = false
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

func escapeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '\\' || c == sep || (i == 0 && allDigits(name)) {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
