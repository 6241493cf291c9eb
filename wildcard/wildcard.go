// Package wildcard implements DICOM wildcard matching, where '*' matches any
// sequence of characters and '?' matches exactly one.
package wildcard

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Has reports whether s contains a DICOM wildcard character.
func Has(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// Pattern is a compiled wildcard pattern.
type Pattern struct {
	source string
	fold   bool
	g      glob.Glob
}

// Compile compiles a DICOM wildcard pattern. Every other character matches
// literally. With fold set, matching ignores case.
func Compile(pattern string, fold bool) (*Pattern, error) {
	src := pattern
	if fold {
		src = strings.ToUpper(src)
	}
	var b strings.Builder
	for _, r := range src {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		default:
			b.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	g, err := glob.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile wildcard %q: %w", pattern, err)
	}
	return &Pattern{source: pattern, fold: fold, g: g}, nil
}

// Match reports whether s matches the pattern.
func (p *Pattern) Match(s string) bool {
	if p.fold {
		s = strings.ToUpper(s)
	}
	return p.g.Match(s)
}

func (p *Pattern) String() string {
	return p.source
}

// ToLike converts a wildcard pattern into a SQL LIKE pattern using '\' as the
// escape character.
func ToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToRegexp converts a wildcard pattern into an anchored regular expression.
func ToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			if strings.ContainsRune(`\.+()|[]{}^$`, r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')
	return b.String()
}
