// Package fuzzy implements phonetic person name matching.
package fuzzy

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/caio-sobreiro/dicomarc/wildcard"
)

// Encoder maps a name token to its phonetic key. Tokens that sound alike
// produce the same key; a token without letters produces "".
type Encoder interface {
	Encode(token string) string
}

// ByName returns the encoder registered under name: "soundex" or "esoundex".
func ByName(name string) (Encoder, error) {
	switch strings.ToLower(name) {
	case "soundex":
		return NewSoundex(), nil
	case "", "esoundex":
		return NewESoundex(), nil
	}
	return nil, fmt.Errorf("unknown fuzzy encoder %q", name)
}

// Normalize removes diacritics and upper-cases s.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Upper(language.Und).String(out)
}

// Tokens splits a person name into normalized tokens. Component and group
// delimiters, punctuation and spaces all separate tokens; wildcard characters
// are kept.
func Tokens(name string) []string {
	return strings.FieldsFunc(Normalize(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '*' && r != '?'
	})
}

// Keys returns the distinct phonetic keys of every token of name, sorted.
func Keys(enc Encoder, name string) []string {
	var keys []string
	for _, tok := range Tokens(name) {
		if wildcard.Has(tok) {
			continue
		}
		if k := enc.Encode(tok); k != "" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Match reports whether every token of query sounds like some token of name,
// in any order. Query tokens containing wildcards are matched literally,
// ignoring case.
func Match(enc Encoder, query, name string) bool {
	nameTokens := Tokens(name)
	for _, q := range Tokens(query) {
		if !matchToken(enc, q, nameTokens) {
			return false
		}
	}
	return true
}

func matchToken(enc Encoder, q string, tokens []string) bool {
	if wildcard.Has(q) {
		p, err := wildcard.Compile(q, true)
		if err != nil {
			return false
		}
		return slices.ContainsFunc(tokens, p.Match)
	}
	key := enc.Encode(q)
	if key == "" {
		return true
	}
	return slices.ContainsFunc(tokens, func(tok string) bool {
		return enc.Encode(tok) == key
	})
}
