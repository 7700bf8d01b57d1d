// Package folding provides the Unicode normalization collaborator the
// btree index treats as external: spec.md scopes "Folding::apply" and
// friends out of the core, naming only the interface shape. This
// package supplies a concrete default so the index is runnable and
// testable standalone; callers embedding a real dictionary engine can
// supply their own implementation of btreeidx.Folder instead.
package folding

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Simple folds a string by NFKD-decomposing it, stripping combining
// marks (diacritics), and lowercasing the result. ApplySimpleCaseOnly
// skips the decomposition step and only lowercases, matching the
// Glossary's "simple-case-folded form" used by antialias.
type Simple struct{}

var stripDiacritics = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Apply performs full normalization: NFKD decompose, drop combining
// marks, recompose, lowercase.
func (Simple) Apply(s string) string {
	folded, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// ApplySimpleCaseOnly performs only case folding, used by antialias to
// compare candidate headwords against the original query without also
// collapsing diacritics (so "café" and "cafe" are not conflated at the
// antialias stage even though they share a folded key).
func (Simple) ApplySimpleCaseOnly(s string) string {
	return strings.ToLower(s)
}

// IsWhitespace classifies r as whitespace for the purposes of phrase
// trimming and tokenization.
func (Simple) IsWhitespace(r rune) bool {
	return unicode.IsSpace(r)
}

// IsPunct classifies r as punctuation for tokenization.
func (Simple) IsPunct(r rune) bool {
	return unicode.IsPunct(r)
}

// None is the identity folder: Apply and ApplySimpleCaseOnly are
// no-ops. Useful for tests that want exact-byte control over tree keys
// without normalization noise.
type None struct{}

func (None) Apply(s string) string             { return s }
func (None) ApplySimpleCaseOnly(s string) string { return s }
func (None) IsWhitespace(r rune) bool           { return unicode.IsSpace(r) }
func (None) IsPunct(r rune) bool                { return unicode.IsPunct(r) }
