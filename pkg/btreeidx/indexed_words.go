package btreeidx

import (
	"sort"
	"unicode"
)

// maxChainThrottle caps the number of middle-match entries a chain
// accumulates per folded key; whole-word entries (prefix == start of
// the trimmed phrase) are never subject to it.
const maxChainThrottle = 1024

// IndexedWords is the ordered mapping folded_key -> chain[WordArticleLink]
// the builder consumes. It is owned by the build pipeline: created
// empty, appended to by AddWord/AddSingleWord, and consumed once by
// BuildIndex. BuildIndexFromWords wraps a plain map in an IndexedWords
// directly.
type IndexedWords struct {
	chains map[string][]WordArticleLink
	sorted []string
	dirty  bool
}

// NewIndexedWords creates an empty ordered mapping.
func NewIndexedWords() *IndexedWords {
	return &IndexedWords{chains: make(map[string][]WordArticleLink)}
}

// AddWord implements spec.md §4.C: trims Folder-classified whitespace,
// walks token-start positions, and for each one inserts an entry keyed
// by folding the *entire remaining suffix* from that position (not
// just the token) — the mid-phrase indexing surprise spec.md §9 warns
// against "fixing". Throttles non-start insertions once a chain holds
// maxChainThrottle entries.
func (iw *IndexedWords) AddWord(w string, articleOffset uint32, fold Folder) {
	runes := []rune(w)
	start, end := trimBounds(runes, fold)
	if start >= end {
		return
	}
	trimmed := runes[start:end]

	atTokenStart := true
	for p := 0; p < len(trimmed); p++ {
		r := trimmed[p]
		if fold.IsWhitespace(r) || fold.IsPunct(r) {
			atTokenStart = true
			continue
		}
		if !atTokenStart {
			continue
		}
		atTokenStart = false

		suffix := string(trimmed[p:])
		prefix := string(trimmed[:p])
		key := fold.Apply(suffix)

		iw.insert(key, WordArticleLink{Word: suffix, Prefix: prefix, ArticleOffset: articleOffset}, p == 0)
	}
}

// AddSingleWord inserts one whole-word entry with an empty prefix,
// keyed by the folded form of w in its entirety.
func (iw *IndexedWords) AddSingleWord(w string, articleOffset uint32, fold Folder) {
	key := fold.Apply(w)
	iw.insert(key, WordArticleLink{Word: w, Prefix: "", ArticleOffset: articleOffset}, true)
}

func (iw *IndexedWords) insert(key string, link WordArticleLink, isStart bool) {
	chain := iw.chains[key]
	if !isStart && len(chain) >= maxChainThrottle {
		return
	}
	iw.chains[key] = append(chain, link)
	iw.dirty = true
}

// trimBounds finds the rune index range of w with leading/trailing
// Folder-classified whitespace removed.
func trimBounds(runes []rune, fold Folder) (start, end int) {
	start = 0
	for start < len(runes) && fold.IsWhitespace(runes[start]) {
		start++
	}
	end = len(runes)
	for end > start && fold.IsWhitespace(runes[end-1]) {
		end--
	}
	return start, end
}

// Finish sorts and returns the mapping's keys in strict ascending
// byte order, the iteration order the tree builder requires. Mirrors
// the teacher's ChunkLoader convention of sorting chunk metadata with
// sort.Slice before consumption, applied here to the folded-key space.
func (iw *IndexedWords) Finish() []string {
	if !iw.dirty && iw.sorted != nil {
		return iw.sorted
	}
	keys := make([]string, 0, len(iw.chains))
	for k := range iw.chains {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	iw.sorted = keys
	iw.dirty = false
	return keys
}

// Chain returns the chain stored under key, or nil if absent.
func (iw *IndexedWords) Chain(key string) []WordArticleLink {
	return iw.chains[key]
}

// Len returns the number of distinct folded keys.
func (iw *IndexedWords) Len() int {
	return len(iw.chains)
}

// SimpleFolder is a default Folder good enough to run the module
// standalone: Unicode case folding via unicode.ToLower on each rune plus
// unicode.IsSpace/unicode.IsPunct classification. Callers embedding a
// real dictionary engine (with transliteration tables, locale-specific
// collation, etc.) supply their own Folder instead; see package
// folding for a fuller implementation built on golang.org/x/text.
type SimpleFolder struct{}

func (SimpleFolder) Apply(s string) string {
	return foldCase(s)
}

func (SimpleFolder) ApplySimpleCaseOnly(s string) string {
	return foldCase(s)
}

func (SimpleFolder) IsWhitespace(r rune) bool { return unicode.IsSpace(r) }
func (SimpleFolder) IsPunct(r rune) bool      { return unicode.IsPunct(r) }

func foldCase(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}
