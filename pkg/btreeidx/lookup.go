package btreeidx

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/bastiangx/wordserve/pkg/btreeidx/blockio"
	"github.com/bastiangx/wordserve/pkg/btreeidx/node"
)

// BtreeIndex is a handle on an already-opened, already-built index
// file. It owns the shared file mutex serializing reads and a
// write-once/read-many cached root node buffer.
type BtreeIndex struct {
	info IndexInfo
	f    blockio.RandomReaderAt
	mu   *sync.Mutex

	rootCache atomic.Pointer[[]byte]
	sf        singleflight.Group
}

// Open attaches a handle to an already-built index file. info is the
// persisted (maxElements, rootOffset) pair; f provides positioned
// reads; mu is the handle-scoped mutex serializing node reads across
// concurrent callers.
func Open(info IndexInfo, f blockio.RandomReaderAt, mu *sync.Mutex) *BtreeIndex {
	return &BtreeIndex{info: info, f: f, mu: mu}
}

// leafPosition anchors a point within a leaf's parsed chain table so a
// prefix scan can resume from it, crossing leaf boundaries as needed.
// The buffer is carried alongside the offset so its lifetime is
// explicit, per spec.md §9's pointer-arithmetic-to-cursor note.
type leafPosition struct {
	buf      []byte
	offsets  []int
	at       int
	nextLeaf uint32
}

func (p leafPosition) exhausted() bool { return p.at >= len(p.offsets) }

func (p leafPosition) chain() node.Chain {
	return node.Chain{Leaf: p.buf, Offset: p.offsets[p.at]}
}

// loadNode reads and, for the root, caches a node's decompressed
// payload. offset is the node's starting file position.
func (idx *BtreeIndex) loadNode(offset int64, isRoot bool) ([]byte, error) {
	if isRoot {
		if cached := idx.rootCache.Load(); cached != nil {
			return *cached, nil
		}
	}

	idx.mu.Lock()
	buf, err := blockio.ReadNode(idx.f, offset)
	idx.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	if isRoot {
		idx.rootCache.Store(&buf)
	}
	return buf, nil
}

// loadLeaf reads a leaf node at offset and parses its chain table and
// next-leaf link. isRoot suppresses the link read, per spec.md §3: the
// root's link is never followed even when the root is itself a leaf.
func (idx *BtreeIndex) loadLeaf(offset int64, isRoot bool) (leafPosition, error) {
	buf, err := idx.loadNode(offset, isRoot)
	if err != nil {
		return leafPosition{}, err
	}

	cur := node.NewCursor(buf)
	leafEntries, err := cur.ReadU32()
	if err != nil {
		return leafPosition{}, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if leafEntries == 0 {
		if isRoot {
			return leafPosition{buf: buf}, nil
		}
		return leafPosition{}, ErrCorruptedChainData
	}

	offsets, err := node.ChainTableOffsets(buf, leafEntries)
	if err != nil {
		return leafPosition{}, fmt.Errorf("%w: %v", ErrCorruptedChainData, err)
	}

	var next uint32
	if !isRoot {
		idx.mu.Lock()
		size, szErr := blockio.NodeSize(idx.f, offset)
		if szErr == nil {
			next, err = blockio.ReadLink(idx.f, offset+size)
		} else {
			err = szErr
		}
		idx.mu.Unlock()
		if err != nil {
			return leafPosition{}, fmt.Errorf("%w: %v", ErrDecompress, err)
		}
	}

	return leafPosition{buf: buf, offsets: offsets, nextLeaf: next}, nil
}

// parseSeparators recovers an inner node's packed separator keys by
// NUL-scanning, per spec.md §4.B: no explicit count is stored.
func parseSeparators(region []byte) ([]string, error) {
	if len(region) == 0 {
		return nil, nil
	}
	var seps []string
	cur := node.NewCursor(region)
	for cur.Remaining() > 0 {
		s, err := cur.ReadCString()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
		}
		seps = append(seps, s)
	}
	return seps, nil
}

// childForTarget picks the child slot target routes to: the first
// index whose separator is strictly greater than target. An exact
// separator match routes to the slot immediately after it (the right
// child), matching spec.md §4.E's equal-goes-right rule in one
// comparison rather than the two-branch form the original source uses.
func childForTarget(separators []string, target string) int {
	return sort.Search(len(separators), func(i int) bool {
		return separators[i] > target
	})
}

// findChainOffsetExactOrPrefix implements the two nested binary
// searches of spec.md §4.E: descend inner nodes via childForTarget,
// then binary search a leaf's chain table, crossing into the next leaf
// when the window collapses past the end.
func (idx *BtreeIndex) findChainOffsetExactOrPrefix(targetFolded string, fold Folder) (leafPosition, bool, bool, error) {
	offset := int64(idx.info.RootOffset)
	isRoot := true

	for {
		buf, err := idx.loadNode(offset, isRoot)
		if err != nil {
			return leafPosition{}, false, false, err
		}

		if node.IsInner(buf) {
			region, err := node.SeparatorRegion(buf, idx.info.MaxElements)
			if err != nil {
				return leafPosition{}, false, false, fmt.Errorf("%w: %v", ErrDecompress, err)
			}
			separators, err := parseSeparators(region)
			if err != nil {
				return leafPosition{}, false, false, err
			}
			children, err := node.ChildOffsets(buf, idx.info.MaxElements)
			if err != nil {
				return leafPosition{}, false, false, fmt.Errorf("%w: %v", ErrDecompress, err)
			}
			childIdx := childForTarget(separators, targetFolded)
			if childIdx >= len(children) {
				return leafPosition{}, false, false, fmt.Errorf("%w: child index %d out of range", ErrDecompress, childIdx)
			}
			offset = int64(children[childIdx])
			isRoot = false
			continue
		}

		pos, err := idx.loadLeaf(offset, isRoot)
		if err != nil {
			return leafPosition{}, false, false, err
		}
		return idx.searchLeafChainTable(pos, targetFolded, fold)
	}
}

// searchLeafChainTable binary searches pos's chain table for the
// least chain whose folded first word is >= targetFolded, crossing
// into the next leaf if the search runs off the end of this one.
func (idx *BtreeIndex) searchLeafChainTable(pos leafPosition, targetFolded string, fold Folder) (leafPosition, bool, bool, error) {
	if len(pos.offsets) == 0 {
		// Empty root leaf: valid empty tree.
		return leafPosition{}, false, false, nil
	}

	lo, hi := 0, len(pos.offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		word, err := (node.Chain{Leaf: pos.buf, Offset: pos.offsets[mid]}).FirstWord()
		if err != nil {
			return leafPosition{}, false, false, fmt.Errorf("%w: %v", ErrCorruptedChainData, err)
		}
		folded := fold.Apply(word)
		switch {
		case folded == targetFolded:
			return leafPosition{buf: pos.buf, offsets: pos.offsets, at: mid, nextLeaf: pos.nextLeaf}, true, true, nil
		case targetFolded < folded:
			hi = mid
		default:
			lo = mid + 1
		}
	}

	if lo < len(pos.offsets) {
		return leafPosition{buf: pos.buf, offsets: pos.offsets, at: lo, nextLeaf: pos.nextLeaf}, false, true, nil
	}

	// Every chain in this leaf sorted before target; the candidate, if
	// any, is the first chain of the next leaf.
	if pos.nextLeaf == 0 {
		return leafPosition{}, false, false, nil
	}
	next, err := idx.loadLeaf(int64(pos.nextLeaf), false)
	if err != nil {
		return leafPosition{}, false, false, err
	}
	if len(next.offsets) == 0 {
		return leafPosition{}, false, false, nil
	}
	word, err := next.chain().FirstWord()
	if err != nil {
		return leafPosition{}, false, false, fmt.Errorf("%w: %v", ErrCorruptedChainData, err)
	}
	exact := fold.Apply(word) == targetFolded
	return next, exact, true, nil
}

// antialias drops chain entries whose simple-case-folded word (the
// stored word without its prefix) disagrees with the query's, and
// merges the prefix of survivors into word so callers receive one
// headword string.
func antialias(str string, chain []WordArticleLink, fold Folder) []WordArticleLink {
	wantCase := fold.ApplySimpleCaseOnly(str)
	out := make([]WordArticleLink, 0, len(chain))
	for _, link := range chain {
		if fold.ApplySimpleCaseOnly(link.Word) != wantCase {
			continue
		}
		if link.Prefix != "" {
			link.Word = link.Prefix + link.Word
			link.Prefix = ""
		}
		out = append(out, link)
	}
	return out
}

// FindArticles implements exact-match lookup: fold the query, descend
// to the matching chain, and apply antialias. Concurrent identical
// calls against the same handle are deduplicated via singleflight,
// keyed on str itself rather than its folded form: the shared result
// is antialias(str, ...), which filters on fold.ApplySimpleCaseOnly(str),
// a function of the raw query that folded does not capture (folding.Simple
// strips diacritics that ApplySimpleCaseOnly does not, so distinct str
// values can collide on folded). Each caller still receives its own copy
// of the result slice.
func (idx *BtreeIndex) FindArticles(ctx context.Context, str string, fold Folder) ([]WordArticleLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folded := fold.Apply(str)

	v, err, _ := idx.sf.Do(str, func() (any, error) {
		pos, exact, ok, err := idx.findChainOffsetExactOrPrefix(folded, fold)
		if err != nil {
			return nil, err
		}
		if !ok || !exact {
			return []WordArticleLink{}, nil
		}
		links, err := pos.chain().DecodeLinks()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedChainData, err)
		}
		return antialias(str, links, fold), nil
	})
	if err != nil {
		return nil, err
	}

	result := v.([]WordArticleLink)
	out := make([]WordArticleLink, len(result))
	copy(out, result)
	return out, nil
}

// PrefixMatch spawns a worker task that collects headwords whose folded
// form has fold.Apply(str) as a byte prefix, including middle-of-phrase
// matches. The scan stops once maxResults is reached, but the chain in
// progress is finished first, so a chain with several entries can push
// the result count past maxResults.
func (idx *BtreeIndex) PrefixMatch(str string, maxResults int, fold Folder) *WordSearchRequest {
	return newWordSearchRequest(idx, str, maxResults, 0, -1, true, fold)
}

// StemmedMatch spawns a worker task that runs a prefix scan for the
// folded query, then drops its last byte and scans again, up to
// maxSuffixVariation times and never below minLength bytes, collecting
// matches at each truncation, per spec.md §4.E's stemming loop. A
// negative maxSuffixVariation disables truncation.
func (idx *BtreeIndex) StemmedMatch(str string, minLength, maxSuffixVariation, maxResults int, allowMiddleMatches bool, fold Folder) *WordSearchRequest {
	return newWordSearchRequest(idx, str, maxResults, minLength, maxSuffixVariation, allowMiddleMatches, fold)
}
