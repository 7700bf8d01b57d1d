package btreeidx

import (
	"fmt"
	"io"

	"github.com/bastiangx/wordserve/pkg/btreeidx/blockio"
	"github.com/bastiangx/wordserve/pkg/btreeidx/node"
)

const (
	minMaxElements = 64
	maxMaxElements = 4096
)

// builderState threads the single build run's mutable bits through the
// recursive partitioning: the sorted key slice and chain lookup it
// reads from, the output file it appends nodes to, and the offset of
// the most recently emitted leaf's link slot so it can be patched once
// the next leaf is written. This is the single-threaded, non-reentrant
// analog of a pager's New/Get allocation calls, adapted to sequential
// append-only writes instead of random-access paging.
type builderState struct {
	keys         []string
	chainOf      func(key string) []WordArticleLink
	f            io.WriteSeeker
	maxElements  uint32
	lastLeafLink int64
}

// BuildIndex implements spec.md §4.D: skips leading empty keys,
// computes the branching factor, and recursively partitions the
// remaining keys into a balanced B-tree written to f.
func BuildIndex(words *IndexedWords, f io.WriteSeeker) (IndexInfo, error) {
	keys := words.Finish()
	start := 0
	for start < len(keys) && keys[start] == "" {
		start++
	}
	keys = keys[start:]

	maxElements := clampMaxElements(len(keys))
	st := &builderState{
		keys:        keys,
		chainOf:     words.Chain,
		f:           f,
		maxElements: maxElements,
	}

	rootOffset, err := st.build(0, len(keys))
	if err != nil {
		return IndexInfo{}, err
	}
	return IndexInfo{MaxElements: maxElements, RootOffset: uint32(rootOffset)}, nil
}

// BuildIndexFromWords is a convenience wrapper for tests and offline
// tools that already have a plain folded-key -> chain map; it sorts
// the keys internally exactly as IndexedWords does.
func BuildIndexFromWords(words map[string][]WordArticleLink, f io.WriteSeeker) (IndexInfo, error) {
	iw := &IndexedWords{chains: words, dirty: true}
	return BuildIndex(iw, f)
}

// clampMaxElements computes clamp(floor(sqrt(n))+1, 64, 4096).
func clampMaxElements(n int) uint32 {
	root := isqrt(uint64(n))
	me := root + 1
	if me < minMaxElements {
		return minMaxElements
	}
	if me > maxMaxElements {
		return maxMaxElements
	}
	return uint32(me)
}

// isqrt returns floor(sqrt(n)) using integer-only Newton's method, 64-bit
// throughout to match the spec's "64-bit arithmetic" requirement for
// the partition fractions elsewhere in the builder.
func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// build recursively partitions the size keys starting at cursor into a
// leaf (when size fits within one node) or an inner node with
// maxElements separators, per spec.md §4.D's equal-fraction rule.
func (st *builderState) build(cursor, size int) (int64, error) {
	if size <= int(st.maxElements) {
		return st.buildLeaf(cursor, size)
	}
	return st.buildInner(cursor, size)
}

func (st *builderState) buildLeaf(cursor, size int) (int64, error) {
	chains := make([][]node.WordArticleLink, size)
	for i := 0; i < size; i++ {
		chains[i] = st.chainOf(st.keys[cursor+i])
	}
	payload := node.EncodeLeaf(chains)

	offset, linkOffset, err := blockio.WriteNode(st.f, payload, true)
	if err != nil {
		return 0, err
	}
	if st.lastLeafLink != 0 {
		if err := blockio.PatchLink(st.f, st.lastLeafLink, uint32(offset)); err != nil {
			return 0, err
		}
	}
	st.lastLeafLink = linkOffset
	return offset, nil
}

func (st *builderState) buildInner(cursor, size int) (int64, error) {
	maxElements := st.maxElements
	children := make([]uint32, 0, maxElements+1)
	separators := make([][]byte, 0, maxElements)

	prevCount := 0
	pos := cursor
	for x := uint32(0); x < maxElements; x++ {
		cur := int((uint64(size) * uint64(x+1)) / uint64(maxElements+1))
		childSize := cur - prevCount
		childOffset, err := st.build(pos, childSize)
		if err != nil {
			return 0, err
		}
		children = append(children, uint32(childOffset))
		pos += childSize
		prevCount = cur

		if pos >= cursor+size {
			return 0, fmt.Errorf("btreeidx: builder cursor overrun at separator %d", x)
		}
		// The separator is the first key of the next (not yet built)
		// subtree; it is peeked here, not consumed, so the following
		// recursive call starts at the same position.
		separators = append(separators, []byte(st.keys[pos]))
	}

	rightSize := size - prevCount
	childOffset, err := st.build(pos, rightSize)
	if err != nil {
		return 0, err
	}
	children = append(children, uint32(childOffset))

	payload := node.EncodeInner(children, separators, maxElements)
	offset, _, err := blockio.WriteNode(st.f, payload, false)
	return offset, err
}
