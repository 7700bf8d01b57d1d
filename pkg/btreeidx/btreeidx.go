/*
Package btreeidx implements a compressed, on-disk B-tree that maps
folded headwords to article locations, the way a dictionary lookup
engine's headword index does: a builder turns an in-memory ordered
mapping into a compressed node stream, and a reader traverses that
stream concurrently to answer exact, prefix, and stemmed queries
without loading the whole tree into memory.

The package is organized leaf-first:

  - blockio implements the compressed node block format.
  - node implements the bit-exact leaf/inner payload layout.
  - this package implements the builder (IndexedWords, BuildIndex) and
    the reader (BtreeIndex, WordSearchRequest).
  - workerpool runs search requests off the caller's goroutine.
  - folding supplies a default Unicode folding collaborator.
*/
package btreeidx

import (
	"errors"

	"github.com/bastiangx/wordserve/pkg/btreeidx/node"
)

// WordArticleLink is re-exported from node so callers never need to
// import the node package directly for the common case.
type WordArticleLink = node.WordArticleLink

// IndexInfo is the only persisted metadata a lookup handle needs to
// reattach to a file: the branching factor chosen at build time and
// the root node's file offset.
type IndexInfo struct {
	MaxElements uint32
	RootOffset  uint32
}

// Folder is the external Unicode-folding collaborator spec.md scopes
// out of the core. Implementations classify whitespace/punctuation for
// tokenization and provide full vs. simple-case-only normalization.
type Folder interface {
	Apply(s string) string
	ApplySimpleCaseOnly(s string) string
	IsWhitespace(r rune) bool
	IsPunct(r rune) bool
}

// Error taxonomy, per spec.md §7.
var (
	// ErrIndexNotOpened names a query issued against a handle that was
	// never opened. Open always returns a usable handle, so no code in
	// this package returns it.
	ErrIndexNotOpened = errors.New("btreeidx: index not opened")
	// ErrDecompress wraps a codec rejection or uncompressed-size
	// mismatch while reading a node.
	ErrDecompress = errors.New("btreeidx: decompress error")
	// ErrCorruptedChainData signals a leaf invariant violation: an
	// empty non-root leaf, or a chain whose declared size underflows
	// the buffer actually available.
	ErrCorruptedChainData = errors.New("btreeidx: corrupted chain data")
	// ErrCantDecode names a UTF-8 decode failure on a stored key or
	// word. Stored keys and words are read as raw bytes without UTF-8
	// validation, so no code in this package returns it; invalid bytes
	// pass through unchanged.
	ErrCantDecode = errors.New("btreeidx: cannot decode utf-8")
	// ErrCompress names a fatal build-path compression failure. The
	// builder returns blockio.ErrCompress (wrapped) in that case, not
	// this value; the file is already partially written and must be
	// discarded by the caller.
	ErrCompress = errors.New("btreeidx: compress error")
)
