package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/wordserve/pkg/btreeidx"
)

// btreeIndexInfoSize is the on-disk size of a persisted IndexInfo
// header: two little-endian u32 fields.
const btreeIndexInfoSize = 8

// BuildBtreeFromChunks scans the dict_*.bin chunk files in dirPath
// (the same on-disk format ChunkLoader reads: a u32 count header then
// (u16 len, word, u16 rank) records) and builds a compressed B-tree
// index from their headwords, writing it to out. Chunk rank is
// converted to an ArticleOffset surrogate the same way ChunkLoader
// converts it to a frequency score, since this package treats the
// chunk files as standing in for "the external article store" the
// index itself is agnostic to.
func BuildBtreeFromChunks(dirPath string, fold btreeidx.Folder, out io.WriteSeeker) (btreeidx.IndexInfo, error) {
	loader := NewChunkLoader(dirPath, 0, 0)
	chunks, err := loader.GetAvailableChunks()
	if err != nil {
		return btreeidx.IndexInfo{}, fmt.Errorf("failed to scan chunk files: %w", err)
	}
	if len(chunks) == 0 {
		return btreeidx.IndexInfo{}, fmt.Errorf("no chunk files found in %s", dirPath)
	}

	words := btreeidx.NewIndexedWords()
	for _, chunk := range chunks {
		if err := addChunkWords(chunk.Filename, words, fold); err != nil {
			return btreeidx.IndexInfo{}, fmt.Errorf("failed to read chunk %s: %w", chunk.Filename, err)
		}
	}

	log.Debugf("Building btree index from %d chunks, %d distinct folded keys", len(chunks), words.Len())
	return btreeidx.BuildIndex(words, out)
}

func addChunkWords(filename string, words *btreeidx.IndexedWords, fold btreeidx.Folder) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var totalEntries int32
	if err := binary.Read(reader, binary.LittleEndian, &totalEntries); err != nil {
		return fmt.Errorf("reading chunk header: %w", err)
	}

	for i := int32(0); i < totalEntries; i++ {
		var wordLen uint16
		if err := binary.Read(reader, binary.LittleEndian, &wordLen); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading word length: %w", err)
		}
		wordBytes := make([]byte, wordLen)
		if _, err := io.ReadFull(reader, wordBytes); err != nil {
			return fmt.Errorf("reading word: %w", err)
		}
		var rank uint16
		if err := binary.Read(reader, binary.LittleEndian, &rank); err != nil {
			return fmt.Errorf("reading rank: %w", err)
		}

		// Article offset surrogate: lower rank (better) sorts to a
		// higher surrogate, matching the inverse-score convention
		// ChunkLoader already uses for frequency.
		articleOffset := uint32(65535 - rank + 1)
		words.AddSingleWord(string(wordBytes), articleOffset, fold)
	}
	return nil
}

// WriteIndexInfo persists info as the fixed 8-byte header
// OpenBtreeDictionary expects a .btree file to carry.
func WriteIndexInfo(w io.Writer, info btreeidx.IndexInfo) error {
	var hdr [btreeIndexInfoSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], info.MaxElements)
	binary.LittleEndian.PutUint32(hdr[4:8], info.RootOffset)
	_, err := w.Write(hdr[:])
	return err
}

// ReadIndexInfo reads the 8-byte IndexInfo header WriteIndexInfo wrote.
func ReadIndexInfo(r io.Reader) (btreeidx.IndexInfo, error) {
	var hdr [btreeIndexInfoSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return btreeidx.IndexInfo{}, fmt.Errorf("reading index info header: %w", err)
	}
	return btreeidx.IndexInfo{
		MaxElements: binary.LittleEndian.Uint32(hdr[0:4]),
		RootOffset:  binary.LittleEndian.Uint32(hdr[4:8]),
	}, nil
}

// BtreeDictionary is an opened compressed B-tree backend built from the
// on-disk chunk files: the server's lookup path for headword queries.
type BtreeDictionary struct {
	file  *os.File
	index *btreeidx.BtreeIndex
	fold  btreeidx.Folder
}

// OpenBtreeDictionary opens path (a file carrying an 8-byte IndexInfo
// header followed by the compressed node stream BuildBtreeFromChunks
// produced) and returns a handle ready for FindArticles/PrefixMatch/
// StemmedMatch queries.
func OpenBtreeDictionary(path string, fold btreeidx.Folder) (*BtreeDictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening btree index %s: %w", path, err)
	}

	info, err := ReadIndexInfo(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	var mu sync.Mutex
	offsetFile := &headerOffsetReaderAt{f: f, base: btreeIndexInfoSize}
	return &BtreeDictionary{
		file:  f,
		index: btreeidx.Open(info, offsetFile, &mu),
		fold:  fold,
	}, nil
}

// headerOffsetReaderAt adapts *os.File to btreeidx's RandomReaderAt by
// translating node offsets (relative to the node stream) into absolute
// file offsets past the IndexInfo header BuildBtreeFromChunks's caller
// writes before the node stream.
type headerOffsetReaderAt struct {
	f    *os.File
	base int64
}

func (h *headerOffsetReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off+h.base)
}

// Index returns the underlying lookup handle.
func (d *BtreeDictionary) Index() *btreeidx.BtreeIndex {
	return d.index
}

// Folder returns the folding collaborator this dictionary was opened
// with, so callers don't have to thread it through separately.
func (d *BtreeDictionary) Folder() btreeidx.Folder {
	return d.fold
}

// Close releases the underlying file handle.
func (d *BtreeDictionary) Close() error {
	return d.file.Close()
}
