// Package blockio implements the compressed on-disk node block: a
// (uncompressed_size, compressed_size, deflate(payload)) header/body
// sequence, plus the trailing next-leaf link slot leaves carry.
//
// This package owns no B-tree semantics: it moves opaque bytes in and
// out of a file. Layout rules for those bytes live in package node.
package blockio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// ErrDecompress wraps a codec rejection or a decoded-length mismatch
// on read. ErrCompress is fatal on the build path: compression failure
// aborts the build, the caller must delete the partially written file.
var (
	ErrDecompress = errors.New("blockio: decompress failed")
	ErrCompress   = errors.New("blockio: compress failed")
)

// RandomReaderAt is the minimal file capability the lookup path needs:
// seek-free positioned reads, compatible with *os.File.
type RandomReaderAt interface {
	io.ReaderAt
}

// ReadNode reads the uncompressed_size/compressed_size header and
// payload at offset with positioned reads, and inflates it into a
// buffer of exactly uncompressed_size bytes. blockio does not lock
// internally; callers serialize file access through their own
// handle-scoped mutex, per the concurrency model.
func ReadNode(f RandomReaderAt, offset int64) ([]byte, error) {
	var hdr [8]byte
	if _, err := f.ReadAt(hdr[:], offset); err != nil {
		return nil, fmt.Errorf("blockio: read header at %d: %w", offset, err)
	}
	uncompressedSize := binary.LittleEndian.Uint32(hdr[0:4])
	compressedSize := binary.LittleEndian.Uint32(hdr[4:8])

	compressed := make([]byte, compressedSize)
	if _, err := f.ReadAt(compressed, offset+8); err != nil {
		return nil, fmt.Errorf("blockio: read payload at %d: %w", offset+8, err)
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	out := make([]byte, uncompressedSize)
	n, err := io.ReadFull(fr, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	if uint32(n) != uncompressedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompress, n, uncompressedSize)
	}
	return out, nil
}

// NodeSize returns the total on-disk size (header + compressed payload,
// excluding any trailing leaf link) of the node block written at
// offset, without inflating it. Used by the lookup engine to locate
// the leaf link slot that immediately follows a leaf block.
func NodeSize(f RandomReaderAt, offset int64) (int64, error) {
	var hdr [8]byte
	if _, err := f.ReadAt(hdr[:], offset); err != nil {
		return 0, fmt.Errorf("blockio: read header at %d: %w", offset, err)
	}
	compressedSize := binary.LittleEndian.Uint32(hdr[4:8])
	return 8 + int64(compressedSize), nil
}

// WriteNode compresses payload with flate at best compression, writes
// the size headers and compressed bytes at the file's current position,
// and — when isLeaf — appends a trailing uint32(0) next-leaf link slot.
// Returns the block's starting offset and, for leaves, the absolute
// offset of the link slot so the builder can patch it once the next
// leaf is known.
func WriteNode(f io.WriteSeeker, payload []byte, isLeaf bool) (offset int64, linkOffset int64, err error) {
	offset, err = f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.BestCompression)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCompress, err)
	}
	if _, err := fw.Write(payload); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCompress, err)
	}
	if err := fw.Close(); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCompress, err)
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(compressed.Len()))
	if _, err := f.Write(hdr[:]); err != nil {
		return 0, 0, err
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return 0, 0, err
	}

	if !isLeaf {
		return offset, 0, nil
	}

	linkOffset, err = f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}
	var zero [4]byte
	if _, err := f.Write(zero[:]); err != nil {
		return 0, 0, err
	}
	return offset, linkOffset, nil
}

// PatchLink overwrites the trailing next-leaf pointer at linkOffset.
func PatchLink(f io.WriteSeeker, linkOffset int64, target uint32) error {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	defer f.Seek(cur, io.SeekStart)

	if _, err := f.Seek(linkOffset, io.SeekStart); err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], target)
	_, err = f.Write(buf[:])
	return err
}

// ReadLink reads the next-leaf link slot immediately following a leaf
// block that ends at blockEnd.
func ReadLink(f RandomReaderAt, blockEnd int64) (uint32, error) {
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], blockEnd); err != nil {
		return 0, fmt.Errorf("blockio: read link at %d: %w", blockEnd, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
