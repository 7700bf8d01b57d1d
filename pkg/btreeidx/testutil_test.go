package btreeidx

import (
	"errors"
	"io"
	"sync"
)

// memFile is a minimal in-memory io.WriteSeeker + blockio.RandomReaderAt,
// standing in for an *os.File across the builder and lookup tests so
// they don't need a temp directory.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memFile: bad whence")
	}
	if target < 0 {
		return 0, errors.New("memFile: negative seek")
	}
	m.pos = target
	return target, nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// newMu returns a fresh mutex for tests that call Open directly instead
// of going through buildTestIndex.
func newMu() *sync.Mutex { return &sync.Mutex{} }

// buildTestIndex builds an index from words (folded key -> headwords in
// insertion order) using SimpleFolder, and returns an opened BtreeIndex
// backed by the in-memory file plus the file itself for direct
// blockio-level assertions.
func buildTestIndex(words []string) (*BtreeIndex, *memFile, error) {
	iw := NewIndexedWords()
	for i, w := range words {
		iw.AddSingleWord(w, uint32(i+1), SimpleFolder{})
	}
	f := &memFile{}
	info, err := BuildIndex(iw, f)
	if err != nil {
		return nil, nil, err
	}
	return Open(info, f, &sync.Mutex{}), f, nil
}
