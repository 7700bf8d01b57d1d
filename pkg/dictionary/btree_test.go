package dictionary

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bastiangx/wordserve/pkg/btreeidx"
)

// writeChunkFile writes a dict_NNNN.bin chunk in the format ChunkLoader
// and addChunkWords both read: a u32 entry count, then per entry a u16
// word length, the word bytes, and a u16 rank.
func writeChunkFile(t *testing.T, dir string, chunkID int, entries []struct {
	word string
	rank uint16
}) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("dict_%04d.bin", chunkID))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating chunk file: %v", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, int32(len(entries))); err != nil {
		t.Fatalf("writing chunk header: %v", err)
	}
	for _, e := range entries {
		if err := binary.Write(f, binary.LittleEndian, uint16(len(e.word))); err != nil {
			t.Fatalf("writing word length: %v", err)
		}
		if _, err := f.Write([]byte(e.word)); err != nil {
			t.Fatalf("writing word: %v", err)
		}
		if err := binary.Write(f, binary.LittleEndian, e.rank); err != nil {
			t.Fatalf("writing rank: %v", err)
		}
	}
	return path
}

// buildAndOpenBtreeDictionary runs the full on-disk pipeline a real
// caller uses: build the node stream into a scratch file, prepend the
// persisted IndexInfo header into the final file, then open it.
func buildAndOpenBtreeDictionary(t *testing.T, dir string, fold btreeidx.Folder) *BtreeDictionary {
	t.Helper()

	scratch, err := os.CreateTemp(dir, "nodes-*.bin")
	if err != nil {
		t.Fatalf("creating scratch file: %v", err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	info, err := BuildBtreeFromChunks(dir, fold, scratch)
	if err != nil {
		t.Fatalf("BuildBtreeFromChunks: %v", err)
	}

	finalPath := filepath.Join(dir, "out.btree")
	final, err := os.Create(finalPath)
	if err != nil {
		t.Fatalf("creating final file: %v", err)
	}
	if err := WriteIndexInfo(final, info); err != nil {
		t.Fatalf("WriteIndexInfo: %v", err)
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seeking scratch file: %v", err)
	}
	if _, err := io.Copy(final, scratch); err != nil {
		t.Fatalf("copying node stream: %v", err)
	}
	if err := final.Close(); err != nil {
		t.Fatalf("closing final file: %v", err)
	}

	dict, err := OpenBtreeDictionary(finalPath, fold)
	if err != nil {
		t.Fatalf("OpenBtreeDictionary: %v", err)
	}
	return dict
}

func TestBuildBtreeFromChunksRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []struct {
		word string
		rank uint16
	}{
		{"apple", 1},
		{"banana", 2},
		{"cherry", 3},
	})

	fold := btreeidx.SimpleFolder{}
	dict := buildAndOpenBtreeDictionary(t, dir, fold)
	defer dict.Close()

	for _, word := range []string{"apple", "banana", "cherry"} {
		links, err := dict.Index().FindArticles(context.Background(), word, dict.Folder())
		if err != nil {
			t.Fatalf("FindArticles(%q): %v", word, err)
		}
		if len(links) != 1 {
			t.Fatalf("FindArticles(%q): got %d links, want 1", word, len(links))
		}
	}

	links, err := dict.Index().FindArticles(context.Background(), "not-present", fold)
	if err != nil {
		t.Fatalf("FindArticles(miss): %v", err)
	}
	if len(links) != 0 {
		t.Errorf("expected no match for unindexed word, got %+v", links)
	}
}

func TestBuildBtreeFromChunksRankOrdering(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []struct {
		word string
		rank uint16
	}{
		{"first", 1},
		{"second", 2},
	})

	fold := btreeidx.SimpleFolder{}
	dict := buildAndOpenBtreeDictionary(t, dir, fold)
	defer dict.Close()

	firstLinks, err := dict.Index().FindArticles(context.Background(), "first", fold)
	if err != nil || len(firstLinks) != 1 {
		t.Fatalf("FindArticles(first): links=%+v err=%v", firstLinks, err)
	}
	secondLinks, err := dict.Index().FindArticles(context.Background(), "second", fold)
	if err != nil || len(secondLinks) != 1 {
		t.Fatalf("FindArticles(second): links=%+v err=%v", secondLinks, err)
	}

	// Better (lower) rank converts to a higher surrogate ArticleOffset.
	if firstLinks[0].ArticleOffset <= secondLinks[0].ArticleOffset {
		t.Errorf("rank 1 should surrogate to a higher offset than rank 2: got %d <= %d",
			firstLinks[0].ArticleOffset, secondLinks[0].ArticleOffset)
	}
}

func TestBuildBtreeFromChunksMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []struct {
		word string
		rank uint16
	}{{"alpha", 1}})
	writeChunkFile(t, dir, 2, []struct {
		word string
		rank uint16
	}{{"beta", 1}})

	fold := btreeidx.SimpleFolder{}
	dict := buildAndOpenBtreeDictionary(t, dir, fold)
	defer dict.Close()

	for _, word := range []string{"alpha", "beta"} {
		links, err := dict.Index().FindArticles(context.Background(), word, fold)
		if err != nil || len(links) != 1 {
			t.Fatalf("FindArticles(%q): links=%+v err=%v", word, links, err)
		}
	}
}

func TestBuildBtreeFromChunksNoChunksErrors(t *testing.T) {
	dir := t.TempDir()
	scratch, err := os.CreateTemp(dir, "nodes-*.bin")
	if err != nil {
		t.Fatalf("creating scratch file: %v", err)
	}
	defer scratch.Close()

	if _, err := BuildBtreeFromChunks(dir, btreeidx.SimpleFolder{}, scratch); err == nil {
		t.Error("expected an error when no chunk files are present")
	}
}

func TestWriteReadIndexInfoRoundTrip(t *testing.T) {
	want := btreeidx.IndexInfo{MaxElements: 128, RootOffset: 4096}
	var buf bytes.Buffer
	if err := WriteIndexInfo(&buf, want); err != nil {
		t.Fatalf("WriteIndexInfo: %v", err)
	}
	got, err := ReadIndexInfo(&buf)
	if err != nil {
		t.Fatalf("ReadIndexInfo: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadIndexInfoTruncatedFails(t *testing.T) {
	buf := bytes.NewReader([]byte{1, 2, 3})
	if _, err := ReadIndexInfo(buf); err == nil {
		t.Error("expected an error reading a truncated IndexInfo header")
	}
}
