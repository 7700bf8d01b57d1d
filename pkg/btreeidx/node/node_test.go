package node

import "testing"

func TestEncodeLeafDecodeLinksRoundTrip(t *testing.T) {
	chains := [][]WordArticleLink{
		{
			{Word: "apple", Prefix: "", ArticleOffset: 1},
			{Word: "apple pie", Prefix: "apple ", ArticleOffset: 2},
		},
		{
			{Word: "banana", Prefix: "", ArticleOffset: 3},
		},
	}

	leaf := EncodeLeaf(chains)
	if IsInner(leaf) {
		t.Fatal("encoded leaf reported as inner node")
	}

	offsets, err := ChainTableOffsets(leaf, uint32(len(chains)))
	if err != nil {
		t.Fatalf("ChainTableOffsets: %v", err)
	}
	if len(offsets) != len(chains) {
		t.Fatalf("got %d chain offsets, want %d", len(offsets), len(chains))
	}

	for i, want := range chains {
		ch := Chain{Leaf: leaf, Offset: offsets[i]}
		got, err := ch.DecodeLinks()
		if err != nil {
			t.Fatalf("chain %d DecodeLinks: %v", i, err)
		}
		if len(got) != len(want) {
			t.Fatalf("chain %d: got %d links, want %d", i, len(got), len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("chain %d link %d: got %+v, want %+v", i, j, got[j], want[j])
			}
		}

		first, err := ch.FirstWord()
		if err != nil {
			t.Fatalf("chain %d FirstWord: %v", i, err)
		}
		if first != want[0].Word {
			t.Errorf("chain %d FirstWord: got %q, want %q", i, first, want[0].Word)
		}
	}
}

func TestEncodeInnerChildOffsetsAndSeparators(t *testing.T) {
	children := []uint32{10, 20, 30}
	separators := [][]byte{[]byte("banana"), []byte("cherry")}
	maxElements := uint32(2)

	buf := EncodeInner(children, separators, maxElements)
	if !IsInner(buf) {
		t.Fatal("encoded inner node not reported as inner")
	}

	got, err := ChildOffsets(buf, maxElements)
	if err != nil {
		t.Fatalf("ChildOffsets: %v", err)
	}
	if len(got) != len(children) {
		t.Fatalf("got %d children, want %d", len(got), len(children))
	}
	for i, want := range children {
		if got[i] != want {
			t.Errorf("child %d: got %d, want %d", i, got[i], want)
		}
	}

	region, err := SeparatorRegion(buf, maxElements)
	if err != nil {
		t.Fatalf("SeparatorRegion: %v", err)
	}
	count, err := SeparatorCount(region)
	if err != nil {
		t.Fatalf("SeparatorCount: %v", err)
	}
	if count != len(separators) {
		t.Errorf("got %d separators, want %d", count, len(separators))
	}
}

func TestEncodeInnerPadsUnusedChildSlots(t *testing.T) {
	// maxElements=4 means 5 child slots; only 2 children supplied.
	buf := EncodeInner([]uint32{7, 8}, nil, 4)
	got, err := ChildOffsets(buf, 4)
	if err != nil {
		t.Fatalf("ChildOffsets: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d slots, want 5", len(got))
	}
	if got[0] != 7 || got[1] != 8 {
		t.Errorf("unexpected populated slots: %v", got[:2])
	}
	for i := 2; i < 5; i++ {
		if got[i] != 0 {
			t.Errorf("slot %d: got %d, want 0 (zero-padded)", i, got[i])
		}
	}
}

func TestCursorReadsAndBounds(t *testing.T) {
	buf := EncodeLeaf([][]WordArticleLink{{{Word: "x", Prefix: "", ArticleOffset: 42}}})
	cur := NewCursor(buf)

	n, err := cur.ReadU32()
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if n != 1 {
		t.Fatalf("leaf_entries: got %d, want 1", n)
	}

	if err := cur.Seek(0); err != nil {
		t.Fatalf("Seek(0): %v", err)
	}
	if cur.Offset() != 0 {
		t.Errorf("Offset after Seek(0): got %d, want 0", cur.Offset())
	}

	if err := cur.Seek(len(buf) + 1); err == nil {
		t.Error("Seek past end should fail")
	}

	cur2 := NewCursor([]byte{1, 2})
	if _, err := cur2.ReadU32(); err == nil {
		t.Error("ReadU32 on short buffer should fail with ErrTruncated")
	}
}

func TestReadCStringRequiresTerminator(t *testing.T) {
	cur := NewCursor([]byte("no-nul-here"))
	if _, err := cur.ReadCString(); err != ErrTruncated {
		t.Errorf("got err %v, want ErrTruncated", err)
	}

	cur2 := NewCursor([]byte("hello\x00world\x00"))
	s, err := cur2.ReadCString()
	if err != nil || s != "hello" {
		t.Fatalf("got (%q, %v), want (\"hello\", nil)", s, err)
	}
	s, err = cur2.ReadCString()
	if err != nil || s != "world" {
		t.Fatalf("got (%q, %v), want (\"world\", nil)", s, err)
	}
}

func TestSeparatorCountEmptyRegion(t *testing.T) {
	count, err := SeparatorCount(nil)
	if err != nil || count != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", count, err)
	}
}

func TestSeparatorCountUnterminatedFails(t *testing.T) {
	if _, err := SeparatorCount([]byte("no-terminator")); err != ErrTruncated {
		t.Errorf("got err %v, want ErrTruncated", err)
	}
}

func TestDecodeChainHeaderTruncated(t *testing.T) {
	ch := Chain{Leaf: []byte{0, 0}, Offset: 0}
	if _, _, err := ch.DecodeChainHeader(); err != ErrTruncated {
		t.Errorf("got err %v, want ErrTruncated", err)
	}
}

func TestIsInnerRejectsShortBuffer(t *testing.T) {
	if IsInner([]byte{1, 2, 3}) {
		t.Error("IsInner should be false for a buffer shorter than 4 bytes")
	}
}
