package btreeidx

import (
	"sort"
	"testing"
)

func TestAddWordIndexesEveryTokenStart(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	iw.AddWord("hello world", 7, fold)

	full := iw.Chain(fold.Apply("hello world"))
	if len(full) != 1 {
		t.Fatalf("got %d entries for full phrase, want 1", len(full))
	}
	if full[0].Word != "hello world" || full[0].Prefix != "" {
		t.Errorf("got %+v, want Word=%q Prefix=%q", full[0], "hello world", "")
	}

	mid := iw.Chain(fold.Apply("world"))
	if len(mid) != 1 {
		t.Fatalf("got %d entries for mid-phrase token, want 1", len(mid))
	}
	if mid[0].Word != "world" || mid[0].Prefix != "hello " {
		t.Errorf("got %+v, want Word=%q Prefix=%q", mid[0], "world", "hello ")
	}
}

func TestAddWordTrimsWhitespace(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	iw.AddWord("  padded  ", 1, fold)

	chain := iw.Chain(fold.Apply("padded"))
	if len(chain) != 1 {
		t.Fatalf("got %d entries, want 1", len(chain))
	}
	if chain[0].Word != "padded" {
		t.Errorf("got Word=%q, want %q", chain[0].Word, "padded")
	}
}

func TestAddWordSkipsBlankAfterTrim(t *testing.T) {
	iw := NewIndexedWords()
	iw.AddWord("   ", 1, SimpleFolder{})
	if iw.Len() != 0 {
		t.Errorf("blank word should not create any chain, got Len()=%d", iw.Len())
	}
}

func TestAddSingleWordWholeWordEntry(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	iw.AddSingleWord("Apple", 3, fold)

	chain := iw.Chain(fold.Apply("Apple"))
	if len(chain) != 1 {
		t.Fatalf("got %d entries, want 1", len(chain))
	}
	if chain[0].Word != "Apple" || chain[0].Prefix != "" || chain[0].ArticleOffset != 3 {
		t.Errorf("got %+v", chain[0])
	}
}

func TestMiddleMatchThrottlingCapsAt1024(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}

	const inserts = 2000
	for i := 0; i < inserts; i++ {
		iw.AddWord("x y", uint32(i+1), fold)
	}

	wholePhrase := iw.Chain(fold.Apply("x y"))
	if len(wholePhrase) != inserts {
		t.Errorf("whole-word chain should never throttle: got %d, want %d", len(wholePhrase), inserts)
	}

	midToken := iw.Chain(fold.Apply("y"))
	if len(midToken) != maxChainThrottle {
		t.Errorf("mid-token chain should cap at %d, got %d", maxChainThrottle, len(midToken))
	}
}

func TestFinishReturnsSortedKeys(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	for _, w := range []string{"banana", "apple", "cherry"} {
		iw.AddSingleWord(w, 1, fold)
	}

	keys := iw.Finish()
	if !sort.StringsAreSorted(keys) {
		t.Errorf("Finish() keys not sorted: %v", keys)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
}

func TestFinishCachesUntilDirty(t *testing.T) {
	iw := NewIndexedWords()
	iw.AddSingleWord("one", 1, SimpleFolder{})

	first := iw.Finish()
	second := iw.Finish()
	if len(first) != len(second) {
		t.Fatalf("cached Finish() result changed length: %d vs %d", len(first), len(second))
	}

	iw.AddSingleWord("two", 2, SimpleFolder{})
	third := iw.Finish()
	if len(third) != 2 {
		t.Fatalf("Finish() after new insert: got %d keys, want 2", len(third))
	}
}

func TestSimpleFolderCaseFolding(t *testing.T) {
	fold := SimpleFolder{}
	if fold.Apply("HELLO") != "hello" {
		t.Errorf("got %q, want %q", fold.Apply("HELLO"), "hello")
	}
	if fold.ApplySimpleCaseOnly("Cafe") != "cafe" {
		t.Errorf("got %q, want %q", fold.ApplySimpleCaseOnly("Cafe"), "cafe")
	}
	if !fold.IsWhitespace(' ') || fold.IsWhitespace('a') {
		t.Error("IsWhitespace misclassified")
	}
	if !fold.IsPunct(',') || fold.IsPunct('a') {
		t.Error("IsPunct misclassified")
	}
}
