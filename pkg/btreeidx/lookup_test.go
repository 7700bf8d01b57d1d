package btreeidx

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/bastiangx/wordserve/pkg/btreeidx/folding"
)

func TestFindArticlesExactMatch(t *testing.T) {
	idx, _, err := buildTestIndex([]string{"apple", "application", "apply"})
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	links, err := idx.FindArticles(context.Background(), "apple", SimpleFolder{})
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 || links[0].Word != "apple" {
		t.Fatalf("got %+v, want a single apple entry", links)
	}
}

func TestFindArticlesAntialiasFiltersDiacriticMismatch(t *testing.T) {
	fold := folding.Simple{}
	iw := NewIndexedWords()
	// Both fold to the same key ("cafe") under full NFKD folding, but
	// their simple-case-only forms differ: one keeps the accent.
	iw.AddSingleWord("café", 1, fold)
	iw.AddSingleWord("CAFE", 2, fold)

	f := &memFile{}
	info, err := BuildIndex(iw, f)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	idx := Open(info, f, newMu())

	links, err := idx.FindArticles(context.Background(), "café", fold)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1 (the accented match survives antialias)", len(links))
	}
	if links[0].Word != "café" {
		t.Errorf("got Word=%q, want %q", links[0].Word, "café")
	}
}

func TestFindArticlesMergesPrefixIntoWord(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	iw.AddWord("hello world", 1, fold)

	f := &memFile{}
	info, err := BuildIndex(iw, f)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	idx := Open(info, f, newMu())

	links, err := idx.FindArticles(context.Background(), "world", fold)
	if err != nil {
		t.Fatalf("FindArticles: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].Word != "hello world" || links[0].Prefix != "" {
		t.Errorf("got %+v, want merged Word=%q Prefix=%q", links[0], "hello world", "")
	}
}

func TestFindArticlesRespectsContextCancellation(t *testing.T) {
	idx, _, err := buildTestIndex([]string{"apple"})
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := idx.FindArticles(ctx, "apple", SimpleFolder{}); err == nil {
		t.Error("expected an error from an already-cancelled context")
	}
}

func TestPrefixMatchFindsAllSharedPrefix(t *testing.T) {
	words := []string{"cat", "car", "cart", "card", "dog"}
	idx, _, err := buildTestIndex(words)
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	wr := idx.PrefixMatch("ca", 10, SimpleFolder{})
	<-wr.Done()
	if errStr := wr.Err(); errStr != "" {
		t.Fatalf("PrefixMatch error: %s", errStr)
	}

	matches := wr.Matches()
	sort.Strings(matches)
	want := []string{"car", "card", "cart", "cat"}
	if len(matches) != len(want) {
		t.Fatalf("got %v, want %v", matches, want)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("got %v, want %v", matches, want)
			break
		}
	}
}

func TestPrefixMatchCrossesLeafBoundary(t *testing.T) {
	var words []string
	for i := 0; i < 300; i++ {
		words = append(words, fmt.Sprintf("shared%04d", i))
	}
	idx, _, err := buildTestIndex(words)
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	wr := idx.PrefixMatch("shared", 1000, SimpleFolder{})
	<-wr.Done()
	if errStr := wr.Err(); errStr != "" {
		t.Fatalf("PrefixMatch error: %s", errStr)
	}
	if got := len(wr.Matches()); got != len(words) {
		t.Fatalf("got %d matches, want %d (scan must cross multiple leaves)", got, len(words))
	}
}

func TestPrefixMatchRespectsMaxResults(t *testing.T) {
	var words []string
	for i := 0; i < 50; i++ {
		words = append(words, fmt.Sprintf("bounded%03d", i))
	}
	idx, _, err := buildTestIndex(words)
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	wr := idx.PrefixMatch("bounded", 5, SimpleFolder{})
	<-wr.Done()
	if got := len(wr.Matches()); got > 5 {
		t.Fatalf("got %d matches, want at most 5", got)
	}
}

func TestPrefixMatchNoResults(t *testing.T) {
	idx, _, err := buildTestIndex([]string{"apple", "banana"})
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	wr := idx.PrefixMatch("zzz", 10, SimpleFolder{})
	<-wr.Done()
	if errStr := wr.Err(); errStr != "" {
		t.Fatalf("PrefixMatch error: %s", errStr)
	}
	if got := len(wr.Matches()); got != 0 {
		t.Errorf("got %d matches, want 0", got)
	}
}

func TestStemmedMatchTruncatesWithinSuffixVariation(t *testing.T) {
	words := []string{"run", "runner", "running", "runs"}
	idx, _, err := buildTestIndex(words)
	if err != nil {
		t.Fatalf("buildTestIndex: %v", err)
	}

	wr := idx.StemmedMatch("running", 3, 4, 20, true, SimpleFolder{})
	<-wr.Done()
	if errStr := wr.Err(); errStr != "" {
		t.Fatalf("StemmedMatch error: %s", errStr)
	}

	matches := wr.Matches()
	found := map[string]bool{}
	for _, m := range matches {
		found[m] = true
	}
	if !found["running"] {
		t.Errorf("expected exact word 'running' among matches, got %v", matches)
	}
	if !found["run"] && !found["runner"] && !found["runs"] {
		t.Errorf("expected stemming to surface at least one truncated match, got %v", matches)
	}
}

func TestStemmedMatchExcludesMiddleMatchesWhenDisallowed(t *testing.T) {
	iw := NewIndexedWords()
	fold := SimpleFolder{}
	iw.AddWord("hello world", 1, fold)

	f := &memFile{}
	info, err := BuildIndex(iw, f)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	idx := Open(info, f, newMu())

	disallowed := idx.StemmedMatch("world", 3, 0, 10, false, fold)
	<-disallowed.Done()
	if matches := disallowed.Matches(); len(matches) != 0 {
		t.Errorf("middle match should have been excluded entirely, got %v", matches)
	}

	allowed := idx.StemmedMatch("world", 3, 0, 10, true, fold)
	<-allowed.Done()
	found := false
	for _, m := range allowed.Matches() {
		if m == "hello world" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected \"hello world\" among matches when middle matches are allowed, got %v", allowed.Matches())
	}
}

func TestChildForTargetEqualSeparatorRoutesRight(t *testing.T) {
	separators := []string{"banana", "cherry", "date"}
	if got := childForTarget(separators, "cherry"); got != 2 {
		t.Errorf("exact separator match: got child %d, want 2 (right child)", got)
	}
	if got := childForTarget(separators, "apple"); got != 0 {
		t.Errorf("below all separators: got child %d, want 0", got)
	}
	if got := childForTarget(separators, "zzz"); got != 3 {
		t.Errorf("above all separators: got child %d, want 3", got)
	}
}
