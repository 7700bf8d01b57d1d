package btreeidx

import (
	"sync"
	"sync/atomic"

	"github.com/bastiangx/wordserve/pkg/btreeidx/workerpool"
)

// WordSearchRequest is a caller-owned handle on a prefix or stemmed
// match running on the shared worker pool. It owns its own cancellation
// flag and blocks Close on the worker task's completion, mirroring the
// destructor contract of spec.md §4.E/§5: the task always signals done,
// even on error.
type WordSearchRequest struct {
	idx  *BtreeIndex
	fold Folder

	target             string
	maxResults         int
	minLength          int
	maxSuffixVariation int
	allowMiddleMatches bool

	cancelled atomic.Bool
	done      chan struct{}

	mu      sync.Mutex
	matches []string
	errStr  string
}

func newWordSearchRequest(idx *BtreeIndex, target string, maxResults, minLength, maxSuffixVariation int, allowMiddleMatches bool, fold Folder) *WordSearchRequest {
	r := &WordSearchRequest{
		idx:                idx,
		fold:               fold,
		target:             target,
		maxResults:         maxResults,
		minLength:          minLength,
		maxSuffixVariation: maxSuffixVariation,
		allowMiddleMatches: allowMiddleMatches,
		done:               make(chan struct{}),
	}
	workerpool.Default().Submit(r.run)
	return r
}

// Cancel requests early termination. Checked at the outer-loop top,
// inner-loop top, and between suffix chops; a chain already in
// progress completes.
func (r *WordSearchRequest) Cancel() {
	r.cancelled.Store(true)
}

// Matches returns a snapshot of the headwords collected so far.
func (r *WordSearchRequest) Matches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.matches))
	copy(out, r.matches)
	return out
}

// Err returns the error string recorded by the worker task, if any.
func (r *WordSearchRequest) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errStr
}

// Done returns a channel closed once the worker task has finished.
func (r *WordSearchRequest) Done() <-chan struct{} {
	return r.done
}

// MaxResults returns the requested result cap.
func (r *WordSearchRequest) MaxResults() int {
	return r.maxResults
}

// Close cancels the request and blocks until the worker task exits.
func (r *WordSearchRequest) Close() {
	r.Cancel()
	<-r.done
}

func (r *WordSearchRequest) setErr(err error) {
	r.mu.Lock()
	r.errStr = err.Error()
	r.mu.Unlock()
}

func (r *WordSearchRequest) appendMatch(headword string) {
	r.mu.Lock()
	r.matches = append(r.matches, headword)
	r.mu.Unlock()
}

func (r *WordSearchRequest) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// run implements spec.md §4.E's suffix-chopping outer loop and the
// cross-leaf prefix scan inner loop. The worker task always closes
// done on exit, satisfying the request's Close/destructor contract
// even when an error or cancellation ends the run early.
func (r *WordSearchRequest) run() {
	defer close(r.done)

	if r.cancelled.Load() {
		return
	}

	folded := r.fold.Apply(r.target)
	initialSize := len(folded)

	charsLeftToChop := 0
	if r.maxSuffixVariation >= 0 {
		charsLeftToChop = clampInt(initialSize-r.minLength, 0, r.maxSuffixVariation)
	}

	for {
		if r.cancelled.Load() {
			return
		}
		if !r.scanOnce(folded, initialSize) {
			return
		}
		if charsLeftToChop <= 0 {
			return
		}
		folded = folded[:len(folded)-1]
		charsLeftToChop--
	}
}

// scanOnce runs one prefix-scan pass for the current (possibly
// truncated) folded key. Returns false if the request should stop
// entirely (cancelled or a read error occurred).
func (r *WordSearchRequest) scanOnce(folded string, initialSize int) bool {
	pos, _, ok, err := r.idx.findChainOffsetExactOrPrefix(folded, r.fold)
	if err != nil {
		r.setErr(err)
		return false
	}
	if !ok {
		return true
	}

	for {
		if r.cancelled.Load() {
			return false
		}
		if pos.exhausted() {
			if pos.nextLeaf == 0 {
				return true
			}
			next, err := r.idx.loadLeaf(int64(pos.nextLeaf), false)
			if err != nil {
				r.setErr(err)
				return false
			}
			pos = next
			if pos.exhausted() {
				return true
			}
		}

		chain := pos.chain()
		word, err := chain.FirstWord()
		if err != nil {
			r.setErr(err)
			return false
		}
		resultFolded := r.fold.Apply(word)
		if len(resultFolded) < len(folded) || resultFolded[:len(folded)] != folded {
			return true // no longer a prefix: stop this pass
		}

		links, err := chain.DecodeLinks()
		if err != nil {
			r.setErr(err)
			return false
		}

		suffixVariation := len(resultFolded) - initialSize
		for _, link := range links {
			if !r.allowMiddleMatches && r.fold.Apply(link.Prefix) != "" {
				continue
			}
			if r.maxSuffixVariation >= 0 && suffixVariation > r.maxSuffixVariation {
				continue
			}
			r.appendMatch(link.Prefix + link.Word)
		}

		pos.at++
		if r.resultCount() >= r.maxResults {
			return true
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
