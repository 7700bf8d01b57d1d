package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bastiangx/wordserve/internal/logger"
	"github.com/bastiangx/wordserve/internal/utils"
	"github.com/bastiangx/wordserve/pkg/btreeidx"
	"github.com/charmbracelet/log"
)

// BtreeInputHandler is the CLI debugger for the compressed on-disk
// B-tree index: it reads headwords from stdin and prints exact and
// prefix match results in a tabular style.
type BtreeInputHandler struct {
	index        *btreeidx.BtreeIndex
	fold         btreeidx.Folder
	suggestLimit int
	log          *log.Logger
}

// NewBtreeInputHandler wires a BtreeIndex into the CLI debugger. Its
// output carries a "btree" prefix (via internal/logger).
func NewBtreeInputHandler(index *btreeidx.BtreeIndex, fold btreeidx.Folder, limit int) *BtreeInputHandler {
	return &BtreeInputHandler{index: index, fold: fold, suggestLimit: limit, log: logger.Default("btree")}
}

// Start begins the interface loop: it reads one headword per line from
// stdin until reading fails.
func (h *BtreeInputHandler) Start() error {
	h.log.Print("WordServe btree CLI [BETA]")
	reader := bufio.NewReader(os.Stdin)
	h.log.Print("type a headword and press Enter to see index matches (Ctrl+C to exit):")

	for {
		h.log.Print("> ")
		prefix, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		h.handleInput(prefix)
	}
}

func (h *BtreeInputHandler) handleInput(prefix string) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exact, err := h.index.FindArticles(ctx, prefix, h.fold)
	if err != nil {
		h.log.Errorf("Exact lookup failed for '%s': %v", prefix, err)
		return
	}

	wr := h.index.PrefixMatch(prefix, h.suggestLimit, h.fold)
	<-wr.Done()
	elapsed := time.Since(start)

	if errStr := wr.Err(); errStr != "" {
		h.log.Errorf("Prefix scan failed for '%s': %v", prefix, errStr)
		return
	}

	matches := wr.Matches()
	h.log.Debugf("Took [ %v ] for prefix '%s'", elapsed, prefix)

	if len(exact) == 0 && len(matches) == 0 {
		h.log.Warnf("No matches found for prefix: '%s'", prefix)
		return
	}

	if len(exact) > 0 {
		h.log.Printf("Exact matches for '%s':", prefix)
		for i, link := range exact {
			word := link.Prefix + link.Word
			clWord := fmt.Sprintf("\033[38;5;75m%s\033[0m", word)
			h.log.Printf("%2d. %-40s (article: %8s)", i+1, clWord, utils.FormatWithCommas(int(link.ArticleOffset)))
		}
	}

	h.log.Printf("Found %d prefix matches for '%s':", len(matches), prefix)
	for i, word := range matches {
		clWord := fmt.Sprintf("\033[38;5;75m%s\033[0m", word)
		h.log.Printf("%2d. %s", i+1, clWord)
	}
}
