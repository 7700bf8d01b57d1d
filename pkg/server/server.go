package server

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/wordserve/pkg/btreeidx"
	"github.com/bastiangx/wordserve/pkg/btreeidx/folding"
	"github.com/bastiangx/wordserve/pkg/config"
	"github.com/bastiangx/wordserve/pkg/dictionary"
)

// Server handles the MessagePack IPC for compressed B-tree headword
// lookups and runtime dictionary chunk management.
type Server struct {
	config        *config.Config
	configPath    string
	runtimeLoader *dictionary.RuntimeLoader
	btreeDict     *dictionary.BtreeDictionary

	decoder *msgpack.Decoder
	writer  io.Writer
	writeMu sync.Mutex

	pending   map[string]*btreeidx.WordSearchRequest
	pendingMu sync.Mutex
}

// NewServer creates a new IPC server using stdin/stdout. chunkLoader, if
// non-nil, backs runtime dictionary size management ("get_info"/
// "set_size"/"get_options" actions). If config.Btree.Enabled is set and
// its index_path opens successfully, the server also serves
// "prefix_btree"/"stemmed_btree"/"cancel" commands against that index; a
// failure to open it is logged and otherwise ignored, leaving the server
// to run without a btree backend.
func NewServer(chunkLoader *dictionary.ChunkLoader, cfg *config.Config, configPath string) *Server {
	s := &Server{
		config:     cfg,
		configPath: configPath,
		decoder:    msgpack.NewDecoder(os.Stdin),
		writer:     os.Stdout,
		pending:    make(map[string]*btreeidx.WordSearchRequest),
	}

	if chunkLoader != nil {
		s.runtimeLoader = dictionary.NewRuntimeLoader(chunkLoader)
	}

	if cfg != nil && cfg.Btree.Enabled && cfg.Btree.IndexPath != "" {
		dict, err := dictionary.OpenBtreeDictionary(cfg.Btree.IndexPath, folding.Simple{})
		if err != nil {
			log.Warnf("Failed to open btree index %s: %v. Serving without it.", cfg.Btree.IndexPath, err)
		} else {
			s.btreeDict = dict
			log.Debugf("Opened btree index at %s", cfg.Btree.IndexPath)
		}
	}

	return s
}

// Start begins listening for IPC requests until stdin closes.
func (s *Server) Start() error {
	log.Debug("Starting Server.")
	s.sendResponse(map[string]string{"status": "ready"})

	for {
		var raw map[string]any
		if err := s.decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			log.Errorf("Decoding msgpack request: %v", err)
			return err
		}
		s.handleRequest(raw)
	}
}

// handleRequest routes a decoded message by its distinguishing field:
// "command" for btree queries/cancellation, "action" for dictionary
// management. Btree commands run on their own goroutine so the read
// loop can take in a "cancel" while a query is still running.
func (s *Server) handleRequest(raw map[string]any) {
	if _, ok := raw["command"]; ok {
		go s.handleBtreeRequest(raw)
		return
	}
	if _, ok := raw["action"]; ok {
		s.handleDictionaryRequest(raw)
		return
	}
	log.Warnf("Received message with no recognized discriminator field: %+v", raw)
}

func decodeInto[T any](raw map[string]any, out *T) error {
	data, err := msgpack.Marshal(raw)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, out)
}

func (s *Server) sendResponse(response any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	enc := msgpack.NewEncoder(s.writer)
	if err := enc.Encode(response); err != nil {
		log.Errorf("Encoding msgpack response: %v", err)
	}
}

// handleDictionaryRequest processes runtime dictionary size management,
// delegating to the RuntimeLoader.
func (s *Server) handleDictionaryRequest(raw map[string]any) {
	var req DictionaryRequest
	if err := decodeInto(raw, &req); err != nil {
		s.sendResponse(DictionaryResponse{Status: "error", Error: "Invalid request"})
		log.Errorf("Decoding dictionary request: %v", err)
		return
	}

	if s.runtimeLoader == nil {
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: "dictionary is not lazily loaded"})
		return
	}

	switch req.Action {
	case "get_info":
		available, err := s.runtimeLoader.GetAvailableChunkCount()
		if err != nil {
			s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: err.Error()})
			return
		}
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "ok", AvailableChunks: available})

	case "set_size":
		if req.ChunkCount == nil {
			s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: "missing chunk_count"})
			return
		}
		if err := s.runtimeLoader.SetDictionarySize(*req.ChunkCount); err != nil {
			s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: err.Error()})
			return
		}
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "ok", CurrentChunks: *req.ChunkCount})

	case "get_options":
		options, err := s.runtimeLoader.GetDictionarySizeOptions()
		if err != nil {
			s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: err.Error()})
			return
		}
		respOptions := make([]DictionarySizeOption, len(options))
		for i, opt := range options {
			respOptions[i] = DictionarySizeOption{ChunkCount: opt.ChunkCount, WordCount: opt.WordCount, SizeLabel: opt.SizeLabel}
		}
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "ok", Options: respOptions})

	case "get_chunk_count":
		available, err := s.runtimeLoader.GetAvailableChunkCount()
		if err != nil {
			s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: err.Error()})
			return
		}
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "ok", AvailableChunks: available})

	default:
		s.sendResponse(DictionaryResponse{ID: req.ID, Status: "error", Error: fmt.Sprintf("unknown action: %s", req.Action)})
	}
}

// handleBtreeRequest processes prefix/stemmed queries against the
// compressed B-tree index and cancellation of a still-running one.
func (s *Server) handleBtreeRequest(raw map[string]any) {
	var req BtreeRequest
	if err := decodeInto(raw, &req); err != nil {
		s.sendResponse(BtreeResponse{Status: "error", Error: "Invalid request"})
		log.Errorf("Decoding btree request: %v", err)
		return
	}

	if req.Command == "cancel" {
		s.cancelBtreeRequest(req)
		return
	}

	if s.btreeDict == nil {
		s.sendResponse(BtreeResponse{ID: req.ID, Status: "error", Error: "btree index is not enabled"})
		return
	}
	if req.Prefix == "" {
		s.sendResponse(BtreeResponse{ID: req.ID, Status: "error", Error: "missing prefix"})
		return
	}

	limit := req.Limit
	if limit < 1 {
		limit = 10
		if s.config != nil && s.config.CLI.DefaultLimit > 0 {
			limit = s.config.CLI.DefaultLimit
		}
	}
	if s.config != nil && s.config.Server.MaxLimit > 0 && limit > s.config.Server.MaxLimit {
		limit = s.config.Server.MaxLimit
	}

	start := time.Now()
	var wr *btreeidx.WordSearchRequest
	idx := s.btreeDict.Index()
	fold := s.btreeDict.Folder()

	switch req.Command {
	case "prefix_btree":
		wr = idx.PrefixMatch(req.Prefix, limit, fold)
	case "stemmed_btree":
		minLen, maxVar, allowMiddle := 4, -1, true
		if s.config != nil {
			minLen = s.config.Btree.MinStemLength
			maxVar = s.config.Btree.MaxSuffixVariation
			allowMiddle = s.config.Btree.AllowMiddleMatches
		}
		wr = idx.StemmedMatch(req.Prefix, minLen, maxVar, limit, allowMiddle, fold)
	default:
		s.sendResponse(BtreeResponse{ID: req.ID, Status: "error", Error: fmt.Sprintf("unknown command: %s", req.Command)})
		return
	}

	s.trackPending(req.ID, wr)
	<-wr.Done()
	s.untrackPending(req.ID)

	elapsed := time.Since(start)
	if errStr := wr.Err(); errStr != "" {
		s.sendResponse(BtreeResponse{ID: req.ID, Status: "error", Error: errStr})
		return
	}

	matches := wr.Matches()
	s.sendResponse(BtreeResponse{
		ID:        req.ID,
		Matches:   matches,
		Count:     len(matches),
		TimeTaken: elapsed.Microseconds(),
		Status:    "ok",
	})
}

func (s *Server) trackPending(id string, wr *btreeidx.WordSearchRequest) {
	s.pendingMu.Lock()
	s.pending[id] = wr
	s.pendingMu.Unlock()
}

func (s *Server) untrackPending(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Server) cancelBtreeRequest(req BtreeRequest) {
	s.pendingMu.Lock()
	wr, ok := s.pending[req.RequestID]
	s.pendingMu.Unlock()

	if !ok {
		s.sendResponse(BtreeResponse{ID: req.ID, Status: "error", Error: "no such pending request"})
		return
	}
	wr.Cancel()
	s.sendResponse(BtreeResponse{ID: req.ID, Status: "ok"})
}

// Close releases any resources the server opened, including the btree
// index file handle.
func (s *Server) Close() error {
	if s.btreeDict != nil {
		return s.btreeDict.Close()
	}
	return nil
}
