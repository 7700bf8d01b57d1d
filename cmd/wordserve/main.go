// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the word lookup server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

WordServe provides fast headword lookup backed by a compressed on-disk
B-tree index, built from chunked dictionary word lists. It can operate as a
MessagePack IPC server for integration with text editors, or as a CLI
application for testing and debugging.

The server mode uses lazy-loaded chunked dictionaries to efficiently manage
large word datasets while maintaining low memory usage.

# Usage

Start the server with default settings:

	wserve

Use a custom data directory and enable debug mode:

	wserve -data /path/to/chunks -d

Run the btree debugger against an already-built index:

	wserve -btree /path/to/index.btree -limit 10

The data directory should contain chunked binary files named dict_0001.bin,
dict_0002.bin, etc. These files are generated from word frequency data and
are the source BuildBtreeFromChunks reads to build an index, as well as
the source the runtime dictionary size manager loads on demand.

# Configuration

Runtime configuration is managed through a TOML file that supports server
parameters, dictionary settings, and the on-disk B-tree index:

	[server]
	max_limit = 64
	min_prefix = 1
	max_prefix = 60
	enable_filter = true

	[dict]
	max_words = 50000
	chunk_size = 10000

	[btree]
	enabled = true
	index_path = "data/index.btree"
	max_suffix_variation = -1
	min_stem_length = 4
	allow_middle_matches = true

The config file is automatically created with defaults if it doesn't exist.

# IPC Protocol

The server communicates via MessagePack over stdin/stdout. Each B-tree
query runs to completion or cancellation before its response is written,
with microsecond timing information included in responses. B-tree queries
are handled concurrently, so their responses can arrive out of request
order and are matched by "id".

Send a prefix query:

	{"id": "req1", "command": "prefix_btree", "p": "hello", "l": 20}

Receive matching headwords:

	{"id": "req1", "matches": ["hello", "hellos"], "c": 2, "t": 145}

Dictionary management requests allow runtime adjustment of loaded chunks:

	{"id": "dict1", "action": "get_info"}
	{"id": "dict2", "action": "set_size", "chunk_count": 5}

# Server Mode

The default mode starts a MessagePack IPC server that processes requests
from stdin and writes responses to stdout. This design enables integration
with text editors and other applications through process communication.

	srv := server.NewServer(chunkLoader, config, configPath)
	err := srv.Start()

The server automatically handles request parsing, validation, and response
formatting.

# CLI Mode

CLI mode provides an interactive interface for testing and debugging
lookups against an already-built B-tree index.

	inputHandler := cli.NewBtreeInputHandler(index, fold, limit)
	err := inputHandler.Start()

This mode is primarily intended for development and testing new features
before deploying to server mode.

# Command Line Flags

The following flags control application behavior:

	-data string
	    Directory containing binary chunk files (default "data/")
	-d  Enable debug mode with detailed logging
	-limit int
	    Number of matches to return (default from config)
	-words int
	    Maximum words to load (0 for all)
	-chunk int
	    Words per chunk for lazy loading
	-btree string
	    Path to a compressed B-tree index file; runs the CLI against it

The application automatically resolves data and config paths relative to the
executable location, supporting both development and production deployments.

# Mem

The lazy loader manages memory usage by loading dictionary chunks on demand
and providing cleanup mechanisms. The server reads its configuration once
at startup and does not reload it while running.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/wordserve/internal/cli"
	"github.com/bastiangx/wordserve/internal/utils"
	"github.com/bastiangx/wordserve/pkg/btreeidx/folding"
	"github.com/bastiangx/wordserve/pkg/config"
	"github.com/bastiangx/wordserve/pkg/dictionary"
	"github.com/bastiangx/wordserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.9.0-beta"
	AppName = "wordserve"
	gh      = "https://github.com/bastiangx/wordserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI inputs.
// main() does not implement logic for them and only manages the flow.
func main() {
	sigHandler()
	defaultConfig := config.DefaultConfig()

	// custom Flags
	showVersion := flag.Bool("version", false, "Show current version")
	binaryDir := flag.String("data", "data/", "Directory containing the binary files")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	limit := flag.Int("limit", defaultConfig.CLI.DefaultLimit, "Number of matches to return")
	wordLimit := flag.Int("words", defaultConfig.Dict.MaxWords, "Maximum number of words to load (use 0 for all words)")
	chunkSize := flag.Int("chunk", defaultConfig.Dict.ChunkSize, "Number of words per chunk for lazy loading")
	btreePath := flag.String("btree", "", "Path to a compressed B-tree index file; runs the CLI debugger against it")

	flag.Parse()

	if *showVersion {
		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportCaller:    false,
			ReportTimestamp: false,
			Prefix:          "",
		})

		styles := log.DefaultStyles()

		styles.Values["version"] = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
		styles.Values["version"] = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})

		styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})

		logger.SetStyles(styles)

		logger.Print("")
		logger.Print("[ WordServe ] Serves really Fast headword lookups!")
		logger.Print("", "version", Version)
		logger.Print("")
		logger.Print("use -h or --help to see available options")
		logger.Print("Github Repo", "gh", gh)

		os.Exit(0)
	}

	// Initialize path resolver for robust path handling
	pathResolver, err := utils.NewPathResolver()
	if err != nil {
		log.Fatalf("Failed to initialize path resolver: %v", err)
		log.Print("Either env is not set or system is not supported")
		log.Print("Did you forget to run the build or install scripts?")
		os.Exit(1)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	// Pathfinder for bin dir
	resolvedDataDir, err := pathResolver.GetDataDir(*binaryDir)
	if err != nil {
		log.Fatalf("Failed to resolve data dir:(%v)", err)
		os.Exit(1)
	}

	if *btreePath != "" {
		log.SetReportTimestamp(false)
		btreeDict, err := dictionary.OpenBtreeDictionary(*btreePath, folding.Simple{})
		if err != nil {
			log.Fatalf("Failed to open btree index %s: %v", *btreePath, err)
			os.Exit(1)
		}
		defer btreeDict.Close()

		inputHandler := cli.NewBtreeInputHandler(btreeDict.Index(), btreeDict.Folder(), *limit)
		if err := inputHandler.Start(); err != nil {
			log.Fatalf("Btree CLI error: %v", err)
			os.Exit(1)
		}
		return
	}

	log.Debugf("Using data dir at: %s", resolvedDataDir)

	var chunkLoader *dictionary.ChunkLoader
	if *binaryDir != "" {
		chunkLoader = dictionary.NewChunkLoader(resolvedDataDir, *chunkSize, *wordLimit)
		if err := chunkLoader.StartLazyLoading(); err != nil {
			log.Fatalf("Failed to start chunk loader: %v", err)
			os.Exit(1)
		}
		log.Debug("Chunk loader init done")
	} else {
		log.Warn("No binary dir specified, running without a runtime dictionary loader...")
	}

	log.Debug("spawning IPC")
	configPath, err := pathResolver.GetConfigPath("typer-config.toml")
	if err != nil {
		log.Fatalf("Failed to determine config path: (%v)", err)
		os.Exit(1)
	}
	log.Debugf("Using config file: (%s)", configPath)

	appConfig, err := config.InitConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	srv := server.NewServer(chunkLoader, appConfig, configPath)
	defer srv.Close()

	showStartupInfo(resolvedDataDir)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(dataDir string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("===========")
	println(" WordServe ")
	println("===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("data dir: ( %s )", dataDir)
	log.Info("status: ready")
	println("===========")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
