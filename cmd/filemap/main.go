package main

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/aaronmdjones/filemap/internal/logging"
	"github.com/aaronmdjones/filemap/internal/options"
	"github.com/aaronmdjones/filemap/internal/report"
	"github.com/aaronmdjones/filemap/internal/scan"
)

var (
	logger = logging.GetLogger()
)

func main() {
	prog := os.Args[0]

	cfg, err := options.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		// Parse already wrote the diagnostics and usage text.
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger.Debug("scanning %s", cfg.Path)

	status := report.NewStatus(os.Stderr, prog, cfg.Quiet)
	scanner := scan.New(scan.Config{
		ScanDirectories: cfg.ScanDirectories,
		SyncFiles:       cfg.SyncFiles,
		Status:          status.Printf,
	})

	graph, err := scanner.Run(cfg.Path)
	if err != nil {
		status.Clear()
		fmt.Fprintf(os.Stderr, "%s: %v\n", prog, err)
		os.Exit(1)
	}

	extents := graph.SortedExtents(cfg.Method, cfg.Direction)
	logger.Debug("scan complete: %d extents across %d inodes", len(extents), graph.Stats().Inodes)

	status.Clear()
	report.NewPrinter(os.Stdout, cfg).Print(graph, extents)
}
