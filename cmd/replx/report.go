package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oxhq/replx/core"
	"github.com/oxhq/replx/internal/config"
	"github.com/oxhq/replx/internal/history"
)

func printResult(cfg *config.Config, result *core.RunResult) {
	if cfg.Quiet {
		return
	}

	if cfg.Mode == config.ModeDryRun {
		printDryRun(cfg, result)
		return
	}

	s := result.Summary
	green.Printf("✓ %d completed", s.Completed)
	if s.Skipped > 0 {
		fmt.Print("  ")
		yellow.Printf("‣ %d skipped", s.Skipped)
	}
	if s.Failed > 0 {
		fmt.Print("  ")
		red.Printf("✗ %d failed", s.Failed)
	}
	fmt.Println()

	for _, tx := range s.FailedTxs {
		red.Printf("  ✗ %s %s: %s\n", tx.Type, tx.Path, tx.Error)
	}
	if s.Skipped > 0 {
		fmt.Printf("Collision log: %s\n", result.CollisionLogPath)
	}
	if cfg.Verbose {
		fmt.Printf("Binary match log: %s\n", result.BinaryLogPath)
	}
}

func printDryRun(cfg *config.Config, result *core.RunResult) {
	var renames, edits int
	var editedBytes int64
	for _, tx := range result.Planned {
		switch {
		case tx.Status == core.StatusSkipped:
		case tx.Type.IsRename():
			renames++
		case tx.Type == core.TxContentLine:
			edits++
			editedBytes += int64(len(tx.NewLineBytes))
		}
	}

	for _, tx := range result.Planned {
		if !tx.Type.IsRename() {
			continue
		}
		marker := green.Sprint("rename")
		if tx.Status == core.StatusSkipped {
			marker = yellow.Sprint("skip  ")
		}
		fmt.Printf("  %s %s -> %s\n", marker, tx.Path, tx.NewPath())
	}

	if cfg.Verbose || edits > 0 {
		for _, fd := range result.Preview {
			fmt.Print(fd.Diff)
		}
	}

	fmt.Printf("Would rename %d entries and rewrite %d lines (%s).\n",
		renames, edits, humanize.Bytes(uint64(editedBytes)))
	fmt.Println("Run again with --mode force to apply.")
}

// recordHistory stores the finished run; failures here only warn,
// the run itself already succeeded or failed on its own terms.
func recordHistory(cfg *config.Config, result *core.RunResult, started time.Time) {
	if cfg.Mode == config.ModeDryRun || result.Summary == nil {
		return
	}

	rec, err := history.Open(history.DefaultDSN(), false)
	if err != nil {
		if !cfg.Quiet {
			fmt.Fprintf(os.Stderr, "Warning: history store unavailable: %v\n", err)
		}
		return
	}
	defer rec.Close()

	s := result.Summary
	err = rec.Record(history.Entry{
		ScanRoot:    cfg.ScanRoot,
		MappingPath: cfg.MappingPath,
		Mode:        string(cfg.Mode),
		JournalPath: cfg.JournalPath,
		Completed:   s.Completed,
		Failed:      s.Failed,
		Skipped:     s.Skipped,
		Stats: map[string]any{
			"planned":       len(result.Planned),
			"collision_log": result.CollisionLogPath,
			"binary_log":    result.BinaryLogPath,
			"duration_ms":   time.Since(started).Milliseconds(),
		},
		StartedAt: started,
	})
	if err != nil && !cfg.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: could not record run history: %v\n", err)
	}
}
