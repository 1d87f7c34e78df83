package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxhq/replx/internal/config"
	"github.com/oxhq/replx/internal/rules"
	"github.com/oxhq/replx/internal/sidelog"
	"github.com/oxhq/replx/internal/textenc"
	"github.com/oxhq/replx/internal/util"
)

// FileDiff is one dry-run preview entry.
type FileDiff struct {
	Path string
	Diff string
}

// RunResult is the outcome handed back to the operator surface.
type RunResult struct {
	Summary *Summary

	// Planned is the journal-ordered plan (dry-run and verbose
	// reporting).
	Planned []*Transaction

	// Preview holds unified diffs of planned content edits; only
	// populated in dry-run mode.
	Preview []FileDiff

	CollisionLogPath string
	BinaryLogPath    string
}

// Run is the programmatic entry point: scan (unless resuming or
// reusing a journal), plan, journal and execute according to the
// configured mode.
func Run(ctx context.Context, cfg *config.Config, prompter Prompter) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	side := sidelog.New(
		filepath.Join(cfg.ScanRoot, sidelog.CollisionLogName),
		filepath.Join(cfg.ScanRoot, sidelog.BinaryLogName),
	)
	defer side.Close()

	result := &RunResult{
		CollisionLogPath: side.CollisionPath(),
		BinaryLogPath:    side.BinaryPath(),
	}

	if cfg.Mode == config.ModeDryRun {
		plan, err := dryRunPlan(ctx, cfg, side, prompter)
		if err != nil {
			return nil, err
		}
		result.Planned = plan
		result.Preview = buildPreview(cfg, plan)
		result.Summary = planSummary(plan)
		return result, nil
	}

	journal, err := OpenJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	defer journal.Close()

	switch {
	case cfg.Mode == config.ModeResume:
		if len(journal.Transactions) == 0 {
			return nil, fmt.Errorf("nothing to resume: journal %s is empty or missing", cfg.JournalPath)
		}
		if err := Reconcile(journal, cfg); err != nil {
			return nil, err
		}
	case cfg.SkipScan:
		if len(journal.Transactions) == 0 {
			return nil, fmt.Errorf("skip_scan set but journal %s holds no plan", cfg.JournalPath)
		}
	default:
		if pending := nonTerminalCount(journal); pending > 0 {
			return nil, fmt.Errorf("journal %s still has %d unfinished transactions; resume or delete it",
				cfg.JournalPath, pending)
		}
		plan, err := scanAndPlan(ctx, cfg, side, prompter)
		if err != nil {
			return nil, err
		}
		journal.Replace(plan)
		// End-of-planning checkpoint freezes the execution order.
		if err := journal.Checkpoint(); err != nil {
			return nil, err
		}
	}

	executor := NewExecutor(journal, cfg, side)
	summary, execErr := executor.Run(ctx)
	result.Summary = summary
	result.Planned = journal.Transactions
	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

// scanAndPlan walks the tree and produces the frozen journal order.
func scanAndPlan(ctx context.Context, cfg *config.Config, side *sidelog.Logger, prompter Prompter) ([]*Transaction, error) {
	set, err := rules.Load(cfg.MappingPath)
	if err != nil {
		return nil, err
	}

	walker, err := NewWalker(cfg)
	if err != nil {
		return nil, err
	}

	scanner := NewScanner(cfg, set, side)
	txs, err := scanner.Scan(ctx, walker)
	if err != nil {
		return nil, err
	}

	planner := NewPlanner(cfg.ScanRoot, side, prompter)
	return planner.Plan(txs), nil
}

// dryRunPlan plans without writing a journal or mutating anything.
func dryRunPlan(ctx context.Context, cfg *config.Config, side *sidelog.Logger, prompter Prompter) ([]*Transaction, error) {
	// No side logger: collision and binary-match logs would be new
	// files in the scan root.
	return scanAndPlan(ctx, cfg, nil, prompter)
}

// buildPreview renders unified diffs for the planned content edits,
// one entry per file.
func buildPreview(cfg *config.Config, plan []*Transaction) []FileDiff {
	byFile := make(map[string][]*Transaction)
	var order []string
	for _, tx := range plan {
		if tx.Type != TxContentLine || tx.Status == StatusSkipped {
			continue
		}
		if _, ok := byFile[tx.Path]; !ok {
			order = append(order, tx.Path)
		}
		byFile[tx.Path] = append(byFile[tx.Path], tx)
	}

	var previews []FileDiff
	for _, p := range order {
		diff := previewFile(cfg, p, byFile[p])
		if diff != "" {
			previews = append(previews, FileDiff{Path: p, Diff: diff})
		}
	}
	return previews
}

func previewFile(cfg *config.Config, rel string, txs []*Transaction) string {
	raw, err := os.ReadFile(filepath.Join(cfg.ScanRoot, filepath.FromSlash(rel)))
	if err != nil {
		return ""
	}
	first := txs[0]
	codec, err := textenc.CodecFor(first.Encoding)
	if err != nil || len(raw) < len(first.BOM) {
		return ""
	}
	body := raw[len(first.BOM):]
	text, err := codec.Decode(body)
	if err != nil {
		return ""
	}
	lines := textenc.SplitLines(text)

	modified := make([]string, len(lines))
	copy(modified, lines)
	for _, tx := range txs {
		idx := tx.LineNumber - 1
		if idx < 0 || idx >= len(modified) {
			continue
		}
		newText, derr := codec.Decode(tx.NewLineBytes)
		if derr != nil {
			continue
		}
		modified[idx] = newText
	}

	var orig, mod string
	for _, l := range lines {
		orig += l
	}
	for _, l := range modified {
		mod += l
	}
	return util.UnifiedDiff(orig, mod, rel, 3)
}

// planSummary tallies a plan that was never executed.
func planSummary(plan []*Transaction) *Summary {
	s := &Summary{}
	for _, tx := range plan {
		s.Add(tx)
	}
	return s
}

func nonTerminalCount(j *Journal) int {
	n := 0
	for _, tx := range j.Transactions {
		if !tx.Status.Terminal() {
			n++
		}
	}
	return n
}
