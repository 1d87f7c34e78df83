package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oxhq/replx/core"
	"github.com/oxhq/replx/internal/config"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

type runFlags struct {
	root           string
	mapping        string
	mode           string
	journal        string
	skipScan       bool
	excludeDirs    []string
	extensions     []string
	includeGlobs   []string
	excludeGlobs   []string
	useGitignore   bool
	ignoreFile     string
	ignoreSymlinks bool
	symlinkNames   bool
	noFileRenames  bool
	noDirRenames   bool
	noContent      bool
	timeoutMinutes int
	maxBytes       int64
	verbose        bool
	quiet          bool
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "replx",
		Short:         "Safe, transaction-based find-and-replace across a directory tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCommand(), resumeCommand(), historyCommand())
	return root
}

func runCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, plan and apply replacements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(f)
		},
	}
	addRunFlags(cmd, f)
	return cmd
}

func resumeCommand() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted run from its journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.mode = string(config.ModeResume)
			return executeRun(f)
		},
	}
	cmd.Flags().StringVar(&f.root, "root", ".", "Directory to process.")
	cmd.Flags().StringVar(&f.journal, "journal", "", "Journal path (default: planned_transactions.json in the root).")
	cmd.Flags().IntVar(&f.timeoutMinutes, "timeout-minutes", 30, "Global deadline in minutes.")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output.")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Suppress non-error output.")
	return cmd
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.root, "root", ".", "Directory to process.")
	fl.StringVarP(&f.mapping, "mapping", "m", "", "Path to the replacement mapping document. (Required)")
	fl.StringVar(&f.mode, "mode", string(config.ModeDryRun), "Execution mode: dry_run, force, interactive or resume.")
	fl.StringVar(&f.journal, "journal", "", "Journal path (default: planned_transactions.json in the root).")
	fl.BoolVar(&f.skipScan, "skip-scan", false, "Reuse the existing journal unchanged.")
	fl.StringSliceVar(&f.excludeDirs, "exclude-dir", nil, "Directory names to skip (repeatable).")
	fl.StringSliceVar(&f.extensions, "ext", nil, "Content extension allow-list; empty means the default text set.")
	fl.StringSliceVar(&f.includeGlobs, "include", nil, "Include file patterns (glob).")
	fl.StringSliceVar(&f.excludeGlobs, "exclude", nil, "Exclude file patterns (glob).")
	fl.BoolVar(&f.useGitignore, "gitignore", false, "Honor .gitignore files during the walk.")
	fl.StringVar(&f.ignoreFile, "ignore-file", "", "Custom ignore file (gitignore syntax).")
	fl.BoolVar(&f.ignoreSymlinks, "ignore-symlinks", false, "Never descend into or rename symlinks.")
	fl.BoolVar(&f.symlinkNames, "symlink-names", false, "Rename symlinks whose names match.")
	fl.BoolVar(&f.noFileRenames, "no-file-renames", false, "Skip the file renaming phase.")
	fl.BoolVar(&f.noDirRenames, "no-folder-renames", false, "Skip the folder renaming phase.")
	fl.BoolVar(&f.noContent, "no-content", false, "Skip the content editing phase.")
	fl.IntVar(&f.timeoutMinutes, "timeout-minutes", 30, "Global deadline in minutes.")
	fl.Int64Var(&f.maxBytes, "max-bytes", config.DefaultMaxScanBytes, "Maximum file size for content scanning.")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output.")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress non-error output.")
}

func executeRun(f *runFlags) error {
	cfg := &config.Config{
		ScanRoot:            f.root,
		MappingPath:         f.mapping,
		Mode:                config.Mode(f.mode),
		JournalPath:         f.journal,
		SkipScan:            f.skipScan,
		ExcludedDirs:        f.excludeDirs,
		Extensions:          f.extensions,
		IncludeGlobs:        f.includeGlobs,
		ExcludeGlobs:        f.excludeGlobs,
		UseGitignore:        f.useGitignore,
		CustomIgnorePath:    f.ignoreFile,
		IgnoreSymlinks:      f.ignoreSymlinks,
		ProcessSymlinkNames: f.symlinkNames,
		SkipFileRenaming:    f.noFileRenames,
		SkipFolderRenaming:  f.noDirRenames,
		SkipContent:         f.noContent,
		TimeoutMinutes:      f.timeoutMinutes,
		MaxScanBytes:        f.maxBytes,
		Verbose:             f.verbose,
		Quiet:               f.quiet,
	}
	if cfg.ExcludedDirs == nil {
		cfg.ExcludedDirs = config.DefaultExcludedDirs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var prompter core.Prompter
	if cfg.Mode == config.ModeInteractive {
		prompter = &terminalPrompter{in: bufio.NewReader(os.Stdin)}
	}

	started := time.Now()
	result, err := core.Run(ctx, cfg, prompter)
	if err != nil {
		return err
	}

	printResult(cfg, result)
	recordHistory(cfg, result, started)

	if result.Summary != nil && result.Summary.Failed > 0 {
		return fmt.Errorf("%d transactions failed", result.Summary.Failed)
	}
	return nil
}

// terminalPrompter implements the interactive collision override.
type terminalPrompter struct {
	in *bufio.Reader
}

func (p *terminalPrompter) ConfirmCollision(txType core.TxType, from, to string) bool {
	yellow.Printf("Collision: %s %s -> %s\n", txType, from, to)
	fmt.Print("Proceed anyway? [y/N] ")
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
